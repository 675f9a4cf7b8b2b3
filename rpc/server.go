package rpc

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/lakebed/duckbridge/channel"
	"github.com/lakebed/duckbridge/errors"
)

// Server dispatches capability calls arriving on a port. Each request
// runs on its own goroutine so a long query never blocks cancelQuery from
// landing; replies are posted in completion order and correlated by ID.
type Server struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      *zap.Logger
}

// NewServer creates a server with the built-in ping and getMethods
// capabilities already registered.
func NewServer(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		handlers: make(map[string]Handler),
		log:      log,
	}
	s.Register(MethodPing, func(ctx context.Context, args []any) (any, error) {
		return PingSentinel, nil
	})
	s.Register(MethodGetMethods, func(ctx context.Context, args []any) (any, error) {
		return s.Methods(), nil
	})
	return s
}

// Register binds a handler under a capability name, replacing any prior
// binding.
func (s *Server) Register(name string, h Handler) {
	s.mu.Lock()
	s.handlers[name] = h
	s.mu.Unlock()
}

// RegisterAll binds every handler in the map.
func (s *Server) RegisterAll(handlers map[string]Handler) {
	for name, h := range handlers {
		s.Register(name, h)
	}
}

// Methods returns the sorted names of all registered capabilities.
func (s *Server) Methods() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Serve consumes request frames from port until the context is done or
// the pair closes. It must be given a started port.
func (s *Server) Serve(ctx context.Context, port *channel.Port) {
	for {
		msg, err := port.Recv(ctx)
		if err != nil {
			s.log.Debug("rpc server stopping", zap.Error(err))
			return
		}
		req, ok := msg.Payload.(*Request)
		if msg.Kind != channel.KindRPCRequest || !ok {
			s.log.Warn("unexpected frame on rpc channel", zap.String("kind", msg.Kind))
			continue
		}
		go s.dispatch(ctx, port, req)
	}
}

func (s *Server) dispatch(ctx context.Context, port *channel.Port, req *Request) {
	s.mu.RLock()
	h, ok := s.handlers[req.Target]
	s.mu.RUnlock()

	resp := &Response{ID: req.ID}
	if !ok {
		resp.Err = errors.UnknownTarget(req.Target)
	} else {
		resp.Value, resp.Err = h(ctx, req.Args)
	}

	if err := port.Post(channel.Message{Kind: channel.KindRPCResponse, Payload: resp}); err != nil {
		s.log.Debug("dropping reply for closed channel",
			zap.String("target", req.Target), zap.Error(err))
	}
}

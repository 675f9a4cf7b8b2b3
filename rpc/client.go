package rpc

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lakebed/duckbridge/channel"
	"github.com/lakebed/duckbridge/errors"
)

// Client is the caller side of the capability proxy. One receive loop
// demultiplexes replies to the goroutines parked in Call.
type Client struct {
	mu      sync.Mutex
	port    *channel.Port
	pending map[string]chan *Response
	closed  bool
	cancel  context.CancelFunc
	log     *zap.Logger
}

// NewClient creates an unbound client.
func NewClient(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		pending: make(map[string]chan *Response),
		log:     log,
	}
}

// Bind attaches the client to its RPC channel endpoint and starts the
// receive loop. The endpoint must already be started.
func (c *Client) Bind(port *channel.Port) {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.port = port
	c.cancel = cancel
	c.mu.Unlock()
	go c.recvLoop(ctx, port)
}

// Call invokes a remote capability and suspends the caller until the
// matching reply arrives. A remote error is returned as the callee's own
// error value; context cancellation abandons the call locally.
func (c *Client) Call(ctx context.Context, target string, args ...any) (any, error) {
	id := uuid.NewString()
	ch := make(chan *Response, 1)

	c.mu.Lock()
	if c.closed || c.port == nil {
		c.mu.Unlock()
		return nil, errors.Closed("rpc client")
	}
	c.pending[id] = ch
	port := c.port
	c.mu.Unlock()

	req := &Request{ID: id, Target: target, Args: args}
	if err := port.Post(channel.Message{Kind: channel.KindRPCRequest, Payload: req}); err != nil {
		c.forget(id)
		return nil, errors.Wrap(errors.PhaseRPC, errors.KindClosed, err, "send request")
	}

	select {
	case resp := <-ch:
		if resp == nil {
			return nil, errors.Closed("rpc client")
		}
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.Value, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// Close stops the receive loop, closes the channel pair, and fails every
// pending call.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	port := c.port
	cancel := c.cancel
	waiters := c.pending
	c.pending = make(map[string]chan *Response)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if port != nil {
		port.Close()
	}
	for _, ch := range waiters {
		ch <- nil
	}
}

func (c *Client) recvLoop(ctx context.Context, port *channel.Port) {
	for {
		msg, err := port.Recv(ctx)
		if err != nil {
			c.log.Debug("rpc client stopping", zap.Error(err))
			c.failPending()
			return
		}
		resp, ok := msg.Payload.(*Response)
		if msg.Kind != channel.KindRPCResponse || !ok {
			c.log.Warn("unexpected frame on rpc channel", zap.String("kind", msg.Kind))
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) failPending() {
	c.mu.Lock()
	waiters := c.pending
	c.pending = make(map[string]chan *Response)
	c.mu.Unlock()
	for _, ch := range waiters {
		ch <- nil
	}
}

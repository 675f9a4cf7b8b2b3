package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lakebed/duckbridge/channel"
	"github.com/lakebed/duckbridge/rpc"
	"github.com/lakebed/duckbridge/session"
)

// Worker is the isolated execution context hosting the engine session.
// It owns a dedicated goroutine whose control loop processes envelopes
// from the default inbound path one at a time; RPC traffic moves to the
// private channel received in the bridge-init envelope.
type Worker struct {
	host *channel.Port // default-path endpoint retained by the host
	side *channel.Port

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	newSession func() *session.Session

	mu      sync.Mutex
	sess    *session.Session
	rpcPort *channel.Port
	bound   bool

	termOnce sync.Once
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(w *Worker) { w.log = log }
}

// WithSessionFactory replaces how the worker constructs its engine
// session when the bridge binds.
func WithSessionFactory(f func() *session.Session) Option {
	return func(w *Worker) { w.newSession = f }
}

// Spawn starts a worker context and returns its handle. The default
// control paths are live immediately.
func Spawn(opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		ctx:    ctx,
		cancel: cancel,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.newSession == nil {
		log := w.log
		w.newSession = func() *session.Session {
			return session.New(session.WithIsolation(true), session.WithLogger(log))
		}
	}

	w.host, w.side = channel.NewPair()
	w.host.Start()
	w.side.Start()
	go w.loop()
	return w
}

// Conduit returns the host's endpoint of the default control path.
func (w *Worker) Conduit() *channel.Port {
	return w.host
}

// Terminate shuts the worker down: control loop, RPC channel, session,
// engine. Idempotent.
func (w *Worker) Terminate() {
	w.termOnce.Do(func() {
		w.cancel()
		w.host.Close()

		w.mu.Lock()
		port := w.rpcPort
		sess := w.sess
		w.mu.Unlock()

		if port != nil {
			port.Close()
		}
		if sess != nil {
			sess.Close()
		}
		w.log.Debug("worker terminated")
	})
}

func (w *Worker) loop() {
	for {
		msg, err := w.side.Recv(w.ctx)
		if err != nil {
			return
		}
		switch msg.Kind {
		case channel.KindBridgeInit:
			w.handleBridgeInit(msg)
		default:
			w.log.Debug("ignoring envelope on default path", zap.String("kind", msg.Kind))
		}
	}
}

func (w *Worker) handleBridgeInit(msg channel.Message) {
	w.mu.Lock()
	if w.bound {
		w.mu.Unlock()
		w.log.Warn("duplicate bridge-init ignored")
		return
	}
	if msg.Port == nil {
		w.mu.Unlock()
		w.log.Warn("bridge-init without a port ignored")
		return
	}
	w.bound = true
	sess := w.newSession()
	w.sess = sess
	w.rpcPort = msg.Port
	w.mu.Unlock()

	srv := rpc.NewServer(w.log)
	srv.RegisterAll(sess.Capabilities())
	msg.Port.Start()
	go srv.Serve(w.ctx, msg.Port)

	// The acknowledgment goes out on the default path, never on the new
	// channel, so it cannot race RPC framing there.
	if err := w.side.Post(channel.Message{Kind: channel.KindBridgeReady}); err != nil {
		w.log.Warn("bridge-ready not delivered", zap.Error(err))
	}
}

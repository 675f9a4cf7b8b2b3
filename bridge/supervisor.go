package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lakebed/duckbridge/channel"
	"github.com/lakebed/duckbridge/errors"
	"github.com/lakebed/duckbridge/rpc"
	"github.com/lakebed/duckbridge/session"
	"github.com/lakebed/duckbridge/worker"
)

const (
	// DefaultRetryDelay separates the two establishment attempts.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultStopGrace is the window in which a Start after Stop reuses
	// the live worker instead of spawning a second engine instance.
	DefaultStopGrace = 250 * time.Millisecond
)

// RequiredCapabilities is the minimum surface the worker must report
// before the supervisor marks the session usable.
var RequiredCapabilities = []string{
	session.CapInitialize,
	session.CapRegisterFile,
	session.CapQuery,
	rpc.MethodPing,
}

// Handle is the supervisor's view of a spawned worker context.
type Handle interface {
	Conduit() *channel.Port
	Terminate()
}

// SpawnFunc creates a fresh worker context for one establishment attempt.
type SpawnFunc func() Handle

// Supervisor drives the host side of the bridge: transport establishment,
// capability binding, engine initialization, liveness and completeness
// checks, a single bounded retry, and teardown that tolerates rapid
// remount without duplicating workers.
//
// A Supervisor is an explicitly owned object with constructor/dispose
// lifecycle; consumers receive it, they never reach for ambient state.
type Supervisor struct {
	log              *zap.Logger
	spawn            SpawnFunc
	workerOpts       []worker.Option
	handshakeTimeout time.Duration
	retryDelay       time.Duration
	stopGrace        time.Duration
	m                *metrics

	mu        sync.Mutex
	handle    Handle
	client    *rpc.Client
	stopTimer *time.Timer
	ready     bool
	closed    bool
	lastErr   error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithSpawn replaces how worker contexts are created.
func WithSpawn(f SpawnFunc) Option {
	return func(s *Supervisor) { s.spawn = f }
}

// WithWorkerOptions forwards options to the default spawn.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(s *Supervisor) { s.workerOpts = opts }
}

// WithHandshakeTimeout overrides the bridge-ready wait ceiling.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Supervisor) { s.handshakeTimeout = d }
}

// WithRetryDelay overrides the fixed delay before the single retry.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Supervisor) { s.retryDelay = d }
}

// WithStopGrace overrides the deferred-teardown window.
func WithStopGrace(d time.Duration) Option {
	return func(s *Supervisor) { s.stopGrace = d }
}

// WithMetrics registers supervisor instrumentation with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Supervisor) { s.m = newMetrics(reg) }
}

// New creates a supervisor. Start must be called before the capability
// surface is usable.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		log:              zap.NewNop(),
		handshakeTimeout: channel.DefaultHandshakeTimeout,
		retryDelay:       DefaultRetryDelay,
		stopGrace:        DefaultStopGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.spawn == nil {
		workerOpts := append([]worker.Option{worker.WithLogger(s.log)}, s.workerOpts...)
		s.spawn = func() Handle { return worker.Spawn(workerOpts...) }
	}
	return s
}

// Start runs the establishment sequence: spawn, transport handshake,
// proxy binding, initialize, liveness check, capability-completeness
// check. A failure tears the worker down and re-runs the whole sequence
// exactly once after a fixed delay; the second failure is terminal.
//
// Calling Start inside the stop-grace window cancels the pending teardown
// and reuses the live worker; calling it on an already-ready supervisor
// is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Closed("supervisor")
	}
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	if s.ready && s.handle != nil {
		s.mu.Unlock()
		s.log.Debug("start on a live session, reusing worker")
		return nil
	}
	s.mu.Unlock()

	attempts := 0
	err := WithRetries(ctx, 1, s.retryDelay, func(ctx context.Context) error {
		attempts++
		s.m.attempt(attempts > 1)
		if attempts > 1 {
			s.log.Warn("re-running bridge establishment", zap.Error(s.LastErr()))
		}
		err := s.attempt(ctx)
		if err != nil {
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
		}
		return err
	})
	if err != nil {
		s.m.terminalFailure()
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.ready = true
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) attempt(ctx context.Context) error {
	s.teardown() // remnants of a failed prior attempt

	h := s.spawn()
	port, err := channel.Establish(ctx, h.Conduit(),
		channel.WithHandshakeTimeout(s.handshakeTimeout))
	if err != nil {
		h.Terminate()
		return err
	}

	client := rpc.NewClient(s.log)
	client.Bind(port)
	fail := func(err error) error {
		client.Close()
		h.Terminate()
		return err
	}

	if _, err := client.Call(ctx, session.CapInitialize); err != nil {
		return fail(err)
	}

	pong, err := client.Call(ctx, rpc.MethodPing)
	if err != nil {
		return fail(err)
	}
	if pong != rpc.PingSentinel {
		return fail(errors.New(errors.PhaseHandshake, errors.KindInvalidInput).
			Detail("liveness check returned %v", pong).Build())
	}

	v, err := client.Call(ctx, rpc.MethodGetMethods)
	if err != nil {
		return fail(err)
	}
	methods, _ := v.([]string)
	have := make(map[string]bool, len(methods))
	for _, m := range methods {
		have[m] = true
	}
	var missing []string
	for _, want := range RequiredCapabilities {
		if !have[want] {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return fail(errors.MissingCapability(missing))
	}

	s.mu.Lock()
	s.handle = h
	s.client = client
	s.mu.Unlock()
	s.log.Info("bridge established", zap.Strings("methods", methods))
	return nil
}

// Ready reports whether the capability surface is usable.
func (s *Supervisor) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// LastErr returns the most recent terminal establishment error.
func (s *Supervisor) LastErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Stop schedules worker termination after the grace window. A Start
// inside the window keeps the worker alive, so a re-initialization caused
// by an environment's double-invoke-on-mount check never leaves two
// engine instances racing for the same resources.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.handle == nil || s.stopTimer != nil {
		return
	}
	s.log.Debug("teardown deferred", zap.Duration("grace", s.stopGrace))
	s.stopTimer = time.AfterFunc(s.stopGrace, func() {
		s.mu.Lock()
		s.stopTimer = nil
		s.mu.Unlock()
		s.teardown()
	})
}

// Close terminates the worker immediately. The supervisor cannot be
// restarted afterwards.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	s.mu.Unlock()
	s.teardown()
}

func (s *Supervisor) teardown() {
	s.mu.Lock()
	client := s.client
	handle := s.handle
	s.client = nil
	s.handle = nil
	s.ready = false
	s.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if handle != nil {
		handle.Terminate()
	}
}

func (s *Supervisor) liveClient() (*rpc.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready || s.client == nil {
		return nil, errors.NotConnected("bridge")
	}
	return s.client, nil
}

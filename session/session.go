package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lakebed/duckbridge/engine"
	"github.com/lakebed/duckbridge/errors"
)

// State is the engine session lifecycle. Transitions are monotonic except
// Failed -> Initializing, which the supervisor's single retry takes.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EngineFactory instantiates an engine for the selected build variant.
type EngineFactory func(engine.Variant) engine.Engine

// Session owns the engine lifecycle inside the worker context: variant
// selection, instantiation, the single connection, and the query
// controller reachable only through it.
type Session struct {
	mu           sync.Mutex
	state        State
	eng          engine.Engine
	ctrl         *Controller
	variant      engine.Variant
	initDuration time.Duration

	newEngine EngineFactory
	isolated  bool
	log       *zap.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithEngineFactory replaces the default DuckDB engine factory.
func WithEngineFactory(f EngineFactory) Option {
	return func(s *Session) { s.newEngine = f }
}

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithIsolation records whether the session runs inside an isolated
// worker context; reported through diagnostics.
func WithIsolation(isolated bool) Option {
	return func(s *Session) { s.isolated = isolated }
}

// New creates an uninitialized session.
func New(opts ...Option) *Session {
	s := &Session{
		newEngine: func(v engine.Variant) engine.Engine { return engine.NewDuckDB(v) },
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize selects the most capable engine build for the environment,
// instantiates it, and opens the connection. Idempotent when Ready; a
// Failed session may be re-initialized.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReady {
		return nil
	}
	s.state = StateInitializing

	variant := engine.SelectVariant()
	eng := s.newEngine(variant)
	start := time.Now()
	if err := eng.Open(ctx); err != nil {
		eng.Close()
		s.state = StateFailed
		s.log.Error("engine initialization failed",
			zap.String("variant", variant.ID), zap.Error(err))
		return errors.InitializationFailed(err)
	}

	s.initDuration = time.Since(start)
	s.variant = variant
	s.eng = eng
	s.ctrl = NewController(eng, s.log)
	s.state = StateReady
	s.log.Info("engine session ready",
		zap.String("variant", variant.ID),
		zap.Duration("took", s.initDuration))
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RegisterFile copies a buffer into the engine's virtual file space.
// Re-registration under an existing name overwrites.
func (s *Session) RegisterFile(name string, data []byte) error {
	eng, err := s.readyEngine("registerFile")
	if err != nil {
		return err
	}
	if err := eng.RegisterFile(name, data); err != nil {
		return errors.RegistrationFailed(name, err)
	}
	s.log.Debug("file registered", zap.String("name", name), zap.Int("bytes", len(data)))
	return nil
}

// CreateView builds a queryable view over a registered file.
func (s *Session) CreateView(ctx context.Context, viewName, fileName, format string) error {
	eng, err := s.connectedEngine("createView")
	if err != nil {
		return err
	}
	f, err := engine.ParseFormat(format)
	if err != nil {
		return err
	}
	if err := eng.CreateView(ctx, viewName, fileName, f); err != nil {
		return errors.RegistrationFailed(viewName, err)
	}
	return nil
}

// TableDescription is the ordered column schema of a table or view.
type TableDescription struct {
	Columns []engine.Column
}

// TableInfo introspects a table's schema through the engine.
func (s *Session) TableInfo(ctx context.Context, table string) (*TableDescription, error) {
	eng, err := s.connectedEngine("getTableInfo")
	if err != nil {
		return nil, err
	}
	cols, err := eng.TableInfo(ctx, table)
	if err != nil {
		return nil, errors.QueryFailed(err)
	}
	return &TableDescription{Columns: cols}, nil
}

// Controller returns the query controller, which exists only while the
// session is Ready.
func (s *Session) Controller() (*Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.ctrl == nil {
		return nil, errors.NotConnected("query")
	}
	return s.ctrl, nil
}

// Close cancels any in-flight execution and releases the engine.
func (s *Session) Close() {
	s.mu.Lock()
	ctrl := s.ctrl
	eng := s.eng
	s.ctrl = nil
	s.eng = nil
	s.state = StateUninitialized
	s.mu.Unlock()

	if ctrl != nil {
		ctrl.Cancel()
	}
	if eng != nil {
		eng.Close()
	}
}

func (s *Session) readyEngine(what string) (engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.eng == nil {
		return nil, errors.NotInitialized(what)
	}
	return s.eng, nil
}

func (s *Session) connectedEngine(what string) (engine.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady || s.eng == nil {
		return nil, errors.NotConnected(what)
	}
	return s.eng, nil
}

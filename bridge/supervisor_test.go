package bridge

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lakebed/duckbridge/channel"
	"github.com/lakebed/duckbridge/engine"
	"github.com/lakebed/duckbridge/engine/enginetest"
	berrors "github.com/lakebed/duckbridge/errors"
	"github.com/lakebed/duckbridge/rpc"
	"github.com/lakebed/duckbridge/session"
	"github.com/lakebed/duckbridge/worker"
)

func fakeEngineWorker() Handle {
	return worker.Spawn(worker.WithSessionFactory(func() *session.Session {
		return session.New(
			session.WithIsolation(true),
			session.WithEngineFactory(func(engine.Variant) engine.Engine {
				return enginetest.New()
			}),
		)
	}))
}

// muteHandle accepts bridge-init but never acknowledges, so every
// handshake against it times out.
type muteHandle struct {
	host *channel.Port
	side *channel.Port
}

func newMuteHandle() *muteHandle {
	host, side := channel.NewPair()
	host.Start()
	side.Start()
	return &muteHandle{host: host, side: side}
}

func (h *muteHandle) Conduit() *channel.Port { return h.host }
func (h *muteHandle) Terminate()             { h.host.Close() }

// limitedHandle serves a bridge whose server carries only the given
// handlers (plus the built-ins).
type limitedHandle struct {
	host   *channel.Port
	cancel context.CancelFunc
}

func newLimitedHandle(configure func(*rpc.Server)) *limitedHandle {
	host, side := channel.NewPair()
	host.Start()
	side.Start()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		msg, err := side.Recv(ctx)
		if err != nil || msg.Kind != channel.KindBridgeInit {
			return
		}
		srv := rpc.NewServer(nil)
		configure(srv)
		msg.Port.Start()
		go srv.Serve(ctx, msg.Port)
		side.Post(channel.Message{Kind: channel.KindBridgeReady})
	}()
	return &limitedHandle{host: host, cancel: cancel}
}

func (h *limitedHandle) Conduit() *channel.Port { return h.host }
func (h *limitedHandle) Terminate() {
	h.cancel()
	h.host.Close()
}

func TestStartHappyPath(t *testing.T) {
	var spawns atomic.Int32
	s := New(WithSpawn(func() Handle {
		spawns.Add(1)
		return fakeEngineWorker()
	}))
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !s.Ready() {
		t.Fatal("not ready after start")
	}
	if spawns.Load() != 1 {
		t.Fatalf("spawned %d workers", spawns.Load())
	}

	rs, err := s.Query(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rs.Rows) != 1 || rs.Rows[0]["value"] != "1" {
		t.Fatalf("result = %+v", rs)
	}

	pong, err := s.Ping(context.Background())
	if err != nil || pong != rpc.PingSentinel {
		t.Fatalf("ping: %q %v", pong, err)
	}
}

func TestFacadeBeforeStart(t *testing.T) {
	s := New(WithSpawn(fakeEngineWorker))
	defer s.Close()

	if _, err := s.Query(context.Background(), "SELECT 1"); !stderrors.Is(err, berrors.NotConnected("")) {
		t.Fatalf("expected not-connected, got %v", err)
	}
}

func TestHandshakeTimeoutRetriedOnce(t *testing.T) {
	var spawns atomic.Int32
	s := New(
		WithHandshakeTimeout(40*time.Millisecond),
		WithRetryDelay(5*time.Millisecond),
		WithSpawn(func() Handle {
			if spawns.Add(1) == 1 {
				return newMuteHandle() // first attempt times out
			}
			return fakeEngineWorker()
		}),
	)
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start should recover on the retry: %v", err)
	}
	if spawns.Load() != 2 {
		t.Fatalf("spawned %d workers, want a fresh one per attempt", spawns.Load())
	}
	if !s.Ready() {
		t.Fatal("not ready after recovered start")
	}
}

func TestSecondTimeoutIsTerminal(t *testing.T) {
	var spawns atomic.Int32
	s := New(
		WithHandshakeTimeout(30*time.Millisecond),
		WithRetryDelay(5*time.Millisecond),
		WithSpawn(func() Handle {
			spawns.Add(1)
			return newMuteHandle()
		}),
	)
	defer s.Close()

	err := s.Start(context.Background())
	if !stderrors.Is(err, berrors.HandshakeTimeout("")) {
		t.Fatalf("expected handshake timeout, got %v", err)
	}
	if spawns.Load() != 2 {
		t.Fatalf("spawned %d workers; there is no third attempt", spawns.Load())
	}
	if s.Ready() {
		t.Fatal("ready after terminal failure")
	}
	if s.LastErr() == nil {
		t.Fatal("terminal failure must be retrievable")
	}
}

func TestMissingCapabilityIsFatal(t *testing.T) {
	s := New(
		WithRetryDelay(time.Millisecond),
		WithSpawn(func() Handle {
			return newLimitedHandle(func(srv *rpc.Server) {
				// query and registerFile deliberately absent.
				srv.Register(session.CapInitialize, func(context.Context, []any) (any, error) {
					return nil, nil
				})
			})
		}),
	)
	defer s.Close()

	err := s.Start(context.Background())
	if !stderrors.Is(err, berrors.MissingCapability(nil)) {
		t.Fatalf("expected missing capability, got %v", err)
	}
	if s.Ready() {
		t.Fatal("session marked ready despite capability gap")
	}
}

func TestPingSentinelMismatchFails(t *testing.T) {
	s := New(
		WithRetryDelay(time.Millisecond),
		WithSpawn(func() Handle {
			return newLimitedHandle(func(srv *rpc.Server) {
				srv.Register(session.CapInitialize, func(context.Context, []any) (any, error) {
					return nil, nil
				})
				srv.Register(session.CapRegisterFile, func(context.Context, []any) (any, error) {
					return nil, nil
				})
				srv.Register(session.CapQuery, func(context.Context, []any) (any, error) {
					return nil, nil
				})
				srv.Register(rpc.MethodPing, func(context.Context, []any) (any, error) {
					return "imposter", nil
				})
			})
		}),
	)
	defer s.Close()

	err := s.Start(context.Background())
	if !stderrors.Is(err, berrors.InvalidInput(berrors.PhaseHandshake, "")) {
		t.Fatalf("expected failed liveness check, got %v", err)
	}
}

func TestStopGraceWindowReusesWorker(t *testing.T) {
	var spawns atomic.Int32
	s := New(
		WithStopGrace(300*time.Millisecond),
		WithSpawn(func() Handle {
			spawns.Add(1)
			return fakeEngineWorker()
		}),
	)
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Rapid remount: teardown is deferred, the re-run reuses the worker.
	s.Stop()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart inside grace window: %v", err)
	}
	if spawns.Load() != 1 {
		t.Fatalf("spawned %d workers; the grace window must prevent duplicates", spawns.Load())
	}
	if _, err := s.Query(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("query after remount: %v", err)
	}
}

func TestStopTerminatesAfterGrace(t *testing.T) {
	var spawns atomic.Int32
	s := New(
		WithStopGrace(20*time.Millisecond),
		WithSpawn(func() Handle {
			spawns.Add(1)
			return fakeEngineWorker()
		}),
	)
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Stop()
	time.Sleep(80 * time.Millisecond)

	if s.Ready() {
		t.Fatal("still ready after the grace window elapsed")
	}

	// A genuine restart spawns a fresh worker.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("restart after teardown: %v", err)
	}
	if spawns.Load() != 2 {
		t.Fatalf("spawned %d workers", spawns.Load())
	}
}

func TestCloseIsFinal(t *testing.T) {
	s := New(WithSpawn(fakeEngineWorker))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Close()

	if s.Ready() {
		t.Fatal("ready after close")
	}
	if err := s.Start(context.Background()); !stderrors.Is(err, berrors.Closed("")) {
		t.Fatalf("expected closed supervisor, got %v", err)
	}
}

func TestEndToEndDatasetFlow(t *testing.T) {
	fake := enginetest.New()
	fake.Schemas = map[string][]engine.Column{
		"sales": {{Name: "region", Type: "VARCHAR"}, {Name: "amount", Type: "BIGINT"}},
	}
	s := New(WithSpawn(func() Handle {
		return worker.Spawn(worker.WithSessionFactory(func() *session.Session {
			return session.New(
				session.WithIsolation(true),
				session.WithEngineFactory(func(engine.Variant) engine.Engine { return fake }),
			)
		}))
	}))
	defer s.Close()
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.RegisterFile(ctx, "sales.csv", []byte("region,amount\nwest,10\n")); err != nil {
		t.Fatalf("registerFile: %v", err)
	}
	if err := s.CreateView(ctx, "sales", "sales.csv", "csv"); err != nil {
		t.Fatalf("createView: %v", err)
	}
	desc, err := s.TableInfo(ctx, "sales")
	if err != nil {
		t.Fatalf("tableInfo: %v", err)
	}
	if len(desc.Columns) != 2 || desc.Columns[0].Name != "region" {
		t.Fatalf("columns = %+v", desc.Columns)
	}

	buf, err := s.CopyQueryToParquet(ctx, "SELECT 1;", "out.parquet")
	if err != nil || len(buf) == 0 {
		t.Fatalf("copy: %d bytes, %v", len(buf), err)
	}

	d, err := s.Diagnostics(ctx)
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	if !d.IsolationEnabled || d.EngineVersion != "fake-engine v0" {
		t.Fatalf("diagnostics = %+v", d)
	}

	if err := s.CancelQuery(ctx); err != nil {
		t.Fatalf("idle cancel must be a no-op: %v", err)
	}
}

package worker

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/lakebed/duckbridge/channel"
	"github.com/lakebed/duckbridge/engine"
	"github.com/lakebed/duckbridge/engine/enginetest"
	berrors "github.com/lakebed/duckbridge/errors"
	"github.com/lakebed/duckbridge/rpc"
	"github.com/lakebed/duckbridge/session"
)

func spawnFakeWorker(t *testing.T) *Worker {
	t.Helper()
	w := Spawn(WithSessionFactory(func() *session.Session {
		return session.New(
			session.WithIsolation(true),
			session.WithEngineFactory(func(engine.Variant) engine.Engine {
				return enginetest.New()
			}),
		)
	}))
	t.Cleanup(w.Terminate)
	return w
}

func connect(t *testing.T, w *Worker) *rpc.Client {
	t.Helper()
	port, err := channel.Establish(context.Background(), w.Conduit(),
		channel.WithHandshakeTimeout(time.Second))
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	client := rpc.NewClient(nil)
	client.Bind(port)
	t.Cleanup(client.Close)
	return client
}

func TestBridgeBindAndServe(t *testing.T) {
	w := spawnFakeWorker(t)
	client := connect(t, w)
	ctx := context.Background()

	if v, err := client.Call(ctx, rpc.MethodPing); err != nil || v != rpc.PingSentinel {
		t.Fatalf("ping: %v %v", v, err)
	}
	if _, err := client.Call(ctx, session.CapInitialize); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	v, err := client.Call(ctx, session.CapQuery, "SELECT 1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	rs := v.(*session.RowSet)
	if len(rs.Rows) != 1 || rs.Rows[0]["value"] != "1" {
		t.Fatalf("result = %+v", rs)
	}
}

func TestMethodsCoverCapabilitySurface(t *testing.T) {
	w := spawnFakeWorker(t)
	client := connect(t, w)

	v, err := client.Call(context.Background(), rpc.MethodGetMethods)
	if err != nil {
		t.Fatalf("getMethods: %v", err)
	}
	methods := v.([]string)
	have := make(map[string]bool, len(methods))
	for _, m := range methods {
		have[m] = true
	}
	for _, want := range []string{
		session.CapInitialize, session.CapRegisterFile, session.CapQuery,
		session.CapQueryStream, session.CapCancelQuery, session.CapGetTableInfo,
		session.CapCreateView, session.CapCopyQueryToParquet,
		session.CapGetDiagnostics, rpc.MethodPing, rpc.MethodGetMethods,
	} {
		if !have[want] {
			t.Fatalf("capability %q missing from %v", want, methods)
		}
	}
}

func TestDuplicateBridgeInitIgnored(t *testing.T) {
	w := spawnFakeWorker(t)
	first := connect(t, w)

	// A second establish transfers a new port, but the worker must keep
	// the first binding; its bridge-ready never comes.
	_, err := channel.Establish(context.Background(), w.Conduit(),
		channel.WithHandshakeTimeout(50*time.Millisecond))
	if !stderrors.Is(err, berrors.HandshakeTimeout("")) {
		t.Fatalf("expected timeout for duplicate init, got %v", err)
	}

	// The first binding still serves.
	if v, err := first.Call(context.Background(), rpc.MethodPing); err != nil || v != rpc.PingSentinel {
		t.Fatalf("first binding broken after duplicate init: %v %v", v, err)
	}
}

func TestErrorsCrossTheBridge(t *testing.T) {
	w := spawnFakeWorker(t)
	client := connect(t, w)

	// registerFile before initialize fails remotely with the same
	// matchable error a local call would produce.
	_, err := client.Call(context.Background(), session.CapRegisterFile, "f.csv", []byte("x\n"))
	if !stderrors.Is(err, berrors.NotInitialized("")) {
		t.Fatalf("expected not-initialized across the bridge, got %v", err)
	}
}

func TestTerminateClosesEverything(t *testing.T) {
	w := spawnFakeWorker(t)
	client := connect(t, w)
	ctx := context.Background()
	if _, err := client.Call(ctx, session.CapInitialize); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	w.Terminate()
	w.Terminate() // idempotent

	if err := w.Conduit().Post(channel.Message{Kind: "x"}); !stderrors.Is(err, berrors.Closed("")) {
		t.Fatalf("default path alive after terminate: %v", err)
	}
	if _, err := client.Call(ctx, rpc.MethodPing); err == nil {
		t.Fatal("rpc channel alive after terminate")
	}
}

package bridge

import (
	"context"
	"time"

	"github.com/lakebed/duckbridge/errors"
	"github.com/lakebed/duckbridge/rpc"
	"github.com/lakebed/duckbridge/session"
)

// Typed capability surface. Each method converts the proxy's untyped
// payload into its declared shape; remote errors surface unchanged.

// Query executes sql and returns row-objects keyed by field name. A
// query superseded by a newer one, or cancelled, resolves to an empty
// row set with no error.
func (s *Supervisor) Query(ctx context.Context, sql string) (*session.RowSet, error) {
	client, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	v, err := client.Call(ctx, session.CapQuery, sql)
	s.m.query(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return payloadAs[*session.RowSet](v, session.CapQuery)
}

// QueryStream executes sql and returns the columnar result shape for
// large result sets.
func (s *Supervisor) QueryStream(ctx context.Context, sql string) (*session.StreamResult, error) {
	client, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	v, err := client.Call(ctx, session.CapQueryStream, sql)
	s.m.query(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return payloadAs[*session.StreamResult](v, session.CapQueryStream)
}

// CancelQuery signals the in-flight execution's token; with nothing
// running it is a no-op.
func (s *Supervisor) CancelQuery(ctx context.Context) error {
	client, err := s.liveClient()
	if err != nil {
		return err
	}
	s.m.cancellation()
	_, err = client.Call(ctx, session.CapCancelQuery)
	return err
}

// RegisterFile copies buf into the engine's virtual file space under
// name. Re-registration overwrites.
func (s *Supervisor) RegisterFile(ctx context.Context, name string, buf []byte) error {
	client, err := s.liveClient()
	if err != nil {
		return err
	}
	_, err = client.Call(ctx, session.CapRegisterFile, name, buf)
	return err
}

// CreateView builds a queryable view over a registered file. format is
// "csv" or "parquet".
func (s *Supervisor) CreateView(ctx context.Context, viewName, fileName, format string) error {
	client, err := s.liveClient()
	if err != nil {
		return err
	}
	_, err = client.Call(ctx, session.CapCreateView, viewName, fileName, format)
	return err
}

// TableInfo returns the ordered column schema of a table or view.
func (s *Supervisor) TableInfo(ctx context.Context, table string) (*session.TableDescription, error) {
	client, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	v, err := client.Call(ctx, session.CapGetTableInfo, table)
	if err != nil {
		return nil, err
	}
	return payloadAs[*session.TableDescription](v, session.CapGetTableInfo)
}

// CopyQueryToParquet exports sql's result to a Parquet file in the
// engine's file space and returns the file's bytes. A cancelled export
// returns a nil buffer with no error.
func (s *Supervisor) CopyQueryToParquet(ctx context.Context, sql, fileName string) ([]byte, error) {
	client, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	v, err := client.Call(ctx, session.CapCopyQueryToParquet, sql, fileName)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return payloadAs[[]byte](v, session.CapCopyQueryToParquet)
}

// Diagnostics returns the session's capability snapshot.
func (s *Supervisor) Diagnostics(ctx context.Context) (*session.Diagnostics, error) {
	client, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	v, err := client.Call(ctx, session.CapGetDiagnostics)
	if err != nil {
		return nil, err
	}
	return payloadAs[*session.Diagnostics](v, session.CapGetDiagnostics)
}

// Ping runs the liveness check and returns the sentinel.
func (s *Supervisor) Ping(ctx context.Context) (string, error) {
	client, err := s.liveClient()
	if err != nil {
		return "", err
	}
	v, err := client.Call(ctx, rpc.MethodPing)
	if err != nil {
		return "", err
	}
	return payloadAs[string](v, rpc.MethodPing)
}

// Methods returns the worker's reported capability names.
func (s *Supervisor) Methods(ctx context.Context) ([]string, error) {
	client, err := s.liveClient()
	if err != nil {
		return nil, err
	}
	v, err := client.Call(ctx, rpc.MethodGetMethods)
	if err != nil {
		return nil, err
	}
	return payloadAs[[]string](v, rpc.MethodGetMethods)
}

func payloadAs[T any](v any, target string) (T, error) {
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, errors.New(errors.PhaseRPC, errors.KindInvalidInput).
			Target(target).Detail("unexpected payload %T", v).Build()
	}
	return t, nil
}

package session

import (
	"context"

	"github.com/lakebed/duckbridge/errors"
	"github.com/lakebed/duckbridge/rpc"
)

// Capability names bound by the session, beyond the server built-ins.
const (
	CapInitialize         = "initialize"
	CapRegisterFile       = "registerFile"
	CapQuery              = "query"
	CapQueryStream        = "queryStream"
	CapCancelQuery        = "cancelQuery"
	CapGetTableInfo       = "getTableInfo"
	CapCreateView         = "createView"
	CapCopyQueryToParquet = "copyQueryToParquet"
	CapGetDiagnostics     = "getDiagnostics"
)

// Capabilities returns the session's RPC handler table. The server adds
// ping and getMethods on top.
func (s *Session) Capabilities() map[string]rpc.Handler {
	return map[string]rpc.Handler{
		CapInitialize: func(ctx context.Context, args []any) (any, error) {
			return nil, s.Initialize(ctx)
		},
		CapRegisterFile: func(ctx context.Context, args []any) (any, error) {
			name, err := stringArg(args, 0, CapRegisterFile)
			if err != nil {
				return nil, err
			}
			buf, err := bytesArg(args, 1, CapRegisterFile)
			if err != nil {
				return nil, err
			}
			return nil, s.RegisterFile(name, buf)
		},
		CapQuery: func(ctx context.Context, args []any) (any, error) {
			sql, err := stringArg(args, 0, CapQuery)
			if err != nil {
				return nil, err
			}
			ctrl, err := s.Controller()
			if err != nil {
				return nil, err
			}
			return ctrl.Query(ctx, sql)
		},
		CapQueryStream: func(ctx context.Context, args []any) (any, error) {
			sql, err := stringArg(args, 0, CapQueryStream)
			if err != nil {
				return nil, err
			}
			ctrl, err := s.Controller()
			if err != nil {
				return nil, err
			}
			return ctrl.QueryStream(ctx, sql)
		},
		CapCancelQuery: func(ctx context.Context, args []any) (any, error) {
			// Cancellation never fails, even before initialization.
			if ctrl, err := s.Controller(); err == nil {
				ctrl.Cancel()
			}
			return nil, nil
		},
		CapGetTableInfo: func(ctx context.Context, args []any) (any, error) {
			table, err := stringArg(args, 0, CapGetTableInfo)
			if err != nil {
				return nil, err
			}
			return s.TableInfo(ctx, table)
		},
		CapCreateView: func(ctx context.Context, args []any) (any, error) {
			view, err := stringArg(args, 0, CapCreateView)
			if err != nil {
				return nil, err
			}
			file, err := stringArg(args, 1, CapCreateView)
			if err != nil {
				return nil, err
			}
			format, err := stringArg(args, 2, CapCreateView)
			if err != nil {
				return nil, err
			}
			return nil, s.CreateView(ctx, view, file, format)
		},
		CapCopyQueryToParquet: func(ctx context.Context, args []any) (any, error) {
			sql, err := stringArg(args, 0, CapCopyQueryToParquet)
			if err != nil {
				return nil, err
			}
			file, err := stringArg(args, 1, CapCopyQueryToParquet)
			if err != nil {
				return nil, err
			}
			ctrl, err := s.Controller()
			if err != nil {
				return nil, err
			}
			return ctrl.CopyToParquet(ctx, sql, file)
		},
		CapGetDiagnostics: func(ctx context.Context, args []any) (any, error) {
			return s.Diagnostics(ctx)
		},
	}
}

func stringArg(args []any, i int, target string) (string, error) {
	if i >= len(args) {
		return "", errors.New(errors.PhaseRPC, errors.KindInvalidInput).
			Target(target).Detail("missing argument %d", i).Build()
	}
	s, ok := args[i].(string)
	if !ok {
		return "", errors.New(errors.PhaseRPC, errors.KindInvalidInput).
			Target(target).Detail("argument %d must be a string", i).Build()
	}
	return s, nil
}

func bytesArg(args []any, i int, target string) ([]byte, error) {
	if i >= len(args) {
		return nil, errors.New(errors.PhaseRPC, errors.KindInvalidInput).
			Target(target).Detail("missing argument %d", i).Build()
	}
	b, ok := args[i].([]byte)
	if !ok {
		return nil, errors.New(errors.PhaseRPC, errors.KindInvalidInput).
			Target(target).Detail("argument %d must be a byte buffer", i).Build()
	}
	return b, nil
}

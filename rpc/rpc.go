package rpc

import "context"

// PingSentinel is the fixed liveness reply. The supervisor rejects any
// other value during the handshake.
const PingSentinel = "pong"

// Method names the server always provides, independent of what the
// session binds.
const (
	MethodPing       = "ping"
	MethodGetMethods = "getMethods"
)

// Handler executes one capability on the callee side.
type Handler func(ctx context.Context, args []any) (any, error)

// Request is one call frame: target capability plus positional arguments.
// Arguments cross the channel by reference; buffers are not copied.
type Request struct {
	ID     string
	Target string
	Args   []any
}

// Response carries either a success payload or the thrown error for the
// matching Request ID. Err is the callee's real error value, so the
// caller re-raises it indistinguishably from a local failure.
type Response struct {
	ID    string
	Value any
	Err   error
}

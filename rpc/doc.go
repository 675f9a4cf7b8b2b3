// Package rpc turns a channel port into a typed set of asynchronous
// remote capability calls.
//
// The caller side (Client) serializes {target, args} frames and
// correlates replies by call ID; the callee side (Server) dispatches each
// request to a registered Handler on its own goroutine. Error values
// cross the boundary as real errors, so callers handle remote failures
// exactly as local ones. The server always exposes ping and getMethods
// for liveness and capability negotiation.
package rpc

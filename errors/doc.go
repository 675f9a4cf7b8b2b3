// Package errors provides structured error types for the bridge.
//
// Errors carry a Phase (where in the bridge the failure occurred) and a
// Kind (what went wrong), plus optional target, detail, value, and cause.
// Two errors match under errors.Is when their Phase and Kind agree, so
// callers test against a prototype:
//
//	if errors.Is(err, berrors.HandshakeTimeout("")) {
//	    // retry the handshake with fresh endpoints
//	}
//
// Errors cross the RPC boundary by reference and remain matchable on the
// caller side exactly as for a local call.
package errors

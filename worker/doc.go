// Package worker hosts the engine session in an isolated execution
// context reachable only by message passing.
//
// A spawned worker listens on its default inbound path for exactly one
// bridge-init envelope, binds the capability server to the transferred
// endpoint, and acknowledges with bridge-ready on the default outbound
// path. Duplicate bridge-init envelopes are ignored. Terminating the
// worker closes the session, the engine, and every channel it holds.
package worker

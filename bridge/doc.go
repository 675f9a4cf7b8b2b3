// Package bridge is the host side of the execution bridge: the session
// supervisor and the typed capability surface it exposes to the rest of
// the application.
//
// Start drives establishment in order (transport handshake, proxy
// binding, engine initialization, liveness check, capability-completeness
// check) and retries the whole sequence exactly once on failure. Stop
// defers worker termination briefly so a double-invoke-on-mount
// re-initialization reuses the live worker; Close tears down immediately.
package bridge

// Package channel provides the bridge transport: ordered, bidirectional
// port pairs and the bridge-init/bridge-ready handshake that hands one
// endpoint of a private pair to the worker context.
//
// The RPC channel is distinct from the worker's default control path. The
// host creates a pair with NewPair, keeps one endpoint, and transfers the
// other inside a bridge-init envelope; the worker acknowledges on the
// default path with bridge-ready. Both endpoints must be started before
// messages are delivered, and payloads cross by reference: a registered
// file buffer is never copied by the transport.
package channel

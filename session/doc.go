// Package session owns the engine lifecycle inside the worker context
// and the query controller that enforces at-most-one in-flight query per
// connection.
//
// A session moves Uninitialized -> Initializing -> Ready, or to Failed on
// an initialization error; the supervisor's single retry may take Failed
// back through Initializing. The controller gives every execution its own
// cancellation token: starting a new query signals the prior token, and a
// superseded call resolves to an empty result rather than an error;
// downstream consumers distinguish "no rows" from "error", never from
// "cancelled".
package session

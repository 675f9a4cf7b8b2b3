// Package duckbridge implements the execution bridge between a host
// controller and a SQL engine running in an isolated worker context.
//
// The host and the worker are independent single-threaded contexts that
// communicate only by asynchronous message passing. The bridge gives the
// host a typed, capability-negotiated calling surface over that boundary,
// with handshake, at-most-one-in-flight query semantics, cooperative
// cancellation, and bounded retry.
//
// # Architecture Overview
//
// The module is organized into several packages with distinct
// responsibilities:
//
//	duckbridge/          Root package documentation
//	├── bridge/          Host-side session supervisor and typed facade
//	├── channel/         Port pairs, control envelopes, handshake
//	├── rpc/             Capability proxy: correlated request/reply calls
//	├── worker/          Isolated worker context owning the engine session
//	├── session/         Engine session lifecycle and query controller
//	├── engine/          SQL engine collaborator (DuckDB implementation)
//	└── errors/          Structured error types for the bridge
//
// # Quick Start
//
// Start a supervised session and run a query:
//
//	sup := bridge.New()
//	defer sup.Close()
//
//	if err := sup.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := sup.RegisterFile(ctx, "sales.csv", buf); err != nil {
//	    log.Fatal(err)
//	}
//	if err := sup.CreateView(ctx, "sales", "sales.csv", "csv"); err != nil {
//	    log.Fatal(err)
//	}
//
//	rs, err := sup.Query(ctx, "SELECT region, sum(amount) FROM sales GROUP BY region")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, row := range rs.Rows {
//	    fmt.Println(row["region"], row["sum(amount)"])
//	}
//
// Starting a second query while one is in flight cancels the first; the
// superseded call resolves to an empty result, never an error.
package duckbridge

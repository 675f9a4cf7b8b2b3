// Package engine defines the SQL execution collaborator the bridge
// drives, and its DuckDB implementation.
//
// The session treats the engine as opaque: build-variant selection by
// environment capability, a file-buffer registration primitive, SQL
// execution with field metadata, schema introspection, and a
// COPY-to-Parquet export with a matching read-back. The engine owns its
// virtual file space and single logical connection; both live and die
// with the session.
package engine

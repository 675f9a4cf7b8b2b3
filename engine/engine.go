package engine

import (
	"context"

	"github.com/lakebed/duckbridge/errors"
)

// Format declares how a registered file should be read when a view is
// built over it.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a caller-supplied format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	default:
		return "", errors.UnsupportedFormat(s)
	}
}

// Column is one entry of a table's ordered schema.
type Column struct {
	Name string
	Type string
}

// Result is the engine's native query result: field metadata in
// engine-reported order plus rows of raw values.
type Result struct {
	Columns []Column
	Rows    [][]any
}

// Caps reports optional engine capability probes. A probe the engine does
// not expose leaves the Probed flag false; absent capability is never an
// error.
type Caps struct {
	Threads       bool
	ThreadsProbed bool
	Vector        bool
	VectorProbed  bool
}

// Engine is the opaque SQL execution collaborator the session drives. One
// Engine owns one logical connection and one virtual file space; it is
// only ever touched from the worker context.
type Engine interface {
	// Open instantiates the engine against its selected build variant and
	// opens the logical connection.
	Open(ctx context.Context) error
	Close() error

	// RegisterFile copies a buffer into the virtual file space under
	// name. Re-registration under an existing name overwrites.
	RegisterFile(name string, data []byte) error
	// CreateView builds a queryable view over a registered file using a
	// format-appropriate read strategy.
	CreateView(ctx context.Context, viewName, fileName string, format Format) error
	// TableInfo returns the ordered column schema of a table or view.
	TableInfo(ctx context.Context, table string) ([]Column, error)

	Query(ctx context.Context, sql string) (*Result, error)
	// ExportParquet executes sql wrapped in a COPY-to-file operation,
	// writing fileName into the virtual file space.
	ExportParquet(ctx context.Context, sql, fileName string) error
	// ReadFile reads a file from the virtual file space back out.
	ReadFile(name string) ([]byte, error)

	Version(ctx context.Context) (string, error)
	Capabilities() Caps
	Variant() Variant
}

// fieldIndex locates a column under any of several candidate names.
// Engines expose introspection metadata under different conventions, so
// lookup is best-effort and reports absence instead of guessing.
func fieldIndex(cols []string, candidates ...string) (int, bool) {
	for _, want := range candidates {
		for i, col := range cols {
			if col == want {
				return i, true
			}
		}
	}
	return 0, false
}

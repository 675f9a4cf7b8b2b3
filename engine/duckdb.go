package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/lakebed/duckbridge/errors"
)

// DuckDB adapts an embedded DuckDB instance to the Engine contract.
//
// The database is in-memory and constrained to a single pinned connection
// so session settings (SET threads, registered views) apply consistently.
// The virtual file space is a per-session temporary directory removed on
// Close.
type DuckDB struct {
	variant Variant
	log     *zap.Logger
	dir     string
	db      *sql.DB
	conn    *sql.Conn
}

// DuckDBOption configures a DuckDB engine.
type DuckDBOption func(*DuckDB)

// WithDuckDBLogger overrides the default no-op logger.
func WithDuckDBLogger(log *zap.Logger) DuckDBOption {
	return func(e *DuckDB) { e.log = log }
}

// NewDuckDB creates an engine for the given build variant. Open must be
// called before any other operation.
func NewDuckDB(variant Variant, opts ...DuckDBOption) *DuckDB {
	e := &DuckDB{variant: variant, log: Logger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *DuckDB) Open(ctx context.Context) error {
	if e.db != nil {
		return nil
	}

	dir, err := os.MkdirTemp("", "duckbridge-*")
	if err != nil {
		return fmt.Errorf("create file space: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("open duckdb: %w", err)
	}
	// One connection only: settings and views are per-session state.
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		os.RemoveAll(dir)
		return fmt.Errorf("open connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET threads TO %d", e.variant.Threads)); err != nil {
		conn.Close()
		db.Close()
		os.RemoveAll(dir)
		return fmt.Errorf("apply thread setting: %w", err)
	}

	e.dir = dir
	e.db = db
	e.conn = conn
	e.log.Debug("engine opened",
		zap.String("variant", e.variant.ID),
		zap.Int("threads", e.variant.Threads))
	return nil
}

func (e *DuckDB) Close() error {
	var first error
	if e.conn != nil {
		first = e.conn.Close()
		e.conn = nil
	}
	if e.db != nil {
		if err := e.db.Close(); first == nil {
			first = err
		}
		e.db = nil
	}
	if e.dir != "" {
		os.RemoveAll(e.dir)
		e.dir = ""
	}
	return first
}

func (e *DuckDB) RegisterFile(name string, data []byte) error {
	path, err := e.filePath(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	return nil
}

func (e *DuckDB) CreateView(ctx context.Context, viewName, fileName string, format Format) error {
	path, err := e.filePath(fileName)
	if err != nil {
		return err
	}

	var reader string
	switch format {
	case FormatCSV:
		reader = fmt.Sprintf("read_csv_auto(%s)", quoteString(path))
	case FormatParquet:
		reader = fmt.Sprintf("read_parquet(%s)", quoteString(path))
	default:
		return errors.UnsupportedFormat(string(format))
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s",
		quoteIdent(viewName), reader)
	if _, err := e.conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create view %q: %w", viewName, err)
	}
	return nil
}

func (e *DuckDB) TableInfo(ctx context.Context, table string) ([]Column, error) {
	rows, err := e.conn.QueryContext(ctx, "DESCRIBE "+quoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("describe %q: %w", table, err)
	}
	defer rows.Close()

	fields, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	nameIdx, ok := fieldIndex(fields, "column_name", "name")
	if !ok {
		return nil, fmt.Errorf("describe %q: no column-name field in %v", table, fields)
	}
	typeIdx, ok := fieldIndex(fields, "column_type", "type")
	if !ok {
		return nil, fmt.Errorf("describe %q: no column-type field in %v", table, fields)
	}

	var cols []Column
	vals := make([]any, len(fields))
	ptrs := make([]any, len(fields))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		cols = append(cols, Column{
			Name: valueString(vals[nameIdx]),
			Type: valueString(vals[typeIdx]),
		})
	}
	return cols, rows.Err()
}

func (e *DuckDB) Query(ctx context.Context, sqlText string) (*Result, error) {
	rows, err := e.conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	res := &Result{Columns: make([]Column, len(types))}
	for i, ct := range types {
		res.Columns[i] = Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		vals := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, vals)
	}
	return res, rows.Err()
}

func (e *DuckDB) ExportParquet(ctx context.Context, sqlText, fileName string) error {
	path, err := e.filePath(fileName)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET)", sqlText, quoteString(path))
	if _, err := e.conn.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("copy to parquet: %w", err)
	}
	return nil
}

func (e *DuckDB) ReadFile(name string) ([]byte, error) {
	path, err := e.filePath(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (e *DuckDB) Version(ctx context.Context) (string, error) {
	var version string
	if err := e.conn.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}

func (e *DuckDB) Capabilities() Caps {
	var caps Caps
	if e.conn == nil {
		return caps
	}
	var threads int64
	err := e.conn.QueryRowContext(context.Background(),
		"SELECT current_setting('threads')").Scan(&threads)
	if err == nil {
		caps.ThreadsProbed = true
		caps.Threads = threads > 1
	}
	// DuckDB exposes no vector-instruction probe; VectorProbed stays false.
	return caps
}

func (e *DuckDB) Variant() Variant {
	return e.variant
}

// filePath maps a logical name into the virtual file space. Names that
// would escape the session directory are rejected.
func (e *DuckDB) filePath(name string) (string, error) {
	if e.dir == "" {
		return "", fmt.Errorf("engine not open")
	}
	if name == "" || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(e.dir, name), nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

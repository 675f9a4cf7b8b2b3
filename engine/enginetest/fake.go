// Package enginetest provides a scriptable in-memory Engine for tests of
// the session, worker, and supervisor layers.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/lakebed/duckbridge/engine"
)

// Fake implements engine.Engine with hookable behavior. The zero-value
// defaults answer every query with a single {value: 1} row and keep
// registered files in memory.
type Fake struct {
	mu     sync.Mutex
	opened bool
	files  map[string][]byte

	// FailOpens makes the next n Open calls fail.
	FailOpens int
	// QueryFn overrides query execution when set.
	QueryFn func(ctx context.Context, sql string) (*engine.Result, error)
	// Schemas feeds TableInfo by table name.
	Schemas map[string][]engine.Column
	// VersionStr is returned by Version; empty means probe failure.
	VersionStr string
	// Caps is returned verbatim by Capabilities.
	Caps engine.Caps

	// Recorded inputs for assertions.
	ExportedSQL []string
	QueriedSQL  []string
	OpenCount   int
	CloseCount  int
}

// New creates a fake with the default single-row behavior.
func New() *Fake {
	return &Fake{
		files:      make(map[string][]byte),
		VersionStr: "fake-engine v0",
	}
}

func (f *Fake) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCount++
	if f.FailOpens > 0 {
		f.FailOpens--
		return fmt.Errorf("scripted open failure")
	}
	f.opened = true
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CloseCount++
	f.opened = false
	return nil
}

func (f *Fake) RegisterFile(name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.opened {
		return fmt.Errorf("engine not open")
	}
	f.files[name] = data
	return nil
}

// File returns a registered buffer for assertions.
func (f *Fake) File(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[name]
	return b, ok
}

func (f *Fake) CreateView(ctx context.Context, viewName, fileName string, format engine.Format) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[fileName]; !ok {
		return fmt.Errorf("file %q not registered", fileName)
	}
	return nil
}

func (f *Fake) TableInfo(ctx context.Context, table string) ([]engine.Column, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cols, ok := f.Schemas[table]
	if !ok {
		return nil, fmt.Errorf("table %q not found", table)
	}
	return cols, nil
}

func (f *Fake) Query(ctx context.Context, sql string) (*engine.Result, error) {
	f.mu.Lock()
	f.QueriedSQL = append(f.QueriedSQL, sql)
	fn := f.QueryFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, sql)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &engine.Result{
		Columns: []engine.Column{{Name: "value", Type: "INTEGER"}},
		Rows:    [][]any{{int64(1)}},
	}, nil
}

func (f *Fake) ExportParquet(ctx context.Context, sql, fileName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ExportedSQL = append(f.ExportedSQL, sql)
	f.files[fileName] = []byte("PAR1" + sql + "PAR1")
	return nil
}

func (f *Fake) ReadFile(name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[name]
	if !ok {
		return nil, fmt.Errorf("file %q not found", name)
	}
	return b, nil
}

func (f *Fake) Version(ctx context.Context) (string, error) {
	if f.VersionStr == "" {
		return "", fmt.Errorf("no version probe")
	}
	return f.VersionStr, nil
}

func (f *Fake) Capabilities() engine.Caps {
	return f.Caps
}

func (f *Fake) Variant() engine.Variant {
	return engine.Variant{ID: "fake", Threads: 1}
}

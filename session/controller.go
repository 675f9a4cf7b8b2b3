package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lakebed/duckbridge/engine"
	"github.com/lakebed/duckbridge/errors"
)

// Status describes the controller's current or most recent execution.
type Status struct {
	IsRunning     bool
	Err           error
	ExecutionTime time.Duration
}

// RowSet is a query result as uniformly-shaped records. Columns preserves
// the engine-reported field order; every value is coerced to its display
// string during conversion.
type RowSet struct {
	Columns []string
	Rows    []map[string]string
}

// StreamResult is the columnar result shape for large result sets, where
// building a record per row would be wasteful.
type StreamResult struct {
	Columns       []string
	Rows          [][]string
	TotalRowCount int
}

type execution struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Controller enforces at-most-one in-flight query per connection. Each
// execution gets its own cancellation token, never reused; starting a new
// execution signals the prior token, and the superseded call resolves to
// an empty result once it observes the signal. Cancellation is
// cooperative; the engine call may run to completion internally, but its
// result is discarded.
type Controller struct {
	eng engine.Engine
	log *zap.Logger

	mu      sync.Mutex
	current *execution
	status  Status
	subs    []func(Status)
}

// NewController creates a controller bound to one engine connection.
func NewController(eng engine.Engine, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{eng: eng, log: log}
}

// Query executes sql and converts the native result into row-objects
// keyed by field name. A superseded or aborted execution resolves to an
// empty row set with no error.
func (c *Controller) Query(ctx context.Context, sqlText string) (*RowSet, error) {
	exec := c.begin(ctx)
	defer exec.cancel()

	start := time.Now()
	res, err := c.eng.Query(exec.ctx, sqlText)
	took := time.Since(start)

	if exec.ctx.Err() != nil {
		c.finish(exec, nil, took)
		return &RowSet{}, nil
	}
	if err != nil {
		wrapped := errors.QueryFailed(err)
		c.finish(exec, wrapped, took)
		return nil, wrapped
	}

	c.finish(exec, nil, took)

	rs := &RowSet{
		Columns: columnNames(res.Columns),
		Rows:    make([]map[string]string, 0, len(res.Rows)),
	}
	for _, raw := range res.Rows {
		row := make(map[string]string, len(rs.Columns))
		for i, name := range rs.Columns {
			row[name] = displayString(raw[i])
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

// QueryStream executes sql with the same token semantics as Query but
// returns the columnar shape.
func (c *Controller) QueryStream(ctx context.Context, sqlText string) (*StreamResult, error) {
	exec := c.begin(ctx)
	defer exec.cancel()

	start := time.Now()
	res, err := c.eng.Query(exec.ctx, sqlText)
	took := time.Since(start)

	if exec.ctx.Err() != nil {
		c.finish(exec, nil, took)
		return &StreamResult{}, nil
	}
	if err != nil {
		wrapped := errors.QueryFailed(err)
		c.finish(exec, wrapped, took)
		return nil, wrapped
	}

	c.finish(exec, nil, took)

	sr := &StreamResult{
		Columns:       columnNames(res.Columns),
		Rows:          make([][]string, 0, len(res.Rows)),
		TotalRowCount: len(res.Rows),
	}
	for _, raw := range res.Rows {
		row := make([]string, len(raw))
		for i, v := range raw {
			row[i] = displayString(v)
		}
		sr.Rows = append(sr.Rows, row)
	}
	return sr, nil
}

// Cancel signals the current execution's token. With nothing in flight it
// is a no-op.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	if cur != nil {
		cur.cancel()
		c.log.Debug("query cancellation signalled")
	}
}

// CopyToParquet sanitizes sql, wraps it in the engine's COPY-to-file
// operation, and reads the produced file back as a binary buffer. A
// statement that is empty after stripping one trailing terminator fails
// with EmptyQuery before the engine is contacted.
func (c *Controller) CopyToParquet(ctx context.Context, sqlText, fileName string) ([]byte, error) {
	stmt := sanitizeStatement(sqlText)
	if stmt == "" {
		return nil, errors.EmptyQuery()
	}

	exec := c.begin(ctx)
	defer exec.cancel()

	start := time.Now()
	err := c.eng.ExportParquet(exec.ctx, stmt, fileName)
	took := time.Since(start)

	if exec.ctx.Err() != nil {
		c.finish(exec, nil, took)
		return nil, nil
	}
	if err != nil {
		wrapped := errors.QueryFailed(err)
		c.finish(exec, wrapped, took)
		return nil, wrapped
	}

	buf, err := c.eng.ReadFile(fileName)
	if err != nil {
		wrapped := errors.QueryFailed(err)
		c.finish(exec, wrapped, took)
		return nil, wrapped
	}
	c.finish(exec, nil, took)
	return buf, nil
}

// Status returns the controller's current status snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Subscribe registers fn to receive status transitions.
func (c *Controller) Subscribe(fn func(Status)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// begin installs a new execution as the sole running one. The prior
// token, if any, is signalled before the new execution owns the slot, so
// a superseded query can never attribute results to the current slot.
func (c *Controller) begin(parent context.Context) *execution {
	ctx, cancel := context.WithCancel(parent)
	exec := &execution{ctx: ctx, cancel: cancel}

	c.mu.Lock()
	if c.current != nil {
		c.current.cancel()
	}
	c.current = exec
	c.status = Status{IsRunning: true}
	subs := append([]func(Status){}, c.subs...)
	st := c.status
	c.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
	return exec
}

// finish releases the slot. A superseded execution finds the slot owned
// by its successor and must not touch the successor's status.
func (c *Controller) finish(exec *execution, err error, took time.Duration) {
	c.mu.Lock()
	if c.current != exec {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.status = Status{Err: err, ExecutionTime: took}
	subs := append([]func(Status){}, c.subs...)
	st := c.status
	c.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

// sanitizeStatement trims whitespace and at most one trailing statement
// terminator.
func sanitizeStatement(sql string) string {
	s := strings.TrimSpace(sql)
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(s)
}

func columnNames(cols []engine.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// displayString coerces an engine-native value to its display form.
// Values are never handed to callers as rich engine types; NULL renders
// as the empty string.
func displayString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", t)
	}
}

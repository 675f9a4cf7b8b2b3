package engine

import (
	"bytes"
	"context"
	"testing"
)

func openTestEngine(t *testing.T) *DuckDB {
	t.Helper()
	e := NewDuckDB(SelectVariant())
	if err := e.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestDuckDBQuery(t *testing.T) {
	e := openTestEngine(t)

	res, err := e.Query(context.Background(), "SELECT 1 AS one, 'a' AS letter")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0].Name != "one" || res.Columns[1].Name != "letter" {
		t.Fatalf("columns = %+v", res.Columns)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %+v", res.Rows)
	}
}

func TestDuckDBRegisterAndView(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	csv := []byte("region,amount\nwest,10\neast,25\n")
	if err := e.RegisterFile("sales.csv", csv); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.CreateView(ctx, "sales", "sales.csv", FormatCSV); err != nil {
		t.Fatalf("create view: %v", err)
	}

	cols, err := e.TableInfo(ctx, "sales")
	if err != nil {
		t.Fatalf("table info: %v", err)
	}
	if len(cols) != 2 || cols[0].Name != "region" || cols[1].Name != "amount" {
		t.Fatalf("schema does not match CSV header: %+v", cols)
	}

	res, err := e.Query(ctx, "SELECT count(*) FROM sales")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("rows = %+v", res.Rows)
	}
}

func TestDuckDBReregistrationOverwrites(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	if err := e.RegisterFile("d.csv", []byte("x\n1\n")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.RegisterFile("d.csv", []byte("x\n1\n2\n3\n")); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if err := e.CreateView(ctx, "d", "d.csv", FormatCSV); err != nil {
		t.Fatalf("view: %v", err)
	}
	res, err := e.Query(ctx, "SELECT count(*) AS n FROM d")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := valueString(res.Rows[0][0]); got != "3" {
		t.Fatalf("last registration must win, count = %s", got)
	}
}

func TestDuckDBExportParquetRoundtrip(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	if err := e.ExportParquet(ctx, "SELECT 42 AS answer", "out.parquet"); err != nil {
		t.Fatalf("export: %v", err)
	}
	buf, err := e.ReadFile("out.parquet")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	// Parquet files carry the PAR1 magic at both ends.
	if !bytes.HasPrefix(buf, []byte("PAR1")) || !bytes.HasSuffix(buf, []byte("PAR1")) {
		t.Fatalf("not a parquet buffer, %d bytes", len(buf))
	}

	if err := e.RegisterFile("answer.parquet", buf); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := e.CreateView(ctx, "answer", "answer.parquet", FormatParquet); err != nil {
		t.Fatalf("parquet view: %v", err)
	}
	res, err := e.Query(ctx, "SELECT answer FROM answer")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got := valueString(res.Rows[0][0]); got != "42" {
		t.Fatalf("roundtrip value = %s", got)
	}
}

func TestDuckDBRejectsEscapingNames(t *testing.T) {
	e := openTestEngine(t)

	if err := e.RegisterFile("../escape.csv", []byte("x\n")); err == nil {
		t.Fatal("path traversal must be rejected")
	}
	if err := e.RegisterFile("", []byte("x\n")); err == nil {
		t.Fatal("empty name must be rejected")
	}
}

func TestDuckDBProbes(t *testing.T) {
	e := openTestEngine(t)

	version, err := e.Version(context.Background())
	if err != nil || version == "" {
		t.Fatalf("version: %q %v", version, err)
	}

	caps := e.Capabilities()
	if !caps.ThreadsProbed {
		t.Fatal("threads setting should be probeable")
	}
	if caps.VectorProbed {
		t.Fatal("no vector probe exists; it must not pretend to")
	}
}

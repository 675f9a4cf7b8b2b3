package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/lakebed/duckbridge/bridge"
	"github.com/lakebed/duckbridge/session"
)

type listFlag []string

func (l *listFlag) String() string     { return strings.Join(*l, ",") }
func (l *listFlag) Set(v string) error { *l = append(*l, v); return nil }

func main() {
	var (
		files       listFlag
		views       listFlag
		query       = flag.String("query", "", "SQL to execute once")
		copyOut     = flag.String("copy", "", "Export -query result as Parquet to this local path")
		diag        = flag.Bool("diag", false, "Print the engine diagnostics snapshot")
		interactive = flag.Bool("i", false, "Interactive SQL shell")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Var(&files, "file", "Register a local file: name=path (repeatable)")
	flag.Var(&views, "view", "Create a view: name=file[:format] (repeatable)")
	flag.Parse()

	if *query == "" && !*diag && !*interactive {
		fmt.Fprintln(os.Stderr, "Usage: duckbridge [-file name=path ...] [-view name=file[:format] ...] -query SQL")
		fmt.Fprintln(os.Stderr, "       duckbridge [-file ...] [-view ...] -i  (interactive shell)")
		fmt.Fprintln(os.Stderr, "       duckbridge -diag")
		os.Exit(1)
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err == nil {
			logger = l
		}
	}

	ctx := context.Background()
	sup := bridge.New(bridge.WithLogger(logger))
	defer sup.Close()

	if err := sup.Start(ctx); err != nil {
		fatal("start bridge: %v", err)
	}

	for _, spec := range files {
		name, path, ok := strings.Cut(spec, "=")
		if !ok {
			fatal("bad -file %q, want name=path", spec)
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			fatal("read %s: %v", path, err)
		}
		if err := sup.RegisterFile(ctx, name, buf); err != nil {
			fatal("register %s: %v", name, err)
		}
	}

	for _, spec := range views {
		name, rest, ok := strings.Cut(spec, "=")
		if !ok {
			fatal("bad -view %q, want name=file[:format]", spec)
		}
		file, format, ok := strings.Cut(rest, ":")
		if !ok {
			format = strings.TrimPrefix(filepath.Ext(file), ".")
		}
		if err := sup.CreateView(ctx, name, file, format); err != nil {
			fatal("create view %s: %v", name, err)
		}
	}

	if *diag {
		d, err := sup.Diagnostics(ctx)
		if err != nil {
			fatal("diagnostics: %v", err)
		}
		fmt.Printf("isolation:     %v\n", d.IsolationEnabled)
		fmt.Printf("threading:     %v\n", d.ThreadingEnabled)
		fmt.Printf("module:        %s\n", d.SelectedModuleID)
		fmt.Printf("vector:        %v\n", d.VectorInstructions)
		fmt.Printf("engine:        %s\n", d.EngineVersion)
		fmt.Printf("init took:     %dms\n", d.InitDurationMs)
	}

	if *query != "" {
		if *copyOut != "" {
			buf, err := sup.CopyQueryToParquet(ctx, *query, "export.parquet")
			if err != nil {
				fatal("copy: %v", err)
			}
			if err := os.WriteFile(*copyOut, buf, 0o644); err != nil {
				fatal("write %s: %v", *copyOut, err)
			}
			fmt.Printf("wrote %d bytes to %s\n", len(buf), *copyOut)
		} else {
			rs, err := sup.Query(ctx, *query)
			if err != nil {
				fatal("query: %v", err)
			}
			printRowSet(rs)
		}
	}

	if *interactive {
		if err := runInteractive(sup); err != nil {
			fatal("%v", err)
		}
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printRowSet(rs *session.RowSet) {
	if len(rs.Columns) == 0 {
		fmt.Println("(empty result)")
		return
	}
	fmt.Println(renderTable(rs, outputWidth()))
	fmt.Printf("%d row(s)\n", len(rs.Rows))
}

func outputWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 120
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return 120
	}
	return w
}

package engine

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Variant identifies one engine build configuration. The most capable
// variant the current execution environment supports is selected at
// initialization time.
type Variant struct {
	ID      string
	Threads int
	Vector  bool
}

// SelectVariant probes the environment and returns the most capable
// supported build: threaded when more than one core is available, with a
// vector-instruction suffix when the CPU reports SIMD support.
func SelectVariant() Variant {
	return selectVariant(runtime.NumCPU(), vectorSupported())
}

func selectVariant(cores int, vector bool) Variant {
	v := Variant{ID: "duckdb-native-st", Threads: 1}
	if cores > 1 {
		v.ID = "duckdb-native-threads"
		v.Threads = cores
	}
	if vector {
		v.ID += "-simd"
		v.Vector = true
	}
	return v
}

func vectorSupported() bool {
	return cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD
}

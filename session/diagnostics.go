package session

import "context"

// Diagnostics is an immutable snapshot of environment and engine
// capability flags, produced on demand for support and debugging. It is
// never cached beyond the current session.
type Diagnostics struct {
	IsolationEnabled   bool
	ThreadingEnabled   bool
	SelectedModuleID   string
	VectorInstructions bool
	EngineVersion      string
	InitDurationMs     int64
}

// Diagnostics reports the session's capability snapshot. Missing optional
// engine probes degrade to false/"unknown"; they never raise an error.
func (s *Session) Diagnostics(ctx context.Context) (*Diagnostics, error) {
	eng, err := s.readyEngine("getDiagnostics")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	variant := s.variant
	initMs := s.initDuration.Milliseconds()
	isolated := s.isolated
	s.mu.Unlock()

	caps := eng.Capabilities()
	threading := variant.Threads > 1
	if caps.ThreadsProbed {
		threading = caps.Threads
	}
	vector := false
	if caps.VectorProbed {
		vector = caps.Vector
	}

	version, verr := eng.Version(ctx)
	if verr != nil || version == "" {
		version = "unknown"
	}

	return &Diagnostics{
		IsolationEnabled:   isolated,
		ThreadingEnabled:   threading,
		SelectedModuleID:   variant.ID,
		VectorInstructions: vector,
		EngineVersion:      version,
		InitDurationMs:     initMs,
	}, nil
}

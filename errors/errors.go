package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseHandshake    Phase = "handshake"    // transport establishment
	PhaseTransport    Phase = "transport"    // port-level send/receive
	PhaseRPC          Phase = "rpc"          // capability proxy
	PhaseSession      Phase = "session"      // engine session lifecycle
	PhaseRegistration Phase = "registration" // dataset registration
	PhaseQuery        Phase = "query"        // query execution
	PhaseDiagnostics  Phase = "diagnostics"  // capability reporting
)

// Kind categorizes the error
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindMissingCapability Kind = "missing_capability"
	KindInitFailed        Kind = "init_failed"
	KindNotInitialized    Kind = "not_initialized"
	KindNotConnected      Kind = "not_connected"
	KindRegistration      Kind = "registration"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindEmptyQuery        Kind = "empty_query"
	KindQueryFailed       Kind = "query_failed"
	KindInvalidInput      Kind = "invalid_input"
	KindClosed            Kind = "closed"
	KindUnknownTarget     Kind = "unknown_target"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Target string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Target != "" {
		b.WriteString(" at ")
		b.WriteString(e.Target)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Target sets the capability or component the error concerns
func (b *Builder) Target(t string) *Builder {
	b.err.Target = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the bridge error taxonomy

// HandshakeTimeout creates the error for a bridge-ready wait that expired
func HandshakeTimeout(waited string) *Error {
	return &Error{
		Phase:  PhaseHandshake,
		Kind:   KindTimeout,
		Detail: fmt.Sprintf("no bridge-ready within %s", waited),
	}
}

// MissingCapability creates the error for a capability-completeness gap
func MissingCapability(names []string) *Error {
	return &Error{
		Phase:  PhaseHandshake,
		Kind:   KindMissingCapability,
		Detail: fmt.Sprintf("required capabilities absent: %s", strings.Join(names, ", ")),
		Value:  names,
	}
}

// InitializationFailed creates an engine initialization error
func InitializationFailed(cause error) *Error {
	return &Error{
		Phase:  PhaseSession,
		Kind:   KindInitFailed,
		Detail: "initialize engine",
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error for a premature operation
func NotInitialized(what string) *Error {
	return &Error{
		Phase:  PhaseSession,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s requires an initialized engine", what),
		Target: what,
	}
}

// NotConnected creates the error for operations without an engine connection
func NotConnected(what string) *Error {
	return &Error{
		Phase:  PhaseSession,
		Kind:   KindNotConnected,
		Detail: fmt.Sprintf("%s requires an open connection", what),
		Target: what,
	}
}

// RegistrationFailed creates a dataset registration error
func RegistrationFailed(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseRegistration,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %q", name),
		Cause:  cause,
	}
}

// UnsupportedFormat creates the error for an unknown dataset format
func UnsupportedFormat(format string) *Error {
	return &Error{
		Phase:  PhaseRegistration,
		Kind:   KindUnsupportedFormat,
		Detail: fmt.Sprintf("unsupported file format %q", format),
		Value:  format,
	}
}

// EmptyQuery creates the error for SQL that is empty after sanitization
func EmptyQuery() *Error {
	return &Error{
		Phase:  PhaseQuery,
		Kind:   KindEmptyQuery,
		Detail: "statement is empty",
	}
}

// QueryFailed wraps an engine execution failure
func QueryFailed(cause error) *Error {
	return &Error{
		Phase: PhaseQuery,
		Kind:  KindQueryFailed,
		Cause: cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Closed creates the error for use of a closed port or client
func Closed(what string) *Error {
	return &Error{
		Phase:  PhaseTransport,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", what),
		Target: what,
	}
}

// UnknownTarget creates the error for a call to an unregistered capability
func UnknownTarget(name string) *Error {
	return &Error{
		Phase:  PhaseRPC,
		Kind:   KindUnknownTarget,
		Detail: fmt.Sprintf("no handler for %q", name),
		Target: name,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

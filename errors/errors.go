package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseInit     Phase = "init"     // engine process setup
	PhaseCompile  Phase = "compile"  // function source compilation
	PhaseMap      Phase = "map"      // document mapping
	PhaseReduce   Phase = "reduce"   // reduction
	PhaseRereduce Phase = "rereduce" // re-reduction of partial results
	PhaseTeardown Phase = "teardown" // engine/context disposal
)

// Kind categorizes the error
type Kind string

const (
	KindCompile        Kind = "compile_error"
	KindParse          Kind = "parse_error"
	KindEmitOverflow   Kind = "emit_overflow"
	KindScript         Kind = "script_error"
	KindArity          Kind = "arity_mismatch"
	KindTerminated     Kind = "terminated"
	KindInternal       Kind = "internal"
	KindInvalidInput   Kind = "invalid_input"
	KindInvalidState   Kind = "invalid_state"
	KindNotInitialized Kind = "not_initialized"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Func   int // zero-based function slot, -1 when not tied to one function
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Func >= 0 {
		fmt.Fprintf(&b, " at function %d", e.Func)
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

// KindOf extracts the Kind from any error produced by this library.
// It returns the empty Kind for foreign errors.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
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
			Func:  -1,
		},
	}
}

// Func sets the function slot the error belongs to
func (b *Builder) Func(index int) *Builder {
	b.err.Func = index
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

// Convenience constructors for common error patterns

// Compile creates a compilation error for the function at the given slot.
// The cause carries the engine's message, including the source position.
func Compile(index int, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompile,
		Func:   index,
		Detail: "function source rejected",
		Cause:  cause,
	}
}

// NotAFunction creates a compilation error for source that evaluates to a
// non-function value.
func NotAFunction(index int) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindCompile,
		Func:   index,
		Detail: "source did not evaluate to a function",
	}
}

// Parse creates a JSON parse error for the named input
func Parse(phase Phase, what string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindParse,
		Func:   -1,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// EmitOverflow creates an emission budget error. The detail keeps the
// engine's historical wording so existing log scrapers keep working.
func EmitOverflow(index, size int) *Error {
	return &Error{
		Phase:  PhaseMap,
		Kind:   KindEmitOverflow,
		Func:   index,
		Detail: fmt.Sprintf("too much data emitted: %d bytes", size),
		Value:  size,
	}
}

// Script creates an error for an exception thrown by a view function
func Script(phase Phase, index int, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindScript,
		Func:   index,
		Detail: detail,
	}
}

// Arity creates a keys/values length mismatch error
func Arity(phase Phase, keys, values int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindArity,
		Func:   -1,
		Detail: fmt.Sprintf("%d keys but %d values", keys, values),
	}
}

// Terminated creates an error for execution stopped by the canceller
func Terminated(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTerminated,
		Func:   -1,
		Detail: "execution terminated",
	}
}

// Internal creates an engine invariant violation error
func Internal(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Func:   -1,
		Detail: detail,
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Func:   -1,
		Detail: detail,
	}
}

// InvalidState creates a lifecycle misuse error
func InvalidState(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Func:   -1,
		Detail: detail,
	}
}

// NotInitialized creates a not-initialized error for a missing component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Func:   -1,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// BadIndex creates an out-of-range function index error
func BadIndex(phase Phase, index, count int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Func:   -1,
		Detail: fmt.Sprintf("function index %d out of range (have %d functions)", index, count),
		Value:  index,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Func:   -1,
		Detail: detail,
		Cause:  cause,
	}
}

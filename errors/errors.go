package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the pipeline the error occurred
type Phase string

const (
	PhaseExtract     Phase = "extract"     // index table extraction
	PhasePartition   Phase = "partition"   // shard assignment
	PhaseSerialize   Phase = "serialize"   // unit encoding
	PhaseDeserialize Phase = "deserialize" // unit decoding
	PhaseMaterialize Phase = "materialize" // shard materialization
	PhaseTables      Phase = "tables"      // index table reconstruction
	PhaseOptimize    Phase = "optimize"    // backend optimization
	PhaseEmit        Phase = "emit"        // backend output emission
	PhaseArchive     Phase = "archive"     // archive writing
	PhaseConfig      Phase = "config"      // configuration handling
)

// Kind categorizes the error
type Kind string

const (
	KindMissingTable      Kind = "missing_table"
	KindMalformedTable    Kind = "malformed_table"
	KindInternalInvariant Kind = "internal_invariant"
	KindInvalidData       Kind = "invalid_data"
	KindInvalidConfig     Kind = "invalid_config"
	KindUnsupportedOutput Kind = "unsupported_output"
	KindNotFound          Kind = "not_found"
	KindIOFailure         Kind = "io_failure"
	KindOverflow          Kind = "overflow"
)

// Error is the structured error type used throughout the pipeline
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Symbol string
	Shard  int
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Shard >= 0 {
		fmt.Fprintf(&b, " (shard %d)", e.Shard)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Symbol != "" {
		b.WriteString(": symbol ")
		fmt.Fprintf(&b, "%q", e.Symbol)
	}

	if e.Detail != "" {
		if e.Symbol != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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
			Shard: -1,
		},
	}
}

// Path sets the location path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Symbol sets the offending symbol name
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
	return b
}

// Shard sets the shard index the error occurred in
func (b *Builder) Shard(i int) *Builder {
	b.err.Shard = i
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

// MissingTable reports an absent index table symbol
func MissingTable(name string) *Error {
	return &Error{
		Phase:  PhaseExtract,
		Kind:   KindMissingTable,
		Symbol: name,
		Shard:  -1,
		Detail: "index table symbol not present in unit",
	}
}

// MalformedTable reports a structurally invalid index table
func MalformedTable(table string, detail string) *Error {
	return &Error{
		Phase:  PhaseExtract,
		Kind:   KindMalformedTable,
		Symbol: table,
		Shard:  -1,
		Detail: detail,
	}
}

// Invariant reports an internal consistency violation. These signal logic
// defects in the pipeline, never bad user input.
func Invariant(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternalInvariant,
		Shard:  -1,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Shard:  -1,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Shard:  -1,
		Detail: detail,
	}
}

// InvalidConfig reports a malformed configuration value. Callers warn and
// fall back to the computed default rather than aborting.
func InvalidConfig(name, value string) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidConfig,
		Shard:  -1,
		Detail: fmt.Sprintf("invalid value %q for %s", value, name),
	}
}

// UnsupportedOutput reports that the backend cannot emit the requested
// output kind for this target. The pipeline reports it and continues with
// the remaining kinds.
func UnsupportedOutput(kind string) *Error {
	return &Error{
		Phase:  PhaseEmit,
		Kind:   KindUnsupportedOutput,
		Shard:  -1,
		Detail: fmt.Sprintf("target does not support generation of %s output", kind),
	}
}

// IO wraps an archive or file write failure
func IO(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseArchive,
		Kind:   KindIOFailure,
		Shard:  -1,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Shard:  -1,
		Detail: detail,
		Cause:  cause,
	}
}

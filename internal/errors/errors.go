// Package errors is the error taxonomy shared by the stores, the ingest
// path and the read path. Callers branch on the category (is the store
// down, was the query bad) rather than on driver-specific error values.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType is the category of an error
type ErrorType int

const (
	// ErrorTypeConfig: missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// ErrorTypeValidation: malformed batches or arguments; retrying cannot help
	ErrorTypeValidation
	// ErrorTypeStoreUnavailable: the graph store could not be reached or the
	// transaction did not commit; the same input may succeed later
	ErrorTypeStoreUnavailable
	// ErrorTypeQuery: the store rejected a query as malformed
	ErrorTypeQuery
	// ErrorTypeExternal: an LLM provider or the cache failed
	ErrorTypeExternal
	// ErrorTypeInternal: unexpected internal state
	ErrorTypeInternal
)

var typeNames = [...]string{
	ErrorTypeConfig:           "CONFIG",
	ErrorTypeValidation:       "VALIDATION",
	ErrorTypeStoreUnavailable: "STORE_UNAVAILABLE",
	ErrorTypeQuery:            "QUERY",
	ErrorTypeExternal:         "EXTERNAL",
	ErrorTypeInternal:         "INTERNAL",
}

func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "UNKNOWN"
	}
	return typeNames[t]
}

// Severity grades an error for logs and detailed output
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "UNKNOWN"
	}
	return severityNames[s]
}

// Sentinels for errors.Is checks against a category
var (
	ErrStoreUnavailable = &Error{Type: ErrorTypeStoreUnavailable}
	ErrQuery            = &Error{Type: ErrorTypeQuery}
	ErrValidation       = &Error{Type: ErrorTypeValidation}
)

// Error is a categorised error with optional cause and key/value context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]any
	StackTrace string
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same type, so the sentinels above work with
// errors.Is through any amount of wrapping
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Type == t.Type
}

// WithContext records key on e and returns e for chaining
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// DetailedString renders the error with its cause, context and the stack
// captured at construction. Used by the CLI in verbose mode.
func (e *Error) DetailedString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] %s\n", e.Severity, e.Type, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, "Caused by: %v\n", e.Cause)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %v\n", k, e.Context[k])
		}
	}
	if e.StackTrace != "" {
		fmt.Fprintf(&sb, "Stack trace:\n%s\n", e.StackTrace)
	}
	return sb.String()
}

const stackDepth = 10

func callers(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		f, more := frames.Next()
		fmt.Fprintf(&sb, "  %s:%d %s\n", f.File, f.Line, f.Function)
		if !more {
			break
		}
	}
	return sb.String()
}

func newError(t ErrorType, sev Severity, msg string, cause error) *Error {
	return &Error{
		Type:       t,
		Severity:   sev,
		Message:    msg,
		Cause:      cause,
		StackTrace: callers(3),
	}
}

// New creates an error without a cause
func New(t ErrorType, sev Severity, msg string) *Error {
	return newError(t, sev, msg, nil)
}

// Wrap categorises err. A nil err stays nil.
func Wrap(err error, t ErrorType, sev Severity, msg string) *Error {
	if err == nil {
		return nil
	}
	return newError(t, sev, msg, err)
}

func ConfigErrorf(format string, args ...any) *Error {
	return newError(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...), nil)
}

func ValidationErrorf(format string, args ...any) *Error {
	return newError(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...), nil)
}

func InternalErrorf(format string, args ...any) *Error {
	return newError(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...), nil)
}

// StoreUnavailable wraps a connectivity or commit failure of the graph store
func StoreUnavailable(err error, msg string) *Error {
	return newError(ErrorTypeStoreUnavailable, SeverityCritical, msg, err)
}

// QueryError wraps a store diagnostic for a malformed query
func QueryError(err error, msg string) *Error {
	return newError(ErrorTypeQuery, SeverityHigh, msg, err)
}

// ExternalError wraps a failure of an LLM provider or the cache
func ExternalError(err error, msg string) *Error {
	return newError(ErrorTypeExternal, SeverityMedium, msg, err)
}

func IsStoreUnavailable(err error) bool { return stderrors.Is(err, ErrStoreUnavailable) }

func IsQueryError(err error) bool { return stderrors.Is(err, ErrQuery) }

func IsValidation(err error) bool { return stderrors.Is(err, ErrValidation) }

// GetType returns the category of the first *Error in err's chain, or
// ErrorTypeInternal when there is none
func GetType(err error) ErrorType {
	if e, ok := As(err); ok {
		return e.Type
	}
	return ErrorTypeInternal
}

// As finds the first *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrors.As(err, &e)
	return e, ok
}

package compiler

import (
	"errors"
	"fmt"
)

// Compile error codes (E200-E299)
const (
	// Concept and operator resolution (E201-E209)
	ErrUnknownConcept      = "E201" // concept key not in the modeling table
	ErrUnknownConjunction  = "E202" // conjunction other than and/or
	ErrUnknownOperator     = "E203" // unrecognized comparison operator
	ErrUnknownFunction     = "E204" // aggregate other than count-unique
	ErrUnknownCalendarUnit = "E205" // calendar unit code outside y/m/d
	ErrUnclosedFunction    = "E206" // predicate finished inside an aggregate

	// Predicate state (E210-E219)
	ErrMissingIdentifier = "E210" // no alias, text or label to name a scope
	ErrUnitWithoutValue  = "E211" // calendar unit with no magnitude in the right slot
	ErrMissingOperator   = "E212" // predicate finished without an operator
	ErrNoOperands        = "E213" // predicate finished with both slots empty
	ErrInvalidPart       = "E214" // part value cannot be interpreted

	// Scope structure (E220-E229)
	ErrNoOpenScope        = "E220" // close without a matching open
	ErrDuplicateScope     = "E221" // two scopes share one definition name
	ErrModelResolution    = "E222" // type resolver rejected a path or type
	ErrUnresolvedValueSet = "E223" // value-set reference could not be built
)

// CompileError is a hard failure that aborts compilation of the current rule.
type CompileError struct {
	// Code identifies the error category (E2xx).
	Code string

	// Message is a human-readable description.
	Message string

	// Predicate is the id of the predicate being compiled, if any.
	Predicate string

	// Scope is the definition name of the innermost open scope, if any.
	Scope string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Predicate != "" {
		msg += fmt.Sprintf(" (predicate=%s)", e.Predicate)
	} else if e.Scope != "" {
		msg += fmt.Sprintf(" (scope=%s)", e.Scope)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func newError(code, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code string, err error, format string, args ...any) *CompileError {
	return &CompileError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsCompileError returns true if err is or wraps a *CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}

// CodeOf returns the code of the first *CompileError in err's chain, or "".
func CodeOf(err error) string {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

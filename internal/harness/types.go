package harness

import (
	"fmt"

	"github.com/roach88/rulecql/internal/compiler"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Compilation is the compiled library, nil when compilation failed.
	Compilation *compiler.Result `json:"-"`

	// Err is the compilation error, if any.
	Err error `json:"-"`

	// Seq is the store sequence the compilation was recorded under.
	Seq int64 `json:"seq,omitempty"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

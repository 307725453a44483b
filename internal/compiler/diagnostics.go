package compiler

import "github.com/rs/zerolog"

// DiagnosticCode classifies a soft failure.
type DiagnosticCode string

const (
	// DiagSlotOverflow: a value arrived when its target slot was already filled.
	DiagSlotOverflow DiagnosticCode = "slot-overflow"

	// DiagOneOperand: a binary predicate was finished with one side missing.
	DiagOneOperand DiagnosticCode = "one-operand"

	// DiagReferenceShortfall: a scope closed with fewer references than children.
	DiagReferenceShortfall DiagnosticCode = "reference-shortfall"

	// DiagUnmappedValueSet: a value-set display had no mapped URL.
	DiagUnmappedValueSet DiagnosticCode = "unmapped-valueset"

	// DiagEmptyScope: a scope closed with nothing to fold.
	DiagEmptyScope DiagnosticCode = "empty-scope"
)

// Diagnostic records a soft failure. Compilation continues with a
// best-effort result.
type Diagnostic struct {
	Code      DiagnosticCode `json:"code"`
	Message   string         `json:"message"`
	Predicate string         `json:"predicate,omitempty"`
	Scope     string         `json:"scope,omitempty"`
}

// Diagnostics collects the soft failures of one session and logs each one
// at warn level.
type Diagnostics struct {
	logger zerolog.Logger
	items  []Diagnostic
}

// NewDiagnostics creates an empty collector logging to logger.
func NewDiagnostics(logger zerolog.Logger) *Diagnostics {
	return &Diagnostics{logger: logger}
}

func (d *Diagnostics) add(diag Diagnostic) {
	d.items = append(d.items, diag)
	d.logger.Warn().
		Str("code", string(diag.Code)).
		Str("predicate", diag.Predicate).
		Str("scope", diag.Scope).
		Msg(diag.Message)
}

// All returns the recorded diagnostics in order.
func (d *Diagnostics) All() []Diagnostic {
	out := make([]Diagnostic, len(d.items))
	copy(out, d.items)
	return out
}

package compiler

import (
	"fmt"

	"github.com/roach88/rulecql/internal/elm"
)

// ReferenceEntry is emitted by a closed scope for consumption by an
// enclosing scope's fold.
type ReferenceEntry struct {
	Conjunction elm.Conjunction
	Target      string
}

// Stacks are the expression and reference stacks shared by every scope of
// one rule. Push order must equal depth-first visitation order; the fold
// depends on LIFO pop order.
type Stacks struct {
	Expressions []elm.Expression
	References  []ReferenceEntry
}

// PushExpression pushes a finished predicate.
func (s *Stacks) PushExpression(e elm.Expression) {
	s.Expressions = append(s.Expressions, e)
}

// PushReference pushes a reference to a closed scope.
func (s *Stacks) PushReference(r ReferenceEntry) {
	s.References = append(s.References, r)
}

func (s *Stacks) popExpression() elm.Expression {
	n := len(s.Expressions) - 1
	e := s.Expressions[n]
	s.Expressions[n] = nil
	s.Expressions = s.Expressions[:n]
	return e
}

func (s *Stacks) popReference() ReferenceEntry {
	n := len(s.References) - 1
	r := s.References[n]
	s.References = s.References[:n]
	return r
}

// scopeFrame is an open definition.
type scopeFrame struct {
	name    string
	context string
	mark    int // expression stack depth at open
}

// ScopeManager opens and closes named definitions, folding the expressions
// and references each scope collects.
type ScopeManager struct {
	stacks *Stacks
	diags  *Diagnostics
	open   []scopeFrame
	closed []elm.ExpressionDef
	names  map[string]bool
}

// NewScopeManager creates a scope manager over shared stacks.
func NewScopeManager(stacks *Stacks, diags *Diagnostics) *ScopeManager {
	return &ScopeManager{
		stacks: stacks,
		diags:  diags,
		names:  make(map[string]bool),
	}
}

// OpenScope starts a new definition named identifier.
func (m *ScopeManager) OpenScope(identifier, context string) error {
	if identifier == "" {
		return newError(ErrMissingIdentifier, "scope identifier is required")
	}
	if m.names[identifier] {
		return newError(ErrDuplicateScope, "definition %q already exists", identifier)
	}
	m.names[identifier] = true
	m.open = append(m.open, scopeFrame{
		name:    identifier,
		context: context,
		mark:    len(m.stacks.Expressions),
	})
	return nil
}

// Current returns the name of the innermost open scope, or "".
func (m *ScopeManager) Current() string {
	if len(m.open) == 0 {
		return ""
	}
	return m.open[len(m.open)-1].name
}

// Depth returns the number of open scopes.
func (m *ScopeManager) Depth() int {
	return len(m.open)
}

// CloseScope folds the innermost scope into a definition.
//
// Expressions pushed since the scope opened are popped first, then
// references, until expectedChildren items are consumed. The first popped
// item is the body; each later item x makes the body conj(body, x). When
// fewer references are available than needed, all of them are folded, a
// reference-shortfall diagnostic is recorded and the reference stack is
// cleared. A non-empty conj also pushes a ReferenceEntry for the parent.
func (m *ScopeManager) CloseScope(conj elm.Conjunction, expectedChildren int) (elm.ExpressionDef, error) {
	if len(m.open) == 0 {
		return elm.ExpressionDef{}, newError(ErrNoOpenScope, "close without an open scope")
	}
	frame := m.open[len(m.open)-1]
	m.open = m.open[:len(m.open)-1]

	var items []elm.Expression
	for len(m.stacks.Expressions) > frame.mark {
		items = append(items, m.stacks.popExpression())
	}

	need := expectedChildren - len(items)
	available := len(m.stacks.References)
	take := min(max(need, 0), available)
	for range take {
		ref := m.stacks.popReference()
		items = append(items, &elm.ExpressionRef{Name: ref.Target})
	}
	if need > available {
		m.diags.add(Diagnostic{
			Code:    DiagReferenceShortfall,
			Message: fmt.Sprintf("expected %d references, found %d", need, available),
			Scope:   frame.name,
		})
		m.stacks.References = m.stacks.References[:0]
	}

	body, err := m.fold(frame, conj, items)
	if err != nil {
		return elm.ExpressionDef{}, err
	}

	def := elm.ExpressionDef{Name: frame.name, Context: frame.context, Expression: body}
	m.closed = append(m.closed, def)

	if conj != elm.ConjunctionNone {
		m.stacks.PushReference(ReferenceEntry{Conjunction: conj, Target: frame.name})
	}
	return def, nil
}

func (m *ScopeManager) fold(frame scopeFrame, conj elm.Conjunction, items []elm.Expression) (elm.Expression, error) {
	if len(items) == 0 {
		m.diags.add(Diagnostic{
			Code:    DiagEmptyScope,
			Message: "scope closed with nothing to fold",
			Scope:   frame.name,
		})
		return &elm.Null{ResultTypeName: elm.SystemType("Boolean")}, nil
	}
	if len(items) > 1 && conj != elm.ConjunctionAnd && conj != elm.ConjunctionOr {
		err := newError(ErrUnknownConjunction, "cannot fold %d items with conjunction %q", len(items), conj)
		err.Scope = frame.name
		return nil, err
	}

	body := items[0]
	for _, x := range items[1:] {
		body = &elm.BinaryBoolean{Operator: conj, Left: body, Right: x}
	}
	return body, nil
}

// Definitions returns the closed definitions in close order.
func (m *ScopeManager) Definitions() []elm.ExpressionDef {
	out := make([]elm.ExpressionDef, len(m.closed))
	copy(out, m.closed)
	return out
}

package compiler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulecql/internal/elm"
)

func newScopes() (*ScopeManager, *Stacks, *Diagnostics) {
	stacks := &Stacks{}
	diags := NewDiagnostics(zerolog.Nop())
	return NewScopeManager(stacks, diags), stacks, diags
}

func ref(name string) elm.Expression {
	return &elm.ExpressionRef{Name: name}
}

func and(l, r elm.Expression) elm.Expression {
	return &elm.BinaryBoolean{Operator: elm.ConjunctionAnd, Left: l, Right: r}
}

func TestCloseScope_FoldOrder(t *testing.T) {
	m, stacks, _ := newScopes()
	e1, e2, e3 := ref("E1"), ref("E2"), ref("E3")

	require.NoError(t, m.OpenScope("Group-g1", DefaultContext))
	stacks.PushExpression(e1)
	stacks.PushExpression(e2)
	stacks.PushExpression(e3)

	def, err := m.CloseScope(elm.ConjunctionAnd, 3)
	require.NoError(t, err)

	assert.Equal(t, "Group-g1", def.Name)
	assert.Equal(t, DefaultContext, def.Context)
	assert.Equal(t, and(and(e3, e2), e1), def.Expression)
	assert.Empty(t, stacks.Expressions)
}

func TestCloseScope_SingleItemIsBody(t *testing.T) {
	m, stacks, _ := newScopes()
	e1 := ref("E1")

	require.NoError(t, m.OpenScope("Only-p1", DefaultContext))
	stacks.PushExpression(e1)

	def, err := m.CloseScope(elm.ConjunctionOr, 1)
	require.NoError(t, err)
	assert.Same(t, e1, def.Expression)
}

func TestCloseScope_PushesReference(t *testing.T) {
	m, stacks, _ := newScopes()

	require.NoError(t, m.OpenScope("Inner-g2", DefaultContext))
	stacks.PushExpression(ref("E1"))
	_, err := m.CloseScope(elm.ConjunctionOr, 1)
	require.NoError(t, err)
	assert.Equal(t, []ReferenceEntry{{Conjunction: elm.ConjunctionOr, Target: "Inner-g2"}}, stacks.References)

	require.NoError(t, m.OpenScope("Silent-g3", DefaultContext))
	stacks.PushExpression(ref("E2"))
	_, err = m.CloseScope(elm.ConjunctionNone, 1)
	require.NoError(t, err)
	assert.Len(t, stacks.References, 1, "no conjunction, no reference")
}

func TestCloseScope_Nested(t *testing.T) {
	m, stacks, _ := newScopes()

	require.NoError(t, m.OpenScope("Outer-g1", DefaultContext))
	stacks.PushExpression(ref("E1"))

	require.NoError(t, m.OpenScope("Inner-g2", DefaultContext))
	assert.Equal(t, "Inner-g2", m.Current())
	assert.Equal(t, 2, m.Depth())
	stacks.PushExpression(ref("E2"))
	stacks.PushExpression(ref("E3"))
	inner, err := m.CloseScope(elm.ConjunctionOr, 2)
	require.NoError(t, err)
	assert.Equal(t, &elm.BinaryBoolean{Operator: elm.ConjunctionOr, Left: ref("E3"), Right: ref("E2")}, inner.Expression)

	outer, err := m.CloseScope(elm.ConjunctionAnd, 2)
	require.NoError(t, err)
	assert.Equal(t, and(ref("E1"), ref("Inner-g2")), outer.Expression)

	assert.Equal(t, []ReferenceEntry{{Conjunction: elm.ConjunctionAnd, Target: "Outer-g1"}}, stacks.References)

	defs := m.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "Inner-g2", defs[0].Name)
	assert.Equal(t, "Outer-g1", defs[1].Name)
}

func TestCloseScope_ReferenceShortfall(t *testing.T) {
	m, stacks, diags := newScopes()
	stacks.PushReference(ReferenceEntry{Conjunction: elm.ConjunctionAnd, Target: "A"})

	require.NoError(t, m.OpenScope("Short-g1", DefaultContext))
	stacks.PushExpression(ref("E1"))

	def, err := m.CloseScope(elm.ConjunctionAnd, 4)
	require.NoError(t, err)

	// E1 plus the one available reference are folded; the rest is missing.
	assert.Equal(t, and(ref("E1"), ref("A")), def.Expression)
	require.Len(t, diags.All(), 1)
	assert.Equal(t, DiagReferenceShortfall, diags.All()[0].Code)
	assert.Equal(t, "Short-g1", diags.All()[0].Scope)
	assert.Equal(t, "expected 3 references, found 1", diags.All()[0].Message)

	// The stack was cleared, then this scope's own reference pushed.
	assert.Equal(t, []ReferenceEntry{{Conjunction: elm.ConjunctionAnd, Target: "Short-g1"}}, stacks.References)
}

func TestCloseScope_ExcessReferencesStay(t *testing.T) {
	m, stacks, diags := newScopes()
	stacks.PushReference(ReferenceEntry{Conjunction: elm.ConjunctionAnd, Target: "A"})
	stacks.PushReference(ReferenceEntry{Conjunction: elm.ConjunctionAnd, Target: "B"})
	stacks.PushReference(ReferenceEntry{Conjunction: elm.ConjunctionAnd, Target: "C"})

	require.NoError(t, m.OpenScope("Pair-g1", DefaultContext))
	def, err := m.CloseScope(elm.ConjunctionOr, 2)
	require.NoError(t, err)

	assert.Equal(t, &elm.BinaryBoolean{Operator: elm.ConjunctionOr, Left: ref("C"), Right: ref("B")}, def.Expression)
	assert.Empty(t, diags.All())
	assert.Equal(t, []ReferenceEntry{
		{Conjunction: elm.ConjunctionAnd, Target: "A"},
		{Conjunction: elm.ConjunctionOr, Target: "Pair-g1"},
	}, stacks.References)
}

func TestCloseScope_Empty(t *testing.T) {
	m, _, diags := newScopes()
	require.NoError(t, m.OpenScope("Empty-g1", DefaultContext))

	def, err := m.CloseScope(elm.ConjunctionAnd, 0)
	require.NoError(t, err)
	assert.Equal(t, &elm.Null{ResultTypeName: elm.SystemType("Boolean")}, def.Expression)
	require.Len(t, diags.All(), 1)
	assert.Equal(t, DiagEmptyScope, diags.All()[0].Code)
}

func TestCloseScope_Errors(t *testing.T) {
	t.Run("no open scope", func(t *testing.T) {
		m, _, _ := newScopes()
		_, err := m.CloseScope(elm.ConjunctionAnd, 1)
		assert.Equal(t, ErrNoOpenScope, CodeOf(err))
	})

	t.Run("fold without conjunction", func(t *testing.T) {
		m, stacks, _ := newScopes()
		require.NoError(t, m.OpenScope("Two-g1", DefaultContext))
		stacks.PushExpression(ref("E1"))
		stacks.PushExpression(ref("E2"))

		_, err := m.CloseScope(elm.ConjunctionNone, 2)
		assert.Equal(t, ErrUnknownConjunction, CodeOf(err))
		assert.Contains(t, err.Error(), "scope=Two-g1")
	})

	t.Run("duplicate scope", func(t *testing.T) {
		m, _, _ := newScopes()
		require.NoError(t, m.OpenScope("Same-g1", DefaultContext))
		err := m.OpenScope("Same-g1", DefaultContext)
		assert.Equal(t, ErrDuplicateScope, CodeOf(err))
	})

	t.Run("empty identifier", func(t *testing.T) {
		m, _, _ := newScopes()
		err := m.OpenScope("", DefaultContext)
		assert.Equal(t, ErrMissingIdentifier, CodeOf(err))
	})
}

func TestCloseScope_IgnoresOuterExpressions(t *testing.T) {
	m, stacks, _ := newScopes()
	stacks.PushExpression(ref("Before"))

	require.NoError(t, m.OpenScope("Late-g1", DefaultContext))
	stacks.PushExpression(ref("E1"))
	def, err := m.CloseScope(elm.ConjunctionAnd, 1)
	require.NoError(t, err)

	assert.Equal(t, ref("E1"), def.Expression)
	assert.Equal(t, []elm.Expression{ref("Before")}, stacks.Expressions)
}

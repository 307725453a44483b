package compiler

import (
	"strings"

	"github.com/roach88/rulecql/internal/elm"
)

// UnaryTest is a single-operand predicate.
type UnaryTest int

const (
	NotUnary UnaryTest = iota
	TestExists
	TestIsNull
	TestIsNotNull
)

// Operator is a parsed comparison operator token.
type Operator struct {
	Token  string
	Binary elm.BinaryOperator
	Unary  UnaryTest
}

// IsUnary reports whether the operator takes one operand.
func (o Operator) IsUnary() bool {
	return o.Unary != NotUnary
}

var binaryOperators = map[string]elm.BinaryOperator{
	"=":          elm.OpEqual,
	"==":         elm.OpEqual,
	"equals":     elm.OpEqual,
	"is":         elm.OpEqual,
	"!=":         elm.OpNotEqual,
	"<>":         elm.OpNotEqual,
	"not equals": elm.OpNotEqual,
	"<":          elm.OpLess,
	"less than":  elm.OpLess,
	"<=":         elm.OpLessOrEqual,
	">":          elm.OpGreater,
	"more than":  elm.OpGreater,
	">=":         elm.OpGreaterOrEqual,
	"~":          elm.OpEquivalent,
	"in":         elm.OpIn,
	"contains":   elm.OpContains,
}

var unaryOperators = map[string]UnaryTest{
	"exists":      TestExists,
	"is null":     TestIsNull,
	"is not null": TestIsNotNull,
}

// ParseOperator parses an operator token. Matching ignores case and
// surrounding or repeated whitespace.
func ParseOperator(token string) (Operator, error) {
	norm := strings.ToLower(strings.Join(strings.Fields(token), " "))
	if op, ok := binaryOperators[norm]; ok {
		return Operator{Token: token, Binary: op}, nil
	}
	if test, ok := unaryOperators[norm]; ok {
		return Operator{Token: token, Unary: test}, nil
	}
	return Operator{}, newError(ErrUnknownOperator, "unknown comparison operator %q", token)
}

// ParseConjunction parses "and" or "or", ignoring case.
func ParseConjunction(token string) (elm.Conjunction, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "and":
		return elm.ConjunctionAnd, nil
	case "or":
		return elm.ConjunctionOr, nil
	default:
		return elm.ConjunctionNone, newError(ErrUnknownConjunction, "unknown conjunction %q", token)
	}
}

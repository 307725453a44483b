package compiler

import (
	"github.com/roach88/rulecql/internal/elm"
	"github.com/roach88/rulecql/internal/rulegraph"
)

// SlotKind tags the content of an OperandSlot.
type SlotKind int

const (
	SlotEmpty SlotKind = iota
	SlotLiteral
	SlotQuantity
	SlotExpression
)

func (k SlotKind) String() string {
	switch k {
	case SlotEmpty:
		return "empty"
	case SlotLiteral:
		return "literal"
	case SlotQuantity:
		return "quantity"
	case SlotExpression:
		return "expression"
	default:
		return "unknown"
	}
}

// OperandSlot holds one side of a predicate.
//
// The zero value is an empty slot. Slots are values; filling a slot means
// replacing it with one built by LiteralSlot, NumberSlot, QuantitySlot or
// ExpressionSlot.
type OperandSlot struct {
	kind      SlotKind
	expr      elm.Expression // SlotLiteral, SlotExpression
	magnitude float64        // SlotQuantity and numeric SlotLiteral
	numeric   bool
	unit      string // SlotQuantity
}

// LiteralSlot holds a non-numeric literal (string, boolean or typed null).
func LiteralSlot(e elm.Expression) OperandSlot {
	return OperandSlot{kind: SlotLiteral, expr: e}
}

// NumberSlot holds a numeric literal and its magnitude.
func NumberSlot(lit *elm.Literal, value float64) OperandSlot {
	return OperandSlot{kind: SlotLiteral, expr: lit, magnitude: value, numeric: true}
}

// QuantitySlot holds a quantity.
func QuantitySlot(value float64, unit string) OperandSlot {
	return OperandSlot{kind: SlotQuantity, magnitude: value, numeric: true, unit: unit}
}

// ExpressionSlot holds an arbitrary IR expression.
func ExpressionSlot(e elm.Expression) OperandSlot {
	return OperandSlot{kind: SlotExpression, expr: e}
}

// Kind returns the slot's tag.
func (s OperandSlot) Kind() SlotKind { return s.kind }

// IsEmpty reports whether the slot holds nothing.
func (s OperandSlot) IsEmpty() bool { return s.kind == SlotEmpty }

// Magnitude returns the numeric value of a quantity or numeric literal.
func (s OperandSlot) Magnitude() (float64, bool) {
	return s.magnitude, s.numeric
}

// Unit returns the unit of a quantity slot.
func (s OperandSlot) Unit() string { return s.unit }

// Expression materializes the slot as an IR node. Empty slots yield nil.
func (s OperandSlot) Expression() elm.Expression {
	switch s.kind {
	case SlotQuantity:
		return &elm.Quantity{Value: s.magnitude, Unit: s.unit}
	case SlotLiteral, SlotExpression:
		return s.expr
	default:
		return nil
	}
}

// CompilerState is the in-flight state of one predicate.
//
// The first value fills Left, the next fills Right. Two rewrites of a filled
// slot exist: the patient age function and a closed aggregate always take
// Left, shifting an earlier operand to Right, and a calendar unit refines
// the quantity in Right.
type CompilerState struct {
	Left     OperandSlot
	Right    OperandSlot
	Operator string

	// StartedFunction is true while the operands of an aggregate are read.
	StartedFunction bool

	// FunctionKey is the concept accumulated while StartedFunction is set.
	FunctionKey *rulegraph.ConceptKey

	// AgeLeft is set when Left holds the patient age function.
	AgeLeft bool

	// CountLeft is set when Left holds a count aggregate.
	CountLeft bool
}

// Reset clears the state for the next predicate.
func (s *CompilerState) Reset() {
	*s = CompilerState{}
}

// Assign fills the first empty slot with v. It returns false, leaving the
// state unchanged, when both slots are filled.
func (s *CompilerState) Assign(v OperandSlot) bool {
	switch {
	case s.Left.IsEmpty():
		s.Left = v
	case s.Right.IsEmpty():
		s.Right = v
	default:
		return false
	}
	return true
}

// AssignRight fills Right. It returns false when Right is already filled.
func (s *CompilerState) AssignRight(v OperandSlot) bool {
	if !s.Right.IsEmpty() {
		return false
	}
	s.Right = v
	return true
}

// TakeLeft puts v in Left. A value already in Left moves to Right. It
// returns false, leaving the state unchanged, when both slots are filled.
func (s *CompilerState) TakeLeft(v OperandSlot) bool {
	if !s.Left.IsEmpty() {
		if !s.Right.IsEmpty() {
			return false
		}
		s.Right = s.Left
	}
	s.Left = v
	return true
}

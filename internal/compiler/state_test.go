package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/rulecql/internal/elm"
)

func TestCompilerState_TakeLeft(t *testing.T) {
	lit := func(v string) OperandSlot {
		return LiteralSlot(&elm.Literal{ValueType: elm.SystemType("String"), Value: v})
	}

	t.Run("empty state", func(t *testing.T) {
		var s CompilerState
		assert.True(t, s.TakeLeft(lit("a")))
		assert.Equal(t, lit("a"), s.Left)
		assert.True(t, s.Right.IsEmpty())
	})

	t.Run("shifts left operand right", func(t *testing.T) {
		var s CompilerState
		s.Assign(lit("a"))
		assert.True(t, s.TakeLeft(lit("b")))
		assert.Equal(t, lit("b"), s.Left)
		assert.Equal(t, lit("a"), s.Right)
	})

	t.Run("full state unchanged", func(t *testing.T) {
		var s CompilerState
		s.Assign(lit("a"))
		s.Assign(lit("b"))
		before := s
		assert.False(t, s.TakeLeft(lit("c")))
		assert.Equal(t, before, s)
	})
}

package compiler

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rulecql/internal/modelinfo"
)

var loadModel = sync.OnceValues(modelinfo.LoadFHIR)

func testModel(t *testing.T) *modelinfo.Model {
	t.Helper()
	model, err := loadModel()
	require.NoError(t, err)
	return model
}

func newTestCompiler(t *testing.T, opts ...Option) *Compiler {
	t.Helper()
	return New(testModel(t), opts...)
}

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	return newTestCompiler(t, opts...).NewSession(zerolog.Nop())
}

func diagCodes(diags []Diagnostic) []DiagnosticCode {
	out := make([]DiagnosticCode, len(diags))
	for i, d := range diags {
		out[i] = d.Code
	}
	return out
}

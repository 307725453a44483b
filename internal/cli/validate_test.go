package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	stdout, _, err := run(t, "validate", "testdata/rules")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ 2 rule(s) valid")
	assert.Contains(t, stdout, "warning unmapped-valueset")
}

func TestValidate_JSON(t *testing.T) {
	stdout, _, err := run(t, "validate", "--format", "json", "testdata/rules/adult.yaml")
	require.NoError(t, err)

	var results []ValidationResult
	resp := decodeResponse(t, stdout, &results)
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, results, 1)
	assert.True(t, results[0].Valid)
	assert.Empty(t, results[0].Warnings)
}

func TestValidate_CompileError(t *testing.T) {
	stdout, _, err := run(t, "validate", "testdata/broken")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "E201")
}

func TestValidate_DoesNotWriteStore(t *testing.T) {
	storePath := tempStore(t)
	t.Setenv("RULECQL_STORE_PATH", storePath)

	_, _, err := run(t, "validate", "testdata/rules")
	require.NoError(t, err)

	stdout, _, err := run(t, "history", "--format", "json")
	require.NoError(t, err)

	var entries []HistoryEntry
	decodeResponse(t, stdout, &entries)
	assert.Empty(t, entries)
}

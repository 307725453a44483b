package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// run executes the root command with args and returns stdout, stderr and
// the command error.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// tempStore returns a store path inside a per-test directory.
func tempStore(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "rulecql.db")
}

// decodeResponse parses a JSON CLI response, decoding data into out.
func decodeResponse(t *testing.T, raw string, out any) CLIResponse {
	t.Helper()

	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &envelope), "output: %s", raw)
	if out != nil && len(envelope.Data) > 0 {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
	return CLIResponse{Status: envelope.Status, Error: envelope.Error}
}

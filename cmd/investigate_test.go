package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantrace/ferret-cli/api/schemas"
	"github.com/vantrace/ferret-cli/internal/observability"
)

// resetGlobals clears the viper and logger state commands leave behind.
func resetGlobals(t *testing.T) {
	t.Helper()
	viper.Reset()
	observability.ResetForTest()
	t.Cleanup(func() {
		viper.Reset()
		observability.ResetForTest()
	})
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Version(t *testing.T) {
	resetGlobals(t)
	out, err := runCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, Version)
}

func TestRootCommand_RejectsBadConfigFile(t *testing.T) {
	resetGlobals(t)
	path := filepath.Join(t.TempDir(), "ferret.yaml")
	require.NoError(t, os.WriteFile(path, []byte("report:\n  format: sarif\n"), 0o600))

	_, err := runCommand(t, "--config", path, "investigate", "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report.format")
}

func TestInvestigate_RequiresQuery(t *testing.T) {
	resetGlobals(t)
	_, err := runCommand(t, "investigate")
	assert.Error(t, err)
}

func TestInvestigate_WritesJSONReport(t *testing.T) {
	resetGlobals(t)
	out := filepath.Join(t.TempDir(), "report.json")

	stdout, err := runCommand(t, "investigate", "check", "user@example.com", "-f", "json", "-o", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Report written to")

	raw, err := os.ReadFile(out)
	require.NoError(t, err)

	var decoded struct {
		Investigation schemas.Investigation        `json:"investigation"`
		Summary       schemas.InvestigationSummary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	inv := decoded.Investigation
	assert.Equal(t, "check user@example.com", inv.QueryText)
	assert.Equal(t, schemas.InvestigationCompleted, inv.Status)
	assert.Equal(t, "5/5 pipelines successful", inv.Summary)
	require.Len(t, inv.Pipelines, 5, "no kind keyword matched, the full set runs")
	require.NotNil(t, inv.EndedAt)
	assert.Equal(t, 5, decoded.Summary.TotalPipelines)
	assert.Equal(t, 5, decoded.Summary.CompletedPipelines)
}

func TestInvestigate_TextReport(t *testing.T) {
	resetGlobals(t)
	out := filepath.Join(t.TempDir(), "report.txt")

	_, err := runCommand(t, "investigate", "geolocate", "203.0.113.7", "-f", "text", "-o", out)
	require.NoError(t, err)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "geolocate 203.0.113.7")
	assert.Contains(t, text, "Geo/IP Lookup")
	assert.Contains(t, text, "1/1 pipelines successful")
}

func TestInvestigate_StageFailureStillSucceedsAsProcess(t *testing.T) {
	resetGlobals(t)
	out := filepath.Join(t.TempDir(), "report.json")

	// The metadata keyword narrows the run to one pipeline, and the named
	// file does not exist, so that stage fails. The process still exits
	// cleanly: stage failures belong in the report.
	_, err := runCommand(t, "investigate", "extract", "metadata", "from", "missing/photo.jpg", "-f", "json", "-o", out)
	require.NoError(t, err)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)

	var decoded struct {
		Investigation schemas.Investigation `json:"investigation"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	inv := decoded.Investigation
	assert.Equal(t, schemas.InvestigationError, inv.Status)
	assert.Equal(t, "0/1 pipelines successful", inv.Summary)
	require.Len(t, inv.Pipelines, 1)
	assert.Equal(t, schemas.KindMetadataExtraction, inv.Pipelines[0].ID)
	assert.NotEmpty(t, inv.Pipelines[0].ErrorMessage)
}

package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadengine/instance-sync/internal/status"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := executeCommand(t, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	for _, key := range []string{"version", "commit", "build_date", "go_version", "platform"} {
		assert.Contains(t, info, key)
	}

	out, err = executeCommand(t, "version")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))
}

func TestSyncCommand_StatusOnly(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "storage:\n  type: memory\n")

	out, err := executeCommand(t, "sync", "--config", path, "--status-only", "--tenant", "acme", "--format", "json")
	require.NoError(t, err)

	var reports []tenantReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "acme", reports[0].TenantID)
	assert.Nil(t, reports[0].Status)
	assert.Empty(t, reports[0].Error)
}

func TestSyncCommand_Errors(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "storage:\n  type: memory\n")

	_, err := executeCommand(t, "sync", "--config", path, "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")

	_, err = executeCommand(t, "sync")
	assert.Error(t, err)
}

func TestWriteReports_Table(t *testing.T) {
	t.Parallel()

	synced := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reports := []tenantReport{
		{
			TenantID:  "acme",
			Instances: 2,
			Synced:    true,
			Status: &status.SyncStatus{
				Phase:        status.SyncPhaseComplete,
				LastSyncTime: &synced,
				Created:      1,
				Unchanged:    1,
			},
		},
		{TenantID: "globex", Error: "broker timeout"},
	}

	out := &bytes.Buffer{}
	require.NoError(t, writeReports(out, "table", reports))

	text := out.String()
	assert.Contains(t, text, "acme")
	assert.Contains(t, text, "Complete")
	assert.Contains(t, text, "2026-03-01T12:00:00Z")
	assert.Contains(t, text, "globex")
	assert.Contains(t, text, "broker timeout")
}

func TestAskYesNo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  bool
	}{
		{input: "yes\n", want: true},
		{input: "Y\n", want: true},
		{input: "no\n", want: false},
		{input: "\n", want: false},
		{input: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			out := &bytes.Buffer{}
			assert.Equal(t, tt.want, askYesNo(strings.NewReader(tt.input), out, "Continue?"))
			assert.Contains(t, out.String(), "Continue? (yes/no)")
		})
	}
}

func TestMigrateCommand_RequiresDatabase(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "storage:\n  type: memory\n")
	_, err := executeCommand(t, "migrate", "up", "--config", path, "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database configuration is required")
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/tradeledger/internal/storage"
	"github.com/MrWong99/tradeledger/internal/trade"
)

// These tests are not parallel: resolving the config installs the default
// slog logger.

var librarian = uuid.MustParse("9a1d3c6e-2b4f-4c1a-8e7d-5f6a7b8c9d01")

func execute(t *testing.T, environ map[string]string, args ...string) (string, error) {
	t.Helper()
	if environ == nil {
		environ = map[string]string{}
	}
	var stdout, stderr bytes.Buffer
	root := newRootCmd(&stdout, &stderr, environ)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

// seed writes a one-record ledger for world_Survival into a fresh data dir
// and returns the flags selecting it.
func seed(t *testing.T) (dataDir string, flags []string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")

	rec := trade.NewRecord(librarian, "librarian")
	e := trade.Entry{AttributeKey: "minecraft:mending", AttributeName: "Mending", AttributeLevel: 1, Cost: 12}
	e.AssignPriority()
	rec.AddEntry(trade.DisplayFirst, e)
	rec.UpdateDisplayName(trade.DisplayFirst)
	require.NoError(t, storage.NewFileStore(dataDir).Save(context.Background(), "world_Survival", trade.Ledger{librarian: rec}))

	return dataDir, []string{
		"--config", filepath.Join(dir, "absent.yaml"),
		"--data-dir", dataDir,
		"--local", "Survival",
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.Equal(t, "tradeledger version dev\n", out)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradeledger.yaml")

	out, err := execute(t, nil, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created default configuration: "+path)

	_, err = execute(t, nil, "config", "init", "-o", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, nil, "config", "init", "-o", path, "--force")
	require.NoError(t, err)

	out, err = execute(t, nil, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid: "+path)
	assert.Contains(t, out, "(3 backups kept)")
}

func TestConfigValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  log_level: loud\n"), 0o644))

	_, err := execute(t, nil, "config", "validate", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.log_level")
}

func TestConfigValidate_EnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tradeledger.yaml")
	_, err := execute(t, nil, "config", "init", "-o", path)
	require.NoError(t, err)

	_, err = execute(t, map[string]string{"TRADELEDGER_MAX_BACKUPS": "0"}, "config", "validate", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.max_backups")
}

func TestLedgerCommands(t *testing.T) {
	_, flags := seed(t)
	run := func(args ...string) string {
		t.Helper()
		out, err := execute(t, nil, append(args, flags...)...)
		require.NoError(t, err, out)
		return out
	}

	assert.Equal(t, "Namespace world_Survival: 1 records, mode first, display on, dirty false.\n", run("status"))
	assert.Equal(t, "All 1 records are valid.\n", run("validate"))

	show := run("show")
	assert.Contains(t, show, librarian.String())
	assert.Contains(t, show, "[12]Mending")

	assert.Contains(t, run("find", "mending"), "1 entries match \"mending\"")
	assert.Equal(t, "Namespace world_Survival has no backups.\n", run("backups"))
	assert.Contains(t, run("backup"), "Backup created successfully: ")
	assert.Contains(t, run("backups"), "world_Survival.json.backup_")

	assert.Equal(t, "Current namespace data has been reset/cleared.\n", run("reset"))
	assert.Equal(t, "Namespace world_Survival has no records.\n", run("show"))

	assert.Equal(t, "Data restored from backup successfully (1 records).\n", run("restore"))
	assert.Contains(t, run("show"), "[12]Mending")
}

func TestLedgerCommand_ReportsFailure(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, nil, "backup",
		"--config", filepath.Join(dir, "absent.yaml"),
		"--data-dir", dir,
		"--remote", "play.example.net")
	require.ErrorIs(t, err, errCommandFailed)
	assert.Equal(t, "Nothing to back up: no data has been saved yet.\n", out)
}

func TestLedgerCommand_FindNoMatch(t *testing.T) {
	_, flags := seed(t)
	out, err := execute(t, nil, append([]string{"find", "sharpness"}, flags...)...)
	require.ErrorIs(t, err, errCommandFailed)
	assert.Equal(t, "No entries match \"sharpness\".\n", out)
}

func TestLedgerCommand_NamespaceFlags(t *testing.T) {
	dir := t.TempDir()
	base := []string{"status", "--config", filepath.Join(dir, "absent.yaml"), "--data-dir", dir}

	_, err := execute(t, nil, base...)
	require.Error(t, err, "a namespace flag is required")

	_, err = execute(t, nil, append(base, "--local", "a", "--remote", "b")...)
	require.Error(t, err, "namespace flags are mutually exclusive")
}

func TestEnvironmentSelectsDataDir(t *testing.T) {
	dataDir, _ := seed(t)
	out, err := execute(t, map[string]string{"TRADELEDGER_DATA_DIR": dataDir},
		"status", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "-n", "world_Survival")
	require.NoError(t, err)
	assert.Contains(t, out, "1 records")
}

func TestInvalidLogLevelFlag(t *testing.T) {
	_, flags := seed(t)
	_, err := execute(t, nil, append([]string{"status", "--log-level", "loud"}, flags...)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.log_level")
}

func TestEnvironMap(t *testing.T) {
	got := environMap([]string{"A=1", "B=x=y", "BROKEN"})
	assert.Equal(t, map[string]string{"A": "1", "B": "x=y"}, got)
}

package worker

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+body), 0755))
}

func TestExecute(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "star", `echo " save LOGS/profile1.data for model 7"
echo " termination code: max_model_number"
echo "args: $@"
`)

	var out bytes.Buffer
	logPath := filepath.Join(dir, "runs", "star.log")
	cfg := DefaultConfig("./star", dir)
	cfg.Stdout = &out
	w := NewFactory(cfg, cfg, cfg).Star(logPath)
	assert.Equal(t, "star", w.Name())

	result, err := w.Execute(context.Background(), "extra")
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "max_model_number", result.Termination)
	assert.Equal(t, 7, result.LastModel)
	assert.Contains(t, result.Output, "args: extra")
	assert.Contains(t, out.String(), "termination code")

	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, result.Output, string(logged))
}

func TestExecuteQuiet(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "mk", "echo building\n")

	var out bytes.Buffer
	cfg := DefaultConfig("./mk", dir)
	cfg.Quiet = true
	cfg.Stdout = &out

	result, err := NewCLIWorker(cfg).Execute(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success())
	assert.Equal(t, "building\n", result.Output)
	assert.Empty(t, out.String())
}

func TestExecuteExitCode(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "star", "echo boom >&2\nexit 3\n")

	cfg := DefaultConfig("./star", dir)
	cfg.Quiet = true
	result, err := NewCLIWorker(cfg).Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success())
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, result.Output, "boom")
}

func TestExecuteMissingBinary(t *testing.T) {
	cfg := DefaultConfig("./star", t.TempDir())
	cfg.Quiet = true
	result, err := NewCLIWorker(cfg).Execute(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Success())
	assert.Error(t, result.Error)
}

func TestExecuteInterrupted(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "star", "exec sleep 10\n")

	cfg := DefaultConfig("./star", dir)
	cfg.Quiet = true

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result, err := NewCLIWorker(cfg).Execute(ctx)
	require.NoError(t, err)
	assert.True(t, result.Interrupted)
	assert.False(t, result.Success())
}

func TestExecuteEmptyCommand(t *testing.T) {
	_, err := NewCLIWorker(&Config{}).Execute(context.Background())
	assert.Error(t, err)
}

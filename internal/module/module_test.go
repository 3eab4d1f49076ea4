package module

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBuilders(t *testing.T) {
	e := RunCompleteEvent("run-1", "inlist_1M", "1M.mod", 2*time.Minute)
	assert.Equal(t, EventRunComplete, e.Type)
	assert.Equal(t, "run-1", e.RunID)
	assert.Equal(t, "inlist_1M", e.Inlist)
	assert.Equal(t, 120, e.Data["duration"])
	assert.NotEmpty(t, e.Timestamp)

	data, err := e.JSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run_complete", decoded["type"])
	assert.Equal(t, "run-1", decoded["runId"])
}

func TestParseHooks(t *testing.T) {
	hooks, err := ParseHooks(" notify.sh:run_complete+run_failed , /opt/hooks/archive ,")
	require.NoError(t, err)
	require.Len(t, hooks, 2)

	assert.Equal(t, "notify.sh", hooks[0].Name)
	assert.True(t, hooks[0].HandlesEvent(EventRunFailed))
	assert.False(t, hooks[0].HandlesEvent(EventRunStart))

	assert.Equal(t, "archive", hooks[1].Name)
	assert.True(t, hooks[1].HandlesEvent(EventBuild))

	_, err = ParseHooks("notify.sh:run_done")
	assert.Error(t, err)

	hooks, err = ParseHooks("")
	require.NoError(t, err)
	assert.Empty(t, hooks)
}

func writeHook(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "hook.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestDispatch(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	path := writeHook(t, dir, `echo "$1 $2 $MESACTL_INLIST" >> `+out+`
cat >> `+out+`
echo >> `+out+`
`)

	hooks, err := ParseHooks(path + ":run_complete")
	require.NoError(t, err)
	d := NewDispatcher(hooks, 5*time.Second, nil)
	assert.True(t, d.HasHandlers(EventRunComplete))
	assert.False(t, d.HasHandlers(EventRunStart))

	d.Dispatch(RunStartEvent("run-1", "inlist_1M", "1M.mod"))
	d.Dispatch(RunCompleteEvent("run-1", "inlist_1M", "1M.mod", time.Second))
	d.Wait()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "--event run_complete inlist_1M")
	assert.Contains(t, string(data), `"type":"run_complete"`)
	assert.NotContains(t, string(data), "run_start")
}

func TestDispatchSyncErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeHook(t, dir, "echo nope >&2\nexit 1\n")

	d := NewDispatcher([]*Hook{{Name: "hook.sh", Path: path}}, time.Second, nil)
	errs := d.DispatchSync(context.Background(), BuildEvent("b-1", true, time.Second))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "nope")
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	d.Dispatch(NewEvent(EventBuild))
	d.Wait()
}

func TestSampleEvent(t *testing.T) {
	for _, et := range AllEventTypes() {
		e := SampleEvent(et)
		assert.Equal(t, et, e.Type)
		assert.True(t, et.Valid())
	}
	assert.False(t, EventType("run_done").Valid())

	e := SampleEvent(EventRunFailed)
	assert.Equal(t, []string{
		"MESACTL_EVENT=run_failed",
		"MESACTL_RUN_ID=test",
		"MESACTL_INLIST=inlist_test",
	}, e.Environ())
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenariosDir = filepath.Join("..", "harness", "testdata", "scenarios")

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func copyScenario(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(scenariosDir, name+".yaml"))
	require.NoError(t, err)
	return writeScenario(t, dir, name, string(data))
}

const wrongEndTime = `
name: wrong_end
clock_period: 10
stream:
  items: 3
  drive_cycles: 1
expect:
  pass: true
  end_time: 1
`

func TestRunCommandMissingArgs(t *testing.T) {
	_, _, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestRunCommandAllScenariosPass(t *testing.T) {
	out, _, err := execute(t, "run", scenariosDir, "--parallel", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ drop_delay  end=305 seed=1")
	assert.Contains(t, out, "✓ kill_mid_run  end=495 seed=1")
	assert.Contains(t, out, "✓ jittered")
	assert.Contains(t, out, "6 passed, 0 failed, 6 total")
}

func TestRunCommandFilter(t *testing.T) {
	out, _, err := execute(t, "run", scenariosDir, "--filter", "*_delay")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ drop_delay")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestRunCommandNonExistentPath(t *testing.T) {
	_, _, err := execute(t, "run", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario path not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommandEmptyDir(t *testing.T) {
	out, _, err := execute(t, "run", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestRunCommandExpectationFailure(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "wrong_end", wrongEndTime)

	out, _, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 of 1 scenario(s) failed")
	assert.Contains(t, out, "✗ wrong_end")
	assert.Contains(t, out, "Expectation failed: end_time")
}

func TestRunCommandLoadErrorIsFailure(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "broken", "name: broken\nclock_period: 10\nstrem: {}\n")

	out, _, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ broken")
	assert.Contains(t, out, "failed to load scenario")
}

func TestRunCommandKillLevelFlag(t *testing.T) {
	// Promoting the injected error to a kill ends the run at cycle 5, so the
	// scenario's end_time expectation no longer holds.
	out, _, err := execute(t, "run", filepath.Join(scenariosDir, "fail_continues.yaml"), "--kill-level", "error")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "simulation ended at 45")
}

func TestRunCommandInvalidLevelFlag(t *testing.T) {
	_, _, err := execute(t, "run", scenariosDir, "--print-level", "loud")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommandConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "settle.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[run]\nseed = 5\n"), 0o644))

	out, _, err := execute(t, "run", filepath.Join(scenariosDir, "drop_delay.yaml"), "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ drop_delay  end=305 seed=5")

	// Flags beat the file.
	out, _, err = execute(t, "run", filepath.Join(scenariosDir, "drop_delay.yaml"), "--config", cfgPath, "--seed", "8")
	require.NoError(t, err)
	assert.Contains(t, out, "seed=8")
}

func TestRunCommandJSON(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "wrong_end", wrongEndTime)

	out, _, err := execute(t, "run", path, filepath.Join(scenariosDir, "drop_delay.yaml"), "--format", "json")
	require.Error(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "wrong_end", resp.Data.Scenarios[0].Name)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.Equal(t, int64(305), resp.Data.Scenarios[1].EndTime)
}

func TestRunCommandVerbosePrintsRecords(t *testing.T) {
	_, errOut, err := execute(t, "run", filepath.Join(scenariosDir, "kill_mid_run.yaml"), "-v")
	require.NoError(t, err)
	assert.Contains(t, errOut, "--- kill_mid_run")
	assert.Contains(t, errOut, `level=CRITICAL msg="scoreboard lost sync"`)
}

func TestRunHistoryAndEvents(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	_, _, err := execute(t, "run", "--db", db,
		filepath.Join(scenariosDir, "drop_delay.yaml"),
		filepath.Join(scenariosDir, "kill_mid_run.yaml"))
	require.NoError(t, err)

	out, _, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "RUN ID")
	assert.Contains(t, out, "drop_delay")
	assert.Contains(t, out, "kill_mid_run")
	assert.Contains(t, out, "FAIL")

	out, _, err = execute(t, "history", "--db", db, "--scenario", "kill_mid_run", "--format", "json")
	require.NoError(t, err)
	var runs struct {
		Data []RunView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	require.Len(t, runs.Data, 1)
	run := runs.Data[0]
	assert.False(t, run.Passed)
	assert.Equal(t, int64(495), run.EndTime)
	assert.Equal(t, 1, run.Residual)

	out, _, err = execute(t, "events", "--db", db, run.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "scoreboard lost sync")
	assert.Contains(t, out, "residual item in queue")

	out, _, err = execute(t, "events", "--db", db, "--kind", "injected", "--format", "json", run.ID)
	require.NoError(t, err)
	var events struct {
		Data []EventView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events.Data, 1)
	assert.Equal(t, EventView{Seq: 1, Time: 495, Level: "critical", Source: "tb.inj", Kind: "injected", Message: "scoreboard lost sync"}, events.Data[0])
}

func TestHistoryCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no database", []string{"history"}, "no database"},
		{"missing database", []string{"history", "--db", filepath.Join(t.TempDir(), "none.db")}, "database not found"},
		{"events without database", []string{"events", "nope"}, "no database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestEventsCommandUnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	_, _, err := execute(t, "run", "--db", db, filepath.Join(scenariosDir, "drop_delay.yaml"))
	require.NoError(t, err)

	_, _, err = execute(t, "events", "--db", db, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: nope")
}

// syncBuffer is written by the watch loop while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunCommandWatch(t *testing.T) {
	path := copyScenario(t, t.TempDir(), "drop_delay")

	out := &syncBuffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&syncBuffer{})
	cmd.SetArgs([]string{"run", "--watch", path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Watching 1 scenario file(s)")
	}, 5*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "✓ drop_delay") >= 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), "Changed: "+path)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeScenario(t, dir, "a_one", "x")
	writeScenario(t, dir, "b_two", "x")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	files, err := findScenarioFiles([]string{dir, a}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{a, filepath.Join(dir, "b_two.yaml")}, files)

	files, err = findScenarioFiles([]string{dir}, "b_*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b_two.yaml")}, files)

	_, err = findScenarioFiles([]string{dir}, "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}

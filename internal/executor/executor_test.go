package executor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/specialistvlad/incrbuild/internal/ctxlog"
	"github.com/specialistvlad/incrbuild/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedRunner returns canned results per command and records calls.
type scriptedRunner struct {
	results map[string]RunResult
	calls   []string
	dirs    []string
}

func (r *scriptedRunner) Run(_ context.Context, command, dir string, _ time.Duration) RunResult {
	r.calls = append(r.calls, command)
	r.dirs = append(r.dirs, dir)
	return r.results[command]
}

type recordingObserver struct {
	outcomes []Outcome
}

func (o *recordingObserver) ObserveAction(_ int, outcome Outcome, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

func action(artifact string, stage int, cmd string) model.RebuildAction {
	return model.RebuildAction{Artifact: artifact, Stage: stage, Command: cmd}
}

func quiet() context.Context { return ctxlog.Discard(context.Background()) }

func TestExecute_FailureDoesNotStopThePlan(t *testing.T) {
	// --- Arrange ---
	runner := &scriptedRunner{results: map[string]RunResult{
		"curate":   {ExitCode: 0},
		"features": {ExitCode: 1, Stderr: []byte("boom\n")},
		"derived":  {ExitCode: 0},
	}}
	obs := &recordingObserver{}
	exec := New(runner, Options{Dir: "/proj", Observer: obs})
	actions := []model.RebuildAction{
		action("fact_perm/", 1, "curate"),
		action("employer_features.parquet", 2, "features"),
		action("soc_demand_metrics.parquet", 4, "derived"),
	}

	// --- Act ---
	report := exec.Execute(quiet(), actions, false)

	// --- Assert ---
	assert.Equal(t, []string{"curate", "features", "derived"}, runner.calls)
	assert.Equal(t, []string{"/proj", "/proj", "/proj"}, runner.dirs)
	assert.Equal(t, map[string]bool{"curate": true, "features": false, "derived": true}, report.Results())
	assert.False(t, report.AllSucceeded())
	assert.Equal(t, 2, report.Succeeded())
	assert.Equal(t, 1, report.Failed())
	require.Len(t, report.FailedActions(), 1)
	assert.Equal(t, "employer_features.parquet", report.FailedActions()[0].Action.Artifact)
	assert.Equal(t, []Outcome{OutcomeSuccess, OutcomeFailed, OutcomeSuccess}, obs.outcomes)
}

func TestExecute_DryRunSpawnsNothing(t *testing.T) {
	runner := &scriptedRunner{}
	report := New(runner, Options{}).Execute(quiet(), []model.RebuildAction{
		action("a", 1, "false"),
		action("b", 2, "false"),
	}, true)

	assert.Empty(t, runner.calls)
	assert.True(t, report.AllSucceeded())
	assert.True(t, report.DryRun)
	assert.Equal(t, OutcomeDryRun, report.Outcomes[0].Outcome)
}

func TestExecute_EmptyPlanSucceeds(t *testing.T) {
	report := New(&scriptedRunner{}, Options{}).Execute(quiet(), nil, false)
	assert.True(t, report.AllSucceeded())
	assert.Empty(t, report.Results())
}

func TestExecute_ClassifiesOutcomes(t *testing.T) {
	runner := &scriptedRunner{results: map[string]RunResult{
		"slow":    {TimedOut: true, ExitCode: -1},
		"missing": {ExitCode: -1, Err: errors.New("fork/exec: no such file or directory")},
		"exit3":   {ExitCode: 3},
	}}
	report := New(runner, Options{}).Execute(quiet(), []model.RebuildAction{
		action("a", 1, "slow"),
		action("b", 1, "missing"),
		action("c", 1, "exit3"),
	}, false)

	got := []Outcome{}
	for _, o := range report.Outcomes {
		got = append(got, o.Outcome)
	}
	assert.Equal(t, []Outcome{OutcomeTimeout, OutcomeError, OutcomeFailed}, got)
	assert.Equal(t, 0, report.Succeeded())
}

func TestExecute_CancelledContextSkipsRemainingActions(t *testing.T) {
	ctx, cancel := context.WithCancel(quiet())
	cancel()
	runner := &scriptedRunner{}

	report := New(runner, Options{}).Execute(ctx, []model.RebuildAction{action("a", 1, "true")}, false)

	assert.Empty(t, runner.calls)
	assert.Equal(t, OutcomeCancelled, report.Outcomes[0].Outcome)
	assert.False(t, report.AllSucceeded())
}

func TestExecute_LogsStderrTail(t *testing.T) {
	// --- Arrange ---
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
	runner := &scriptedRunner{results: map[string]RunResult{
		"bad": {ExitCode: 2, Stderr: []byte("l1\nl2\nl3\nl4\nl5\nl6\nl7\n")},
	}}

	// --- Act ---
	New(runner, Options{}).Execute(ctx, []model.RebuildAction{action("x", 3, "bad")}, false)

	// --- Assert ---
	out := buf.String()
	assert.Contains(t, out, "Command failed.")
	assert.Contains(t, out, "exit_code=2")
	assert.Contains(t, out, "stage_name=MODELS")
	assert.Contains(t, out, "l7")
	assert.NotContains(t, out, "l2")
}

func TestTailLines(t *testing.T) {
	assert.Equal(t, []string{"c", "d"}, tailLines("a\nb\n\nc\nd\n", 2))
	assert.Nil(t, tailLines("", 5))
}

func TestShellRunner(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh on this system")
	}
	dir := t.TempDir()

	t.Run("success captures stdout and runs in dir", func(t *testing.T) {
		res := ShellRunner{}.Run(context.Background(), "pwd; echo hello", dir, time.Minute)
		require.True(t, res.OK(), "stderr: %s", res.Stderr)
		resolved, err := filepath.EvalSymlinks(dir)
		require.NoError(t, err)
		assert.Contains(t, string(res.Stdout), resolved)
		assert.Contains(t, string(res.Stdout), "hello")
	})

	t.Run("non-zero exit", func(t *testing.T) {
		res := ShellRunner{}.Run(context.Background(), "echo oops >&2; exit 3", dir, time.Minute)
		assert.False(t, res.OK())
		assert.Equal(t, 3, res.ExitCode)
		assert.NoError(t, res.Err)
		assert.False(t, res.TimedOut)
		assert.Equal(t, "oops\n", string(res.Stderr))
	})

	t.Run("timeout", func(t *testing.T) {
		res := ShellRunner{}.Run(context.Background(), "sleep 5", dir, 100*time.Millisecond)
		assert.False(t, res.OK())
		assert.True(t, res.TimedOut)
		assert.Less(t, res.Duration, 5*time.Second)
	})

	t.Run("missing working directory", func(t *testing.T) {
		res := ShellRunner{}.Run(context.Background(), "true", filepath.Join(dir, "nope"), time.Minute)
		assert.False(t, res.OK())
		assert.Error(t, res.Err)
	})
}

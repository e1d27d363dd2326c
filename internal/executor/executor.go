// Package executor runs a rebuild plan one action at a time and reports the
// outcome of every command.
package executor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/specialistvlad/incrbuild/internal/ctxlog"
	"github.com/specialistvlad/incrbuild/internal/model"
)

// stderrTailLines is how much of a failed command's stderr is logged.
const stderrTailLines = 5

// Observer receives one call per finished action. The metrics package
// implements it.
type Observer interface {
	ObserveAction(stage int, outcome Outcome, d time.Duration)
}

// Options configures an Executor.
type Options struct {
	// Dir is the working directory of every command, normally the project root.
	Dir        string
	Timeout    time.Duration
	StageNames model.StageNames
	Observer   Observer
}

// Executor dispatches rebuild actions sequentially.
type Executor struct {
	runner Runner
	opts   Options
}

// New creates an Executor. A nil runner means ShellRunner.
func New(runner Runner, opts Options) *Executor {
	if runner == nil {
		runner = ShellRunner{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.StageNames == nil {
		opts.StageNames = model.DefaultStageNames()
	}
	return &Executor{runner: runner, opts: opts}
}

// Execute runs the actions in the given order. A failure never stops the
// plan; the caller decides from the Report whether the manifest may be
// committed. In dry-run mode nothing is spawned and every action succeeds.
//
// Once ctx is cancelled the remaining actions are recorded as cancelled.
func (e *Executor) Execute(ctx context.Context, actions []model.RebuildAction, dryRun bool) *Report {
	logger := ctxlog.FromContext(ctx)
	report := &Report{DryRun: dryRun, Outcomes: make([]ActionOutcome, 0, len(actions))}

	for i, action := range actions {
		actionLogger := logger.With(
			"step", i+1,
			"of", len(actions),
			"stage", action.Stage,
			"stage_name", e.opts.StageNames.Name(action.Stage),
			"artifact", action.Artifact,
		)
		actionLogger.Info("▶️ Rebuilding artifact.", "command", action.Command)

		var out ActionOutcome
		switch {
		case dryRun:
			out = ActionOutcome{Action: action, Outcome: OutcomeDryRun}
			actionLogger.Info("Dry run, command not executed.")
		case ctx.Err() != nil:
			out = ActionOutcome{Action: action, Outcome: OutcomeCancelled, Err: ctx.Err()}
			actionLogger.Warn("Run cancelled, action skipped.")
		default:
			out = e.runAction(ctx, action)
			logOutcome(actionLogger, out)
		}

		if e.opts.Observer != nil {
			e.opts.Observer.ObserveAction(action.Stage, out.Outcome, out.Result.Duration)
		}
		report.Outcomes = append(report.Outcomes, out)
	}

	logger.Info("Execution finished.",
		"succeeded", report.Succeeded(),
		"failed", report.Failed(),
		"dry_run", dryRun,
	)
	return report
}

func (e *Executor) runAction(ctx context.Context, action model.RebuildAction) ActionOutcome {
	res := e.runner.Run(ctx, action.Command, e.opts.Dir, e.opts.Timeout)
	out := ActionOutcome{Action: action, Result: res, Err: res.Err}
	switch {
	case res.OK():
		out.Outcome = OutcomeSuccess
	case res.TimedOut:
		out.Outcome = OutcomeTimeout
	case res.Err != nil && ctx.Err() != nil:
		out.Outcome = OutcomeCancelled
	case res.Err != nil:
		out.Outcome = OutcomeError
	default:
		out.Outcome = OutcomeFailed
	}
	return out
}

func logOutcome(logger *slog.Logger, out ActionOutcome) {
	res := out.Result
	switch out.Outcome {
	case OutcomeSuccess:
		logger.Info("✅ Artifact rebuilt.", "duration", res.Duration.Round(time.Millisecond))
	case OutcomeTimeout:
		logger.Error("Command timed out.", "timeout_after", res.Duration.Round(time.Second))
	case OutcomeError, OutcomeCancelled:
		logger.Error("Command could not run.", "error", out.Err)
	default:
		logger.Error("Command failed.",
			"exit_code", res.ExitCode,
			"stderr_tail", tailLines(string(res.Stderr), stderrTailLines),
		)
	}
}

// tailLines returns the last n non-empty lines of s.
func tailLines(s string, n int) []string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return kept
}

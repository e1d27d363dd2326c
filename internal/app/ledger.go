package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/incrbuild/internal/ctxlog"
	"github.com/specialistvlad/incrbuild/internal/history"
	"github.com/specialistvlad/incrbuild/internal/metrics"
)

// Exit codes reported to calling automation.
const (
	ExitOK          = 0
	ExitActionsFail = 1
	ExitConfig      = 2
)

// ExitCode maps a Run error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrActionsFailed):
		return ExitActionsFail
	case errors.Is(err, ErrConfig):
		return ExitConfig
	default:
		return ExitActionsFail
	}
}

// writeMetrics exports the run's metrics when a textfile path is configured.
// Failures are logged; they never change the outcome of a run.
func (a *App) writeMetrics(ctx context.Context, m *metrics.Metrics) {
	if a.paths.MetricsPath == "" {
		return
	}
	logger := ctxlog.FromContext(ctx)
	if err := m.WriteTextfile(a.paths.MetricsPath); err != nil {
		logger.Warn("Could not write metrics textfile.", "path", a.paths.MetricsPath, "error", err)
		return
	}
	logger.Debug("Metrics textfile written.", "path", a.paths.MetricsPath)
}

// recordHistory appends the run to the ledger when one is configured.
// Failures are logged; they never change the outcome of a run.
func (a *App) recordHistory(ctx context.Context, res *Result, started time.Time, runErr error) {
	if a.paths.HistoryPath == "" {
		return
	}
	logger := ctxlog.FromContext(ctx)
	store, err := history.Open(ctx, a.paths.HistoryPath)
	if err != nil {
		logger.Warn("Could not open run history.", "path", a.paths.HistoryPath, "error", err)
		return
	}
	defer store.Close()

	run := &history.Run{
		ID:                res.RunID,
		StartedAt:         started,
		Duration:          a.now().Sub(started),
		Mode:              string(res.Mode),
		SourceRoot:        a.paths.SourceRoot,
		ExitCode:          ExitCode(runErr),
		ManifestCommitted: res.Committed,
		ManifestDigest:    res.Digest,
	}
	if cs := res.ChangeSet; cs != nil {
		run.NewFiles = len(cs.New)
		run.ChangedFiles = len(cs.Changed)
		run.DeletedFiles = len(cs.Deleted)
		run.UnchangedFiles = cs.UnchangedCount
	}
	if res.Report != nil {
		for _, o := range res.Report.Outcomes {
			run.Actions = append(run.Actions, history.Action{
				Artifact: o.Action.Artifact,
				Stage:    o.Action.Stage,
				Command:  o.Action.Command,
				Outcome:  string(o.Outcome),
				ExitCode: o.Result.ExitCode,
				Duration: o.Result.Duration,
			})
		}
	}
	if _, err := store.Record(ctx, run); err != nil {
		logger.Warn("Could not record run history.", "error", err)
		return
	}
	logger.Debug("Run recorded in history.", "path", a.paths.HistoryPath)
}

// History returns the most recent runs from the ledger.
func (a *App) History(ctx context.Context, limit int) ([]history.Run, error) {
	if a.paths.HistoryPath == "" {
		return nil, fmt.Errorf("%w: no history path: set history_path in the paths file or pass --history", ErrConfig)
	}
	store, err := history.Open(ctx, a.paths.HistoryPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List(ctx, limit)
}

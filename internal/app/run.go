package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/specialistvlad/incrbuild/internal/change"
	"github.com/specialistvlad/incrbuild/internal/ctxlog"
	"github.com/specialistvlad/incrbuild/internal/executor"
	"github.com/specialistvlad/incrbuild/internal/fingerprint"
	"github.com/specialistvlad/incrbuild/internal/manifest"
	"github.com/specialistvlad/incrbuild/internal/metrics"
	"github.com/specialistvlad/incrbuild/internal/model"
	"github.com/specialistvlad/incrbuild/internal/planner"
)

// Phase is a state of the run lifecycle.
type Phase string

const (
	PhaseScan               Phase = "SCAN"
	PhaseDiff               Phase = "DIFF"
	PhasePlan               Phase = "PLAN"
	PhaseExecute            Phase = "EXECUTE"
	PhaseDryRun             Phase = "DRY_RUN"
	PhaseCommitManifest     Phase = "COMMIT_MANIFEST"
	PhaseLeaveManifestStale Phase = "LEAVE_MANIFEST_STALE"
)

// Result describes a finished run.
type Result struct {
	RunID     string
	Mode      Mode
	Phases    []Phase
	ChangeSet *model.ChangeSet
	Actions   []model.RebuildAction
	Report    *executor.Report
	Committed bool
	Digest    string
}

// Final returns the last phase reached.
func (r *Result) Final() Phase {
	if len(r.Phases) == 0 {
		return ""
	}
	return r.Phases[len(r.Phases)-1]
}

func (r *Result) enter(ctx context.Context, p Phase) {
	r.Phases = append(r.Phases, p)
	ctxlog.FromContext(ctx).Debug("Entering phase.", "phase", p)
}

// Run executes one orchestrator pass. It returns ErrConfig-wrapped errors for
// setup problems and ErrActionsFailed when any rebuild command failed; in the
// latter case the Result is still populated.
func (a *App) Run(ctx context.Context) (*Result, error) {
	started := a.now()
	runID := uuid.NewString()
	ctx = ctxlog.WithLogger(ctx, a.logger)
	ctx, logger := ctxlog.With(ctx, "run_id", runID)

	mode := a.cfg.Mode()
	res := &Result{RunID: runID, Mode: mode}
	m := metrics.New()

	logger.Info("🚀 Incremental build started.",
		"mode", mode,
		"source_root", a.paths.SourceRoot,
		"manifest", a.store.Path(),
		"hash", a.cfg.Hash,
	)

	runErr := a.run(ctx, res, m)

	success := runErr == nil
	m.ObserveChangeSet(res.ChangeSet)
	m.ObserveRun(success, res.Committed, a.now())
	// An interrupted run is still recorded.
	finalCtx := context.WithoutCancel(ctx)
	a.writeMetrics(finalCtx, m)
	a.recordHistory(finalCtx, res, started, runErr)

	if runErr != nil {
		return res, runErr
	}
	logger.Info("🏁 Incremental build finished.",
		"final_phase", res.Final(),
		"committed", res.Committed,
		"took", a.now().Sub(started).Round(time.Millisecond),
	)
	return res, nil
}

func (a *App) run(ctx context.Context, res *Result, m *metrics.Metrics) error {
	logger := ctxlog.FromContext(ctx)

	// SCAN
	res.enter(ctx, PhaseScan)
	current, err := fingerprint.Scan(ctx, a.paths.SourceRoot, fingerprint.Options{
		Extensions:  a.pipeline.Extensions(),
		ComputeHash: a.cfg.Hash && res.Mode == ModeInit,
		HashWorkers: a.cfg.HashWorkers,
		Classifier:  a.classifier,
	})
	if err != nil {
		if errors.Is(err, fingerprint.ErrRootNotFound) {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		return fmt.Errorf("scan failed: %w", err)
	}
	logScanSummary(ctx, current)

	if res.Mode == ModeInit {
		return a.commit(ctx, res, current)
	}

	// DIFF
	res.enter(ctx, PhaseDiff)
	old, err := a.store.Load(ctx)
	if err != nil {
		if errors.Is(err, manifest.ErrInvalidManifest) {
			return fmt.Errorf("%w: %v (rebuild the baseline with --init)", ErrConfig, err)
		}
		return err
	}
	var opts change.Options
	if a.cfg.Hash {
		opts.Hasher = fingerprint.RootHasher{Root: a.paths.SourceRoot}
	}
	diff, err := change.Detect(ctx, old, current, opts)
	if err != nil {
		return fmt.Errorf("change detection failed: %w", err)
	}
	res.ChangeSet = diff.ChangeSet

	// PLAN
	res.enter(ctx, PhasePlan)
	res.Actions = planner.Plan(ctx, diff.ChangeSet, a.graph, planner.Options{
		SourceRoot:  a.paths.SourceRoot,
		ProjectRoot: a.cfg.ProjectRoot,
	})
	planner.Log(ctx, res.Actions, a.pipeline.StageNames())

	if !diff.ChangeSet.HasChanges() {
		if a.cfg.SaveManifest {
			return a.commit(ctx, res, diff.Current)
		}
		res.enter(ctx, PhaseLeaveManifestStale)
		logger.Info("✅ Everything is up to date.")
		return nil
	}

	switch res.Mode {
	case ModePlan:
		if a.cfg.SaveManifest {
			logger.Warn("Committing the manifest without rebuilding, as requested.")
			return a.commit(ctx, res, diff.Current)
		}
		res.enter(ctx, PhaseLeaveManifestStale)
		logger.Info("Plan only. Run with --execute to rebuild, or --dry-run to preview the commands.",
			"commands", len(res.Actions))
		return nil

	case ModeDryRun:
		res.enter(ctx, PhaseDryRun)
		res.Report = a.newExecutor(m).Execute(ctx, res.Actions, true)
		if a.cfg.SaveManifest {
			return a.commit(ctx, res, diff.Current)
		}
		res.enter(ctx, PhaseLeaveManifestStale)
		return nil
	}

	// EXECUTE
	res.enter(ctx, PhaseExecute)
	res.Report = a.newExecutor(m).Execute(ctx, res.Actions, false)
	if !res.Report.AllSucceeded() {
		res.enter(ctx, PhaseLeaveManifestStale)
		for _, f := range res.Report.FailedActions() {
			logger.Error("Rebuild failed.", "artifact", f.Action.Artifact, "outcome", f.Outcome, "command", f.Action.Command)
		}
		if a.cfg.SaveManifest {
			logger.Warn("--save-manifest ignored because actions failed.")
		}
		logger.Warn("Manifest left untouched; the next run will retry the same plan.",
			"failed", res.Report.Failed(), "succeeded", res.Report.Succeeded())
		return fmt.Errorf("%w: %d of %d", ErrActionsFailed, res.Report.Failed(), len(res.Report.Outcomes))
	}
	return a.commit(ctx, res, diff.Current)
}

func (a *App) newExecutor(m *metrics.Metrics) *executor.Executor {
	timeout := a.cfg.Timeout
	if timeout == 0 {
		timeout = a.pipeline.CommandTimeout
	}
	return executor.New(a.runner, executor.Options{
		Dir:        a.cfg.ProjectRoot,
		Timeout:    timeout,
		StageNames: a.pipeline.StageNames(),
		Observer:   m,
	})
}

func (a *App) commit(ctx context.Context, res *Result, files map[string]model.FileFingerprint) error {
	res.enter(ctx, PhaseCommitManifest)
	mf := model.NewManifest(a.paths.SourceRoot, files, a.now())
	if err := a.store.Save(ctx, mf); err != nil {
		return fmt.Errorf("commit manifest: %w", err)
	}
	digest, err := manifest.Digest(mf)
	if err != nil {
		return fmt.Errorf("digest manifest: %w", err)
	}
	res.Committed = true
	res.Digest = digest
	ctxlog.FromContext(ctx).Info("Manifest committed.", "files", len(files), "digest", digest[:12])
	return nil
}

func logScanSummary(ctx context.Context, files map[string]model.FileFingerprint) {
	var total int64
	byDataset := map[string]int{}
	for _, f := range files {
		total += f.Size
		byDataset[f.Dataset]++
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("🔍 Source scan complete.",
		"files", humanize.Comma(int64(len(files))),
		"size", humanize.Bytes(uint64(total)),
		"datasets", len(byDataset),
	)
	if n := byDataset[model.UnknownDataset]; n > 0 {
		logger.Warn("Tracked files matched no dataset pattern.", "count", n)
	}
}

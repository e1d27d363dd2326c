// Package planner turns a ChangeSet into the ordered, deduplicated list of
// rebuild actions. The returned order is the execution order.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/incrbuild/internal/ctxlog"
	"github.com/specialistvlad/incrbuild/internal/graph"
	"github.com/specialistvlad/incrbuild/internal/model"
)

// DefaultMaxTriggers caps the trigger descriptions kept per dataset. Triggers
// explain a plan; they play no part in deciding it.
const DefaultMaxTriggers = 5

// Placeholders resolved in command templates.
const (
	SourceRootPlaceholder  = "{source_root}"
	ProjectRootPlaceholder = "{project_root}"
)

// Options controls planning.
type Options struct {
	SourceRoot  string
	ProjectRoot string
	// MaxTriggers caps triggers per dataset. Zero means DefaultMaxTriggers.
	MaxTriggers int
}

// Plan maps every new, changed and deleted file to its dataset, collects the
// artifacts of the affected datasets, orders them by (stage, name) and
// collapses artifacts that share a resolved command into one action.
func Plan(ctx context.Context, cs *model.ChangeSet, g graph.Graph, opts Options) []model.RebuildAction {
	logger := ctxlog.FromContext(ctx)
	if !cs.HasChanges() {
		logger.Info("No changes detected, nothing to rebuild.")
		return nil
	}

	maxTriggers := opts.MaxTriggers
	if maxTriggers <= 0 {
		maxTriggers = DefaultMaxTriggers
	}
	affected := collectTriggers(cs, maxTriggers)

	datasets := make([]string, 0, len(affected))
	for d := range affected {
		datasets = append(datasets, d)
	}
	sort.Strings(datasets)

	resolver := strings.NewReplacer(
		SourceRootPlaceholder, opts.SourceRoot,
		ProjectRootPlaceholder, opts.ProjectRoot,
	)

	seenArtifacts := map[string]struct{}{}
	var candidates []model.RebuildAction
	for _, dataset := range datasets {
		triggers := affected[dataset]
		if dataset == model.UnknownDataset {
			logger.Warn("Files matched no dataset pattern and cannot trigger a rebuild; extend the pattern table.",
				"files", len(triggers), "examples", triggers)
			continue
		}
		artifacts, ok := g.ArtifactsFor(dataset)
		if !ok {
			logger.Warn("No dependency mapping for dataset, skipping.", "dataset", dataset)
			continue
		}
		for _, a := range artifacts {
			if _, seen := seenArtifacts[a.Name]; seen {
				continue
			}
			seenArtifacts[a.Name] = struct{}{}
			candidates = append(candidates, model.RebuildAction{
				Artifact:    a.Name,
				Reason:      fmt.Sprintf("Dataset '%s' has changes", dataset),
				Stage:       a.Stage,
				Command:     resolver.Replace(a.CommandTemplate),
				TriggeredBy: append([]string(nil), triggers...),
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Stage != candidates[j].Stage {
			return candidates[i].Stage < candidates[j].Stage
		}
		return candidates[i].Artifact < candidates[j].Artifact
	})

	actions := dedupeByCommand(candidates)
	logger.Info("📋 Rebuild plan ready.",
		"commands", len(actions),
		"artifacts", len(seenArtifacts),
		"datasets", datasets,
	)
	return actions
}

// collectTriggers groups change descriptions by dataset tag.
func collectTriggers(cs *model.ChangeSet, max int) map[string][]string {
	affected := map[string][]string{}
	add := func(dataset, desc string) {
		list, ok := affected[dataset]
		if !ok {
			affected[dataset] = nil
		}
		if len(list) < max {
			affected[dataset] = append(list, desc)
		}
	}
	for _, f := range cs.New {
		add(f.Dataset, "NEW: "+f.RelPath)
	}
	for _, f := range cs.Changed {
		add(f.New.Dataset, "CHANGED: "+f.New.RelPath)
	}
	for _, f := range cs.Deleted {
		add(f.Dataset, "DELETED: "+f.RelPath)
	}
	return affected
}

// dedupeByCommand keeps the first action for every command and folds later
// ones into it.
func dedupeByCommand(actions []model.RebuildAction) []model.RebuildAction {
	index := map[string]int{}
	out := make([]model.RebuildAction, 0, len(actions))
	for _, a := range actions {
		if i, ok := index[a.Command]; ok {
			out[i].TriggeredBy = append(out[i].TriggeredBy, a.TriggeredBy...)
			out[i].Reason += "; also rebuilds " + a.Artifact
			continue
		}
		index[a.Command] = len(out)
		out = append(out, a)
	}
	return out
}

// Log prints the plan grouped by stage, with up to three triggers per action.
func Log(ctx context.Context, actions []model.RebuildAction, names model.StageNames) {
	logger := ctxlog.FromContext(ctx)
	if len(actions) == 0 {
		return
	}
	current := 0
	for _, a := range actions {
		if a.Stage != current {
			current = a.Stage
			logger.Info(fmt.Sprintf("--- Stage %d: %s ---", a.Stage, names.Name(a.Stage)))
		}
		shown := a.TriggeredBy
		if len(shown) > 3 {
			shown = shown[:3]
		}
		logger.Info("  "+a.Artifact,
			"reason", a.Reason,
			"command", a.Command,
			"triggers", shown,
			"more_triggers", len(a.TriggeredBy)-len(shown),
		)
	}
}

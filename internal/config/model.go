package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/specialistvlad/incrbuild/internal/classify"
	"github.com/specialistvlad/incrbuild/internal/graph"
	"github.com/specialistvlad/incrbuild/internal/model"
)

// DefaultTrackedExtensions are the source file types fingerprinted when a
// pipeline does not list its own.
var DefaultTrackedExtensions = []string{
	".xlsx", ".xls", ".csv", ".tsv", ".txt", ".pdf", ".zip", ".gz",
	".json", ".xml", ".html", ".htm", ".parquet", ".dat",
}

// Pipeline is the unified, format-agnostic representation of a pipeline
// definition.
type Pipeline struct {
	TrackedExtensions []string
	// CommandTimeout is zero when the pipeline leaves it to the executor.
	CommandTimeout time.Duration
	Stages         model.StageNames
	// Datasets keep declaration order; classification ties depend on it.
	Datasets []*Dataset
}

// Dataset is one `dataset` block.
type Dataset struct {
	Tag           string
	Patterns      []string
	ReferenceOnly bool
	Artifacts     []model.Artifact
	Source        *model.FSInfo
}

// Extensions returns the tracked extensions, lowercased, or the defaults.
func (p *Pipeline) Extensions() []string {
	if len(p.TrackedExtensions) == 0 {
		return append([]string(nil), DefaultTrackedExtensions...)
	}
	out := make([]string, 0, len(p.TrackedExtensions))
	for _, ext := range p.TrackedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// StageNames returns the declared stage names merged over the defaults.
func (p *Pipeline) StageNames() model.StageNames {
	names := model.DefaultStageNames()
	for n, name := range p.Stages {
		names[n] = name
	}
	return names
}

// Classifier builds the pattern table in declaration order.
func (p *Pipeline) Classifier() (*classify.Classifier, error) {
	var patterns []classify.Pattern
	for _, d := range p.Datasets {
		for _, s := range d.Patterns {
			patterns = append(patterns, classify.Pattern{Substring: s, Dataset: d.Tag})
		}
	}
	c, err := classify.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid dataset patterns: %w", err)
	}
	return c, nil
}

// Graph builds the dependency graph. A dataset with artifacts, or one marked
// reference-only, becomes a graph entry. A dataset with neither is tracked
// but unmapped, so changes to it are reported rather than silently ignored.
func (p *Pipeline) Graph() (*graph.Table, error) {
	var entries []graph.Entry
	for _, d := range p.Datasets {
		if len(d.Artifacts) == 0 && !d.ReferenceOnly {
			continue
		}
		if d.ReferenceOnly && len(d.Artifacts) > 0 {
			return nil, fmt.Errorf("%w: dataset %q is reference_only but declares %d artifacts (%s)",
				graph.ErrInvalidGraph, d.Tag, len(d.Artifacts), d.Source)
		}
		entries = append(entries, graph.Entry{Dataset: d.Tag, Artifacts: d.Artifacts, Source: d.Source})
	}
	return graph.New(entries)
}

// Dataset returns the dataset with the given tag, or nil.
func (p *Pipeline) Dataset(tag string) *Dataset {
	for _, d := range p.Datasets {
		if d.Tag == tag {
			return d
		}
	}
	return nil
}

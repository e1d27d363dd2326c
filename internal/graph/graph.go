package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/specialistvlad/incrbuild/internal/model"
)

// ErrInvalidGraph wraps every graph validation failure.
var ErrInvalidGraph = errors.New("invalid dependency graph")

// Entry is one dataset's list of artifacts as declared in configuration.
type Entry struct {
	Dataset   string
	Artifacts []model.Artifact
	Source    *model.FSInfo
}

// Table is an immutable, validated Graph.
type Table struct {
	entries map[string][]model.Artifact
}

// compile-time check
var _ Graph = (*Table)(nil)

// New validates the entries and builds a Table.
func New(entries []Entry) (*Table, error) {
	t := &Table{entries: make(map[string][]model.Artifact, len(entries))}
	owners := map[string]ownedArtifact{}

	for _, e := range entries {
		if e.Dataset == "" {
			return nil, fmt.Errorf("%w: dataset with empty tag in %s", ErrInvalidGraph, e.Source)
		}
		if _, dup := t.entries[e.Dataset]; dup {
			return nil, fmt.Errorf("%w: dataset %q declared twice (again in %s)", ErrInvalidGraph, e.Dataset, e.Source)
		}
		if err := validateEntry(e, owners); err != nil {
			return nil, err
		}
		list := make([]model.Artifact, len(e.Artifacts))
		copy(list, e.Artifacts)
		t.entries[e.Dataset] = list
	}
	return t, nil
}

// MustNew is like New but panics when the entries are invalid.
func MustNew(entries []Entry) *Table {
	t, err := New(entries)
	if err != nil {
		panic(err)
	}
	return t
}

type ownedArtifact struct {
	dataset  string
	artifact model.Artifact
}

func validateEntry(e Entry, owners map[string]ownedArtifact) error {
	lastStage := 0
	names := make(map[string]struct{}, len(e.Artifacts))
	for _, a := range e.Artifacts {
		switch {
		case a.Name == "":
			return fmt.Errorf("%w: dataset %q has an artifact without a name (%s)", ErrInvalidGraph, e.Dataset, e.Source)
		case a.CommandTemplate == "":
			return fmt.Errorf("%w: artifact %q of dataset %q has no command (%s)", ErrInvalidGraph, a.Name, e.Dataset, e.Source)
		case a.Stage < 1:
			return fmt.Errorf("%w: artifact %q of dataset %q has stage %d, stages start at 1 (%s)", ErrInvalidGraph, a.Name, e.Dataset, a.Stage, e.Source)
		case a.Stage < lastStage:
			return fmt.Errorf("%w: artifact %q of dataset %q has stage %d after stage %d (%s)", ErrInvalidGraph, a.Name, e.Dataset, a.Stage, lastStage, e.Source)
		}
		if _, dup := names[a.Name]; dup {
			return fmt.Errorf("%w: artifact %q listed twice for dataset %q (%s)", ErrInvalidGraph, a.Name, e.Dataset, e.Source)
		}
		names[a.Name] = struct{}{}
		lastStage = a.Stage

		if prev, seen := owners[a.Name]; seen && prev.artifact != a {
			return fmt.Errorf("%w: artifact %q differs between datasets %q and %q (%s)", ErrInvalidGraph, a.Name, prev.dataset, e.Dataset, e.Source)
		} else if !seen {
			owners[a.Name] = ownedArtifact{dataset: e.Dataset, artifact: a}
		}
	}
	return nil
}

// ArtifactsFor implements Graph. The returned slice is a copy.
func (t *Table) ArtifactsFor(dataset string) ([]model.Artifact, bool) {
	list, ok := t.entries[dataset]
	if !ok {
		return nil, false
	}
	out := make([]model.Artifact, len(list))
	copy(out, list)
	return out, true
}

// Datasets implements Graph.
func (t *Table) Datasets() []string {
	out := make([]string, 0, len(t.entries))
	for d := range t.entries {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ArtifactCount returns the number of distinct artifact names in the graph.
func (t *Table) ArtifactCount() int {
	seen := map[string]struct{}{}
	for _, list := range t.entries {
		for _, a := range list {
			seen[a.Name] = struct{}{}
		}
	}
	return len(seen)
}

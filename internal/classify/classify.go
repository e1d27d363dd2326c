// Package classify maps a source file's relative path to its canonical
// dataset tag.
//
// Classification is substring based: the pattern table is an explicit, ordered
// list of (substring, tag) pairs and the longest matching substring wins. The
// longest-match rule disambiguates patterns that contain one another, e.g. a
// dataset directory "LCA" and the reference-data path "DOL_Record_Layouts/LCA".
package classify

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/incrbuild/internal/model"
)

// Pattern is one entry of the classification table.
type Pattern struct {
	Substring string
	Dataset   string
}

// Classifier holds an immutable pattern table.
type Classifier struct {
	patterns []Pattern
}

// New builds a classifier from an ordered pattern table. Empty substrings and
// duplicate substrings are rejected: the first would match every path, the
// second would make the result depend on table order.
func New(patterns []Pattern) (*Classifier, error) {
	seen := make(map[string]string, len(patterns))
	table := make([]Pattern, 0, len(patterns))
	for i, p := range patterns {
		if p.Substring == "" {
			return nil, fmt.Errorf("pattern %d for dataset %q is empty", i, p.Dataset)
		}
		if p.Dataset == "" {
			return nil, fmt.Errorf("pattern %q has no dataset", p.Substring)
		}
		if prev, dup := seen[p.Substring]; dup {
			return nil, fmt.Errorf("pattern %q is declared for both %q and %q", p.Substring, prev, p.Dataset)
		}
		seen[p.Substring] = p.Dataset
		table = append(table, p)
	}
	return &Classifier{patterns: table}, nil
}

// MustNew is like New but panics on an invalid table.
func MustNew(patterns []Pattern) *Classifier {
	c, err := New(patterns)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the dataset tag of relPath, or model.UnknownDataset when no
// pattern occurs in it. Among matching patterns the longest one wins; on equal
// length the earlier table entry is kept.
func (c *Classifier) Classify(relPath string) string {
	best := model.UnknownDataset
	bestLen := 0
	for _, p := range c.patterns {
		if len(p.Substring) > bestLen && strings.Contains(relPath, p.Substring) {
			best = p.Dataset
			bestLen = len(p.Substring)
		}
	}
	return best
}

// Patterns returns a copy of the pattern table.
func (c *Classifier) Patterns() []Pattern {
	out := make([]Pattern, len(c.patterns))
	copy(out, c.patterns)
	return out
}

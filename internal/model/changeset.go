// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the ChangeSet produced by comparing a scan to a manifest.
//
// Unchanged files are only counted, never listed, so the size of a change set
// stays proportional to what actually changed even for very large corpora.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// ChangedFile pairs the manifest fingerprint of a file with its current one.
type ChangedFile struct {
	Old FileFingerprint
	New FileFingerprint
}

// ChangeSet is the transient result of one diff. A path appears in at most one
// of New, Changed and Deleted.
type ChangeSet struct {
	New            []FileFingerprint
	Changed        []ChangedFile
	Deleted        []FileFingerprint
	UnchangedCount int
}

// HasChanges reports whether anything was added, changed or deleted.
func (c *ChangeSet) HasChanges() bool {
	return c != nil && (len(c.New) > 0 || len(c.Changed) > 0 || len(c.Deleted) > 0)
}

// Total returns the number of new, changed and deleted files.
func (c *ChangeSet) Total() int {
	if c == nil {
		return 0
	}
	return len(c.New) + len(c.Changed) + len(c.Deleted)
}

// Summary renders a one-line description such as
// "2 new, 1 deleted (40 unchanged)".
func (c *ChangeSet) Summary() string {
	if c == nil {
		return "No changes"
	}
	var parts []string
	if n := len(c.New); n > 0 {
		parts = append(parts, fmt.Sprintf("%d new", n))
	}
	if n := len(c.Changed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d changed", n))
	}
	if n := len(c.Deleted); n > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", n))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("No changes (%d files unchanged)", c.UnchangedCount)
	}
	return fmt.Sprintf("%s (%d unchanged)", strings.Join(parts, ", "), c.UnchangedCount)
}

// NewDatasets returns the sorted, distinct dataset tags of new files.
func (c *ChangeSet) NewDatasets() []string {
	tags := make([]string, 0, len(c.New))
	for _, f := range c.New {
		tags = append(tags, f.Dataset)
	}
	return distinctSorted(tags)
}

// ChangedDatasets returns the sorted, distinct dataset tags of changed files.
func (c *ChangeSet) ChangedDatasets() []string {
	tags := make([]string, 0, len(c.Changed))
	for _, f := range c.Changed {
		tags = append(tags, f.New.Dataset)
	}
	return distinctSorted(tags)
}

// DeletedDatasets returns the sorted, distinct dataset tags of deleted files.
func (c *ChangeSet) DeletedDatasets() []string {
	tags := make([]string, 0, len(c.Deleted))
	for _, f := range c.Deleted {
		tags = append(tags, f.Dataset)
	}
	return distinctSorted(tags)
}

func distinctSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Manifest, the persisted fingerprint set.
//
// A saved manifest is a promise: the corpus it describes has already been
// materialized downstream. It is therefore loaded once at the start of a run
// and replaced wholesale at the end of a successful one. It is never patched
// in place.
package model

import (
	"sort"
	"time"
)

// Manifest is the snapshot of fingerprints as of the last successful build.
type Manifest struct {
	SavedAt    time.Time                  `json:"saved_at"`
	SourceRoot string                     `json:"source_root"`
	FileCount  int                        `json:"file_count"`
	Files      map[string]FileFingerprint `json:"files"`
}

// NewManifest builds a manifest for the given scan result. FileCount is
// derived from files.
func NewManifest(sourceRoot string, files map[string]FileFingerprint, savedAt time.Time) *Manifest {
	if files == nil {
		files = map[string]FileFingerprint{}
	}
	return &Manifest{
		SavedAt:    savedAt.UTC(),
		SourceRoot: sourceRoot,
		FileCount:  len(files),
		Files:      files,
	}
}

// EmptyManifest is the manifest of a first run: every scanned file is new.
func EmptyManifest() *Manifest {
	return &Manifest{Files: map[string]FileFingerprint{}}
}

// IsEmpty reports whether the manifest describes no files.
func (m *Manifest) IsEmpty() bool {
	return m == nil || len(m.Files) == 0
}

// Paths returns the manifest's relative paths in sorted order.
func (m *Manifest) Paths() []string {
	if m == nil {
		return nil
	}
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

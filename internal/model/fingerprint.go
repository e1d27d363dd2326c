// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the FileFingerprint, the unit of change detection.
//
// Why size and mtime instead of content?
//
// The corpus is large and hashing every byte on every run is too slow. Size and
// modification time come for free with a directory walk; the SHA-256 is only
// computed on request, to confirm that a file flagged by size/mtime really
// changed instead of merely being touched.
package model

import (
	"math"
	"time"
)

// UnknownDataset is the dataset tag of a file that matched no pattern.
const UnknownDataset = "UNKNOWN"

// FileFingerprint summarizes one tracked source file. RelPath is its identity:
// it is unique within a scan and within a manifest.
type FileFingerprint struct {
	RelPath string  `json:"rel_path"`
	Size    int64   `json:"size"`
	MTime   float64 `json:"mtime"`
	SHA256  *string `json:"sha256"`
	Dataset string  `json:"dataset"`
}

// ModTime returns MTime as a time.Time.
func (f FileFingerprint) ModTime() time.Time {
	sec, frac := math.Modf(f.MTime)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// HasHash reports whether a content hash has been recorded.
func (f FileFingerprint) HasHash() bool {
	return f.SHA256 != nil && *f.SHA256 != ""
}

// WithHash returns a copy of f carrying the given content hash.
func (f FileFingerprint) WithHash(sum string) FileFingerprint {
	f.SHA256 = &sum
	return f
}

// UnixSeconds converts a modification time into the float representation
// stored in manifests.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

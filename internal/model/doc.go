// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model provides the plain Go data types that flow through an
// incremental rebuild: fingerprints of source files, the persisted manifest,
// the change set computed between two scans, the dependency-graph artifacts
// and the rebuild actions derived from them.
//
// # Core Concepts
//
//   - FileFingerprint: a lightweight per-file summary (path, size, mtime and an
//     optional content hash) used to detect changes without re-reading every
//     file on every run.
//
//   - Manifest: the snapshot of fingerprints that describes the source corpus
//     as of the last fully successful build.
//
//   - ChangeSet: the transient diff between the manifest and a fresh scan.
//
//   - Artifact / RebuildAction: a downstream output declared in the pipeline,
//     and one planned, deduplicated command that rebuilds it.
//
// Why a separate model package?
//
// Every stage of the pipeline (scan, diff, plan, execute, commit) consumes the
// output of the previous one. Keeping the types in a leaf package lets each
// stage be tested in isolation with hand-built values, and keeps the manifest
// an explicit value passed between stages instead of process-wide state.
package model

// Package graph provides the static dependency graph that maps a dataset tag
// to the downstream artifacts that must be rebuilt when any of its files
// change.
//
// # Why Graph Package Exists
//
// The planner should not care where the graph came from (an HCL pipeline file,
// the embedded default, a hand-built test fixture). The Graph interface is the
// only thing it sees, and Table is the validated, read-only implementation the
// loader produces.
//
// # Shape
//
//	dataset tag ──► [ (artifact, stage, command template), ... ]
//
//	PERM ──► fact_perm/ (1) ──► employer_features.parquet (2) ──► ...
//	LCA  ──► fact_lca/  (1) ──► soc_demand_metrics.parquet (4)
//
// An artifact may appear under several tags (fan-in). The planner keeps the
// first occurrence and later collapses actions that share a command.
//
// # Invariants
//
//   - Stages are integers starting at 1 and never decrease within one tag's list.
//   - Artifact names and command templates are non-empty.
//   - An artifact that appears under several tags has the same stage and
//     command template everywhere, so which tag "owns" it never changes the plan.
//   - A tag present with an empty list is a reference-only dataset: it is
//     tracked but intentionally rebuilds nothing. A tag that is absent is not
//     wired yet, and the planner warns about it.
package graph

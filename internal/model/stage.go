// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines pipeline stage naming.
//
// Stages are plain integers starting at 1; lower stages (curation) always run
// before higher ones (features, models, derived metrics). Names exist only to
// make plans and logs readable.
package model

// StageNames maps a stage number to a display name.
type StageNames map[int]string

// DefaultStageNames are the stages of the curated-table pipeline.
func DefaultStageNames() StageNames {
	return StageNames{
		1: "CURATE",
		2: "FEATURES",
		3: "MODELS",
		4: "DERIVED",
	}
}

// Name returns the display name of a stage, or "?" when it has none.
func (s StageNames) Name(stage int) string {
	if name, ok := s[stage]; ok && name != "" {
		return name
	}
	return "?"
}

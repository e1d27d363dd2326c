// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the dependency-graph artifact and the rebuild action.
//
// Why two types?
//
// An Artifact is static configuration: "this output, at this stage, is rebuilt
// by this command template". A RebuildAction is what one run decided to do
// about it: the template resolved against the current source root, the reason
// and the files that triggered it. Several artifacts produced by one script
// collapse into a single action.
package model

import "fmt"

// Artifact is one downstream output reachable from a dataset tag.
type Artifact struct {
	Name            string
	Stage           int
	CommandTemplate string
}

// RebuildAction is one planned unit of work. Command is unique within a plan.
type RebuildAction struct {
	Artifact    string
	Reason      string
	Stage       int
	Command     string
	TriggeredBy []string
}

// String renders the action for logs.
func (a RebuildAction) String() string {
	return fmt.Sprintf("stage %d %s: %s", a.Stage, a.Artifact, a.Command)
}

package executor

import "github.com/specialistvlad/incrbuild/internal/model"

// Outcome classifies how an action ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeDryRun    Outcome = "dry_run"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// Succeeded reports whether the outcome counts as success for the commit
// decision.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSuccess || o == OutcomeDryRun
}

// ActionOutcome pairs an action with what happened to it.
type ActionOutcome struct {
	Action  model.RebuildAction
	Outcome Outcome
	Result  RunResult
	Err     error
}

// Report is the result of one Execute call, in plan order.
type Report struct {
	DryRun   bool
	Outcomes []ActionOutcome
}

// Results maps each command to whether it succeeded.
func (r *Report) Results() map[string]bool {
	out := make(map[string]bool, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out[o.Action.Command] = o.Outcome.Succeeded()
	}
	return out
}

// AllSucceeded reports whether every action succeeded. An empty report
// succeeds.
func (r *Report) AllSucceeded() bool {
	return r.Failed() == 0
}

func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Outcome.Succeeded() {
			n++
		}
	}
	return n
}

func (r *Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// FailedActions returns the actions that did not succeed.
func (r *Report) FailedActions() []ActionOutcome {
	var out []ActionOutcome
	for _, o := range r.Outcomes {
		if !o.Outcome.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

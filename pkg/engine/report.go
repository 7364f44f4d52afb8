package engine

import (
	"time"

	"github.com/promptcheck/promptcheck/pkg/resolve"
	"github.com/promptcheck/promptcheck/pkg/score"
)

// State tracks the lifecycle of a run.
type State string

const (
	StatePending    State = "pending"
	StateResolving  State = "resolving"
	StateFiltering  State = "filtering"
	StateExecuting  State = "executing"
	StateAggregated State = "aggregated"
	StateFailed     State = "failed"
)

// TestStatus classifies a resolved test in the report.
type TestStatus string

const (
	// TestExecuted means the test passed filtering; per-model outcomes
	// are in its Results.
	TestExecuted TestStatus = "executed"
	// TestWouldRun marks a test that passed filtering during a dry run.
	TestWouldRun TestStatus = "would_run"
	// TestSkipped marks a resolution-time skip. Skipped tests never reach
	// condition evaluation or dispatch.
	TestSkipped TestStatus = "skipped"
	// TestFiltered marks a test whose condition did not hold.
	TestFiltered TestStatus = "filtered"
	// TestUnreachable marks a test whose merged condition can never hold.
	TestUnreachable TestStatus = "unreachable"
)

// ModelStatus classifies one (test, model) execution.
type ModelStatus string

const (
	ModelPassed   ModelStatus = "passed"
	ModelFailed   ModelStatus = "failed"
	ModelErrored  ModelStatus = "errored"
	ModelTimedOut ModelStatus = "timed_out"
	ModelCanceled ModelStatus = "canceled"
)

// ModelResult is the outcome of evaluating one test against one model.
type ModelResult struct {
	Model    string        `json:"model"`
	Status   ModelStatus   `json:"status"`
	Score    float64       `json:"score"`
	Pass     bool          `json:"pass"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// TestReport is the per-test entry of the run report. Every resolved test
// appears here, including skipped and filtered ones; only executed results
// feed aggregation.
type TestReport struct {
	Name    string        `json:"name"`
	Origin  string        `json:"origin"`
	Status  TestStatus    `json:"status"`
	Reason  string        `json:"reason,omitempty"`
	Weight  float64       `json:"weight"`
	Results []ModelResult `json:"results,omitempty"`
}

// SuiteReport groups test reports under their top-level suite with the
// suite's per-model aggregates and cross-model summary.
type SuiteReport struct {
	Name     string                     `json:"name"`
	Tests    []TestReport               `json:"tests"`
	PerModel map[string]score.Aggregate `json:"per_model,omitempty"`
	Summary  score.Aggregate            `json:"summary"`
}

// Report is the structured output of a run.
type Report struct {
	State     State             `json:"state"`
	Scope     string            `json:"scope"`
	DryRun    bool              `json:"dry_run,omitempty"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time"`
	Duration  time.Duration     `json:"duration"`
	Suites    []SuiteReport     `json:"suites"`
	Warnings  []resolve.Warning `json:"warnings,omitempty"`
}

// Summary returns the cross-suite, cross-model aggregate: the unweighted
// mean over each suite's defined summary.
func (r *Report) Summary() score.Aggregate {
	perSuite := make(map[string]score.Aggregate, len(r.Suites))
	for _, s := range r.Suites {
		perSuite[s.Name] = s.Summary
	}
	return score.CrossModel(perSuite)
}

// Package engine orchestrates a test run: it expands suites into resolved
// tests, filters them by condition against the active scope, dispatches
// evaluations across a bounded worker pool, and aggregates scores. The
// engine consumes already-parsed configuration and a generate callback; it
// reads no files and calls no model APIs itself.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/promptcheck/promptcheck/pkg/condition"
	"github.com/promptcheck/promptcheck/pkg/evaluator"
	"github.com/promptcheck/promptcheck/pkg/registry"
	"github.com/promptcheck/promptcheck/pkg/resolve"
	"github.com/promptcheck/promptcheck/pkg/score"
	"github.com/promptcheck/promptcheck/pkg/suite"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Generator produces the model output for one (test, model) pair. It is
// the engine's only suspension point and may block on external I/O;
// implementations must honor ctx.
type Generator func(ctx context.Context, test resolve.ResolvedTest, model string) (string, error)

// Options configures a run. Catalog, Models, and Evaluators are read-only
// for the duration of the run and shared across workers.
type Options struct {
	Catalog    resolve.Catalog
	Defaults   resolve.Defaults
	Models     *registry.Models
	Evaluators *evaluator.Registry
	Generate   Generator

	// Scope is the active execution scope name.
	Scope string
	// Env is the environment snapshot conditions are evaluated against.
	Env map[string]string
	// AvailableModels restricts which registered models are reachable in
	// this run. Nil means all registered models.
	AvailableModels []string
	// DefaultModels is the selector applied to tests that declare none.
	// Empty falls back to "*".
	DefaultModels []string

	// Concurrency bounds the worker pool. Default 4.
	Concurrency int
	// Timeout applies per evaluation. Default 60s.
	Timeout time.Duration
	// DryRun resolves and filters without dispatching evaluations.
	DryRun bool

	Logger *zap.Logger
}

// Engine runs suites against the configured scope and models.
type Engine struct {
	opts  Options
	state State
}

// New creates an Engine. Zero-valued options get their defaults filled in.
func New(opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{opts: opts, state: StatePending}
}

// State returns the engine's current run state.
func (e *Engine) State() State { return e.state }

// job is one (test, model) evaluation unit. Results are written back by
// index so report ordering follows declaration order, not completion order.
type job struct {
	suiteIdx int
	testIdx  int
	modelIdx int
	test     resolve.ResolvedTest
	model    string
}

// Run executes the given suites and returns the structured report.
// Composition errors abort before any evaluation and leave the engine in
// StateFailed. Execution errors are captured per (test, model) pair; the
// run itself still succeeds. Cancelling ctx stops in-flight evaluations
// but preserves completed results in the report.
func (e *Engine) Run(ctx context.Context, suites []*suite.TestSuite) (*Report, error) {
	report := &Report{
		State:     StatePending,
		Scope:     e.opts.Scope,
		DryRun:    e.opts.DryRun,
		StartTime: time.Now(),
	}

	// Resolving.
	e.state = StateResolving
	resolver := resolve.NewResolver(e.opts.Catalog, e.opts.Defaults)
	resolved := make([][]resolve.ResolvedTest, len(suites))
	for i, s := range suites {
		tests, warnings, err := resolver.ResolveSuite(s)
		if err != nil {
			e.state = StateFailed
			report.State = StateFailed
			return report, fmt.Errorf("resolving suite %q: %w", s.Name, err)
		}
		resolved[i] = tests
		report.Warnings = append(report.Warnings, warnings...)
	}

	// Filtering.
	e.state = StateFiltering
	available := e.opts.AvailableModels
	if available == nil && e.opts.Models != nil {
		available = e.opts.Models.All()
	}
	condCtx := condition.NewContext(e.opts.Scope, e.opts.Env, available)

	var jobs []job
	for i, s := range suites {
		sr := SuiteReport{Name: s.Name, Tests: make([]TestReport, len(resolved[i]))}
		for j, rt := range resolved[i] {
			tr := TestReport{Name: rt.Name, Origin: rt.Origin, Weight: rt.Weight}

			switch {
			case !rt.Runs:
				tr.Status = TestSkipped
				tr.Reason = rt.SkipReason
			case rt.Unreachable:
				tr.Status = TestUnreachable
				tr.Reason = rt.UnreachableReason
			default:
				ok, reason := condition.Evaluate(rt.Condition, condCtx)
				if !ok {
					tr.Status = TestFiltered
					tr.Reason = reason
					break
				}

				models, err := e.expandModels(rt.Models)
				if err != nil {
					e.state = StateFailed
					report.State = StateFailed
					return report, fmt.Errorf("suite %q, test %q: %w", s.Name, rt.Name, err)
				}

				if e.opts.DryRun {
					tr.Status = TestWouldRun
					tr.Reason = reason
					for _, m := range models {
						tr.Results = append(tr.Results, ModelResult{Model: m})
					}
					break
				}

				tr.Status = TestExecuted
				tr.Results = make([]ModelResult, len(models))
				for k, m := range models {
					tr.Results[k] = ModelResult{Model: m}
					jobs = append(jobs, job{suiteIdx: i, testIdx: j, modelIdx: k, test: rt, model: m})
				}
			}
			sr.Tests[j] = tr
		}
		report.Suites = append(report.Suites, sr)
	}

	// Executing.
	if !e.opts.DryRun && len(jobs) > 0 {
		e.state = StateExecuting
		e.opts.Logger.Debug("executing evaluations",
			zap.Int("jobs", len(jobs)),
			zap.Int("concurrency", e.opts.Concurrency))

		g := &errgroup.Group{}
		g.SetLimit(e.opts.Concurrency)
		for _, jb := range jobs {
			jb := jb
			g.Go(func() error {
				result := e.runJob(ctx, jb)
				report.Suites[jb.suiteIdx].Tests[jb.testIdx].Results[jb.modelIdx] = result
				return nil
			})
		}
		// Workers never return errors; failures are per-result.
		_ = g.Wait()
	}

	// Aggregated.
	for i := range report.Suites {
		aggregate(&report.Suites[i])
	}
	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)

	if err := ctx.Err(); err != nil {
		// Partial report: completed results stay intact.
		report.State = StateFailed
		e.state = StateFailed
		return report, err
	}

	e.state = StateAggregated
	report.State = StateAggregated
	return report, nil
}

// expandModels resolves a test's model selector, applying the system
// default selector and the "*" fallback for tests that declare none.
func (e *Engine) expandModels(selector []string) ([]string, error) {
	if len(selector) == 0 {
		selector = e.opts.DefaultModels
	}
	if len(selector) == 0 {
		selector = []string{"*"}
	}
	if e.opts.Models == nil {
		return nil, errors.New("no model registry configured")
	}
	return e.opts.Models.Expand(selector)
}

// runJob evaluates one (test, model) pair under the per-evaluation timeout.
func (e *Engine) runJob(ctx context.Context, jb job) ModelResult {
	start := time.Now()
	mr := ModelResult{Model: jb.model}

	if err := ctx.Err(); err != nil {
		mr.Status = ModelCanceled
		mr.Error = err.Error()
		return mr
	}

	jobCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	mr = e.evaluate(jobCtx, jb)
	mr.Duration = time.Since(start)

	// Distinguish this job hitting its deadline from the whole run being
	// cancelled.
	if mr.Status == ModelErrored && jobCtx.Err() != nil {
		if ctx.Err() != nil {
			mr.Status = ModelCanceled
		} else {
			mr.Status = ModelTimedOut
			mr.TimedOut = true
			mr.Score = 0
			mr.Pass = false
			mr.Reason = fmt.Sprintf("evaluation exceeded %s", e.opts.Timeout)
		}
	}

	e.opts.Logger.Debug("evaluation finished",
		zap.String("test", jb.test.Name),
		zap.String("model", jb.model),
		zap.String("status", string(mr.Status)),
		zap.Float64("score", mr.Score))
	return mr
}

func (e *Engine) evaluate(ctx context.Context, jb job) ModelResult {
	mr := ModelResult{Model: jb.model}

	ev, err := e.opts.Evaluators.Dispatch(jb.test.Eval.Method, jb.test.Eval.Params)
	if err != nil {
		mr.Status = ModelErrored
		mr.Error = err.Error()
		return mr
	}

	if e.opts.Generate == nil {
		mr.Status = ModelErrored
		mr.Error = "no generator configured"
		return mr
	}
	output, err := e.opts.Generate(ctx, jb.test, jb.model)
	if err != nil {
		mr.Status = ModelErrored
		mr.Error = fmt.Sprintf("generating output: %v", err)
		return mr
	}

	result, err := ev.Evaluate(ctx, evaluator.Input{
		Output: output,
		Expect: jb.test.Expect.ForModel(jb.model),
		Vars:   jb.test.Input,
		Model:  jb.model,
	})
	if err != nil {
		mr.Status = ModelErrored
		mr.Error = err.Error()
		return mr
	}

	mr.Score = result.Score
	mr.Pass = result.Pass
	mr.Reason = result.Reason
	if result.Pass {
		mr.Status = ModelPassed
	} else {
		mr.Status = ModelFailed
	}
	return mr
}

// aggregate fills a suite report's per-model aggregates and cross-model
// summary from its executed results. Skipped, filtered, and unreachable
// tests contribute nothing; errored and timed-out results count as score 0.
func aggregate(sr *SuiteReport) {
	byModel := make(map[string][]score.Sample)
	for _, tr := range sr.Tests {
		if tr.Status != TestExecuted {
			continue
		}
		for _, mr := range tr.Results {
			if mr.Status == ModelCanceled {
				continue
			}
			byModel[mr.Model] = append(byModel[mr.Model], score.Sample{Score: mr.Score, Weight: tr.Weight})
		}
	}
	if len(byModel) == 0 {
		return
	}
	sr.PerModel = score.PerModel(byModel)
	sr.Summary = score.CrossModel(sr.PerModel)
}

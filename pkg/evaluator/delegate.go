package evaluator

import (
	"context"
	"fmt"
)

// delegatingEvaluator backs the semantic and api methods. It forwards the
// output, expectations, and merged parameters to the injected Scorer and
// converts the returned score into a result using the "threshold"
// parameter (default 0.5).
type delegatingEvaluator struct {
	method    string
	scorer    Scorer
	params    map[string]any
	threshold float64
}

func newDelegating(method string, scorer Scorer) Factory {
	return func(params map[string]any) (Evaluator, error) {
		if scorer == nil {
			return nil, fmt.Errorf("%s evaluation requires a scorer, none configured", method)
		}
		threshold, err := floatParam(params, "threshold", 0.5)
		if err != nil {
			return nil, err
		}
		return &delegatingEvaluator{method: method, scorer: scorer, params: params, threshold: threshold}, nil
	}
}

func (e *delegatingEvaluator) Name() string { return e.method }

func (e *delegatingEvaluator) Evaluate(ctx context.Context, input Input) (Result, error) {
	score, reason, err := e.scorer.Score(ctx, ScoreRequest{
		Method: e.method,
		Output: input.Output,
		Expect: input.Expect,
		Vars:   input.Vars,
		Model:  input.Model,
		Params: e.params,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s scorer: %w", e.method, err)
	}
	if score < 0 || score > 1 {
		return Result{}, fmt.Errorf("%s scorer returned score %v outside [0,1]", e.method, score)
	}
	return Result{Pass: score >= e.threshold, Score: score, Reason: reason}, nil
}

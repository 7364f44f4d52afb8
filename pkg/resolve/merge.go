package resolve

import "github.com/promptcheck/promptcheck/pkg/suite"

// mergeEvals folds eval specs lowest precedence first into one effective
// spec. A non-empty method replaces the accumulated method wholesale;
// params merge key by key with later specs winning on conflict. Input
// specs are never modified.
func mergeEvals(specs ...*suite.EvalSpec) suite.EvalSpec {
	out := suite.EvalSpec{Params: make(map[string]any)}
	for _, sp := range specs {
		if sp == nil {
			continue
		}
		if sp.Method != "" {
			out.Method = sp.Method
		}
		for k, v := range sp.Params {
			out.Params[k] = v
		}
	}
	return out
}

// mergeEvalPtrs merges two optional specs into an optional spec, preserving
// absence when both sides are absent.
func mergeEvalPtrs(base, overlay *suite.EvalSpec) *suite.EvalSpec {
	if base == nil {
		return overlay
	}
	if overlay == nil {
		return base
	}
	merged := mergeEvals(base, overlay)
	return &merged
}

// pickWeight applies the weight precedence: test-level, then container,
// then 1.0. Weights are selected, never combined arithmetically.
func pickWeight(test, container *float64) float64 {
	if test != nil {
		return *test
	}
	if container != nil {
		return *container
	}
	return 1.0
}

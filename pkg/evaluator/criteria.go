package evaluator

import (
	"context"
	"fmt"
	"strings"
)

// criteriaEvaluator checks that each expectation string appears in the
// model output. The score is the fraction of criteria found; the test
// passes when the score reaches "min_score" (default 1.0, every criterion
// required). "case_sensitive" disables the default case folding.
type criteriaEvaluator struct {
	minScore      float64
	caseSensitive bool
}

func newCriteria(params map[string]any) (Evaluator, error) {
	minScore, err := floatParam(params, "min_score", 1.0)
	if err != nil {
		return nil, err
	}
	if minScore < 0 || minScore > 1 {
		return nil, fmt.Errorf("parameter \"min_score\" must be in [0,1], got %v", minScore)
	}
	caseSensitive, err := boolParam(params, "case_sensitive")
	if err != nil {
		return nil, err
	}
	return &criteriaEvaluator{minScore: minScore, caseSensitive: caseSensitive}, nil
}

func (e *criteriaEvaluator) Name() string { return "criteria" }

func (e *criteriaEvaluator) Evaluate(_ context.Context, input Input) (Result, error) {
	if len(input.Expect) == 0 {
		return Result{Pass: true, Score: 1.0, Reason: "no criteria declared"}, nil
	}

	output := input.Output
	if !e.caseSensitive {
		output = strings.ToLower(output)
	}

	matched := 0
	var missing []string
	for _, criterion := range input.Expect {
		needle := criterion
		if !e.caseSensitive {
			needle = strings.ToLower(needle)
		}
		if strings.Contains(output, needle) {
			matched++
		} else {
			missing = append(missing, criterion)
		}
	}

	score := float64(matched) / float64(len(input.Expect))
	if score >= e.minScore {
		return Result{
			Pass:   true,
			Score:  score,
			Reason: fmt.Sprintf("%d of %d criteria met", matched, len(input.Expect)),
		}, nil
	}
	return Result{
		Pass:   false,
		Score:  score,
		Reason: fmt.Sprintf("%d of %d criteria met, missing %q", matched, len(input.Expect), missing),
	}, nil
}

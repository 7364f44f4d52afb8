package evaluator

import (
	"context"
	"fmt"
	"regexp"
)

// regexEvaluator matches model output against regular expression patterns.
// Patterns come from the "pattern" parameter or, when absent, from the test
// case's expectation strings. All patterns must match for a pass; the score
// is the fraction that matched.
type regexEvaluator struct {
	patterns []*regexp.Regexp
}

func newRegex(params map[string]any) (Evaluator, error) {
	pattern, err := stringParam(params, "pattern")
	if err != nil {
		return nil, err
	}
	ev := &regexEvaluator{}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
		}
		ev.patterns = []*regexp.Regexp{re}
	}
	return ev, nil
}

func (e *regexEvaluator) Name() string { return "regex" }

func (e *regexEvaluator) Evaluate(_ context.Context, input Input) (Result, error) {
	patterns := e.patterns
	if len(patterns) == 0 {
		for _, expr := range input.Expect {
			re, err := regexp.Compile(expr)
			if err != nil {
				return Result{}, fmt.Errorf("invalid regex pattern %q: %w", expr, err)
			}
			patterns = append(patterns, re)
		}
	}
	if len(patterns) == 0 {
		return Result{Pass: true, Score: 1.0, Reason: "no patterns to match"}, nil
	}

	matched := 0
	var firstMiss string
	for _, re := range patterns {
		if re.MatchString(input.Output) {
			matched++
		} else if firstMiss == "" {
			firstMiss = re.String()
		}
	}

	score := float64(matched) / float64(len(patterns))
	if matched == len(patterns) {
		return Result{Pass: true, Score: score, Reason: fmt.Sprintf("all %d patterns matched", len(patterns))}, nil
	}
	return Result{
		Pass:   false,
		Score:  score,
		Reason: fmt.Sprintf("%d of %d patterns matched; first miss: %q", matched, len(patterns), firstMiss),
	}, nil
}

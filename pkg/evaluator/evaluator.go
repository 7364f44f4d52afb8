// Package evaluator defines the evaluation interface and the
// dependency-injected registry that maps resolved method names to
// evaluator instances. Scoring logic for semantic and API methods is
// delegated to a pluggable Scorer; the engine never talks to a model
// provider directly.
package evaluator

import (
	"context"
	"fmt"
)

// Input provides everything an evaluator needs to score one model output.
type Input struct {
	// Output is the rendered model output under evaluation.
	Output string `json:"output"`
	// Expect holds the expectation strings applying to this model. May be
	// empty; each evaluator decides what that means.
	Expect []string `json:"expect,omitempty"`
	// Vars are the test case input variables, for evaluators that need
	// the original context.
	Vars map[string]any `json:"vars,omitempty"`
	// Model names the target model the output came from.
	Model string `json:"model,omitempty"`
}

// Result captures the outcome of one evaluation.
type Result struct {
	Pass   bool    `json:"pass"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Evaluator scores a model output against a test case's expectations.
type Evaluator interface {
	// Evaluate scores the output. It may block on external I/O and must
	// honor ctx cancellation.
	Evaluate(ctx context.Context, input Input) (Result, error)

	// Name returns the method identifier.
	Name() string
}

// Scorer is the external scoring callback backing the semantic and api
// methods. Implementations typically call an LLM or scoring service.
type Scorer interface {
	// Score returns a score in [0,1] and a reason for the given request.
	Score(ctx context.Context, req ScoreRequest) (float64, string, error)
}

// ScoreRequest is the payload handed to a Scorer.
type ScoreRequest struct {
	Method string         `json:"method"`
	Output string         `json:"output"`
	Expect []string       `json:"expect,omitempty"`
	Vars   map[string]any `json:"vars,omitempty"`
	Model  string         `json:"model,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, req ScoreRequest) (float64, string, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, req ScoreRequest) (float64, string, error) {
	return f(ctx, req)
}

// stringParam reads an optional string parameter.
func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string, got %T", key, v)
	}
	return s, nil
}

// floatParam reads an optional numeric parameter with a default.
func floatParam(params map[string]any, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number, got %T", key, v)
	}
}

// boolParam reads an optional boolean parameter.
func boolParam(params map[string]any, key string) (bool, error) {
	v, ok := params[key]
	if !ok {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q must be a bool, got %T", key, v)
	}
	return b, nil
}

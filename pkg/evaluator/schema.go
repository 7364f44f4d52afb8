package evaluator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaEvaluator validates that model output is JSON conforming to the
// JSON Schema given in the "schema" parameter. The schema is compiled at
// construction so a bad schema fails dispatch, not every evaluation.
type schemaEvaluator struct {
	schema *jsonschema.Schema
}

func newSchema(params map[string]any) (Evaluator, error) {
	raw, err := stringParam(params, "schema")
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("schema evaluation requires a \"schema\" parameter")
	}

	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("invalid JSON schema: %w", err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling JSON schema: %w", err)
	}
	return &schemaEvaluator{schema: sch}, nil
}

func (e *schemaEvaluator) Name() string { return "schema" }

func (e *schemaEvaluator) Evaluate(_ context.Context, input Input) (Result, error) {
	var v any
	if err := json.Unmarshal([]byte(input.Output), &v); err != nil {
		return Result{Score: 0.0, Reason: fmt.Sprintf("output is not valid JSON: %v", err)}, nil
	}

	if err := e.schema.Validate(v); err != nil {
		return Result{Score: 0.0, Reason: fmt.Sprintf("output does not match schema: %v", err)}, nil
	}
	return Result{Pass: true, Score: 1.0, Reason: "output matches JSON schema"}, nil
}

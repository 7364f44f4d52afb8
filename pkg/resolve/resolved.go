package resolve

import (
	"github.com/promptcheck/promptcheck/pkg/condition"
	"github.com/promptcheck/promptcheck/pkg/suite"
)

// OriginInline marks a test declared directly inside its container.
const OriginInline = "inline"

// ResolvedTest is the effective configuration of one test case after the
// full merge: system defaults, shared definition, container defaults, and
// test-level overrides. It is a standalone value; resolution never mutates
// the suites or cases it was derived from.
type ResolvedTest struct {
	// Name is the test case name, unique within its defining scope.
	Name string
	// Suite is the name of the top-level suite the test was resolved from.
	Suite string
	// Origin is OriginInline for inline tests, or the reference chain
	// ("shared/common#greeting") for referenced ones.
	Origin string

	Input  map[string]any
	Expect suite.Expectation
	Models []string

	Condition *condition.Condition
	Eval      suite.EvalSpec
	Weight    float64

	// Runs is false when the test was skipped at resolution time. A
	// skipped test never reaches condition evaluation or dispatch.
	Runs       bool
	SkipReason string

	// Unreachable flags a condition whose AND-merged scope constraints
	// have an empty intersection: the test can never run in any scope.
	Unreachable       bool
	UnreachableReason string
}

// Warning is a non-fatal finding recorded during resolution.
type Warning struct {
	Suite  string
	Test   string
	Detail string
}

func (w Warning) String() string {
	return w.Suite + "/" + w.Test + ": " + w.Detail
}

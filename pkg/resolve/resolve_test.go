package resolve

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/promptcheck/promptcheck/pkg/condition"
	"github.com/promptcheck/promptcheck/pkg/suite"
)

// memCatalog is a test Catalog over in-memory suites keyed by source.
type memCatalog struct {
	suites map[string]*suite.TestSuite
}

func (m *memCatalog) Suite(name string) (*suite.TestSuite, bool) {
	for _, s := range m.suites {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

func (m *memCatalog) TestCase(source, name string) (*suite.TestCase, bool) {
	s, ok := m.suites[source]
	if !ok {
		return nil, false
	}
	for i := range s.Cases {
		if s.Cases[i].DisplayName() == name {
			return &s.Cases[i], true
		}
	}
	return nil, false
}

func fptr(f float64) *float64 { return &f }

func defaults() Defaults {
	return Defaults{Eval: &suite.EvalSpec{Method: "criteria", Params: map[string]any{"min_score": 1.0}}}
}

func TestResolveInline_InheritsContainerDefaults(t *testing.T) {
	s := &suite.TestSuite{
		Name:       "root",
		Weight:     fptr(3.0),
		EvalMethod: "regex",
		EvalConfig: map[string]any{"pattern": "^ok"},
		When:       &condition.Condition{Scope: []string{"ci"}},
		Cases: []suite.TestCase{
			{Name: "plain"},
			{Name: "tuned", Weight: fptr(0.5), EvalConfig: map[string]any{"min_score": 0.7}},
		},
	}

	r := NewResolver(&memCatalog{}, defaults())
	tests, warnings, err := r.ResolveSuite(s)
	if err != nil {
		t.Fatalf("ResolveSuite() error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v, want none", warnings)
	}
	if len(tests) != 2 {
		t.Fatalf("len(tests) = %d, want 2", len(tests))
	}

	plain := tests[0]
	if plain.Origin != OriginInline {
		t.Errorf("Origin = %q, want inline", plain.Origin)
	}
	if plain.Eval.Method != "regex" {
		t.Errorf("Eval.Method = %q, want container's regex", plain.Eval.Method)
	}
	// Params merge across levels: global min_score plus container pattern.
	if plain.Eval.Params["pattern"] != "^ok" || plain.Eval.Params["min_score"] != 1.0 {
		t.Errorf("Eval.Params = %v, want merged global+container params", plain.Eval.Params)
	}
	if plain.Weight != 3.0 {
		t.Errorf("Weight = %v, want container weight 3.0", plain.Weight)
	}
	if ok, _ := condition.Evaluate(plain.Condition, condition.NewContext("ci", nil, nil)); !ok {
		t.Error("inline test should inherit the container condition")
	}

	tuned := tests[1]
	if tuned.Weight != 0.5 {
		t.Errorf("Weight = %v, want test-level 0.5", tuned.Weight)
	}
	// Test-level keys win on conflict; container keys survive.
	if tuned.Eval.Params["min_score"] != 0.7 || tuned.Eval.Params["pattern"] != "^ok" {
		t.Errorf("Eval.Params = %v, want test-level min_score over global", tuned.Eval.Params)
	}
}

func TestResolveSkip_IsFinal(t *testing.T) {
	s := &suite.TestSuite{
		Name: "root",
		Cases: []suite.TestCase{
			{Name: "off", Skip: true, SkipReason: "flaky upstream",
				When: &condition.Condition{Scope: []string{"ci"}}},
			{Name: "off-no-reason", Skip: true},
		},
	}

	r := NewResolver(&memCatalog{}, defaults())
	tests, _, err := r.ResolveSuite(s)
	if err != nil {
		t.Fatalf("ResolveSuite() error: %v", err)
	}

	if tests[0].Runs {
		t.Fatal("skipped test must have Runs=false")
	}
	if tests[0].SkipReason != "flaky upstream" {
		t.Errorf("SkipReason = %q, want %q", tests[0].SkipReason, "flaky upstream")
	}
	if tests[1].SkipReason != "skipped" {
		t.Errorf("SkipReason = %q, want default %q", tests[1].SkipReason, "skipped")
	}
}

func sharedCatalog() *memCatalog {
	return &memCatalog{suites: map[string]*suite.TestSuite{
		"shared/common": {
			Name: "common-cases",
			Cases: []suite.TestCase{
				{
					Name:       "greeting",
					Weight:     fptr(2.0),
					EvalMethod: "regex",
					EvalConfig: map[string]any{"pattern": "hello"},
					When:       &condition.Condition{Env: map[string]string{"GREETING": "*"}},
					Expect:     suite.Expectation{ForAll: []string{"hello"}},
				},
			},
		},
	}}
}

func TestResolveRef_CombinesConditionsWithAND(t *testing.T) {
	s := &suite.TestSuite{
		Name: "root",
		When: &condition.Condition{Scope: []string{"ignored-for-refs"}},
		Cases: []suite.TestCase{
			{Ref: "shared/common#greeting", When: &condition.Condition{Scope: []string{"ci"}}},
		},
	}

	r := NewResolver(sharedCatalog(), defaults())
	tests, _, err := r.ResolveSuite(s)
	if err != nil {
		t.Fatalf("ResolveSuite() error: %v", err)
	}

	rt := tests[0]
	if rt.Origin != "shared/common#greeting" {
		t.Errorf("Origin = %q, want the reference chain", rt.Origin)
	}

	// Both the referenced env condition and the site scope condition must
	// hold; the container condition does not travel to referenced tests.
	env := map[string]string{"GREETING": "hi"}
	if ok, _ := condition.Evaluate(rt.Condition, condition.NewContext("ci", env, nil)); !ok {
		t.Error("both sides satisfied: condition should hold")
	}
	if ok, _ := condition.Evaluate(rt.Condition, condition.NewContext("ci", nil, nil)); ok {
		t.Error("referenced env condition missing: condition should fail")
	}
	if ok, _ := condition.Evaluate(rt.Condition, condition.NewContext("local", env, nil)); ok {
		t.Error("site scope condition missing: condition should fail")
	}
}

func TestResolveRef_OverrideReplacesReferencedCondition(t *testing.T) {
	s := &suite.TestSuite{
		Name: "root",
		Cases: []suite.TestCase{
			{Ref: "shared/common#greeting",
				When: &condition.Condition{Scope: []string{"ci"}, Override: true}},
		},
	}

	r := NewResolver(sharedCatalog(), defaults())
	tests, _, err := r.ResolveSuite(s)
	if err != nil {
		t.Fatalf("ResolveSuite() error: %v", err)
	}

	// The referenced env requirement is discarded entirely.
	if ok, _ := condition.Evaluate(tests[0].Condition, condition.NewContext("ci", nil, nil)); !ok {
		t.Error("override condition alone should decide the outcome")
	}
}

func TestResolveRef_ContainerEvalIgnored(t *testing.T) {
	s := &suite.TestSuite{
		Name:       "root",
		EvalMethod: "semantic",
		EvalConfig: map[string]any{"threshold": 0.9},
		Cases: []suite.TestCase{
			{Name: "inline-case"},
			{Ref: "shared/common#greeting"},
		},
	}

	r := NewResolver(sharedCatalog(), defaults())
	tests, _, err := r.ResolveSuite(s)
	if err != nil {
		t.Fatalf("ResolveSuite() error: %v", err)
	}

	if tests[0].Eval.Method != "semantic" {
		t.Errorf("inline method = %q, want container's semantic", tests[0].Eval.Method)
	}
	ref := tests[1]
	if ref.Eval.Method != "regex" {
		t.Errorf("referenced method = %q, want its own regex", ref.Eval.Method)
	}
	if _, ok := ref.Eval.Params["threshold"]; ok {
		t.Error("container params must not leak into a referenced test")
	}
	// Global defaults still apply beneath the referenced test's own eval.
	if ref.Eval.Params["min_score"] != 1.0 {
		t.Errorf("Params = %v, want global min_score preserved", ref.Eval.Params)
	}
}

func TestResolveRef_SiteOverridesWinWithoutMutatingSource(t *testing.T) {
	catalog := sharedCatalog()
	shared := catalog.suites["shared/common"]

	suiteA := &suite.TestSuite{Name: "a", Cases: []suite.TestCase{
		{Ref: "shared/common#greeting", Weight: fptr(5.0)},
	}}
	suiteB := &suite.TestSuite{Name: "b", Cases: []suite.TestCase{
		{Ref: "shared/common#greeting"},
	}}

	r := NewResolver(catalog, defaults())
	testsA, _, err := r.ResolveSuite(suiteA)
	if err != nil {
		t.Fatalf("ResolveSuite(a) error: %v", err)
	}
	testsB, _, err := r.ResolveSuite(suiteB)
	if err != nil {
		t.Fatalf("ResolveSuite(b) error: %v", err)
	}

	if testsA[0].Weight != 5.0 {
		t.Errorf("suite a weight = %v, want site override 5.0", testsA[0].Weight)
	}
	// Suite a's override must not leak into suite b or the shared source.
	if testsB[0].Weight != 2.0 {
		t.Errorf("suite b weight = %v, want referenced case's 2.0", testsB[0].Weight)
	}
	if *shared.Cases[0].Weight != 2.0 {
		t.Errorf("shared source weight mutated to %v", *shared.Cases[0].Weight)
	}
}

func TestResolveRef_Unresolved(t *testing.T) {
	s := &suite.TestSuite{Name: "root", Cases: []suite.TestCase{
		{Ref: "shared/common#no-such-case"},
	}}

	r := NewResolver(sharedCatalog(), defaults())
	_, _, err := r.ResolveSuite(s)

	var refErr *ReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("error = %v, want *ReferenceError", err)
	}
	if refErr.Ref != "shared/common#no-such-case" {
		t.Errorf("Ref = %q, want the failing reference", refErr.Ref)
	}
	if !strings.Contains(refErr.Error(), "root") {
		t.Errorf("error %q should carry the container chain", refErr.Error())
	}
}

func TestResolveIncludes_ExpandsDepthFirstInOrder(t *testing.T) {
	catalog := &memCatalog{suites: map[string]*suite.TestSuite{
		"inner": {Name: "inner", Cases: []suite.TestCase{
			{Name: "i1"}, {Name: "i2"},
		}},
		"other": {Name: "other", Cases: []suite.TestCase{
			{Name: "o1"},
		}},
	}}
	root := &suite.TestSuite{
		Name:     "root",
		Includes: []string{"inner", "other"},
		Cases:    []suite.TestCase{{Name: "own"}},
	}

	r := NewResolver(catalog, defaults())
	tests, _, err := r.ResolveSuite(root)
	if err != nil {
		t.Fatalf("ResolveSuite() error: %v", err)
	}

	var names []string
	for _, rt := range tests {
		names = append(names, rt.Name)
	}
	want := []string{"i1", "i2", "o1", "own"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("resolution order mismatch (-want +got):\n%s", diff)
	}
	for _, rt := range tests {
		if rt.Suite != "root" {
			t.Errorf("test %q attributed to suite %q, want root", rt.Name, rt.Suite)
		}
	}
}

func TestResolveIncludes_IncluderConditionAppliesToInlineTests(t *testing.T) {
	catalog := &memCatalog{suites: map[string]*suite.TestSuite{
		"inner": {Name: "inner", Cases: []suite.TestCase{{Name: "i1"}}},
	}}
	root := &suite.TestSuite{
		Name:     "root",
		When:     &condition.Condition{Scope: []string{"ci"}},
		Includes: []string{"inner"},
	}

	r := NewResolver(catalog, defaults())
	tests, _, err := r.ResolveSuite(root)
	if err != nil {
		t.Fatalf("ResolveSuite() error: %v", err)
	}

	if ok, _ := condition.Evaluate(tests[0].Condition, condition.NewContext("local", nil, nil)); ok {
		t.Error("including suite's condition should gate inline tests of the included suite")
	}
	if ok, _ := condition.Evaluate(tests[0].Condition, condition.NewContext("ci", nil, nil)); !ok {
		t.Error("inline test should run where the including suite's condition holds")
	}
}

func TestResolveIncludes_CycleDetection(t *testing.T) {
	a := &suite.TestSuite{Name: "a", Includes: []string{"b"}, Cases: []suite.TestCase{{Name: "x"}}}
	b := &suite.TestSuite{Name: "b", Includes: []string{"a"}, Cases: []suite.TestCase{{Name: "y"}}}
	catalog := &memCatalog{suites: map[string]*suite.TestSuite{"a": a, "b": b}}

	r := NewResolver(catalog, defaults())

	// The cycle is reported regardless of which end resolution starts from.
	for _, start := range []*suite.TestSuite{a, b} {
		_, _, err := r.ResolveSuite(start)
		var cycleErr *CircularIncludeError
		if !errors.As(err, &cycleErr) {
			t.Fatalf("ResolveSuite(%s) error = %v, want *CircularIncludeError", start.Name, err)
		}
		if len(cycleErr.Cycle) < 3 || cycleErr.Cycle[0] != cycleErr.Cycle[len(cycleErr.Cycle)-1] {
			t.Errorf("Cycle = %v, want a path ending at its start", cycleErr.Cycle)
		}
	}
}

func TestResolve_SelfInclude(t *testing.T) {
	s := &suite.TestSuite{Name: "selfish", Includes: []string{"selfish"}, Cases: []suite.TestCase{{Name: "x"}}}
	catalog := &memCatalog{suites: map[string]*suite.TestSuite{"selfish": s}}

	var cycleErr *CircularIncludeError
	_, _, err := NewResolver(catalog, defaults()).ResolveSuite(s)
	if !errors.As(err, &cycleErr) {
		t.Fatalf("error = %v, want *CircularIncludeError", err)
	}
}

func TestResolve_DiamondIncludeIsNotACycle(t *testing.T) {
	catalog := &memCatalog{suites: map[string]*suite.TestSuite{
		"left":  {Name: "left", Includes: []string{"base"}},
		"right": {Name: "right", Includes: []string{"base"}},
		"base":  {Name: "base", Cases: []suite.TestCase{{Name: "shared-case"}}},
	}}
	root := &suite.TestSuite{Name: "top", Includes: []string{"left", "right"}}

	tests, _, err := NewResolver(catalog, defaults()).ResolveSuite(root)
	if err != nil {
		t.Fatalf("ResolveSuite() error: %v, diamond includes are legal", err)
	}
	if len(tests) != 2 {
		t.Errorf("len(tests) = %d, want base expanded once per include path", len(tests))
	}
}

func TestResolve_UnknownInclude(t *testing.T) {
	root := &suite.TestSuite{Name: "root", Includes: []string{"missing"}}
	_, _, err := NewResolver(&memCatalog{}, defaults()).ResolveSuite(root)

	var refErr *ReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("error = %v, want *ReferenceError", err)
	}
}

func TestResolve_MalformedConditionIsCompositionError(t *testing.T) {
	s := &suite.TestSuite{Name: "root", Cases: []suite.TestCase{
		{Name: "bad", When: &condition.Condition{
			All: []*condition.Condition{{Scope: []string{"ci"}}},
			Any: []*condition.Condition{{Scope: []string{"local"}}},
		}},
	}}

	_, _, err := NewResolver(&memCatalog{}, defaults()).ResolveSuite(s)
	var malformed *condition.MalformedConditionError
	if !errors.As(err, &malformed) {
		t.Fatalf("error = %v, want *MalformedConditionError", err)
	}
}

func TestResolve_UnreachableScopeIntersectionWarns(t *testing.T) {
	s := &suite.TestSuite{
		Name: "root",
		When: &condition.Condition{Scope: []string{"ci"}},
		Cases: []suite.TestCase{
			{Name: "never", When: &condition.Condition{Scope: []string{"local"}}},
		},
	}

	tests, warnings, err := NewResolver(&memCatalog{}, defaults()).ResolveSuite(s)
	if err != nil {
		t.Fatalf("ResolveSuite() error: %v, unreachable is a warning not an error", err)
	}
	if !tests[0].Unreachable {
		t.Fatal("test should be marked unreachable")
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", warnings)
	}
	if warnings[0].Test != "never" {
		t.Errorf("warning names test %q, want never", warnings[0].Test)
	}
}

func TestResolve_IsIdempotent(t *testing.T) {
	s := &suite.TestSuite{
		Name:       "root",
		EvalMethod: "criteria",
		EvalConfig: map[string]any{"min_score": 0.8},
		When:       &condition.Condition{Scope: []string{"ci"}},
		Cases: []suite.TestCase{
			{Name: "a", Weight: fptr(2.0)},
			{Ref: "shared/common#greeting", When: &condition.Condition{Env: map[string]string{"X": "1"}}},
		},
	}

	r := NewResolver(sharedCatalog(), defaults())
	first, _, err := r.ResolveSuite(s)
	if err != nil {
		t.Fatalf("ResolveSuite() error: %v", err)
	}
	second, _, err := r.ResolveSuite(s)
	if err != nil {
		t.Fatalf("ResolveSuite() second pass error: %v", err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("resolution is not idempotent (-first +second):\n%s", diff)
	}
}

func TestResolveRef_NestedReferences(t *testing.T) {
	catalog := &memCatalog{suites: map[string]*suite.TestSuite{
		"level1": {Name: "level1", Cases: []suite.TestCase{
			{Name: "hop", Ref: "level2#base", Weight: fptr(4.0)},
		}},
		"level2": {Name: "level2", Cases: []suite.TestCase{
			{Name: "base", EvalMethod: "regex", Expect: suite.Expectation{ForAll: []string{"ok"}}},
		}},
	}}
	root := &suite.TestSuite{Name: "root", Cases: []suite.TestCase{
		{Ref: "level1#hop"},
	}}

	tests, _, err := NewResolver(catalog, defaults()).ResolveSuite(root)
	if err != nil {
		t.Fatalf("ResolveSuite() error: %v", err)
	}

	rt := tests[0]
	if rt.Eval.Method != "regex" {
		t.Errorf("method = %q, want the innermost definition's regex", rt.Eval.Method)
	}
	if rt.Weight != 4.0 {
		t.Errorf("weight = %v, want the intermediate override 4.0", rt.Weight)
	}
	if !strings.Contains(rt.Origin, "level1#hop") || !strings.Contains(rt.Origin, "level2#base") {
		t.Errorf("Origin = %q, want the full reference chain", rt.Origin)
	}
}

func TestResolveRef_CircularReferences(t *testing.T) {
	catalog := &memCatalog{suites: map[string]*suite.TestSuite{
		"p": {Name: "p", Cases: []suite.TestCase{{Name: "x", Ref: "q#y"}}},
		"q": {Name: "q", Cases: []suite.TestCase{{Name: "y", Ref: "p#x"}}},
	}}
	root := &suite.TestSuite{Name: "root", Cases: []suite.TestCase{{Ref: "p#x"}}}

	var cycleErr *CircularIncludeError
	_, _, err := NewResolver(catalog, defaults()).ResolveSuite(root)
	if !errors.As(err, &cycleErr) {
		t.Fatalf("error = %v, want *CircularIncludeError", err)
	}
}

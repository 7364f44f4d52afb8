// Package resolve flattens suite composition (references and includes) and
// merges the multi-level configuration hierarchy into one effective
// configuration per test case. It detects include cycles, unresolved
// references, and conditions that can never hold.
package resolve

import (
	"github.com/promptcheck/promptcheck/pkg/condition"
	"github.com/promptcheck/promptcheck/pkg/suite"
)

// Catalog looks up suites and shared test cases for reference resolution.
// The caller owns the actual file access; the resolver only ever sees
// already-parsed objects.
type Catalog interface {
	// Suite returns a suite by name, as used in includes.
	Suite(name string) (*suite.TestSuite, bool)
	// TestCase returns a shared case by reference source and case name.
	TestCase(source, name string) (*suite.TestCase, bool)
}

// Defaults carries the system-level configuration applied beneath every
// container and test-level setting.
type Defaults struct {
	Eval *suite.EvalSpec
}

// Resolver expands suites into flat, ordered lists of resolved tests.
// A Resolver is stateless between calls and safe for reuse.
type Resolver struct {
	catalog  Catalog
	defaults Defaults
}

// NewResolver builds a Resolver over the given catalog and system defaults.
func NewResolver(catalog Catalog, defaults Defaults) *Resolver {
	return &Resolver{catalog: catalog, defaults: defaults}
}

// frame carries the container context accumulated while descending through
// includes: the combined container condition, the eval specs from outermost
// to innermost container, and the innermost declared container weight.
type frame struct {
	cond   *condition.Condition
	evals  []*suite.EvalSpec
	weight *float64
}

// ResolveSuite flattens the suite and everything it includes into resolved
// tests, depth-first, preserving declaration order. Includes expand before
// the suite's own cases. Composition errors (unresolved reference, cycle,
// duplicate name, malformed condition) abort resolution; warnings are
// returned alongside the tests.
func (r *Resolver) ResolveSuite(s *suite.TestSuite) ([]ResolvedTest, []Warning, error) {
	var warnings []Warning
	tests, err := r.expand(s, s.Name, map[string]bool{}, nil, frame{}, &warnings)
	if err != nil {
		return nil, nil, err
	}
	return tests, warnings, nil
}

func (r *Resolver) expand(s *suite.TestSuite, topSuite string, visiting map[string]bool, stack []string, fr frame, warnings *[]Warning) ([]ResolvedTest, error) {
	if visiting[s.Name] {
		return nil, &CircularIncludeError{Cycle: append(append([]string{}, stack...), s.Name)}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	visiting[s.Name] = true
	defer delete(visiting, s.Name)
	stack = append(stack, s.Name)

	inner := frame{
		cond:   condition.Combine(fr.cond, s.When),
		evals:  append(append([]*suite.EvalSpec{}, fr.evals...), s.Eval()),
		weight: fr.weight,
	}
	if s.Weight != nil {
		inner.weight = s.Weight
	}

	var tests []ResolvedTest
	for _, name := range s.Includes {
		sub, ok := r.catalog.Suite(name)
		if !ok {
			return nil, &ReferenceError{Ref: name, Chain: stack}
		}
		expanded, err := r.expand(sub, topSuite, visiting, stack, inner, warnings)
		if err != nil {
			return nil, err
		}
		tests = append(tests, expanded...)
	}

	for i := range s.Cases {
		rt, err := r.resolveCase(&s.Cases[i], topSuite, inner, stack)
		if err != nil {
			return nil, err
		}
		if unreachable, detail := condition.Unreachable(rt.Condition); unreachable {
			rt.Unreachable = true
			rt.UnreachableReason = detail
			*warnings = append(*warnings, Warning{Suite: topSuite, Test: rt.Name, Detail: detail})
		}
		tests = append(tests, rt)
	}
	return tests, nil
}

// resolveCase merges one case entry against its container frame and the
// system defaults, following references when present.
func (r *Resolver) resolveCase(c *suite.TestCase, topSuite string, fr frame, stack []string) (ResolvedTest, error) {
	if c.IsRef() {
		return r.resolveRef(c, topSuite, stack)
	}

	specs := append([]*suite.EvalSpec{r.defaults.Eval}, fr.evals...)
	specs = append(specs, c.Eval())

	rt := ResolvedTest{
		Name:      c.DisplayName(),
		Suite:     topSuite,
		Origin:    OriginInline,
		Input:     c.Input,
		Expect:    c.Expect,
		Models:    c.Models,
		Condition: condition.Combine(fr.cond, c.When),
		Eval:      mergeEvals(specs...),
		Weight:    pickWeight(c.Weight, fr.weight),
		Runs:      true,
	}
	applySkip(&rt, c.Skip, c.SkipReason)
	return rt, nil
}

// resolveRef resolves a reference entry. Referenced tests travel with their
// own condition and eval; the container's defaults do not apply to them.
// The reference-site condition AND-combines with the referenced one unless
// it carries override, in which case it replaces it wholesale. Nested
// references are followed with their own cycle guard.
func (r *Resolver) resolveRef(site *suite.TestCase, topSuite string, stack []string) (ResolvedTest, error) {
	source, name, ok := suite.SplitRef(site.Ref)
	if !ok {
		return ResolvedTest{}, &ReferenceError{Ref: site.Ref, Chain: stack}
	}

	target, found := r.catalog.TestCase(source, name)
	if !found {
		return ResolvedTest{}, &ReferenceError{Ref: site.Ref, Chain: stack}
	}

	cond := target.When
	eval := target.Eval()
	input := target.Input
	expect := target.Expect
	models := target.Models
	weight := target.Weight
	skip := target.Skip
	skipReason := target.SkipReason
	origin := site.Ref

	// Follow nested references, innermost definition first.
	seen := map[string]bool{site.Ref: true}
	for target.IsRef() {
		if seen[target.Ref] {
			return ResolvedTest{}, &CircularIncludeError{Cycle: append(append([]string{}, stack...), site.Ref, target.Ref)}
		}
		seen[target.Ref] = true

		src, n, ok := suite.SplitRef(target.Ref)
		if !ok {
			return ResolvedTest{}, &ReferenceError{Ref: target.Ref, Chain: stack}
		}
		next, found := r.catalog.TestCase(src, n)
		if !found {
			return ResolvedTest{}, &ReferenceError{Ref: target.Ref, Chain: stack}
		}

		cond = condition.Combine(next.When, cond)
		eval = mergeEvalPtrs(next.Eval(), eval)
		if input == nil {
			input = next.Input
		}
		if expect.IsZero() {
			expect = next.Expect
		}
		if models == nil {
			models = next.Models
		}
		if weight == nil {
			weight = next.Weight
		}
		skip = skip || next.Skip
		if skipReason == "" {
			skipReason = next.SkipReason
		}
		origin = origin + " -> " + target.Ref
		target = next
	}

	rt := ResolvedTest{
		Name:      site.DisplayName(),
		Suite:     topSuite,
		Origin:    origin,
		Input:     firstInput(site.Input, input),
		Expect:    firstExpect(site.Expect, expect),
		Models:    firstModels(site.Models, models),
		Condition: condition.Combine(cond, site.When),
		Eval:      mergeEvals(r.defaults.Eval, eval, site.Eval()),
		Weight:    pickWeight(site.Weight, weight),
		Runs:      true,
	}

	// Skip at any level is final.
	if skip {
		applySkip(&rt, true, skipReason)
	} else {
		applySkip(&rt, site.Skip, site.SkipReason)
	}
	return rt, nil
}

func applySkip(rt *ResolvedTest, skip bool, reason string) {
	if !skip {
		return
	}
	rt.Runs = false
	if reason == "" {
		reason = "skipped"
	}
	rt.SkipReason = reason
}

func firstInput(override, base map[string]any) map[string]any {
	if override != nil {
		return override
	}
	return base
}

func firstExpect(override, base suite.Expectation) suite.Expectation {
	if !override.IsZero() {
		return override
	}
	return base
}

func firstModels(override, base []string) []string {
	if override != nil {
		return override
	}
	return base
}

package condition

import (
	"fmt"
	"sort"
	"strings"
)

// Condition is a predicate tree that gates whether a test case executes.
// Leaf constraints (Scope, NotScope, Env, ModelsAvailable) set directly on
// one node combine with AND. All and Any hold child conditions; at most one
// of the two may be populated on a single node.
type Condition struct {
	Scope           []string          `yaml:"scope,omitempty" json:"scope,omitempty"`
	NotScope        []string          `yaml:"not_scope,omitempty" json:"not_scope,omitempty"`
	Env             map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	ModelsAvailable []string          `yaml:"models_available,omitempty" json:"models_available,omitempty"`
	All             []*Condition      `yaml:"all,omitempty" json:"all,omitempty"`
	Any             []*Condition      `yaml:"any,omitempty" json:"any,omitempty"`

	// Override marks this condition as replacing, rather than combining
	// with, any ancestor condition during resolution.
	Override bool `yaml:"override,omitempty" json:"override,omitempty"`
}

// MalformedConditionError reports a condition whose shape is invalid.
// Shape problems are construction-time errors; Evaluate never sees them.
type MalformedConditionError struct {
	Detail string
}

func (e *MalformedConditionError) Error() string {
	return "malformed condition: " + e.Detail
}

// Validate checks the structural invariants of the condition tree. It
// returns a *MalformedConditionError if a node populates both all and any,
// or declares no constraint at all.
func (c *Condition) Validate() error {
	if c == nil {
		return nil
	}
	if len(c.All) > 0 && len(c.Any) > 0 {
		return &MalformedConditionError{Detail: "both all and any populated on one node"}
	}
	if len(c.Scope) == 0 && len(c.NotScope) == 0 && len(c.Env) == 0 &&
		len(c.ModelsAvailable) == 0 && len(c.All) == 0 && len(c.Any) == 0 {
		return &MalformedConditionError{Detail: "condition declares no constraint"}
	}
	for _, child := range c.All {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	for _, child := range c.Any {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Combine merges an ancestor condition with one declared closer to the test
// case. The result requires both (AND). If the overlay carries Override, it
// fully replaces the ancestor. Either side may be nil. Inputs are never
// mutated; a new node is allocated when both sides are present.
func Combine(ancestor, overlay *Condition) *Condition {
	if overlay != nil && overlay.Override {
		return overlay
	}
	if ancestor == nil {
		return overlay
	}
	if overlay == nil {
		return ancestor
	}
	return &Condition{All: []*Condition{ancestor, overlay}}
}

// Unreachable reports whether the condition can never hold because two
// scope constraints joined by AND have an empty intersection. The returned
// string describes the disjoint sets. Constraints below an any node are not
// considered: an alternative branch may still satisfy the condition.
func Unreachable(c *Condition) (bool, string) {
	var sets [][]string
	collectANDScopes(c, &sets)
	if len(sets) < 2 {
		return false, ""
	}

	inter := make(map[string]bool, len(sets[0]))
	for _, s := range sets[0] {
		inter[s] = true
	}
	for _, set := range sets[1:] {
		next := make(map[string]bool, len(set))
		for _, s := range set {
			if inter[s] {
				next[s] = true
			}
		}
		inter = next
	}
	if len(inter) > 0 {
		return false, ""
	}

	parts := make([]string, len(sets))
	for i, set := range sets {
		sorted := append([]string(nil), set...)
		sort.Strings(sorted)
		parts[i] = "[" + strings.Join(sorted, ", ") + "]"
	}
	return true, fmt.Sprintf("scope constraints have empty intersection: %s", strings.Join(parts, " ∩ "))
}

// collectANDScopes gathers every scope set reachable from c through
// AND-only paths.
func collectANDScopes(c *Condition, out *[][]string) {
	if c == nil {
		return
	}
	if len(c.Scope) > 0 {
		*out = append(*out, c.Scope)
	}
	for _, child := range c.All {
		collectANDScopes(child, out)
	}
}

package condition

import (
	"fmt"
	"sort"
	"strings"
)

// Context is the environment a condition is evaluated against. It is
// read-only for the duration of a run and safe to share across workers.
type Context struct {
	CurrentScope    string
	Env             map[string]string
	AvailableModels map[string]bool
}

// NewContext builds a Context from a scope name, an environment snapshot,
// and the list of models reachable in this run.
func NewContext(scope string, env map[string]string, models []string) Context {
	available := make(map[string]bool, len(models))
	for _, m := range models {
		available[m] = true
	}
	return Context{CurrentScope: scope, Env: env, AvailableModels: available}
}

// Evaluate decides whether the condition holds in the given context and
// returns a human-readable reason for the outcome. A nil condition always
// holds. Evaluate never fails: malformed shapes are rejected by Validate
// before a run starts.
func Evaluate(c *Condition, ctx Context) (bool, string) {
	if c == nil {
		return true, "no condition"
	}

	if len(c.Scope) > 0 && !contains(c.Scope, ctx.CurrentScope) {
		return false, fmt.Sprintf("scope %q not in required scopes [%s]",
			ctx.CurrentScope, strings.Join(c.Scope, ", "))
	}
	if len(c.NotScope) > 0 && contains(c.NotScope, ctx.CurrentScope) {
		return false, fmt.Sprintf("scope %q is excluded", ctx.CurrentScope)
	}

	// Sorted key order keeps the first-failure reason deterministic.
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		want := c.Env[k]
		got, ok := ctx.Env[k]
		if !ok || got == "" {
			return false, fmt.Sprintf("env var %s not set", k)
		}
		if want != "*" && got != want {
			return false, fmt.Sprintf("env var %s = %q, want %q", k, got, want)
		}
	}

	for _, m := range c.ModelsAvailable {
		if !ctx.AvailableModels[m] {
			return false, fmt.Sprintf("model %q not available", m)
		}
	}

	for _, child := range c.All {
		if ok, reason := Evaluate(child, ctx); !ok {
			return false, reason
		}
	}

	if len(c.Any) > 0 {
		satisfied := false
		for _, child := range c.Any {
			if ok, _ := Evaluate(child, ctx); ok {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false, "no alternative satisfied"
		}
	}

	return true, "condition satisfied"
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

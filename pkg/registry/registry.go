// Package registry holds the immutable system-level lookup tables for a
// run: the named execution scopes and the registered models with their
// groups. Both are read-only after construction and safe to share across
// concurrent workers.
package registry

import (
	"fmt"
	"strings"
)

// ScopeInfo describes one named execution environment.
type ScopeInfo struct {
	Name        string
	Description string
	// Env lists environment requirements for the scope; value "*" means
	// the variable must be present with any non-empty value.
	Env     map[string]string
	Default bool
}

// Scopes is the registry of known execution scopes.
type Scopes struct {
	byName      map[string]ScopeInfo
	order       []string
	defaultName string
}

// NewScopes builds a scope registry. Names must be unique and at most one
// scope may be marked default.
func NewScopes(infos []ScopeInfo) (*Scopes, error) {
	s := &Scopes{byName: make(map[string]ScopeInfo, len(infos))}
	for _, info := range infos {
		if info.Name == "" {
			return nil, fmt.Errorf("scope with empty name")
		}
		if _, ok := s.byName[info.Name]; ok {
			return nil, fmt.Errorf("duplicate scope %q", info.Name)
		}
		if info.Default {
			if s.defaultName != "" {
				return nil, fmt.Errorf("scopes %q and %q both marked default", s.defaultName, info.Name)
			}
			s.defaultName = info.Name
		}
		s.byName[info.Name] = info
		s.order = append(s.order, info.Name)
	}
	return s, nil
}

// Get returns the scope with the given name.
func (s *Scopes) Get(name string) (ScopeInfo, bool) {
	info, ok := s.byName[name]
	return info, ok
}

// Default returns the name of the default scope, or "" when none is marked.
func (s *Scopes) Default() string { return s.defaultName }

// Names returns scope names in registration order.
func (s *Scopes) Names() []string { return append([]string(nil), s.order...) }

// Models is the registry of known models and named model groups, used to
// expand the "*" and "@group" selectors in test case model lists.
type Models struct {
	order  []string
	known  map[string]bool
	groups map[string][]string
}

// NewModels builds a model registry. Every group member must itself be a
// registered model.
func NewModels(names []string, groups map[string][]string) (*Models, error) {
	m := &Models{known: make(map[string]bool, len(names)), groups: make(map[string][]string, len(groups))}
	for _, n := range names {
		if n == "" {
			return nil, fmt.Errorf("model with empty name")
		}
		if m.known[n] {
			return nil, fmt.Errorf("duplicate model %q", n)
		}
		m.known[n] = true
		m.order = append(m.order, n)
	}
	for g, members := range groups {
		for _, member := range members {
			if !m.known[member] {
				return nil, fmt.Errorf("model group %q: unknown model %q", g, member)
			}
		}
		m.groups[g] = append([]string(nil), members...)
	}
	return m, nil
}

// All returns every registered model in registration order.
func (m *Models) All() []string { return append([]string(nil), m.order...) }

// Has reports whether a model is registered.
func (m *Models) Has(name string) bool { return m.known[name] }

// Expand resolves a model selector list into concrete model names. Entries
// may be literals, "*" (all registered models in registration order), or
// "@group" (the group's members in declaration order). Duplicates keep
// their first occurrence. Unknown literals and groups are errors.
func (m *Models) Expand(selector []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, entry := range selector {
		switch {
		case entry == "*":
			for _, n := range m.order {
				add(n)
			}
		case strings.HasPrefix(entry, "@"):
			group := strings.TrimPrefix(entry, "@")
			members, ok := m.groups[group]
			if !ok {
				return nil, fmt.Errorf("unknown model group %q", group)
			}
			for _, n := range members {
				add(n)
			}
		default:
			if !m.known[entry] {
				return nil, fmt.Errorf("unknown model %q", entry)
			}
			add(entry)
		}
	}
	return out, nil
}

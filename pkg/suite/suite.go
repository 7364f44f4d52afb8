package suite

import (
	"fmt"
	"strings"

	"github.com/promptcheck/promptcheck/pkg/condition"
	"gopkg.in/yaml.v3"
)

// TestSuite is a container of test cases, declared inline or pulled in by
// reference, plus container-level defaults that apply to inline cases.
type TestSuite struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Weight      *float64             `yaml:"weight,omitempty"`
	EvalMethod  string               `yaml:"eval_method,omitempty"`
	EvalConfig  map[string]any       `yaml:"eval_config,omitempty"`
	When        *condition.Condition `yaml:"when,omitempty"`
	Includes    []string             `yaml:"includes,omitempty"`
	Cases       []TestCase           `yaml:"test_cases"`
}

// TestCase is a single test, either declared inline or referencing a case
// defined elsewhere via Ref ("<source>#<name>"). For a reference entry the
// other fields act as overrides applied on top of the referenced case.
type TestCase struct {
	Name       string               `yaml:"name,omitempty"`
	Ref        string               `yaml:"ref,omitempty"`
	Weight     *float64             `yaml:"weight,omitempty"`
	Models     []string             `yaml:"models,omitempty"`
	Input      map[string]any       `yaml:"input,omitempty"`
	Expect     Expectation          `yaml:"expect,omitempty"`
	EvalMethod string               `yaml:"eval_method,omitempty"`
	EvalConfig map[string]any       `yaml:"eval_config,omitempty"`
	When       *condition.Condition `yaml:"when,omitempty"`
	Skip       bool                 `yaml:"skip,omitempty"`
	SkipReason string               `yaml:"skip_reason,omitempty"`
}

// EvalSpec pairs an evaluation method name with its parameters. Params are
// opaque to the resolution engine and passed through to the evaluator.
type EvalSpec struct {
	Method string
	Params map[string]any
}

// IsRef reports whether the case is a reference entry.
func (c *TestCase) IsRef() bool { return c.Ref != "" }

// DisplayName returns the case name, falling back to the name part of the
// reference for reference entries that carry no explicit name.
func (c *TestCase) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	if _, name, ok := SplitRef(c.Ref); ok {
		return name
	}
	return c.Ref
}

// Eval returns the case's evaluation spec, or nil when the case declares
// neither a method nor parameters.
func (c *TestCase) Eval() *EvalSpec {
	if c.EvalMethod == "" && len(c.EvalConfig) == 0 {
		return nil
	}
	return &EvalSpec{Method: c.EvalMethod, Params: c.EvalConfig}
}

// Eval returns the suite's container-level evaluation spec, or nil.
func (s *TestSuite) Eval() *EvalSpec {
	if s.EvalMethod == "" && len(s.EvalConfig) == 0 {
		return nil
	}
	return &EvalSpec{Method: s.EvalMethod, Params: s.EvalConfig}
}

// SplitRef splits a "<source>#<name>" reference into its parts.
func SplitRef(ref string) (source, name string, ok bool) {
	i := strings.LastIndex(ref, "#")
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}

// DuplicateTestError reports two cases sharing one name within a container.
type DuplicateTestError struct {
	Suite string
	Name  string
}

func (e *DuplicateTestError) Error() string {
	return fmt.Sprintf("suite %q: duplicate test case name %q", e.Suite, e.Name)
}

// Validate checks that the suite has the minimum required shape: a name, at
// least one case or include, unique case names within this container, valid
// reference syntax, and structurally valid conditions.
func (s *TestSuite) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("suite name is required")
	}
	if len(s.Cases) == 0 && len(s.Includes) == 0 {
		return fmt.Errorf("suite %q must declare test cases or includes", s.Name)
	}
	if s.Weight != nil && *s.Weight < 0 {
		return fmt.Errorf("suite %q: weight must be >= 0, got %v", s.Name, *s.Weight)
	}
	if err := s.When.Validate(); err != nil {
		return fmt.Errorf("suite %q: %w", s.Name, err)
	}

	seen := make(map[string]bool, len(s.Cases))
	for i := range s.Cases {
		c := &s.Cases[i]
		if c.IsRef() {
			if _, _, ok := SplitRef(c.Ref); !ok {
				return fmt.Errorf("suite %q: invalid reference %q, want \"<source>#<name>\"", s.Name, c.Ref)
			}
		} else if c.Name == "" {
			return fmt.Errorf("suite %q: case %d has no name", s.Name, i)
		}
		if c.Weight != nil && *c.Weight < 0 {
			return fmt.Errorf("suite %q: case %q: weight must be >= 0, got %v", s.Name, c.DisplayName(), *c.Weight)
		}
		if err := c.When.Validate(); err != nil {
			return fmt.Errorf("suite %q: case %q: %w", s.Name, c.DisplayName(), err)
		}

		name := c.DisplayName()
		if seen[name] {
			return &DuplicateTestError{Suite: s.Name, Name: name}
		}
		seen[name] = true
	}
	return nil
}

// Expectation is the expected-output declaration of a test case: either a
// plain list applying to every model, or a mapping keyed by model name.
type Expectation struct {
	ForAll  []string
	ByModel map[string][]string
}

// UnmarshalYAML accepts either a sequence of strings or a mapping from
// model name to sequences of strings.
func (e *Expectation) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		return value.Decode(&e.ForAll)
	case yaml.MappingNode:
		return value.Decode(&e.ByModel)
	default:
		return fmt.Errorf("expect must be a sequence or a model mapping, got %s at line %d", value.Tag, value.Line)
	}
}

// MarshalYAML renders the expectation back in whichever form it was declared.
func (e Expectation) MarshalYAML() (any, error) {
	if len(e.ByModel) > 0 {
		return e.ByModel, nil
	}
	return e.ForAll, nil
}

// IsZero reports whether no expectation was declared. yaml.v3 consults this
// when deciding omitempty for struct-typed fields.
func (e Expectation) IsZero() bool {
	return len(e.ForAll) == 0 && len(e.ByModel) == 0
}

// ForModel returns the expectations applying to the given model. A plain
// list applies to all models; a mapping yields that model's entry, which
// may be nil when the model has none.
func (e Expectation) ForModel(model string) []string {
	if len(e.ByModel) > 0 {
		return e.ByModel[model]
	}
	return e.ForAll
}

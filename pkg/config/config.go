package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/promptcheck/promptcheck/pkg/registry"
	"github.com/promptcheck/promptcheck/pkg/suite"
	"gopkg.in/yaml.v3"
)

// Config holds the system-level configuration: scope definitions, the
// model registry, global eval defaults, and runner settings.
type Config struct {
	Scopes      map[string]ScopeConfig `yaml:"scopes"`
	Models      ModelsConfig           `yaml:"models"`
	Eval        EvalConfig             `yaml:"eval"`
	Concurrency int                    `yaml:"concurrency"`
	Timeout     time.Duration          `yaml:"timeout"`
	// PassThreshold is the aggregate score the CLI requires for a zero
	// exit code. Threshold policy lives here, outside the engine.
	PassThreshold float64 `yaml:"pass_threshold"`
	SuiteDir      string  `yaml:"suite_dir"`
	PromptDir     string  `yaml:"prompt_dir"`
}

// ScopeConfig describes one named execution environment.
type ScopeConfig struct {
	Description string `yaml:"description,omitempty"`
	// Env lists environment requirements; value "*" means present with
	// any non-empty value.
	Env     map[string]string `yaml:"env,omitempty"`
	Default bool              `yaml:"default,omitempty"`
}

// ModelsConfig declares the registered models, named groups, and the
// default selector for tests that declare none.
type ModelsConfig struct {
	Registered []string            `yaml:"registered"`
	Groups     map[string][]string `yaml:"groups,omitempty"`
	Defaults   []string            `yaml:"defaults,omitempty"`
}

// EvalConfig is the system-level default evaluation method and parameters.
type EvalConfig struct {
	Method string         `yaml:"method"`
	Config map[string]any `yaml:"config,omitempty"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		Scopes: map[string]ScopeConfig{
			"local": {Description: "local development", Default: true},
		},
		Eval:          EvalConfig{Method: "criteria"},
		Concurrency:   4,
		Timeout:       60 * time.Second,
		PassThreshold: 0.7,
		SuiteDir:      "suites/",
		PromptDir:     "prompts/",
	}
}

// Load reads and parses a YAML config file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads config from the given path. A missing file yields
// the default configuration; other errors are still returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for required fields and returns a descriptive
// error if any are missing or invalid.
func (c *Config) Validate() error {
	var errs []error

	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be > 0, got %s", c.Timeout))
	}
	if c.PassThreshold < 0 || c.PassThreshold > 1 {
		errs = append(errs, fmt.Errorf("pass_threshold must be in [0,1], got %v", c.PassThreshold))
	}
	if len(c.Scopes) == 0 {
		errs = append(errs, errors.New("at least one scope must be defined"))
	}

	defaults := 0
	for name, sc := range c.Scopes {
		if name == "" {
			errs = append(errs, errors.New("scope with empty name"))
		}
		if sc.Default {
			defaults++
		}
	}
	if defaults > 1 {
		errs = append(errs, fmt.Errorf("%d scopes marked default, want at most one", defaults))
	}

	for group, members := range c.Models.Groups {
		for _, m := range members {
			if !containsString(c.Models.Registered, m) {
				errs = append(errs, fmt.Errorf("model group %q: model %q is not registered", group, m))
			}
		}
	}

	return errors.Join(errs...)
}

// ScopeRegistry builds the immutable scope registry from the config.
// Scope names are emitted in sorted order for deterministic registration.
func (c *Config) ScopeRegistry() (*registry.Scopes, error) {
	names := sortedKeys(c.Scopes)
	infos := make([]registry.ScopeInfo, 0, len(names))
	for _, name := range names {
		sc := c.Scopes[name]
		infos = append(infos, registry.ScopeInfo{
			Name:        name,
			Description: sc.Description,
			Env:         sc.Env,
			Default:     sc.Default,
		})
	}
	return registry.NewScopes(infos)
}

// ModelRegistry builds the immutable model registry from the config.
func (c *Config) ModelRegistry() (*registry.Models, error) {
	return registry.NewModels(c.Models.Registered, c.Models.Groups)
}

// DefaultEval returns the system default eval spec, or nil when none is
// configured.
func (c *Config) DefaultEval() *suite.EvalSpec {
	if c.Eval.Method == "" && len(c.Eval.Config) == 0 {
		return nil
	}
	return &suite.EvalSpec{Method: c.Eval.Method, Params: c.Eval.Config}
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package prompt holds the versioned prompt entity: a template plus the
// metadata identifying it. Prompts are loaded from YAML, content-hashed
// for change tracking, and rendered with test case input variables.
package prompt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Prompt is a versioned prompt definition.
type Prompt struct {
	ID          string         `yaml:"id"`
	Version     int            `yaml:"version"`
	Model       string         `yaml:"model,omitempty"`
	Template    string         `yaml:"template"`
	System      string         `yaml:"system,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Variables   map[string]any `yaml:"variables,omitempty"`
	Metadata    map[string]any `yaml:"metadata,omitempty"`
}

// Validate checks the prompt's required fields.
func (p *Prompt) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("prompt id is required")
	}
	if p.Version < 1 {
		return fmt.Errorf("prompt %q: version must be >= 1, got %d", p.ID, p.Version)
	}
	if p.Template == "" {
		return fmt.Errorf("prompt %q: template is required", p.ID)
	}
	return nil
}

// Hash returns the hex sha256 of the prompt's identifying content: id,
// version, model, system, and template. Metadata and default variables do
// not affect the hash.
func (p *Prompt) Hash() string {
	h := sha256.New()
	for _, part := range []string{p.ID, fmt.Sprint(p.Version), p.Model, p.System, p.Template} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Render executes the template with the given variables layered over the
// prompt's declared defaults. Template variables use {{.name}} syntax; a
// referenced variable missing from both maps is an error, not an empty
// string.
func (p *Prompt) Render(vars map[string]any) (string, error) {
	merged := make(map[string]any, len(p.Variables)+len(vars))
	for k, v := range p.Variables {
		merged[k] = v
	}
	for k, v := range vars {
		merged[k] = v
	}

	tmpl, err := template.New(p.ID).Option("missingkey=error").Parse(p.Template)
	if err != nil {
		return "", fmt.Errorf("parsing template for prompt %q: %w", p.ID, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, merged); err != nil {
		return "", fmt.Errorf("rendering prompt %q: %w", p.ID, err)
	}
	return buf.String(), nil
}

// Load reads a single Prompt from a YAML file.
func Load(path string) (*Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt file %s: %w", path, err)
	}

	p := &Prompt{Version: 1}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing prompt file %s: %w", path, err)
	}
	return p, nil
}

// LoadDir loads all .yaml and .yml files from dir as Prompts.
func LoadDir(dir string) ([]*Prompt, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading prompt directory %s: %w", dir, err)
	}

	var prompts []*Prompt
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		p, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}
	return prompts, nil
}

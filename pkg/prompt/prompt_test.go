package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePrompt(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const summarizerYAML = `
id: summarizer
version: 3
model: gpt-4
system: You are a concise assistant.
template: "Summarize the following in {{.max_words}} words: {{.text}}"
variables:
  max_words: 50
`

func TestLoad(t *testing.T) {
	p, err := Load(writePrompt(t, t.TempDir(), "summarizer.yaml", summarizerYAML))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if p.ID != "summarizer" || p.Version != 3 || p.Model != "gpt-4" {
		t.Errorf("got %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadDefaultsVersion(t *testing.T) {
	p, err := Load(writePrompt(t, t.TempDir(), "p.yaml", "id: bare\ntemplate: hi\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p.Version != 1 {
		t.Errorf("Version = %d, want the implicit 1", p.Version)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		prompt  Prompt
		wantErr string
	}{
		{"missing id", Prompt{Version: 1, Template: "x"}, "id is required"},
		{"zero version", Prompt{ID: "p", Template: "x"}, "version must be >= 1"},
		{"missing template", Prompt{ID: "p", Version: 1}, "template is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prompt.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRender(t *testing.T) {
	p := Prompt{
		ID:        "greet",
		Version:   1,
		Template:  "Hello {{.name}}, you have {{.count}} messages.",
		Variables: map[string]any{"count": 0},
	}

	out, err := p.Render(map[string]any{"name": "Ada", "count": 3})
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if out != "Hello Ada, you have 3 messages." {
		t.Errorf("Render() = %q", out)
	}
}

func TestRenderDefaultVariables(t *testing.T) {
	p := Prompt{
		ID:        "greet",
		Version:   1,
		Template:  "max {{.max_words}} words",
		Variables: map[string]any{"max_words": 50},
	}
	out, err := p.Render(nil)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if out != "max 50 words" {
		t.Errorf("Render() = %q", out)
	}
}

func TestRenderMissingVariable(t *testing.T) {
	p := Prompt{ID: "greet", Version: 1, Template: "Hello {{.name}}"}
	if _, err := p.Render(nil); err == nil {
		t.Error("Render() with a missing variable must error, not emit empty")
	}
}

func TestHash(t *testing.T) {
	a := Prompt{ID: "p", Version: 1, Template: "hello"}
	b := a
	if a.Hash() != b.Hash() {
		t.Error("identical prompts must hash identically")
	}

	b.Version = 2
	if a.Hash() == b.Hash() {
		t.Error("version change must change the hash")
	}

	c := a
	c.Metadata = map[string]any{"owner": "platform"}
	if a.Hash() != c.Hash() {
		t.Error("metadata must not affect the hash")
	}

	// Field boundaries matter: id "ab"+template "c" vs id "a"+template "bc".
	d := Prompt{ID: "ab", Version: 1, Template: "c"}
	e := Prompt{ID: "a", Version: 1, Template: "bc"}
	if d.Hash() == e.Hash() {
		t.Error("field boundaries must be part of the hash")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "a.yaml", "id: a\ntemplate: one\n")
	writePrompt(t, dir, "b.yml", "id: b\ntemplate: two\n")
	writePrompt(t, dir, "notes.txt", "ignore me")

	prompts, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	if len(prompts) != 2 {
		t.Fatalf("LoadDir() loaded %d prompts, want 2", len(prompts))
	}
}

func TestLoadDirRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "bad.yaml", "id: bad\n") // no template

	if _, err := LoadDir(dir); err == nil {
		t.Error("LoadDir() must reject prompts that fail validation")
	}
}

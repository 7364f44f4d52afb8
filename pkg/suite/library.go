package suite

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a single TestSuite from a YAML file.
func Load(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading suite file %s: %w", path, err)
	}

	var s TestSuite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing suite file %s: %w", path, err)
	}
	return &s, nil
}

// Library is an in-memory catalog of suites addressable two ways: by the
// source key used in "<source>#<name>" references, and by suite name for
// includes. It is immutable once handed to a run.
type Library struct {
	bySource map[string]*TestSuite
	byName   map[string]*TestSuite
}

// NewLibrary returns an empty Library.
func NewLibrary() *Library {
	return &Library{
		bySource: make(map[string]*TestSuite),
		byName:   make(map[string]*TestSuite),
	}
}

// Add registers a suite under the given source key and under its own name.
// Registering two suites with the same name or source key is an error.
func (l *Library) Add(source string, s *TestSuite) error {
	if _, ok := l.bySource[source]; ok {
		return fmt.Errorf("duplicate suite source %q", source)
	}
	if other, ok := l.byName[s.Name]; ok && other != s {
		return fmt.Errorf("duplicate suite name %q", s.Name)
	}
	l.bySource[source] = s
	l.byName[s.Name] = s
	return nil
}

// Suite looks a suite up by name, as used by includes.
func (l *Library) Suite(name string) (*TestSuite, bool) {
	s, ok := l.byName[name]
	return s, ok
}

// TestCase looks a case up by reference source and case name.
func (l *Library) TestCase(source, name string) (*TestCase, bool) {
	s, ok := l.bySource[source]
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

// Suites returns all registered suites keyed by source, for listing.
func (l *Library) Suites() map[string]*TestSuite {
	out := make(map[string]*TestSuite, len(l.bySource))
	for k, v := range l.bySource {
		out[k] = v
	}
	return out
}

// LoadDir walks dir for .yaml and .yml files and loads each as a TestSuite
// into a new Library. The source key for each suite is its path relative to
// dir with the extension stripped, so "shared/common.yaml" is referenced as
// "shared/common#<case>". Every loaded suite is validated.
func LoadDir(dir string) (*Library, error) {
	lib := NewLibrary()

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		s, err := Load(path)
		if err != nil {
			return err
		}
		if err := s.Validate(); err != nil {
			return err
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		source := filepath.ToSlash(strings.TrimSuffix(rel, ext))
		return lib.Add(source, s)
	})
	if err != nil {
		return nil, fmt.Errorf("loading suites from %s: %w", dir, err)
	}
	return lib, nil
}

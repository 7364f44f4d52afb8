package evaluator

import (
	"fmt"
	"sort"
	"strings"
)

// Factory constructs an evaluator from its merged parameters.
type Factory func(params map[string]any) (Evaluator, error)

// UnknownEvaluatorError reports a resolved method name with no registered
// factory. It is fatal for the test it occurs on, never for the run.
type UnknownEvaluatorError struct {
	Method string
	Known  []string
}

func (e *UnknownEvaluatorError) Error() string {
	return fmt.Sprintf("unknown evaluation method %q (known: %s)", e.Method, strings.Join(e.Known, ", "))
}

// Registry maps method names to evaluator factories. It is constructed
// explicitly and injected into the engine at run start; there is no
// process-wide registry state. A Registry is read-only once handed to a
// run and safe for concurrent use.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given method name. Re-registering a
// name is an error; registries are assembled once.
func (r *Registry) Register(method string, f Factory) error {
	if method == "" {
		return fmt.Errorf("evaluation method name must not be empty")
	}
	if _, ok := r.factories[method]; ok {
		return fmt.Errorf("evaluation method %q already registered", method)
	}
	r.factories[method] = f
	return nil
}

// Methods returns the registered method names, sorted.
func (r *Registry) Methods() []string {
	out := make([]string, 0, len(r.factories))
	for m := range r.factories {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Dispatch constructs the evaluator for the given method and merged
// parameters. An unregistered method yields *UnknownEvaluatorError.
func (r *Registry) Dispatch(method string, params map[string]any) (Evaluator, error) {
	f, ok := r.factories[method]
	if !ok {
		return nil, &UnknownEvaluatorError{Method: method, Known: r.Methods()}
	}
	ev, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("constructing %q evaluator: %w", method, err)
	}
	return ev, nil
}

// Builtins returns a Registry pre-populated with the well-known methods:
// regex, criteria, and schema score locally; semantic and api delegate to
// the given scorer; custom resolves a caller-registered factory named by
// the "evaluator" parameter. A nil scorer leaves semantic and api
// registered but failing at construction with a descriptive error.
func Builtins(scorer Scorer, custom map[string]Factory) *Registry {
	r := NewRegistry()
	r.factories["regex"] = newRegex
	r.factories["criteria"] = newCriteria
	r.factories["schema"] = newSchema
	r.factories["semantic"] = newDelegating("semantic", scorer)
	r.factories["api"] = newDelegating("api", scorer)
	r.factories["custom"] = newCustom(custom)
	return r
}

// newCustom builds the "custom" factory: params must carry an "evaluator"
// key naming one of the caller-provided factories, which receives the full
// merged params as its constructor arguments.
func newCustom(custom map[string]Factory) Factory {
	return func(params map[string]any) (Evaluator, error) {
		name, err := stringParam(params, "evaluator")
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("custom evaluation requires an \"evaluator\" parameter")
		}
		f, ok := custom[name]
		if !ok {
			known := make([]string, 0, len(custom))
			for n := range custom {
				known = append(known, n)
			}
			sort.Strings(known)
			return nil, &UnknownEvaluatorError{Method: "custom:" + name, Known: known}
		}
		return f(params)
	}
}

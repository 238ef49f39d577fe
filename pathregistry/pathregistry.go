// Package pathregistry resolves every external binary the module shells
// out to at boot time, storing absolute paths so nothing after boot ever
// depends on the runtime PATH. Closes the PATH-poisoning attack class
// described in spec.md §4.5.
//
// Grounded line-for-line on original_source/core/path_registry.py's
// REQUIRED_BINARIES/OPTIONAL_BINARIES tables and resolve_all control flow.
package pathregistry

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// RequiredBinaries are hard requirements: Resolve fails boot if any of
// these cannot be found.
var RequiredBinaries = map[string][]string{
	"python": {"python3", "python"},
	"git":    {"git"},
}

// OptionalBinaries support servertrust's process-identity checks. Missing
// entries only produce a warning and disable the checks that need them.
var OptionalBinaries = map[string][]string{
	"netstat": {"netstat"},
	"ps":      {"ps"},
	"lsof":    {"lsof"},
}

// Registry holds resolved absolute binary paths after Resolve runs.
type Registry struct {
	paths    map[string]string
	warnings []string
}

// New returns an empty Registry. Call Resolve before using Get/GetOptional.
func New() *Registry {
	return &Registry{paths: make(map[string]string)}
}

// Resolve looks up every required and optional binary via exec.LookPath,
// canonicalizing each hit through EvalSymlinks. It returns an error
// immediately if any required binary cannot be found; optional misses are
// recorded as warnings and otherwise ignored.
func (r *Registry) Resolve() error {
	r.paths = make(map[string]string)
	r.warnings = nil

	var missing []string
	names := sortedKeys(RequiredBinaries)
	for _, name := range names {
		path, ok := resolveOne(RequiredBinaries[name])
		if ok {
			r.paths[name] = path
		} else {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("pathregistry: required binaries not found: %s "+
			"(ensure they are installed and on PATH)", strings.Join(missing, ", "))
	}

	optNames := sortedKeys(OptionalBinaries)
	for _, name := range optNames {
		path, ok := resolveOne(OptionalBinaries[name])
		if ok {
			r.paths[name] = path
		} else {
			r.warnings = append(r.warnings,
				fmt.Sprintf("optional binary %q not found — some security checks will be skipped", name))
		}
	}

	return nil
}

func resolveOne(candidates []string) (string, bool) {
	for _, candidate := range candidates {
		path, err := exec.LookPath(candidate)
		if err != nil {
			continue
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			real = path
		}
		abs, err := filepath.Abs(real)
		if err != nil {
			abs = real
		}
		return abs, true
	}
	return "", false
}

// Get returns the resolved absolute path for a required binary. Panics if
// name was never resolved — callers only ask for binaries they declared,
// and Resolve having succeeded guarantees every required name is present.
func (r *Registry) Get(name string) string {
	path, ok := r.paths[name]
	if !ok {
		panic(fmt.Sprintf("pathregistry: binary %q not in registry", name))
	}
	return path
}

// GetOptional returns the resolved path and true, or ("", false) if the
// optional binary was not found at boot.
func (r *Registry) GetOptional(name string) (string, bool) {
	path, ok := r.paths[name]
	return path, ok
}

// Warnings lists missing-optional-binary warnings from the last Resolve.
func (r *Registry) Warnings() []string {
	out := make([]string, len(r.warnings))
	copy(out, r.warnings)
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

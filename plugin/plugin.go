// Package plugin loads user-defined tools from an explicitly-configured
// plugins directory via a declarative, stable-ABI manifest, per spec.md
// §9's redesign guidance.
//
// Grounded on original_source/core/plugin_loader.py's
// load_plugins/check_unexpected_plugins/format_plugin_tool_docs control
// flow, redesigned: Python's importlib dynamic-module-exec model has no
// safe equivalent in a systems language, so a plugin here is a TOML
// manifest naming an external executable and the tools it exposes, not a
// dynamically loaded code object. Each tool call execs the plugin binary
// once, writing JSON args to stdin and reading a JSON result from stdout —
// the same boundary the teacher draws around `tools/bash.go`'s subprocess
// calls, just pointed at a user binary instead of the shell.
package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ToolSpec declares one tool a plugin manifest exposes.
type ToolSpec struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
}

// Manifest is a single plugin.toml file's contents: the command to exec
// for every tool call it declares.
type Manifest struct {
	Command []string   `toml:"command"`
	Tools   []ToolSpec `toml:"tools"`
}

// LoadResult reports the outcome of loading a single plugin manifest.
type LoadResult struct {
	Name  string
	File  string
	OK    bool
	Error string
	Tools []string
}

// Plugin is a loaded manifest bound to its source file, ready to dispatch
// tool calls.
type Plugin struct {
	Name     string
	File     string
	Manifest Manifest
}

const manifestSuffix = ".plugin.toml"

// Load reads every *.plugin.toml manifest from dir (skipping dotfiles and
// underscore-prefixed names) and returns the loaded plugins alongside a
// per-file result log. It never executes a plugin binary; it only parses
// manifests.
func Load(dir string) ([]Plugin, []LoadResult) {
	var plugins []Plugin
	var results []LoadResult

	entries, err := os.ReadDir(dir)
	if err != nil {
		return plugins, results
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		if !strings.HasSuffix(name, manifestSuffix) {
			continue
		}
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		stem := strings.TrimSuffix(name, manifestSuffix)

		var m Manifest
		if _, err := toml.DecodeFile(path, &m); err != nil {
			results = append(results, LoadResult{Name: stem, File: path, OK: false, Error: err.Error()})
			continue
		}
		if len(m.Command) == 0 {
			results = append(results, LoadResult{Name: stem, File: path, OK: false, Error: "manifest has no command"})
			continue
		}
		if len(m.Tools) == 0 {
			results = append(results, LoadResult{Name: stem, File: path, OK: false, Error: "manifest declares no tools"})
			continue
		}

		toolNames := make([]string, len(m.Tools))
		for i, ts := range m.Tools {
			toolNames[i] = ts.Name
		}
		sort.Strings(toolNames)

		plugins = append(plugins, Plugin{Name: stem, File: path, Manifest: m})
		results = append(results, LoadResult{Name: stem, File: path, OK: true, Tools: toolNames})
	}

	return plugins, results
}

// CheckUnexpected reports *.plugin.toml filenames present in dir without
// loading them. Used when no --plugins-dir flag was passed, so an
// unconfigured directory full of manifests is surfaced as a warning rather
// than silently loaded.
func CheckUnexpected(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var unexpected []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, manifestSuffix) {
			continue
		}
		if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		unexpected = append(unexpected, name)
	}
	sort.Strings(unexpected)
	return unexpected
}

// pluginRequest is written to the plugin process's stdin as JSON.
type pluginRequest struct {
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args"`
}

// pluginResponse is read back from the plugin process's stdout as JSON.
type pluginResponse struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

// Invoke execs p's declared command, passing tool and args as a JSON
// request on stdin, and decodes a JSON response from stdout. The process
// is killed if ctx is cancelled or times out.
func (p Plugin) Invoke(ctx context.Context, tool string, args json.RawMessage) (json.RawMessage, error) {
	req, err := json.Marshal(pluginRequest{Tool: tool, Args: args})
	if err != nil {
		return nil, fmt.Errorf("plugin %s: encode request: %w", p.Name, err)
	}

	cmd := exec.CommandContext(ctx, p.Manifest.Command[0], p.Manifest.Command[1:]...)
	cmd.Stdin = bytes.NewReader(req)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("plugin %s: %w (stderr: %s)", p.Name, err, strings.TrimSpace(stderr.String()))
	}

	var resp pluginResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("plugin %s: malformed response: %w", p.Name, err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("plugin %s: %s", p.Name, resp.Error)
	}
	return resp.Data, nil
}

// ToolDocs returns every tool the plugin's manifest declares.
func (p Plugin) ToolDocs() []ToolSpec {
	return p.Manifest.Tools
}

// FormatToolDocs generates system-prompt documentation for every loaded
// plugin's tools, or "" if plugins is empty.
func FormatToolDocs(plugins []Plugin) string {
	if len(plugins) == 0 {
		return ""
	}
	var entries []ToolSpec
	for _, p := range plugins {
		entries = append(entries, p.Manifest.Tools...)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	lines := []string{"\n# Plugin Tools (user-installed)"}
	for _, t := range entries {
		lines = append(lines, fmt.Sprintf("::TOOL %s(...):: — %s", t.Name, t.Description))
	}
	return strings.Join(lines, "\n")
}

// DefaultTimeout bounds how long a plugin invocation may run before the
// context driving Invoke is cancelled.
const DefaultTimeout = 30 * time.Second

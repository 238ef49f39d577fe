package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSkipsNonManifestFiles(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "notes.txt", "hello")
	plugins, results := Load(dir)
	if len(plugins) != 0 || len(results) != 0 {
		t.Errorf("expected no plugins loaded, got %+v %+v", plugins, results)
	}
}

func TestLoadSkipsDotAndUnderscorePrefixed(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "_draft.plugin.toml", `command = ["echo"]`)
	writeManifest(t, dir, ".hidden.plugin.toml", `command = ["echo"]`)
	plugins, results := Load(dir)
	if len(plugins) != 0 || len(results) != 0 {
		t.Errorf("expected prefixed manifests skipped, got %+v %+v", plugins, results)
	}
}

func TestLoadValidManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "wordcount.plugin.toml", `
command = ["python3", "wordcount.py"]

[[tools]]
name = "word_count"
description = "Count words in text"
`)
	plugins, results := Load(dir)
	if len(plugins) != 1 {
		t.Fatalf("expected 1 plugin, got %+v", plugins)
	}
	if plugins[0].Name != "wordcount" {
		t.Errorf("expected name 'wordcount', got %q", plugins[0].Name)
	}
	if len(results) != 1 || !results[0].OK {
		t.Fatalf("expected ok result, got %+v", results)
	}
	if len(results[0].Tools) != 1 || results[0].Tools[0] != "word_count" {
		t.Errorf("expected tool word_count listed, got %v", results[0].Tools)
	}
}

func TestLoadManifestMissingCommandFails(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "broken.plugin.toml", `
[[tools]]
name = "x"
description = "y"
`)
	plugins, results := Load(dir)
	if len(plugins) != 0 {
		t.Errorf("expected no plugins loaded for missing command")
	}
	if len(results) != 1 || results[0].OK {
		t.Fatalf("expected failed result, got %+v", results)
	}
}

func TestLoadManifestNoToolsFails(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "empty.plugin.toml", `command = ["echo"]`)
	plugins, results := Load(dir)
	if len(plugins) != 0 {
		t.Errorf("expected no plugins loaded for empty tool list")
	}
	if len(results) != 1 || results[0].OK {
		t.Fatalf("expected failed result, got %+v", results)
	}
}

func TestLoadMissingDirReturnsEmpty(t *testing.T) {
	plugins, results := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if len(plugins) != 0 || len(results) != 0 {
		t.Errorf("expected empty results for missing dir, got %+v %+v", plugins, results)
	}
}

func TestCheckUnexpectedListsManifests(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "b.plugin.toml", `command = ["echo"]`)
	writeManifest(t, dir, "a.plugin.toml", `command = ["echo"]`)
	writeManifest(t, dir, "_skip.plugin.toml", `command = ["echo"]`)
	unexpected := CheckUnexpected(dir)
	if len(unexpected) != 2 || unexpected[0] != "a.plugin.toml" || unexpected[1] != "b.plugin.toml" {
		t.Errorf("expected sorted [a.plugin.toml b.plugin.toml], got %v", unexpected)
	}
}

func TestFormatToolDocsEmptyForNoPlugins(t *testing.T) {
	if got := FormatToolDocs(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestFormatToolDocsListsTools(t *testing.T) {
	plugins := []Plugin{{
		Name: "demo",
		Manifest: Manifest{
			Tools: []ToolSpec{{Name: "word_count", Description: "Count words in text"}},
		},
	}}
	doc := FormatToolDocs(plugins)
	if !strings.Contains(doc, "word_count") || !strings.Contains(doc, "Count words in text") {
		t.Errorf("expected tool doc entry, got %q", doc)
	}
}

func TestInvokeRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell script test")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "echo_plugin.sh")
	scriptBody := "#!/bin/sh\ncat <<'EOF'\n{\"ok\": true, \"data\": {\"result\": \"pong\"}}\nEOF\n"
	if err := os.WriteFile(script, []byte(scriptBody), 0o755); err != nil {
		t.Fatal(err)
	}

	p := Plugin{
		Name: "echoer",
		Manifest: Manifest{
			Command: []string{"/bin/sh", script},
			Tools:   []ToolSpec{{Name: "ping", Description: "pong back"}},
		},
	}

	data, err := p.Invoke(context.Background(), "ping", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	var result struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if result.Result != "pong" {
		t.Errorf("expected 'pong', got %q", result.Result)
	}
}

func TestInvokeReportsPluginError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell script test")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "fail_plugin.sh")
	scriptBody := "#!/bin/sh\ncat <<'EOF'\n{\"ok\": false, \"error\": \"boom\"}\nEOF\n"
	if err := os.WriteFile(script, []byte(scriptBody), 0o755); err != nil {
		t.Fatal(err)
	}

	p := Plugin{Name: "failer", Manifest: Manifest{Command: []string{"/bin/sh", script}}}
	_, err := p.Invoke(context.Background(), "x", json.RawMessage(`{}`))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected error containing 'boom', got %v", err)
	}
}

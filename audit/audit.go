// Package audit implements the append-only structured event log described in
// spec.md §4 and §6: one JSONL file per session, gap-free monotonic sequence
// numbers, flush-after-write, lazy-open-on-first-write.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Log is an append-only JSONL event writer. Per spec.md §5, the log file is
// held by a single writer for the session; Log is not safe to share across
// goroutines writing concurrently without its own mutex, which it holds.
type Log struct {
	mu        sync.Mutex
	dir       string
	prefix    string
	path      string
	sessionID string
	seq       int
	start     time.Time
	file      *os.File
}

// New creates a Log that lazily opens prefix-<YYYYMMDD-HHMMSS>.jsonl inside
// dir on the first write. prefix defaults to ".sentrycore-audit" when empty.
func New(dir, prefix string) *Log {
	if prefix == "" {
		prefix = ".sentrycore-audit"
	}
	now := time.Now()
	ts := now.Format("20060102-150405")
	return &Log{
		dir:       dir,
		prefix:    prefix,
		path:      filepath.Join(dir, fmt.Sprintf("%s-%s.jsonl", prefix, ts)),
		sessionID: uuid.NewString(),
		start:     now,
	}
}

// Path returns the log file path (valid even before the file is created).
func (l *Log) Path() string { return l.path }

// SessionID returns the correlation ID assigned to this log at construction.
func (l *Log) SessionID() string { return l.sessionID }

// EventCount returns the number of events written so far.
func (l *Log) EventCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

func (l *Log) ensureOpen() error {
	if l.file != nil {
		return nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create audit log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	l.file = f
	return nil
}

// write appends one event. Sequence numbers are gap-free and assigned here,
// under the lock, so ordering invariants hold regardless of caller goroutine.
func (l *Log) write(event string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureOpen(); err != nil {
		return
	}

	l.seq++
	entry := map[string]any{
		"seq":       l.seq,
		"ts":        time.Now().UTC().Format(time.RFC3339Nano),
		"elapsed_s": time.Since(l.start).Seconds(),
		"event":     event,
	}
	for k, v := range fields {
		entry[k] = v
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.file.Write(data)
	l.file.Write([]byte("\n"))
	l.file.Sync()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// SessionStart logs session configuration at boot.
func (l *Log) SessionStart(backend, template, model string, ctxSize int, plugins []string) {
	if plugins == nil {
		plugins = []string{}
	}
	l.write("session_start", map[string]any{
		"session_id": l.sessionID,
		"backend":    backend,
		"template":   template,
		"model":      model,
		"ctx_size":   ctxSize,
		"plugins":    plugins,
	})
}

// SessionEnd logs summary stats and closes the file.
func (l *Log) SessionEnd(turns, toolCalls int, errorRate float64) {
	l.write("session_end", map[string]any{
		"turns":      turns,
		"tool_calls": toolCalls,
		"error_rate": errorRate,
		"duration_s": time.Since(l.start).Seconds(),
	})
	l.Close()
}

// ToolCall logs a single tool execution.
func (l *Log) ToolCall(name, args string, ok bool, durationMs int, errMsg string, round int, plugin bool) {
	l.write("tool_call", map[string]any{
		"tool":        name,
		"args":        truncate(args, 500),
		"ok":          ok,
		"duration_ms": durationMs,
		"error":       truncate(errMsg, 300),
		"round":       round,
		"plugin":      plugin,
	})
}

// Generation logs a model generation round.
func (l *Log) Generation(tokensEst, durationMs int, ok bool, errMsg string, rounds int) {
	l.write("generation", map[string]any{
		"tokens_est":  tokensEst,
		"duration_ms": durationMs,
		"ok":          ok,
		"error":       truncate(errMsg, 300),
		"rounds":      rounds,
	})
}

// PermissionCheck logs a permission decision.
func (l *Log) PermissionCheck(tool string, allowed bool, mode string) {
	l.write("permission", map[string]any{
		"tool":    tool,
		"allowed": allowed,
		"mode":    mode,
	})
}

// SandboxBlock logs a sandbox rejection. Implements sandbox.AuditSink.
func (l *Log) SandboxBlock(tool, reason, args string) {
	l.write("sandbox_block", map[string]any{
		"tool":   tool,
		"reason": truncate(reason, 300),
		"args":   truncate(args, 200),
	})
}

// SandboxApproved logs a runtime-approval allow-set extension. Implements
// sandbox.AuditSink.
func (l *Log) SandboxApproved(path string) {
	l.write("sandbox_approved", map[string]any{"path": path})
}

// SensitiveRead logs a read of a file matching a sensitive-file pattern.
// Implements sandbox.AuditSink.
func (l *Log) SensitiveRead(path string) {
	l.write("sensitive_read", map[string]any{"path": path})
}

// Error logs a captured error.
func (l *Log) Error(source, message string) {
	l.write("error", map[string]any{
		"source":  source,
		"message": truncate(message, 500),
	})
}

// Command logs a slash command invocation.
func (l *Log) Command(cmd string) {
	l.write("command", map[string]any{"cmd": cmd})
}

// ConfabFlag logs a confabulation-detector finding.
func (l *Log) ConfabFlag(heuristic, severity, detail string) {
	l.write("confab", map[string]any{
		"heuristic": heuristic,
		"severity":  severity,
		"detail":    truncate(detail, 300),
	})
}

// ContextPressure logs context-window budget pressure.
func (l *Log) ContextPressure(totalTokens, headroom, compressed int) {
	l.write("context_pressure", map[string]any{
		"total_tokens": totalTokens,
		"headroom":     headroom,
		"compressed_msgs": compressed,
	})
}

// ProvenanceGated logs a tool call refused because the provenance gate was
// set for the remainder of the turn.
func (l *Log) ProvenanceGated(tool string) {
	l.write("provenance_gated", map[string]any{"tool": tool})
}

// PluginLoaded logs a plugin tool registration, per spec.md §9's
// plugin=true audit requirement.
func (l *Log) PluginLoaded(name, file string, ok bool, errMsg string) {
	l.write("plugin_loaded", map[string]any{
		"name":   name,
		"file":   file,
		"ok":     ok,
		"error":  truncate(errMsg, 300),
		"plugin": true,
	})
}

// Close flushes and closes the underlying file. Safe to call multiple times.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Sync()
		l.file.Close()
		l.file = nil
	}
}

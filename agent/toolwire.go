package agent

import (
	"encoding/json"
	"fmt"

	"github.com/kestrel-forge/sentrycore/llm"
	"github.com/kestrel-forge/sentrycore/toolproto"
)

// wireToInternal maps spec.md §4.2's model-facing tool vocabulary onto this
// repo's internal tools.Registry names, which predate the wire protocol and
// still match original_source's shorter, teacher-style names.
var wireToInternal = map[string]string{
	"file_read":   "read",
	"glob_search": "glob",
	"grep_search": "grep",
	"ls":          "ls",
	"file_write":  "write",
	"file_edit":   "edit",
	"bash_exec":   "bash",
	"explore":     "explore",
	"write_tasks": "write_tasks",
	"update_task": "update_task",
	"read_tasks":  "read_tasks",
	"git_status":  "git_status",
	"git_diff":    "git_diff",
	"git_log":     "git_log",
	"git_show":    "git_show",
	"git_branch":  "git_branch",
	"git_add":     "git_add",
	"git_commit":  "git_commit",
}

var internalToWire = func() map[string]string {
	out := make(map[string]string, len(wireToInternal))
	for wire, internal := range wireToInternal {
		out[internal] = wire
	}
	return out
}()

// knownWireTool reports whether name is a recognized wire-protocol tool
// name, used as toolproto.Parse's fallback-syntax filter.
func (a *Agent) knownWireTool(name string) bool {
	_, ok := wireToInternal[name]
	return ok
}

// strVal and friends pull a positional-or-keyword argument out of a parsed
// toolproto.Call, falling back across positions the way a caller who
// skipped optional leading args would expect.
func strVal(positional []any, keyword map[string]any, key string, pos int) (string, bool) {
	if v, ok := keyword[key]; ok {
		s, ok := v.(string)
		return s, ok
	}
	if pos < len(positional) {
		s, ok := positional[pos].(string)
		return s, ok
	}
	return "", false
}

func boolVal(positional []any, keyword map[string]any, key string, pos int) (bool, bool) {
	if v, ok := keyword[key]; ok {
		b, ok := v.(bool)
		return b, ok
	}
	if pos < len(positional) {
		b, ok := positional[pos].(bool)
		return b, ok
	}
	return false, false
}

func intVal(positional []any, keyword map[string]any, key string, pos int) (int, bool) {
	toInt := func(v any) (int, bool) {
		switch n := v.(type) {
		case int:
			return n, true
		case float64:
			return int(n), true
		}
		return 0, false
	}
	if v, ok := keyword[key]; ok {
		return toInt(v)
	}
	if pos < len(positional) {
		return toInt(positional[pos])
	}
	return 0, false
}

// buildToolInput translates a parsed wire-protocol call's arguments into the
// json.RawMessage shape the named internal tool expects. Grounded on each
// tool's json-schema description in tools/registry.go and tools/git.go.
func buildToolInput(internalName string, positional []any, keyword map[string]any) (json.RawMessage, error) {
	obj := map[string]any{}

	switch internalName {
	case "read":
		if v, ok := strVal(positional, keyword, "path", 0); ok {
			obj["path"] = v
		}
		if v, ok := intVal(positional, keyword, "start_line", 1); ok {
			obj["start_line"] = v
		}
		if v, ok := intVal(positional, keyword, "end_line", 2); ok {
			obj["end_line"] = v
		}
	case "glob":
		if v, ok := strVal(positional, keyword, "pattern", 0); ok {
			obj["pattern"] = v
		}
	case "grep":
		if v, ok := strVal(positional, keyword, "pattern", 0); ok {
			obj["pattern"] = v
		}
		if v, ok := strVal(positional, keyword, "path", 1); ok {
			obj["path"] = v
		}
		if v, ok := strVal(positional, keyword, "include", 2); ok {
			obj["include"] = v
		}
	case "ls":
		if v, ok := strVal(positional, keyword, "path", 0); ok {
			obj["path"] = v
		}
	case "write":
		if v, ok := strVal(positional, keyword, "path", 0); ok {
			obj["path"] = v
		}
		if v, ok := strVal(positional, keyword, "content", 1); ok {
			obj["content"] = v
		}
	case "edit":
		if v, ok := strVal(positional, keyword, "path", 0); ok {
			obj["path"] = v
		}
		if v, ok := strVal(positional, keyword, "old_str", 1); ok {
			obj["old_str"] = v
		}
		if v, ok := strVal(positional, keyword, "new_str", 2); ok {
			obj["new_str"] = v
		}
	case "bash":
		if v, ok := strVal(positional, keyword, "command", 0); ok {
			obj["command"] = v
		}
		if v, ok := intVal(positional, keyword, "timeout", 1); ok {
			obj["timeout"] = v
		}
	case "explore":
		if v, ok := strVal(positional, keyword, "task", 0); ok {
			obj["task"] = v
		}
	case "write_tasks":
		// Structured array arguments don't fit the wire grammar's literal-only
		// parser (spec.md §4.2), so write_tasks is called with the entire
		// tasks array as one JSON-encoded string argument, per ParseArgs'
		// tier-3 whole-string fallback.
		if len(positional) == 0 {
			return nil, fmt.Errorf("write_tasks requires a JSON array argument")
		}
		raw, ok := positional[0].(string)
		if !ok {
			return nil, fmt.Errorf("write_tasks argument must be a string")
		}
		return json.RawMessage(fmt.Sprintf(`{"tasks":%s}`, raw)), nil
	case "update_task":
		if v, ok := intVal(positional, keyword, "id", 0); ok {
			obj["id"] = v
		}
		if v, ok := strVal(positional, keyword, "status", 1); ok {
			obj["status"] = v
		}
	case "read_tasks":
		// no arguments
	case "git_status", "git_branch":
		// no arguments
	case "git_diff":
		if v, ok := boolVal(positional, keyword, "staged", 0); ok {
			obj["staged"] = v
		}
	case "git_log":
		if v, ok := intVal(positional, keyword, "count", 0); ok {
			obj["count"] = v
		}
		if v, ok := boolVal(positional, keyword, "oneline", 1); ok {
			obj["oneline"] = v
		}
	case "git_show":
		if v, ok := strVal(positional, keyword, "ref", 0); ok {
			obj["ref"] = v
		}
	case "git_add":
		if v, ok := strVal(positional, keyword, "files", 0); ok {
			obj["files"] = v
		}
	case "git_commit":
		if v, ok := strVal(positional, keyword, "message", 0); ok {
			obj["message"] = v
		}
	default:
		return nil, fmt.Errorf("unknown tool: %s", internalName)
	}

	return json.Marshal(obj)
}

// wireResultMessage formats a tool's output as a toolproto-wrapped result
// string, ready to be appended to history as a plain-text turn. Every
// tool_result reinjected into context goes through here so that spec.md
// §4.2's sanitization and cognitive anchors apply regardless of whether the
// call arrived via native function-calling or the `::TOOL::` wire syntax.
func wireResultMessage(internalName string, ok bool, output, errMsg string, durationMs int64) string {
	wireName, ok2 := internalToWire[internalName]
	if !ok2 {
		wireName = internalName
	}
	data := any(output)
	if !ok {
		data = nil
	}
	return toolproto.FormatResult(wireName, toolproto.Result{
		OK:         ok,
		Data:       data,
		Error:      errMsg,
		DurationMs: durationMs,
	})
}

// extractWireToolCalls scans assistant text for `::TOOL name(args)::` (or
// the bare `::name(args)::` fallback) per spec.md §6's model→agent wire
// format, translates each parsed call's arguments into the internal
// registry's json.RawMessage input shape, and returns them as synthesized
// llm.ToolCall values so they flow through the same dispatch, provenance
// gating, and result-formatting path as native function-calling. This is
// the only call site for toolproto.Parse/buildToolInput: most providers
// return structured tool_calls directly, but a model that falls back to
// emitting wire syntax in its text (the behavior spec.md §4.2 describes)
// must still have those calls recognized, validated, and sanitized.
func (a *Agent) extractWireToolCalls(text string) []llm.ToolCall {
	parsed := toolproto.Parse(text, a.knownWireTool)
	if len(parsed) == 0 {
		return nil
	}

	var calls []llm.ToolCall
	for i, call := range parsed {
		internalName, ok := wireToInternal[call.Name]
		if !ok {
			continue
		}
		positional, keyword := toolproto.ParseArgs(call.ArgsStr)
		input, err := buildToolInput(internalName, positional, keyword)
		if err != nil {
			continue
		}
		calls = append(calls, llm.ToolCall{
			ID:   fmt.Sprintf("wire_%d", i),
			Type: "function",
			Function: llm.FunctionCall{
				Name:      internalName,
				Arguments: string(input),
			},
		})
	}
	return calls
}

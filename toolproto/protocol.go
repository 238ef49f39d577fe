// Package toolproto implements the model-facing tool-call wire protocol of
// spec.md §4.2 and §6: parsing `::TOOL name(args)::` (and the bare
// `::name(args)::` fallback) out of free-form model text, timeout-bounded
// dispatch through a Registry, and `[TOOL_RESULT name]...[/TOOL_RESULT]`
// result formatting with prompt-injection sanitization and cognitive
// anchors.
//
// Grounded line-for-line on original_source/core/tool_protocol.py; restructured
// per spec.md §9 into a Registry/Dispatcher pair instead of a module-level
// global so multiple registries (e.g. the explore sub-agent's read-only set)
// can coexist without interference.
package toolproto

import (
	"regexp"
	"strings"
)

// toolRe matches `::TOOL name(args)::`, optional whitespace before the
// closing `::`. (?s) makes `.` match newlines so multiline args parse.
var toolRe = regexp.MustCompile(`(?s)::TOOL\s+(\w+)\((.*?)\)\s*::`)

// toolReFallback matches the bare `::name(args)::` form some models emit
// when they skip the TOOL keyword. Only accepted when name is registered.
var toolReFallback = regexp.MustCompile(`(?s)::(\w+)\((.*?)\)\s*::`)

// Call is a single parsed tool invocation, ephemeral for the turn it
// appeared in.
type Call struct {
	Name    string
	ArgsStr string
}

// Parse extracts tool calls from model output text using the primary
// `::TOOL name(args)::` syntax. If no primary matches are found, it falls
// back to the bare `::name(args)::` form, accepting only names present in
// known (the registry's tool-name set), to avoid false positives on
// arbitrary "::word(...)::"-shaped text. Returns calls in source order;
// trailing text after the last closing `::` is never considered.
func Parse(text string, known func(name string) bool) []Call {
	matches := toolRe.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 {
		calls := make([]Call, 0, len(matches))
		for _, m := range matches {
			calls = append(calls, Call{Name: m[1], ArgsStr: strings.TrimSpace(m[2])})
		}
		return calls
	}

	fallback := toolReFallback.FindAllStringSubmatch(text, -1)
	var calls []Call
	for _, m := range fallback {
		if known != nil && known(m[1]) {
			calls = append(calls, Call{Name: m[1], ArgsStr: strings.TrimSpace(m[2])})
		}
	}
	return calls
}

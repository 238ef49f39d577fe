package toolproto

import "regexp"

// injectionPattern pairs a pattern with the marker it's replaced with.
// Grounded line-for-line on original_source/core/tool_protocol.py's
// _INJECTION_PATTERNS.
type injectionPattern struct {
	re          *regexp.Regexp
	replacement string
}

var injectionPatterns = []injectionPattern{
	{
		regexp.MustCompile(`(?im)(^|\n)\s*(SYSTEM|INSTRUCTION|IMPORTANT|OVERRIDE|IGNORE PREVIOUS|DISREGARD|NEW INSTRUCTIONS?)[\s:]+[^\n]*`),
		"\n[SANITIZED: instruction-like pattern removed]",
	},
	{
		regexp.MustCompile(`(?i)<\|(im_start|im_end|system|user|assistant)\|>`),
		"[SANITIZED: chat template tag removed]",
	},
	{
		regexp.MustCompile(`(?im)(^|\n)\s*(###\s*)?(System|Assistant|User)\s*(:|message)`),
		"[SANITIZED: role injection removed]",
	},
	{
		regexp.MustCompile(`(?i)\[TOOL_RESULT\s+\w+\]`),
		"[SANITIZED: fake tool result removed]",
	},
	{
		regexp.MustCompile(`(?i)\[/TOOL_RESULT\]`),
		"[SANITIZED: fake tool result removed]",
	},
	{
		regexp.MustCompile(`(?i)::TOOL\s+\w+\(`),
		"[SANITIZED: tool call injection removed]",
	},
}

// sanitize neutralizes prompt-injection-shaped text before it's wrapped into
// a tool_result. Defense-in-depth: it won't catch everything, but it raises
// the bar against naive injection attacks embedded in file/tool content.
func sanitize(text string) string {
	for _, p := range injectionPatterns {
		text = p.re.ReplaceAllString(text, p.replacement)
	}
	return text
}

// triggerPatterns flag conditional-execution directive language, grounded on
// original_source/core/tool_protocol.py's _TRIGGER_PATTERNS.
var triggerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)when you see`),
	regexp.MustCompile(`(?i)when user says`),
	regexp.MustCompile(`(?i)when the user`),
	regexp.MustCompile(`(?i)if the user`),
	regexp.MustCompile(`(?i)if you see the phrase`),
	regexp.MustCompile(`(?i)on the next message`),
	regexp.MustCompile(`(?i)on the phrase`),
	regexp.MustCompile(`(?i)the phrase\b`),
	regexp.MustCompile(`(?i)trigger\b`),
	regexp.MustCompile(`(?i)activation\b`),
	regexp.MustCompile(`(?i)acknowledge by running`),
	regexp.MustCompile(`(?i)respond by running`),
}

// detectTriggerPatterns scans text for conditional-trigger language, used to
// append a second WARNING anchor after read-family tool results.
func detectTriggerPatterns(text string) (found int) {
	for _, p := range triggerPatterns {
		if p.MatchString(text) {
			found++
		}
	}
	return found
}

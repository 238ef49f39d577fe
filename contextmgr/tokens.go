// Package contextmgr implements the bounded conversation context of
// spec.md §4.3: a word-length-tiered token estimator, three-phase budget
// compression (compress consumed tool results, truncate the middle,
// drop-oldest-into-summary), a health-status view, and an advisory file
// cache.
//
// Grounded on original_source/core/context_manager.py for exact thresholds
// and phase ordering, and on the teacher's agent/context.go word-tiered
// estimator (generalized here into its own message model rather than one
// coupled to the LLM function-calling Message type).
package contextmgr

import "strings"

// EstimateTokens applies the over-approximating word-length-tiered
// heuristic of spec.md §4.3: short words (<=4 chars) cost 1 token, medium
// (<=10) cost 2, long cost max(2, len/4); one extra token per newline; a
// floor of 1 for any non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := strings.Fields(text)
	total := 0
	for _, w := range words {
		switch {
		case len(w) <= 4:
			total++
		case len(w) <= 10:
			total += 2
		default:
			t := len(w) / 4
			if t < 2 {
				t = 2
			}
			total += t
		}
	}
	total += strings.Count(text, "\n")
	if total < 1 {
		total = 1
	}
	return total
}

// Package confab scans model output and learned lessons for signs of
// confabulation (hallucination), per spec.md §4.7's heuristics H1
// (ungrounded specificity), H2 (contentless filler), H5 (attractor-basin
// drift), and H6 (confidence-evidence mismatch for lessons).
//
// Grounded line-for-line on
// original_source/learning/confab_detector.py's pattern tables and
// scan_text/scan_lesson control flow.
package confab

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity classifies how seriously a flag should be treated.
type Severity string

const (
	SeverityWarn       Severity = "WARN"
	SeverityQuarantine Severity = "QUARANTINE"
)

// Flag is a single confabulation signal found during a scan.
type Flag struct {
	Heuristic string
	Severity  Severity
	Detail    string
	Snippet   string
}

// Report is the outcome of scanning one piece of text or lesson.
type Report struct {
	Source     string
	Flags      []Flag
	Clean      bool
	Quarantine bool
}

const maxSnippetLen = 200

// fillerPatterns match contentless hedging language (H2).
var fillerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no\s+(meaningful|significant|notable)\s+(changes?|developments?)`),
	regexp.MustCompile(`(?i)remains?\s+(broadly|generally|largely)\s+(neutral|stable|unchanged)`),
	regexp.MustCompile(`(?i)continues?\s+to\s+(evolve|develop|unfold)`),
	regexp.MustCompile(`(?i)further\s+(analysis|investigation|monitoring)\s+(is\s+)?(needed|required)`),
	regexp.MustCompile(`(?i)it\s+remains\s+to\s+be\s+seen`),
	regexp.MustCompile(`(?i)only\s+time\s+will\s+tell`),
	regexp.MustCompile(`(?i)the\s+situation\s+is\s+(complex|nuanced|multifaceted)`),
	regexp.MustCompile(`(?i)as\s+(previously|earlier)\s+(mentioned|noted|discussed)`),
}

// attractorPatterns match training-data drift into unrelated fictional
// domains (H5).
var attractorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)reactor\s+(coolant|core|status)`),
	regexp.MustCompile(`(?i)shields?\s+(stable|at|maximum|holding)`),
	regexp.MustCompile(`(?i)warp\s+(drive|speed|factor)`),
	regexp.MustCompile(`(?i)starfleet|starship|federation`),
	regexp.MustCompile(`(?i)photon\s+torpedo`),
	regexp.MustCompile(`(?i)captain('s)?\s+(log|orders?)`),
}

type specificityPattern struct {
	re   *regexp.Regexp
	desc string
}

// specificityPatterns match claims that carry false precision without a
// cited source (H1).
var specificityPatterns = []specificityPattern{
	{regexp.MustCompile(`\b\d+\.?\d*%`), "percentage"},
	{regexp.MustCompile(`\$\d+`), "dollar amount"},
	{regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4}`), "specific date"},
}

// ScanText runs the H1, H2, and H5 heuristics against arbitrary model
// output text.
func ScanText(text, sourceName string) Report {
	report := Report{Source: sourceName}

	for _, sp := range specificityPatterns {
		for _, loc := range sp.re.FindAllStringIndex(text, -1) {
			match := text[loc[0]:loc[1]]
			report.Flags = append(report.Flags, Flag{
				Heuristic: "H1",
				Severity:  SeverityWarn,
				Detail:    fmt.Sprintf("Ungrounded %s: %s", sp.desc, match),
				Snippet:   snippetAround(text, loc[0], loc[1]),
			})
		}
	}

	for _, pattern := range fillerPatterns {
		loc := pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		report.Flags = append(report.Flags, Flag{
			Heuristic: "H2",
			Severity:  SeverityWarn,
			Detail:    fmt.Sprintf("Filler pattern: %q", text[loc[0]:loc[1]]),
			Snippet:   snippetAround(text, loc[0], loc[1]),
		})
	}

	for _, pattern := range attractorPatterns {
		loc := pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		report.Flags = append(report.Flags, Flag{
			Heuristic: "H5",
			Severity:  SeverityQuarantine,
			Detail:    fmt.Sprintf("Attractor drift: %q", text[loc[0]:loc[1]]),
			Snippet:   snippetAround(text, loc[0], loc[1]),
		})
	}

	if flag, ok := detectRepetitionLoop(text); ok {
		report.Flags = append(report.Flags, flag)
	}

	report.Clean = len(report.Flags) == 0
	report.Quarantine = hasQuarantine(report.Flags)
	return report
}

// snippetAround returns the text surrounding a match, truncated to
// maxSnippetLen, for inclusion in a Flag.
func snippetAround(text string, start, end int) string {
	lo := start - 20
	if lo < 0 {
		lo = 0
	}
	hi := end + 40
	if hi > len(text) {
		hi = len(text)
	}
	snippet := strings.TrimSpace(text[lo:hi])
	if len(snippet) > maxSnippetLen {
		snippet = snippet[:maxSnippetLen]
	}
	return snippet
}

// detectRepetitionLoop scans for a 10-24 word sequence repeated three or
// more times, a sign the model has fallen into a generation loop (H5).
func detectRepetitionLoop(text string) (Flag, bool) {
	words := strings.Fields(text)
	if len(words) < 30 {
		return Flag{}, false
	}

	maxWindow := len(words) / 3
	if maxWindow > 25 {
		maxWindow = 25
	}
	for window := 10; window < maxWindow; window++ {
		seen := make(map[string]int)
		for i := 0; i+window <= len(words); i++ {
			seq := strings.Join(words[i:i+window], " ")
			seen[seq]++
			if seen[seq] >= 3 {
				snippet := seq
				if len(snippet) > maxSnippetLen {
					snippet = snippet[:maxSnippetLen]
				}
				return Flag{
					Heuristic: "H5",
					Severity:  SeverityQuarantine,
					Detail:    fmt.Sprintf("Generation loop: %d-word sequence repeated 3+ times", window),
					Snippet:   snippet,
				}, true
			}
		}
	}
	return Flag{}, false
}

func hasQuarantine(flags []Flag) bool {
	for _, f := range flags {
		if f.Severity == SeverityQuarantine {
			return true
		}
	}
	return false
}

// Lesson is a distilled piece of learned knowledge subject to H6's
// confidence-evidence cross-check, mirroring the SEAL lesson schema of
// original_source/learning/confab_detector.py.
type Lesson struct {
	ID         string
	Topic      string
	Summary    string
	Insight    string
	Rationale  string
	Confidence float64
	Evidence   []string
}

// requiredEvidence maps a confidence level to the minimum number of
// evidence items the SEAL v1.0 spec demands before the claim is trusted.
func requiredEvidence(confidence float64) int {
	switch {
	case confidence <= 0.50:
		return 1
	case confidence <= 0.70:
		return 2
	case confidence <= 0.85:
		return 3
	case confidence <= 0.95:
		return 5
	default:
		return 8
	}
}

// CheckLesson runs ScanText over the lesson's text fields, then adds H6:
// a confidence claim unsupported by enough evidence items. Severity
// escalates to QUARANTINE once confidence exceeds 0.7 — a high-confidence
// claim with too little evidence is worse than a tentative one.
func CheckLesson(l Lesson) Report {
	var parts []string
	for _, p := range []string{l.Topic, l.Summary, l.Insight, l.Rationale} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	text := strings.Join(parts, "\n")

	source := l.ID
	if source == "" {
		source = "unknown"
	}
	report := ScanText(text, source)

	required := requiredEvidence(l.Confidence)
	evidenceCount := len(l.Evidence)
	if evidenceCount < required {
		severity := SeverityWarn
		if l.Confidence > 0.7 {
			severity = SeverityQuarantine
		}
		report.Flags = append(report.Flags, Flag{
			Heuristic: "H6",
			Severity:  severity,
			Detail:    fmt.Sprintf("Confidence %.2f requires %d evidence items, found %d", l.Confidence, required, evidenceCount),
			Snippet:   fmt.Sprintf("confidence=%.2f, evidence=%d", l.Confidence, evidenceCount),
		})
	}

	report.Clean = len(report.Flags) == 0
	report.Quarantine = hasQuarantine(report.Flags)
	return report
}

package sandbox

import "regexp"

// defaultCommandBlocklist is the Phase 3 "intentionally over-broad" blocklist:
// rejected even if a command would otherwise pass the Phase 2 allowlist
// prefix match, because the tail of the command carries a secondary risk the
// prefix match can't see. Grounded on original_source/core/sandbox.py's
// BLOCKED_PATTERNS table.
func defaultCommandBlocklist() []*regexp.Regexp {
	raw := []string{
		// inline code execution
		`(?i)\bpython3?\s+-c\b`,
		`(?i)\bnode\s+-e\b`,
		`(?i)\bnpx\b`,
		`(?i)\bruby\s+-e\b`,
		`(?i)\bperl\s+-e\b`,

		// dynamic eval/exec in any argument
		`(?i)\beval\s*\(`,
		`(?i)\bexec\s*\(`,
		`(?i)\bcompile\s*\(`,
		`(?i)__import__\s*\(`,

		// destructive removal
		`(?i)\brm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r)\b`,
		`(?i)\brm\s+-rf\s+/`,
		`(?i)\brmdir\s+/s\b`,
		`(?i)\bdel\s+/[fsq]+\b`,
		`(?i)\bmkfs\b`,
		`(?i)\bdd\s+.*\bof=/`,

		// system configuration changes
		`(?i)\bgit\s+config\s+--global\b`,
		`(?i)\breg\s+(add|delete)\b`,
		`(?i)\bsetx\s+`,
		`(?i)\bcrontab\s+-e\b`,
		`(?i)\bschtasks\b`,
		`(?i)\bat\s+\d`,
		`(?i)\bicacls\b`,
		`(?i)\bchmod\s+-R\s+777\b`,
		`(?i)\bchown\s+-R\b`,

		// git network operations
		`(?i)\bgit\s+push\b`,
		`(?i)\bgit\s+pull\b`,
		`(?i)\bgit\s+fetch\b`,
		`(?i)\bgit\s+clone\b`,
		`(?i)\bgit\s+remote\s+add\b`,

		// remote-code-download pipes
		`(?i)\b(curl|wget)\b[^\n]*\|\s*(sh|bash|zsh|powershell|pwsh)\b`,
		`(?i)\biwr\b[^\n]*\|\s*iex\b`,

		// privilege escalation
		`(?i)\bsudo\b`,
		`(?i)\brunas\b`,
		`(?i)\bsetuid\b`,
		`(?i)\bsu\s+-\b`,

		// direct network / remote-access tooling
		`(?i)\bcurl\b`,
		`(?i)\bwget\b`,
		`(?i)\b(nc|ncat|netcat)\b`,
		`(?i)\bsocat\b`,
		`(?i)\bssh\b`,
		`(?i)\bscp\b`,
		`(?i)\btelnet\b`,

		// Windows script hosts / living-off-the-land binaries
		`(?i)\bpowershell\b`,
		`(?i)\bpwsh\b`,
		`(?i)\bcmd(\.exe)?\s*/c\b`,
		`(?i)\bwscript\b`,
		`(?i)\bcscript\b`,
		`(?i)\bmshta\b`,
		`(?i)\brundll32\b`,
		`(?i)\bregsvr32\b`,

		// language-level network / process-spawning imports
		`(?i)\bimport\s+(socket|subprocess|os\.system|requests|urllib)\b`,
		`(?i)\brequire\(['"](http|https|net|child_process|fs)['"]\)`,

		// environment enumeration
		`(?i)^\s*env\s*$`,
		`(?i)^\s*set\s*$`,
		`(?i)\bprintenv\b`,

		// shutdown / reboot
		`(?i)\bshutdown\b`,
		`(?i)\breboot\b`,
		`(?i)\bhalt\b`,
		`(?i)\bpoweroff\b`,
	}

	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, r := range raw {
		patterns = append(patterns, regexp.MustCompile(r))
	}
	return patterns
}

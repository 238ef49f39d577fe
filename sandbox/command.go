package sandbox

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// zeroWidthRemover strips characters commonly used to break up a blocked token
// without changing how a shell or interpreter actually reads it.
var zeroWidthRemover = transform.Chain(
	norm.NFKD,
	runes.Remove(unicodeRange{}),
)

// unicodeRange implements runes.Set by matching the handful of zero-width /
// formatting code points attackers use to split a blocklisted word.
type unicodeRange struct{}

func (unicodeRange) Contains(r rune) bool {
	switch r {
	case '​', '‌', '‍', '﻿', '⁠', '­':
		return true
	}
	return unicode.Is(unicode.Cf, r)
}

// normalizeCommand implements Phase 0: strip zero-width characters, apply
// NFKD decomposition, collapse whitespace runs, and join backslash-newline
// continuations into a single logical line.
func normalizeCommand(cmd string) string {
	cmd = strings.ReplaceAll(cmd, "\\\n", "")
	out, _, err := transform.String(zeroWidthRemover, cmd)
	if err != nil {
		out = cmd
	}
	fields := strings.Fields(out)
	return strings.Join(fields, " ")
}

// ValidateCommand runs the full §4.1 validate_command sequence: normalize,
// reject shell operators, match against the allowlist, confine path
// arguments for path-argument-policy commands, check mv/cp destination
// extensions, then run the intentionally over-broad blocklist.
func (p *Policy) ValidateCommand(cmd string) error {
	normalized := normalizeCommand(cmd)

	// Phase 0 continued: blocklist checks run against both forms, so do
	// shell-operator checks, per spec — evasion via zero-width chars must
	// not let a blocked operator slip through in the original string either.
	for _, form := range []string{normalized, cmd} {
		for _, pat := range p.ShellOperators {
			if pat.MatchString(form) {
				if p.Audit != nil {
					p.Audit.SandboxBlock("bash_exec", "shell operator: "+pat.String(), truncateArgs(cmd))
				}
				return New(KindCommandRejected, "command contains a disallowed shell operator")
			}
		}
	}

	// Phase 2: allowlist prefix match (against the normalized form).
	var matchedPrefix string
	for _, prefix := range p.CommandAllow {
		if strings.HasPrefix(normalized, prefix) || normalized == strings.TrimSpace(prefix) {
			matchedPrefix = prefix
			break
		}
	}
	if matchedPrefix == "" {
		if p.Audit != nil {
			p.Audit.SandboxBlock("bash_exec", "not in command allowlist", truncateArgs(cmd))
		}
		return New(KindCommandRejected, "command is not on the allowlist")
	}

	// Phase 2.5: argument path confinement.
	if policy, ok := p.PathArgPolicies[matchedPrefix]; ok {
		if err := p.confineArgs(normalized, matchedPrefix, policy); err != nil {
			if p.Audit != nil {
				p.Audit.SandboxBlock("bash_exec", err.Error(), truncateArgs(cmd))
			}
			return Wrap(KindCommandRejected, "path argument confinement failed", err)
		}
	}

	// Phase 2.6: mv/cp destination-extension check.
	if matchedPrefix == "mv " || matchedPrefix == "cp " {
		if err := p.checkDestinationExtension(normalized); err != nil {
			if p.Audit != nil {
				p.Audit.SandboxBlock("bash_exec", err.Error(), truncateArgs(cmd))
			}
			return Wrap(KindCommandRejected, "destination extension rejected", err)
		}
	}

	// Phase 3: intentionally over-broad blocklist, checked against both forms.
	for _, form := range []string{normalized, cmd} {
		for _, pat := range p.CommandBlock {
			if pat.MatchString(form) {
				if p.Audit != nil {
					p.Audit.SandboxBlock("bash_exec", "blocklist: "+pat.String(), truncateArgs(cmd))
				}
				return New(KindCommandRejected, "command matches the blocklist")
			}
		}
	}

	return nil
}

// confineArgs re-canonicalizes and confines the non-flag arguments of an
// allowlisted command, per the command's PathArgPolicy.
func (p *Policy) confineArgs(normalized, prefix string, policy PathArgPolicy) error {
	rest := strings.TrimSpace(strings.TrimPrefix(normalized, prefix))
	var args []string
	for _, a := range strings.Fields(rest) {
		if !strings.HasPrefix(a, "-") {
			args = append(args, a)
		}
	}
	if len(args) == 0 {
		return nil
	}

	var targets []string
	switch policy {
	case PathArgAll:
		targets = args
	case PathArgFirst:
		targets = args[:1]
	case PathArgLast:
		targets = args[len(args)-1:]
	}

	for _, a := range targets {
		if _, err := p.ValidatePath(a, OpWrite); err != nil {
			return fmt.Errorf("argument %q: %w", a, err)
		}
	}
	return nil
}

// checkDestinationExtension rejects mv/cp invocations whose destination
// extension is on the blocked-write-extension list.
func (p *Policy) checkDestinationExtension(normalized string) error {
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return nil
	}
	dest := fields[len(fields)-1]
	ext := strings.ToLower(extOf(dest))
	if p.BlockedWriteExts[ext] {
		return fmt.Errorf("destination extension %q is blocked", ext)
	}
	return nil
}

func extOf(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return ""
	}
	return path[idx:]
}

func truncateArgs(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max]
}

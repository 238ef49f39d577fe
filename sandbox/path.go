package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// reservedDeviceNames are basenames (stem, lowercased, no extension) that
// are unsafe to use as regular files on at least one supported host.
var reservedDeviceNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"com5": true, "com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true,
	"lpt5": true, "lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
	"/dev/null": true, "/dev/zero": true, "/dev/random": true,
}

// ValidatePath runs the full §4.1 validate_path sequence and returns the
// canonical path on success or a *Error with Kind PathRejected otherwise.
func (p *Policy) ValidatePath(requestedPath string, op Operation) (string, error) {
	canon, err := p.canonicalize(requestedPath)
	if err != nil {
		p.block(string(op), "canonicalization failed: "+err.Error(), requestedPath)
		return "", Wrap(KindPathRejected, "cannot canonicalize path", err)
	}

	if err := p.platformHardening(requestedPath, canon); err != nil {
		p.block(string(op), err.Error(), requestedPath)
		return "", Wrap(KindPathRejected, err.Error(), nil)
	}

	base := filepath.Base(canon)
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
	if reservedDeviceNames[stem] || reservedDeviceNames[strings.ToLower(canon)] {
		p.block(string(op), "reserved device name", requestedPath)
		return "", New(KindPathRejected, fmt.Sprintf("%q is a reserved device name", base))
	}

	if op == OpWrite || op == OpEdit {
		if p.ProtectedNames[base] {
			p.block(string(op), "protected file", requestedPath)
			return "", New(KindPathRejected, fmt.Sprintf("Protected file: %s", base))
		}
		for _, substr := range p.ProtectedPaths {
			if strings.Contains(canon, substr) {
				p.block(string(op), "protected path", requestedPath)
				return "", New(KindPathRejected, fmt.Sprintf("Protected path: %s", substr))
			}
		}
		for _, substr := range p.BlockedWritePaths {
			if strings.Contains(canon, substr) {
				p.block(string(op), "auto-execution location", requestedPath)
				return "", New(KindPathRejected, "write target is an auto-execution location")
			}
		}
		ext := strings.ToLower(filepath.Ext(canon))
		if p.BlockedWriteExts[ext] {
			p.block(string(op), "blocked extension", requestedPath)
			return "", New(KindPathRejected, fmt.Sprintf("blocked write extension: %s", ext))
		}
	}

	if op == OpRead {
		for _, pat := range p.SensitivePatterns {
			if pat.MatchString(base) {
				if p.Audit != nil {
					p.Audit.SensitiveRead(canon)
				}
				break
			}
		}
	}

	if p.Strict && !p.withinAllowSet(canon) {
		if p.Approve != nil && p.Approve(canon) {
			p.approveDir(filepath.Dir(canon))
			if p.Audit != nil {
				p.Audit.SandboxApproved(canon)
			}
		} else {
			p.block(string(op), "outside allow-set (strict mode)", requestedPath)
			return "", New(KindPathRejected, fmt.Sprintf("%q is outside the allowed directories", requestedPath))
		}
	}

	if err := p.checkSymlinkEscape(requestedPath, canon); err != nil {
		p.block(string(op), err.Error(), requestedPath)
		return "", Wrap(KindPathRejected, err.Error(), nil)
	}

	if op == OpRead {
		if info, err := os.Stat(canon); err == nil && info.Size() > p.MaxFileSize {
			p.block(string(op), "file exceeds max size", requestedPath)
			return "", New(KindPathRejected, fmt.Sprintf("file exceeds max size of %d bytes", p.MaxFileSize))
		}
	}

	return canon, nil
}

// canonicalize makes the path absolute and resolves symlinks. For paths
// that don't exist yet (write targets), it resolves the deepest existing
// ancestor and rejoins the remainder.
func (p *Policy) canonicalize(requestedPath string) (string, error) {
	var abs string
	if filepath.IsAbs(requestedPath) {
		abs = requestedPath
	} else {
		base := "."
		if len(p.AllowedDirs) > 0 {
			base = p.AllowedDirs[0]
		}
		abs = filepath.Join(base, requestedPath)
	}
	abs = filepath.Clean(abs)

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	// Walk up to the deepest existing ancestor, resolve it, rejoin the rest.
	dir := filepath.Dir(abs)
	tail := []string{filepath.Base(abs)}
	for {
		resolvedDir, derr := filepath.EvalSymlinks(dir)
		if derr == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolvedDir = filepath.Join(resolvedDir, tail[i])
			}
			return resolvedDir, nil
		}
		if !os.IsNotExist(derr) {
			return "", derr
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no existing ancestor found for %q", requestedPath)
		}
		tail = append(tail, filepath.Base(dir))
		dir = parent
	}
}

// platformHardening rejects UNC/device-path forms and short-name (8.3)
// mismatches. These checks are host-agnostic in shape even though some only
// trigger on Windows.
func (p *Policy) platformHardening(requested, canon string) error {
	if strings.HasPrefix(requested, `\\`) || strings.HasPrefix(requested, `//`) && len(requested) > 2 {
		if strings.HasPrefix(requested, `\\`) {
			return fmt.Errorf("UNC paths are not permitted")
		}
	}
	if strings.HasPrefix(strings.ToLower(requested), `\\?\`) || strings.Contains(strings.ToLower(requested), `\\.\`) {
		return fmt.Errorf("device paths are not permitted")
	}
	// Alternate data stream: a colon after the drive letter designator.
	if len(requested) > 2 && requested[1] == ':' {
		rest := requested[2:]
		if strings.Contains(rest, ":") {
			return fmt.Errorf("alternate data stream syntax is not permitted")
		}
	}
	// Short-name (8.3) heuristic: a basename containing '~' that differs
	// (case-insensitively) from the canonical basename implies legacy form.
	reqBase := filepath.Base(requested)
	canonBase := filepath.Base(canon)
	if strings.Contains(reqBase, "~") && !strings.EqualFold(reqBase, canonBase) {
		return fmt.Errorf("short-name (8.3) paths are not permitted; use the canonical name")
	}
	return nil
}

// checkSymlinkEscape rejects the case where the original (pre-canonicalization)
// path was itself a symlink whose resolved target lands outside the allow-set.
func (p *Policy) checkSymlinkEscape(requested, canon string) error {
	var abs string
	if filepath.IsAbs(requested) {
		abs = filepath.Clean(requested)
	} else {
		base := "."
		if len(p.AllowedDirs) > 0 {
			base = p.AllowedDirs[0]
		}
		abs = filepath.Clean(filepath.Join(base, requested))
	}
	info, err := os.Lstat(abs)
	if err != nil {
		return nil // doesn't exist yet, nothing to check
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return nil
	}
	if p.Strict && !p.withinAllowSet(canon) {
		return fmt.Errorf("symlink target escapes the allowed directories")
	}
	return nil
}

func (p *Policy) block(op, reason, args string) {
	if p.Audit != nil {
		p.Audit.SandboxBlock(op, reason, args)
	}
}

// TruncateOutput implements §4.1 truncate_output.
func (p *Policy) TruncateOutput(text string) string {
	if len(text) <= p.MaxOutputSize {
		return text
	}
	return fmt.Sprintf("%s\n[...truncated at %d chars]", text[:p.MaxOutputSize], p.MaxOutputSize)
}

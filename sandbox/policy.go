package sandbox

import (
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// Operation identifies the kind of file access being validated.
type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
	OpEdit  Operation = "edit"
)

// PathArgPolicy says which non-flag arguments of an allowlisted command must
// be recanonicalized and confined during command validation (Phase 2.5).
type PathArgPolicy string

const (
	PathArgAll   PathArgPolicy = "all"
	PathArgFirst PathArgPolicy = "first"
	PathArgLast  PathArgPolicy = "last"
)

// ApprovalFunc is invoked when a path falls outside the allow-set in strict
// mode. Returning true grows the allow-set with the path's parent directory
// for the remainder of the session. A nil ApprovalFunc means strict refusal.
type ApprovalFunc func(path string) bool

// AuditSink receives a record of every sandbox decision. Implemented by the
// audit package; kept as a narrow interface here to avoid an import cycle.
type AuditSink interface {
	SandboxBlock(tool, reason, args string)
	SandboxApproved(path string)
	SensitiveRead(path string)
}

// Policy is the immutable (after Configure) set of rules a Sandbox enforces.
// Fields are only ever grown at runtime via the allow-set (see Approve).
type Policy struct {
	AllowedDirs     []string // canonical absolute directories
	Strict          bool
	MaxFileSize     int64
	MaxOutputSize   int
	ProtectedNames  map[string]bool  // basenames, e.g. "MEMORY.md"
	ProtectedPaths  []string         // substrings of canonical path, e.g. "core/sandbox"
	BlockedWritePaths []string       // auto-exec locations, e.g. hook dirs
	BlockedWriteExts  map[string]bool
	SensitivePatterns []*regexp.Regexp

	ShellOperators  []*regexp.Regexp
	CommandAllow    []string
	CommandBlock    []*regexp.Regexp
	PathArgPolicies map[string]PathArgPolicy // command prefix -> policy

	Approve ApprovalFunc
	Audit   AuditSink
}

// DefaultPolicy returns the built-in policy, grounded on
// original_source/core/sandbox.py's threat model and the teacher's
// tools/pathutil.go confinement check, generalized to the full rule set of
// spec.md §4.1.
func DefaultPolicy(workDir string, strict bool) *Policy {
	canon, err := filepath.Abs(workDir)
	if err != nil {
		canon = workDir
	}
	canon = filepath.Clean(canon)

	p := &Policy{
		AllowedDirs: []string{canon},
		Strict:      strict,
		MaxFileSize: 10 * 1024 * 1024,
		MaxOutputSize: 10000,
		ProtectedNames: map[string]bool{
			"MEMORY.md":      true,
			".yopj.manifest": true,
			".env":           true,
		},
		ProtectedPaths: []string{
			"sandbox/", "toolproto/", "permission/", "integrity/", "pathregistry/",
			"servertrust/", "core/sandbox", "core/tool_protocol", "core/permission_system",
		},
		BlockedWritePaths: []string{
			filepath.Join(".git", "hooks"),
			filepath.Join(".config", "autostart"),
			"Startup",
			"StartUp",
			".bashrc", ".zshrc", ".bash_profile", ".profile",
		},
		BlockedWriteExts: map[string]bool{
			".exe": true, ".dll": true, ".so": true, ".dylib": true,
			".sh": true, ".bat": true, ".cmd": true, ".ps1": true,
		},
		SensitivePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^\.env(\..+)?$`),
			regexp.MustCompile(`(?i)^id_(rsa|ed25519|ecdsa|dsa)$`),
			regexp.MustCompile(`(?i).*\.pem$`),
			regexp.MustCompile(`(?i)^credentials$`),
			regexp.MustCompile(`(?i).*_key$`),
			regexp.MustCompile(`(?i)^\.netrc$`),
		},
		ShellOperators: []*regexp.Regexp{
			regexp.MustCompile(`&&`),
			regexp.MustCompile(`\|\|`),
			regexp.MustCompile(`;(\s|$)`),
			regexp.MustCompile("`"),
			regexp.MustCompile(`\$\(`),
			regexp.MustCompile(`\$\{`),
			regexp.MustCompile(`\s\|\s`),
			regexp.MustCompile(`(^|\s)(>>?|2>|<)(\s|$)`),
		},
		CommandAllow: []string{
			"git status", "git diff", "git log", "git show", "git branch",
			"git add ", "git commit", "git blame", "git stash list",
			"go build", "go test", "go vet", "go run", "go mod",
			"npm install", "npm run", "npm test", "npm ci",
			"python3 ", "python ", "node ",
			"ls", "pwd", "which", "echo",
			"mkdir ", "mv ", "cp ",
		},
		PathArgPolicies: map[string]PathArgPolicy{
			"mv ": PathArgAll,
			"cp ": PathArgAll,
		},
	}

	p.CommandBlock = defaultCommandBlocklist()
	return p
}

// approveDir grows the allow-set with dir for the remainder of the session.
// Only the control thread calls this (see spec.md §5 locking discipline).
func (p *Policy) approveDir(dir string) {
	for _, d := range p.AllowedDirs {
		if d == dir {
			return
		}
	}
	p.AllowedDirs = append(p.AllowedDirs, dir)
}

// withinAllowSet reports whether canonical path is within some allowed dir.
func (p *Policy) withinAllowSet(canon string) bool {
	for _, dir := range p.AllowedDirs {
		if pathEqualOrDescendant(canon, dir) {
			return true
		}
	}
	return false
}

func pathEqualOrDescendant(path, dir string) bool {
	path = normalizeForCompare(path)
	dir = normalizeForCompare(dir)
	if path == dir {
		return true
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// normalizeForCompare applies case folding on hosts with case-insensitive
// filesystems (Windows, macOS default HFS+/APFS).
func normalizeForCompare(p string) string {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return strings.ToLower(filepath.Clean(p))
	}
	return filepath.Clean(p)
}

// fileExists is a small helper shared by path/command validation.
func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

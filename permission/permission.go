// Package permission implements the per-tool allow/ask/deny policy of
// spec.md §4.8: default levels by tool name, a global skip_all override, and
// session-sticky "always" approvals for tools in "ask" mode.
package permission

import "sync"

// Mode is the permission level for a tool.
type Mode string

const (
	Allow Mode = "allow"
	Ask   Mode = "ask"
	Deny  Mode = "deny"
)

// DefaultPermissions mirrors original_source/core/permission_system.py's
// DEFAULT_PERMISSIONS table, adapted to this repo's tool names.
var DefaultPermissions = map[string]Mode{
	"file_read":   Allow,
	"glob_search": Allow,
	"grep_search": Allow,
	"file_write":  Ask,
	"file_edit":   Ask,
	"bash_exec":   Ask,
	"git_status":  Allow,
	"git_diff":    Allow,
	"git_log":     Allow,
	"git_show":    Allow,
	"git_add":     Ask,
	"git_commit":  Ask,
	"git_branch":  Allow,
}

// Prompter asks the operator whether to allow a tool call, returning the
// reply: "y"/"yes" to allow once, "a"/"always" to allow and remember for the
// session, anything else (including an EOF/interrupt sentinel) to deny.
// Implementations should return "" on EOF or interrupt so check_and_prompt
// denies per spec.md §4.8.
type Prompter func(toolName, argsPreview string) string

// System resolves the effective permission for a tool call and manages
// session-sticky "always" approvals.
type System struct {
	mu             sync.Mutex
	skipAll        bool
	overrides      map[string]Mode
	sessionAllowed map[string]bool
	prompt         Prompter
}

// New creates a System. skipPermissions corresponds to
// --dangerously-skip-permissions / dangerously_skip_permissions, forcing
// every tool to Allow. prompt is invoked for tools resolved to "ask" that
// aren't already session-approved; a nil prompt denies every "ask".
func New(skipPermissions bool, prompt Prompter) *System {
	return &System{
		skipAll:        skipPermissions,
		overrides:      make(map[string]Mode),
		sessionAllowed: make(map[string]bool),
		prompt:         prompt,
	}
}

// GetPermission returns the effective permission for tool, honoring skip_all
// and any override before falling back to DefaultPermissions (defaulting to
// Ask for unlisted tools, matching original_source's .get(name, "ask")).
func (s *System) GetPermission(tool string) Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.skipAll {
		return Allow
	}
	if m, ok := s.overrides[tool]; ok {
		return m
	}
	if m, ok := DefaultPermissions[tool]; ok {
		return m
	}
	return Ask
}

// SetPermission overrides the permission for a specific tool.
func (s *System) SetPermission(tool string, mode Mode) error {
	if mode != Allow && mode != Ask && mode != Deny {
		return &InvalidModeError{Mode: mode}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[tool] = mode
	return nil
}

// InvalidModeError is returned by SetPermission for an unrecognized mode.
type InvalidModeError struct{ Mode Mode }

func (e *InvalidModeError) Error() string { return "invalid permission mode: " + string(e.Mode) }

// CheckAndPrompt resolves the tool's permission, prompting interactively (via
// the configured Prompter) for "ask" tools not already session-approved.
// Returns true iff execution is allowed.
func (s *System) CheckAndPrompt(tool, argsPreview string) bool {
	mode := s.GetPermission(tool)

	switch mode {
	case Allow:
		return true
	case Deny:
		return false
	}

	s.mu.Lock()
	if s.sessionAllowed[tool] {
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	if s.prompt == nil {
		return false
	}

	preview := argsPreview
	if len(preview) > 80 {
		preview = preview[:80]
	}
	reply := s.prompt(tool, preview)

	switch reply {
	case "y", "yes":
		return true
	case "a", "always":
		s.mu.Lock()
		s.sessionAllowed[tool] = true
		s.mu.Unlock()
		return true
	default:
		return false
	}
}

// ResetSession clears session-sticky "always" approvals, keeping overrides.
func (s *System) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionAllowed = make(map[string]bool)
}

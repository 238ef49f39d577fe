package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// gitTimeout bounds every git subprocess, mirroring original_source's
// _run_git's 30s subprocess.run timeout.
const gitTimeout = 30 * time.Second

// runGit executes the resolved git binary with args in the registry's
// working directory and returns combined stdout/stderr, trimmed.
func (r *Registry) runGit(ctx context.Context, args ...string) (string, error) {
	gitPath := r.gitPath
	if gitPath == "" {
		gitPath = "git"
	}
	execCtx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, gitPath, args...)
	cmd.Dir = r.workDir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := strings.TrimRight(buf.String(), "\n")

	if execCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("git command timed out")
	}
	if err != nil {
		if output == "" {
			return "", fmt.Errorf("git: %w", err)
		}
		return "", fmt.Errorf("%s", output)
	}
	if output == "" {
		output = "(no output)"
	}
	return output, nil
}

func (r *Registry) gitStatusTool(ctx context.Context, input json.RawMessage) (string, error) {
	return r.runGit(ctx, "status", "--short")
}

type gitDiffInput struct {
	Staged bool `json:"staged"`
}

func (r *Registry) gitDiffTool(ctx context.Context, input json.RawMessage) (string, error) {
	var params gitDiffInput
	if len(input) > 0 {
		json.Unmarshal(input, &params)
	}
	args := []string{"diff"}
	if params.Staged {
		args = append(args, "--cached")
	}
	return r.runGit(ctx, args...)
}

type gitLogInput struct {
	Count   int  `json:"count"`
	Oneline bool `json:"oneline"`
}

func (r *Registry) gitLogTool(ctx context.Context, input json.RawMessage) (string, error) {
	params := gitLogInput{Count: 10, Oneline: true}
	if len(input) > 0 {
		json.Unmarshal(input, &params)
	}
	if params.Count <= 0 {
		params.Count = 10
	}
	args := []string{"log", fmt.Sprintf("-%d", params.Count)}
	if params.Oneline {
		args = append(args, "--oneline")
	}
	return r.runGit(ctx, args...)
}

type gitShowInput struct {
	Ref string `json:"ref"`
}

func (r *Registry) gitShowTool(ctx context.Context, input json.RawMessage) (string, error) {
	var params gitShowInput
	if len(input) > 0 {
		json.Unmarshal(input, &params)
	}
	ref := params.Ref
	if ref == "" {
		ref = "HEAD"
	}
	return r.runGit(ctx, "show", ref)
}

func (r *Registry) gitBranchTool(ctx context.Context, input json.RawMessage) (string, error) {
	return r.runGit(ctx, "branch", "-v")
}

type gitAddInput struct {
	Files string `json:"files"`
}

// gitAddTool stages named files only — rejects "." and "-A" per
// original_source/tools/git_tools.py's safety rule against broad staging.
func (r *Registry) gitAddTool(ctx context.Context, input json.RawMessage) (string, error) {
	var params gitAddInput
	if err := json.Unmarshal(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	fileList := strings.Fields(params.Files)
	if len(fileList) == 0 {
		return "", fmt.Errorf("files is required")
	}
	for _, f := range fileList {
		if f == "." || f == "-A" {
			return "", fmt.Errorf("use specific file names instead of '.' or '-A'")
		}
	}

	preview := "git add " + params.Files
	return "", &NeedsConfirmation{
		Tool:    "git_add",
		Path:    preview,
		Preview: preview,
		Execute: func() (string, error) {
			return r.runGit(ctx, append([]string{"add"}, fileList...)...)
		},
	}
}

type gitCommitInput struct {
	Message string `json:"message"`
}

// gitCommitTool creates a plain commit — never amends, never passes
// --no-verify, per the teacher's git-safety rules also documented in the
// system prompt.
func (r *Registry) gitCommitTool(ctx context.Context, input json.RawMessage) (string, error) {
	var params gitCommitInput
	if err := json.Unmarshal(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Message) == "" {
		return "", fmt.Errorf("commit message cannot be empty")
	}

	return "", &NeedsConfirmation{
		Tool:    "git_commit",
		Path:    params.Message,
		Preview: params.Message,
		Execute: func() (string, error) {
			return r.runGit(ctx, "commit", "-m", params.Message)
		},
	}
}

// registerGitTools registers the git_* tools. Not included in the explore
// sub-agent's read-only registry, which documents its scope as glob/grep/ls/read.
func (r *Registry) registerGitTools() {
	r.register("git_status", "Show working tree status in short format.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
		r.gitStatusTool,
	)
	r.register("git_diff", "Show unstaged changes, or staged changes when staged=true.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"staged": {"type": "boolean", "description": "Show staged (--cached) diff instead of the working tree diff"}
			}
		}`),
		r.gitDiffTool,
	)
	r.register("git_log", "Show recent commits.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"count": {"type": "integer", "description": "Number of commits to show (default 10)"},
				"oneline": {"type": "boolean", "description": "Use --oneline format (default true)"}
			}
		}`),
		r.gitLogTool,
	)
	r.register("git_show", "Show a commit's metadata and diff.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"ref": {"type": "string", "description": "Commit ref to show (default HEAD)"}
			}
		}`),
		r.gitShowTool,
	)
	r.register("git_branch", "List branches, marking the current one.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
		r.gitBranchTool,
	)
	r.register("git_add",
		`Stage specific files for commit. User confirmation required. Pass specific file names — never "." or "-A".`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"files": {"type": "string", "description": "Space-separated file paths to stage"}
			},
			"required": ["files"]
		}`),
		r.gitAddTool,
	)
	r.register("git_commit",
		`Create a commit with the given message. User confirmation required. Never amends, never uses --no-verify.`,
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"message": {"type": "string", "description": "Commit message"}
			},
			"required": ["message"]
		}`),
		r.gitCommitTool,
	)
}

package permission

import "testing"

func TestDefaultsByTool(t *testing.T) {
	sys := New(false, nil)
	cases := map[string]Mode{
		"file_read":  Allow,
		"bash_exec":  Ask,
		"file_write": Ask,
		"git_status": Allow,
		"git_commit": Ask,
		"unknown":    Ask,
	}
	for tool, want := range cases {
		if got := sys.GetPermission(tool); got != want {
			t.Errorf("GetPermission(%q) = %q, want %q", tool, got, want)
		}
	}
}

func TestSkipAllForcesAllow(t *testing.T) {
	sys := New(true, nil)
	if got := sys.GetPermission("bash_exec"); got != Allow {
		t.Errorf("expected Allow under skip_all, got %q", got)
	}
}

func TestOverrideTakesPrecedence(t *testing.T) {
	sys := New(false, nil)
	if err := sys.SetPermission("file_read", Deny); err != nil {
		t.Fatalf("SetPermission: %v", err)
	}
	if got := sys.GetPermission("file_read"); got != Deny {
		t.Errorf("expected Deny after override, got %q", got)
	}
}

func TestSetPermissionRejectsInvalidMode(t *testing.T) {
	sys := New(false, nil)
	if err := sys.SetPermission("bash_exec", Mode("maybe")); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestCheckAndPromptAllow(t *testing.T) {
	sys := New(false, nil)
	if !sys.CheckAndPrompt("file_read", "foo.txt") {
		t.Error("expected allow for file_read")
	}
}

func TestCheckAndPromptDeny(t *testing.T) {
	sys := New(false, nil)
	sys.SetPermission("bash_exec", Deny)
	if sys.CheckAndPrompt("bash_exec", "ls") {
		t.Error("expected deny")
	}
}

func TestCheckAndPromptAskYes(t *testing.T) {
	sys := New(false, func(tool, args string) string { return "y" })
	if !sys.CheckAndPrompt("bash_exec", "ls") {
		t.Error("expected allow after y response")
	}
}

func TestCheckAndPromptAskNo(t *testing.T) {
	sys := New(false, func(tool, args string) string { return "n" })
	if sys.CheckAndPrompt("bash_exec", "ls") {
		t.Error("expected deny after n response")
	}
}

func TestCheckAndPromptAlwaysStickyForSession(t *testing.T) {
	calls := 0
	sys := New(false, func(tool, args string) string {
		calls++
		return "always"
	})
	if !sys.CheckAndPrompt("bash_exec", "ls") {
		t.Fatal("expected allow")
	}
	if !sys.CheckAndPrompt("bash_exec", "pwd") {
		t.Fatal("expected allow on second call without prompting again")
	}
	if calls != 1 {
		t.Errorf("expected prompt called once, got %d", calls)
	}
}

func TestCheckAndPromptEOFDenies(t *testing.T) {
	sys := New(false, func(tool, args string) string { return "" })
	if sys.CheckAndPrompt("bash_exec", "ls") {
		t.Error("expected deny on empty (EOF/interrupt) response")
	}
}

func TestResetSessionClearsAlwaysButNotOverrides(t *testing.T) {
	sys := New(false, func(tool, args string) string { return "always" })
	sys.SetPermission("file_write", Ask)
	sys.CheckAndPrompt("bash_exec", "ls")
	sys.ResetSession()

	sys2 := New(false, func(tool, args string) string { return "n" })
	sys2.SetPermission("file_write", Ask)
	_ = sys2
	if sys.GetPermission("file_write") != Ask {
		t.Error("override should survive ResetSession")
	}
}

func TestNilPromptDeniesAsk(t *testing.T) {
	sys := New(false, nil)
	if sys.CheckAndPrompt("bash_exec", "ls") {
		t.Error("expected deny with nil prompter")
	}
}

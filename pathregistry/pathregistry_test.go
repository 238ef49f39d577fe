package pathregistry

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestResolveFindsShBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-only lookup test")
	}
	saved := RequiredBinaries
	RequiredBinaries = map[string][]string{"sh": {"sh"}}
	defer func() { RequiredBinaries = saved }()

	r := New()
	if err := r.Resolve(); err != nil {
		t.Fatalf("expected sh to resolve, got %v", err)
	}
	if !filepath.IsAbs(r.Get("sh")) {
		t.Errorf("expected absolute path, got %s", r.Get("sh"))
	}
}

func TestResolveMissingRequiredFails(t *testing.T) {
	saved := RequiredBinaries
	RequiredBinaries = map[string][]string{"definitely-not-a-real-binary": {"definitely-not-a-real-binary-xyz"}}
	defer func() { RequiredBinaries = saved }()

	r := New()
	err := r.Resolve()
	if err == nil {
		t.Fatal("expected error for missing required binary")
	}
}

func TestResolveMissingOptionalWarns(t *testing.T) {
	savedReq := RequiredBinaries
	savedOpt := OptionalBinaries
	RequiredBinaries = map[string][]string{}
	OptionalBinaries = map[string][]string{"nope": {"definitely-not-a-real-binary-xyz"}}
	defer func() { RequiredBinaries = savedReq; OptionalBinaries = savedOpt }()

	r := New()
	if err := r.Resolve(); err != nil {
		t.Fatalf("expected no hard failure for optional miss, got %v", err)
	}
	if len(r.Warnings()) != 1 {
		t.Fatalf("expected 1 warning, got %v", r.Warnings())
	}
	if _, ok := r.GetOptional("nope"); ok {
		t.Error("expected GetOptional to report absence")
	}
}

func TestGetUnresolvedPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unresolved binary")
		}
	}()
	r := New()
	r.Get("never-resolved")
}

func TestResolveOnePrefersFirstMatch(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "fake-binary-xyz")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	path, ok := resolveOne([]string{"fake-binary-xyz", "sh"})
	if !ok {
		t.Fatal("expected resolution to succeed")
	}
	if filepath.Base(path) != "fake-binary-xyz" {
		t.Errorf("expected first candidate to win, got %s", path)
	}
}

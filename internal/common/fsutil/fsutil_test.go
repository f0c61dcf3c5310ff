package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
	t.Setenv("CHATD_TEST_MODELS", "/srv/models")

	cases := map[string]string{
		"":                        "",
		"/tmp":                    "/tmp",
		"~":                       home,
		"~/exaone":                filepath.Join(home, "exaone"),
		"$CHATD_TEST_MODELS/tiny": "/srv/models/tiny",
		"~other/x":                "~other/x",
	}
	for in, want := range cases {
		got, err := ExpandHome(in)
		if err != nil {
			t.Fatalf("ExpandHome(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ExpandHome(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPathExistsAndIsFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "config.json")
	if err := os.WriteFile(f, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !PathExists(dir) || !PathExists(f) {
		t.Fatal("expected both paths to exist")
	}
	if PathExists(filepath.Join(dir, "missing")) {
		t.Fatal("missing path reported as existing")
	}
	if !IsFile(f) || IsFile(dir) {
		t.Fatal("IsFile confused files and directories")
	}
}

func TestDirSizeCountsTopLevelFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a"), make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b"), make([]byte, 5), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "c"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := DirSize(dir); got != 15 {
		t.Fatalf("DirSize = %d, want 15", got)
	}
	if got := DirSize(filepath.Join(dir, "nope")); got != 0 {
		t.Fatalf("DirSize of missing dir = %d", got)
	}
}

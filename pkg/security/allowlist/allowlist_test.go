package allowlist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestCheck(t *testing.T) {
	tmpDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}
	report := filepath.Join(tmpDir, "report.csv")
	other := filepath.Join(tmpDir, "other.csv")
	writeFile(t, report)
	writeFile(t, other)

	link := filepath.Join(tmpDir, "link.csv")
	if err := os.Symlink(report, link); err != nil {
		t.Fatalf("Failed to create symlink: %v", err)
	}

	list, err := New([]string{report})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		name    string
		path    string
		want    string
		allowed bool
	}{
		{name: "exact entry", path: report, want: report, allowed: true},
		{name: "dot segments", path: filepath.Join(tmpDir, "sub", "..", "report.csv"), want: report, allowed: true},
		{name: "symlink to entry", path: link, want: report, allowed: true},
		{name: "sibling file", path: other, allowed: false},
		{name: "missing file", path: filepath.Join(tmpDir, "nope.csv"), allowed: false},
		{name: "prefix of entry", path: filepath.Join(tmpDir, "report"), allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := list.Check(tt.path)
			if tt.allowed {
				if err != nil {
					t.Fatalf("Check(%q) error = %v", tt.path, err)
				}
				if got != tt.want {
					t.Errorf("Check(%q) = %q, want %q", tt.path, got, tt.want)
				}
				return
			}
			var notAllowed *NotAllowedError
			if !errors.As(err, &notAllowed) {
				t.Fatalf("Check(%q) error = %v, want *NotAllowedError", tt.path, err)
			}
			if !strings.Contains(err.Error(), report) {
				t.Errorf("Error should list allowed entries, got %q", err.Error())
			}
		})
	}
}

func TestCheckRelativePath(t *testing.T) {
	tmpDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}
	writeFile(t, filepath.Join(tmpDir, "a.txt"))

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(wd)

	list, err := New([]string{filepath.Join(tmpDir, "a.txt")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := list.Check("./a.txt"); err != nil {
		t.Errorf("Relative path to an entry should be allowed: %v", err)
	}
}

func TestEmptyListAllowsNothing(t *testing.T) {
	var nilList *List
	if _, err := nilList.Check("/etc/hosts"); err == nil {
		t.Error("nil list must reject every path")
	}

	list, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) error = %v", err)
	}
	if _, err := list.Check("/etc/hosts"); err == nil {
		t.Error("empty list must reject every path")
	}
	if list.Len() != 0 {
		t.Errorf("Len() = %d, want 0", list.Len())
	}
}

func TestNewDeduplicatesAndKeepsOrder(t *testing.T) {
	tmpDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}
	b := filepath.Join(tmpDir, "b")
	a := filepath.Join(tmpDir, "a")

	list, err := New([]string{b, a, b + "/", filepath.Join(tmpDir, ".", "a")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got := list.Entries()
	if len(got) != 2 || got[0] != b || got[1] != a {
		t.Errorf("Entries() = %v, want [%s %s]", got, b, a)
	}
}

func TestNewRejectsEmptyEntry(t *testing.T) {
	if _, err := New([]string{"  "}); err == nil {
		t.Error("New() should reject empty paths")
	}
}

func TestWithin(t *testing.T) {
	tmpDir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}
	downloads := filepath.Join(tmpDir, "downloads")
	inside := filepath.Join(downloads, "up.txt")
	outside := filepath.Join(tmpDir, "downloads-other", "up.txt")

	list, err := New([]string{inside, outside})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := list.Within(downloads)
	if err != nil {
		t.Fatalf("Within() error = %v", err)
	}
	if len(got) != 1 || got[0] != inside {
		t.Errorf("Within() = %v, want [%s]", got, inside)
	}
}

func TestCanonicalizeTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := Canonicalize("~/browsersteps-does-not-exist/file.txt")
	if err != nil {
		t.Fatalf("Canonicalize() error = %v", err)
	}
	resolvedHome, err := filepath.EvalSymlinks(home)
	if err != nil {
		resolvedHome = home
	}
	want := filepath.Join(resolvedHome, "browsersteps-does-not-exist", "file.txt")
	if got != want {
		t.Errorf("Canonicalize() = %q, want %q", got, want)
	}
}

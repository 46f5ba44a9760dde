package stash

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPreserveMovesIntoAutoStash(t *testing.T) {
	root := t.TempDir()
	metaDir := filepath.Join(root, ".ncs")
	localPath := filepath.Join(root, "note.md")
	if err := os.WriteFile(localPath, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}

	s := New(metaDir, false, 7*24*time.Hour)
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	if err := s.Preserve(localPath, now); err != nil {
		t.Fatalf("Preserve: %v", err)
	}

	if _, err := os.Stat(localPath); !os.IsNotExist(err) {
		t.Error("expected original path to be gone")
	}

	autoDir := filepath.Join(metaDir, "20260729")
	entries, err := os.ReadDir(autoDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 stashed file, got %d", len(entries))
	}
}

func TestPreserveAlsoCopiesToUserStashWhenEnabled(t *testing.T) {
	root := t.TempDir()
	metaDir := filepath.Join(root, ".ncs")
	localPath := filepath.Join(root, "note.md")
	if err := os.WriteFile(localPath, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}

	s := New(metaDir, true, 7*24*time.Hour)
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)
	if err := s.Preserve(localPath, now); err != nil {
		t.Fatalf("Preserve: %v", err)
	}

	userEntries, err := os.ReadDir(filepath.Join(metaDir, "stash"))
	if err != nil {
		t.Fatalf("ReadDir user-stash: %v", err)
	}
	if len(userEntries) != 1 {
		t.Fatalf("expected 1 user-stashed file, got %d", len(userEntries))
	}
}

func TestPreserveMissingPathIsNoOp(t *testing.T) {
	root := t.TempDir()
	s := New(filepath.Join(root, ".ncs"), false, 7*24*time.Hour)
	if err := s.Preserve(filepath.Join(root, "missing.md"), time.Now()); err != nil {
		t.Fatalf("expected no error for missing path, got %v", err)
	}
}

func TestPrunesOldAutoStashDirectories(t *testing.T) {
	root := t.TempDir()
	metaDir := filepath.Join(root, ".ncs")
	old := filepath.Join(metaDir, "20200101")
	recent := filepath.Join(metaDir, "20260728")
	for _, dir := range []string{old, recent} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			t.Fatal(err)
		}
	}

	s := New(metaDir, false, 7*24*time.Hour)
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)
	if err := s.Prune(now); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected old auto-stash directory to be pruned")
	}
	if _, err := os.Stat(recent); err != nil {
		t.Error("expected recent auto-stash directory to survive")
	}
}

package localwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ncsync/ncsync/pkg/logging"
)

func waitForEvent(t *testing.T, w *Watcher, timeout time.Duration) Event {
	t.Helper()
	select {
	case e := <-w.Events:
		return e
	case err := <-w.Errors:
		t.Fatalf("watcher error: %v", err)
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestWriteEmitsModify(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	if err := os.WriteFile(path, []byte("v1"), 0600); err != nil {
		t.Fatal(err)
	}

	w, err := New(root, logging.RootLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("v2"), 0600); err != nil {
		t.Fatal(err)
	}

	e := waitForEvent(t, w, 2*time.Second)
	if e.Kind != EventModify || e.Path != "/note.md" {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestRemoveWithoutFollowupEmitsDelete(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "note.md")
	if err := os.WriteFile(path, []byte("v1"), 0600); err != nil {
		t.Fatal(err)
	}

	w, err := New(root, logging.RootLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	e := waitForEvent(t, w, 2*time.Second)
	if e.Kind != EventDelete || e.Path != "/note.md" {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestRenameEmitsMove(t *testing.T) {
	root := t.TempDir()
	oldPath := filepath.Join(root, "old.md")
	newPath := filepath.Join(root, "new.md")
	if err := os.WriteFile(oldPath, []byte("v1"), 0600); err != nil {
		t.Fatal(err)
	}

	w, err := New(root, logging.RootLogger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}

	e := waitForEvent(t, w, 2*time.Second)
	if e.Kind != EventMove || e.Path != "/new.md" || e.OldPath != "/old.md" {
		t.Errorf("unexpected event: %+v", e)
	}
}

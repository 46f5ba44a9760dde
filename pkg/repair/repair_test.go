package repair

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ncsync/ncsync/pkg/exclude"
	"github.com/ncsync/ncsync/pkg/logging"
	"github.com/ncsync/ncsync/pkg/stash"
	"github.com/ncsync/ncsync/pkg/webdav"
)

func newTestContext(t *testing.T, handler http.HandlerFunc) (*Context, string) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	localRoot := t.TempDir()
	client := webdav.NewClient(server.URL, "user", "pass", "/remote.php/dav/files/user", logging.RootLogger)

	return &Context{
		Client:    client,
		Exclude:   exclude.NewChecker(exclude.NewList()),
		Stash:     stash.New(filepath.Join(localRoot, ".ncs"), false, 7*24*time.Hour),
		LocalRoot: localRoot,
		Logger:    logging.RootLogger,
	}, localRoot
}

func TestHardRepairRemovesTopLevelEntries(t *testing.T) {
	rc, localRoot := newTestContext(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if err := os.MkdirAll(filepath.Join(localRoot, "docs"), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(localRoot, "note.md"), []byte("hi"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := Hard(rc); err != nil {
		t.Fatalf("Hard: %v", err)
	}

	entries, err := os.ReadDir(localRoot)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected an empty local root after hard repair, got %d entries", len(entries))
	}
}

func TestHardRepairOnMissingRootIsNoOp(t *testing.T) {
	rc, localRoot := newTestContext(t, func(w http.ResponseWriter, r *http.Request) {})
	if err := os.RemoveAll(localRoot); err != nil {
		t.Fatal(err)
	}

	if err := Hard(rc); err != nil {
		t.Errorf("expected no error for a missing local root, got %v", err)
	}
}

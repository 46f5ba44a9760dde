package reconcile

import (
	"testing"

	"github.com/ncsync/ncsync/pkg/cancel"
	"github.com/ncsync/ncsync/pkg/entrytree"
	"github.com/ncsync/ncsync/pkg/exclude"
	"github.com/ncsync/ncsync/pkg/webdav"
)

func excludeAllowNone(t *testing.T) *exclude.Checker {
	t.Helper()
	return exclude.NewChecker(exclude.NewList())
}

func TestCursorAdvancesNumeric(t *testing.T) {
	if cursorAdvances("100", "99") {
		t.Error("99 should not advance past 100")
	}
	if cursorAdvances("100", "100") {
		t.Error("equal cursor should not advance")
	}
	if !cursorAdvances("100", "101") {
		t.Error("101 should advance past 100")
	}
}

func TestCursorAdvancesOpaqueFallback(t *testing.T) {
	if !cursorAdvances("abc", "def") {
		t.Error("a differing opaque cursor should be treated as progress")
	}
	if cursorAdvances("abc", "abc") {
		t.Error("an identical opaque cursor should not advance")
	}
	if cursorAdvances("abc", "") {
		t.Error("an empty candidate cursor should never advance")
	}
}

func TestRemoteEchoKeyMatchesLocalMoveInsertion(t *testing.T) {
	l2nc := cancel.NewEventSet()
	l2nc.Add("move:/old.md>/new.md")

	ev := webdav.RemoteEvent{Kind: webdav.RemoteMove, OldPath: "/old.md", Path: "/new.md"}
	if !l2nc.Consume(remoteEchoKey(ev)) {
		t.Error("expected the local move insertion to cancel the matching remote move event")
	}
}

func TestHandleRemoteEventSkipsExcludedPath(t *testing.T) {
	e := &Engine{
		Root:       entrytree.NewRoot(),
		Exclude:    excludeAllowNone(t),
		L2ncCancel: cancel.NewEventSet(),
		Nc2lCancel: cancel.NewPathCounter(),
	}

	e.handleRemoteEvent(nil, webdav.RemoteEvent{Kind: webdav.RemoteCreate, Path: "/.hidden"})

	if handle, _ := entrytree.Get(e.Root, "/.hidden"); handle.Valid() {
		t.Error("excluded path should never be grafted")
	}
}

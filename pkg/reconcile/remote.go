package reconcile

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ncsync/ncsync/pkg/entrytree"
	"github.com/ncsync/ncsync/pkg/webdav"
)

// cursorAdvances reports whether candidate represents progress beyond
// current: numerically if both parse as integers (the common case for
// Nextcloud's monotonic activity ids), falling back to a simple
// inequality check for opaque cursor values.
func cursorAdvances(current, candidate string) bool {
	if candidate == "" || candidate == current {
		return false
	}
	curN, curErr := strconv.ParseInt(current, 10, 64)
	candN, candErr := strconv.ParseInt(candidate, 10, 64)
	if curErr == nil && candErr == nil {
		return candN > curN
	}
	return true
}

// handleRemoteBatch applies a batch of remote activity events and, only
// if the batch represents real progress, advances the cursor. A batch
// for a cursor at or behind the current one is dropped outright: it is
// either a duplicate poll or a page the engine has already consumed.
func (e *Engine) handleRemoteBatch(ctx context.Context, events []webdav.RemoteEvent, newCursor string) {
	if !cursorAdvances(e.NCCursor, newCursor) {
		e.Logger.Debugf("dropping stale activity batch at cursor %s", newCursor)
		return
	}

	if !e.online {
		e.Logger.Debugf("offline, deferring %d remote events until reconnect", len(events))
		return
	}

	for _, ev := range events {
		e.handleRemoteEvent(ctx, ev)
	}

	e.setCursor(newCursor)
	e.persist()
}

func remoteEchoKey(ev webdav.RemoteEvent) string {
	switch ev.Kind {
	case webdav.RemoteCreate:
		return "create:" + ev.Path
	case webdav.RemoteDelete:
		return "delete:" + ev.Path
	case webdav.RemoteModify:
		return "modify:" + ev.Path
	case webdav.RemoteMove:
		return "move:" + ev.OldPath + ">" + ev.Path
	default:
		return ""
	}
}

func (e *Engine) handleRemoteEvent(ctx context.Context, ev webdav.RemoteEvent) {
	if !e.Exclude.Judge(ev.Path) {
		return
	}

	if key := remoteEchoKey(ev); key != "" && e.L2ncCancel.Consume(key) {
		e.Logger.Debugf("cancelling echoed remote event %s", key)
		return
	}

	switch ev.Kind {
	case webdav.RemoteCreate:
		e.remoteCreate(ctx, ev.Path)
	case webdav.RemoteDelete:
		e.remoteDelete(ev.Path)
	case webdav.RemoteModify:
		e.remoteModify(ctx, ev.Path)
	case webdav.RemoteMove:
		e.remoteMove(ctx, ev.OldPath, ev.Path)
	}
}

// probeIsDir asks the Server whether path names a collection or a file
// via a single PROPFIND. ok is false if the probe itself failed (the
// path may already be gone) or returned nothing usable for path.
func (e *Engine) probeIsDir(ctx context.Context, path string) (isDir bool, ok bool) {
	entries, err := e.Client.List(ctx, path)
	if err != nil {
		return false, false
	}
	target := strings.TrimSuffix(path, "/")
	for _, ent := range entries {
		if strings.TrimSuffix(ent.Path, "/") == target {
			return ent.IsDir, true
		}
	}
	// The server didn't report path itself but did report descendants
	// under it, which only happens for a collection.
	return len(entries) > 0, len(entries) > 0
}

// remoteCreate handles a Create event: if path is already present in the
// tree, it is skipped (an idempotent retry). Otherwise the Server is
// probed to learn whether path is a file or a directory before grafting,
// so a directory Create never gets mistaken for an empty file — which
// would otherwise make a subsequent Create of a child under it fail with
// ErrInvalidPath. Directories that must exist along the way are handled
// by entrytree.Append's intermediate-directory materialization.
func (e *Engine) remoteCreate(ctx context.Context, path string) {
	if handle, err := entrytree.Get(e.Root, path); err == nil {
		if existing, uerr := handle.Upgrade(); uerr == nil && existing != nil {
			return
		}
	}

	isDir, ok := e.probeIsDir(ctx, path)
	if !ok {
		e.Logger.Warnf("unable to probe server for create %s, skipping", path)
		return
	}

	kind := entrytree.KindFile
	if isDir {
		kind = entrytree.KindDirectory
	}
	entry := entrytree.New(filepathBase(path), kind)
	if isDir {
		entry.SetStatus(entrytree.StatusUpToDate)
	}

	materialized, err := entrytree.Append(e.Root, path, entry, entrytree.AppendCreate, true)
	if err != nil {
		e.Logger.Warnf("unable to graft remote create %s: %v", path, err)
		return
	}
	for _, dir := range materialized {
		local := e.localPath(pathOf(e.Root, dir))
		if err := ensureLocalDir(local); err != nil {
			e.Logger.Warnf("unable to materialize directory %s: %v", local, err)
		}
	}

	if isDir {
		if err := ensureLocalDir(e.localPath(path)); err != nil {
			e.Logger.Warnf("unable to create directory %s: %v", path, err)
		}
		return
	}

	e.downloadInto(ctx, path, entry)
}

func (e *Engine) remoteDelete(path string) {
	entry, err := entrytree.Pop(e.Root, path)
	if err != nil {
		e.Logger.Warnf("unable to pop remote delete %s: %v", path, err)
		return
	}
	if entry == nil {
		return
	}

	local := e.localPath(path)
	e.Nc2lCancel.Bump(path)
	if entry.IsFile() {
		if err := e.Stash.Preserve(local, now()); err != nil {
			e.Logger.Warnf("unable to stash %s before remote delete: %v", local, err)
		}
	}
	if err := os.RemoveAll(local); err != nil && !os.IsNotExist(err) {
		e.Logger.Warnf("unable to remove %s locally: %v", local, err)
	}
}

func (e *Engine) remoteModify(ctx context.Context, path string) {
	handle, err := entrytree.Get(e.Root, path)
	if err != nil {
		e.Logger.Warnf("unable to resolve remote modify %s: %v", path, err)
		return
	}
	entry, err := handle.Upgrade()
	if err != nil || entry == nil {
		// Never seen locally; treat as a create.
		e.remoteCreate(ctx, path)
		return
	}
	e.downloadInto(ctx, path, entry)
}

func (e *Engine) remoteMove(ctx context.Context, oldPath, newPath string) {
	entry, err := entrytree.Pop(e.Root, oldPath)
	if err != nil {
		e.Logger.Warnf("unable to pop move source %s: %v", oldPath, err)
		return
	}
	if entry == nil {
		// The source was never observed; fall back to expanding the
		// destination into synthetic Create events for everything the
		// Server currently reports under it.
		e.expandMoveDestination(ctx, newPath)
		return
	}

	if _, err := entrytree.Append(e.Root, newPath, entry, entrytree.AppendMove, true); err != nil {
		e.Logger.Warnf("unable to graft move destination %s: %v", newPath, err)
		return
	}

	oldLocal := e.localPath(oldPath)
	newLocal := e.localPath(newPath)
	e.Nc2lCancel.Bump(newPath)

	if info, statErr := os.Stat(newLocal); statErr == nil && !info.IsDir() {
		if err := e.Stash.Preserve(newLocal, now()); err != nil {
			e.Logger.Warnf("unable to stash %s before move overwrite: %v", newLocal, err)
		}
	}

	if err := ensureLocalDir(filepath.Dir(newLocal)); err != nil {
		e.Logger.Warnf("unable to create parent of %s: %v", newLocal, err)
		return
	}
	if err := os.Rename(oldLocal, newLocal); err != nil && !os.IsNotExist(err) {
		e.Logger.Warnf("unable to move %s to %s locally: %v", oldLocal, newLocal, err)
	}

	e.fixEntryType(ctx, entry, newPath)
}

// expandMoveDestination handles a Move whose source path the engine
// never saw tracked: it lists every path the Server currently reports
// under newPath and replays each as a synthetic Create, per the Move
// fallback rule.
func (e *Engine) expandMoveDestination(ctx context.Context, newPath string) {
	entries, err := e.Client.List(ctx, newPath)
	if err != nil {
		e.Logger.Warnf("unable to expand move destination %s: %v", newPath, err)
		return
	}
	for _, ent := range entries {
		p := strings.TrimSuffix(ent.Path, "/")
		if p == "" {
			continue
		}
		e.remoteCreate(ctx, p)
	}
}

// fixEntryType rechecks entry's kind against the Server after a move,
// recursing into children for directories, to recover from WebDAV/
// activity-log inconsistencies that occasionally report a directory as
// a file (or vice versa) on one side. A disagreement replaces the
// entry's variant, marks it NeedUpdate, removes and re-touches the local
// path, and — if it is now a file — queues a download.
func (e *Engine) fixEntryType(ctx context.Context, entry *entrytree.Entry, path string) {
	isDir, ok := e.probeIsDir(ctx, path)
	if !ok {
		return
	}

	if isDir && entry.IsFile() {
		e.retypeEntry(ctx, entry, path, entrytree.KindDirectory)
		return
	}
	if !isDir && entry.IsDirectory() {
		e.retypeEntry(ctx, entry, path, entrytree.KindFile)
		return
	}

	if entry.IsDirectory() {
		for _, child := range entrytree.GetAllChildren(entry) {
			grandPath, err := entrytree.GetPath(child)
			if err != nil {
				continue
			}
			e.fixEntryType(ctx, child, grandPath)
		}
	}
}

// retypeEntry performs the disagreement-recovery steps fixEntryType
// decided on: replace entry's kind, mark it NeedUpdate, remove and
// re-touch the local path, and enqueue a download if it is now a file.
func (e *Engine) retypeEntry(ctx context.Context, entry *entrytree.Entry, path string, kind entrytree.Kind) {
	entry.SetKind(kind)
	entry.SetStatus(entrytree.StatusNeedUpdate)

	local := e.localPath(path)
	if err := os.RemoveAll(local); err != nil && !os.IsNotExist(err) {
		e.Logger.Warnf("unable to remove %s before re-touching: %v", local, err)
	}

	if kind == entrytree.KindDirectory {
		if err := ensureLocalDir(local); err != nil {
			e.Logger.Warnf("unable to re-create directory %s: %v", local, err)
		}
		return
	}

	if err := ensureLocalDir(filepath.Dir(local)); err != nil {
		e.Logger.Warnf("unable to create parent of %s: %v", local, err)
		return
	}
	e.downloadInto(ctx, path, entry)
}

// downloadInto fetches path's current content, stashing whatever was
// there before if its etag differs from what the tree last recorded,
// and bumps the cancellation counter so the local watcher's own
// Write/Create event for this path is dropped rather than replayed.
func (e *Engine) downloadInto(ctx context.Context, path string, entry *entrytree.Entry) {
	body, etag, err := e.Client.Download(ctx, path)
	if err != nil {
		e.Logger.Warnf("unable to download %s: %v", path, err)
		entry.SetStatus(entrytree.StatusError)
		return
	}
	defer body.Close()

	if etag == entry.Etag() {
		return
	}

	local := e.localPath(path)
	if err := ensureLocalDir(filepath.Dir(local)); err != nil {
		e.Logger.Warnf("unable to create parent of %s: %v", local, err)
		entry.SetStatus(entrytree.StatusError)
		return
	}

	if err := e.Stash.Preserve(local, now()); err != nil {
		e.Logger.Warnf("unable to stash existing %s before overwrite: %v", local, err)
	}

	e.Nc2lCancel.Bump(path)

	file, err := os.Create(local)
	if err != nil {
		e.Logger.Warnf("unable to create %s: %v", local, err)
		entry.SetStatus(entrytree.StatusError)
		return
	}
	defer file.Close()

	if _, err := io.Copy(file, body); err != nil {
		e.Logger.Warnf("unable to write %s: %v", local, err)
		entry.SetStatus(entrytree.StatusError)
		return
	}

	entry.SetEtag(etag)
	entry.SetStatus(entrytree.StatusUpToDate)
}

func filepathBase(path string) string {
	return filepath.Base(filepath.FromSlash(path))
}

// pathOf is a best-effort reconstruction of entry's canonical path; used
// only for logging/materialization where GetPath's locking discipline is
// already satisfied by the dispatcher's single-goroutine model.
func pathOf(root *entrytree.Entry, entry *entrytree.Entry) string {
	path, err := entrytree.GetPath(entry)
	if err != nil {
		return ""
	}
	return path
}

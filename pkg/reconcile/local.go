package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ncsync/ncsync/pkg/entrytree"
	"github.com/ncsync/ncsync/pkg/localwatch"
)

// childPath joins name onto the canonical parent path, used when
// recursing a directory Create into its direct on-disk entries.
func childPath(parent, name string) string {
	return strings.TrimSuffix(parent, "/") + "/" + name
}

func localEchoKey(kind string, path, oldPath string) string {
	if oldPath != "" {
		return kind + ":" + oldPath + ">" + path
	}
	return kind + ":" + path
}

// handleLocalEvent applies one coalesced local filesystem event. While
// offline, events are queued for replay by a soft repair on reconnect
// rather than attempted against the server.
func (e *Engine) handleLocalEvent(ctx context.Context, ev localwatch.Event) {
	if !e.Exclude.Judge(ev.Path) {
		return
	}

	if !e.online {
		e.offlineLocalQueue = append(e.offlineLocalQueue, ev)
		return
	}

	switch ev.Kind {
	case localwatch.EventCreate:
		e.localCreate(ctx, ev.Path)
	case localwatch.EventModify:
		e.localModify(ctx, ev.Path)
	case localwatch.EventDelete:
		e.localDelete(ctx, ev.Path)
	case localwatch.EventMove:
		e.localMove(ctx, ev.OldPath, ev.Path)
	}
}

func (e *Engine) localCreate(ctx context.Context, path string) {
	if e.Nc2lCancel.Consume(path) {
		e.Logger.Debugf("cancelling echoed local create %s", path)
		return
	}

	local := e.localPath(path)
	info, err := os.Stat(local)
	if err != nil {
		return
	}

	if info.IsDir() {
		if _, err := e.Client.Mkcol(ctx, path); err != nil {
			e.Logger.Warnf("unable to create remote directory %s: %v", path, err)
			return
		}
		entry := entrytree.New(filepathBase(path), entrytree.KindDirectory)
		entry.SetStatus(entrytree.StatusUpToDate)
		if _, err := entrytree.Append(e.Root, path, entry, entrytree.AppendCreate, true); err != nil {
			e.Logger.Warnf("unable to graft local directory %s: %v", path, err)
		}
		e.L2ncCancel.Add("create:" + path)

		children, err := os.ReadDir(local)
		if err != nil {
			e.Logger.Warnf("unable to enumerate %s for recursive create: %v", local, err)
			return
		}
		for _, child := range children {
			e.localCreate(ctx, childPath(path, child.Name()))
		}
		return
	}

	e.uploadLocal(ctx, path, local, entrytree.AppendCreate)
	e.L2ncCancel.Add("create:" + path)
}

func (e *Engine) localModify(ctx context.Context, path string) {
	if e.Nc2lCancel.Consume(path) {
		e.Logger.Debugf("cancelling echoed local modify %s", path)
		return
	}

	local := e.localPath(path)
	e.uploadLocal(ctx, path, local, entrytree.AppendMove)
	e.L2ncCancel.Add("modify:" + path)
}

func (e *Engine) localDelete(ctx context.Context, path string) {
	if e.Nc2lCancel.Consume(path) {
		e.Logger.Debugf("cancelling echoed local delete %s", path)
		return
	}

	entry, err := entrytree.Pop(e.Root, path)
	if err != nil || entry == nil {
		return
	}

	if err := e.Client.Delete(ctx, path); err != nil {
		e.Logger.Warnf("unable to delete remote path %s: %v", path, err)
	}
	e.L2ncCancel.Add("delete:" + path)
}

func (e *Engine) localMove(ctx context.Context, oldPath, newPath string) {
	if e.Nc2lCancel.Consume(newPath) {
		e.Logger.Debugf("cancelling echoed local move %s", newPath)
		return
	}

	entry, err := entrytree.Pop(e.Root, oldPath)
	if err != nil || entry == nil {
		return
	}

	if _, err := e.Client.Move(ctx, oldPath, newPath); err != nil {
		e.Logger.Warnf("unable to move remote path %s to %s: %v", oldPath, newPath, err)
	}
	if _, err := entrytree.Append(e.Root, newPath, entry, entrytree.AppendMove, true); err != nil {
		e.Logger.Warnf("unable to graft local move destination %s: %v", newPath, err)
	}

	// If the two paths share a basename, the server's activity log will
	// report the move as occurring within the destination's parent
	// directory rather than by the file's own new path, so the
	// cancellation key uses that parent-directory form; otherwise it uses
	// the new path itself.
	if filepath.Base(oldPath) == filepath.Base(newPath) {
		e.L2ncCancel.Add("move:" + oldPath + ">" + filepath.Dir(newPath))
	} else {
		e.L2ncCancel.Add("move:" + oldPath + ">" + newPath)
	}
}

// uploadLocal reads local and uploads it to path, grafting or updating
// the corresponding tree entry with the etag the server assigns.
func (e *Engine) uploadLocal(ctx context.Context, path, local string, mode entrytree.AppendMode) {
	file, err := os.Open(local)
	if err != nil {
		e.Logger.Warnf("unable to open %s for upload: %v", local, err)
		return
	}
	defer file.Close()

	etag, err := e.Client.Upload(ctx, path, file)
	if err != nil {
		e.Logger.Warnf("unable to upload %s: %v", path, err)
		return
	}

	if handle, herr := entrytree.Get(e.Root, path); herr == nil {
		if existing, uerr := handle.Upgrade(); uerr == nil && existing != nil {
			existing.SetEtag(etag)
			existing.SetStatus(entrytree.StatusUpToDate)
			return
		}
	}

	entry := entrytree.New(filepathBase(path), entrytree.KindFile)
	entry.SetEtag(etag)
	entry.SetStatus(entrytree.StatusUpToDate)
	if _, err := entrytree.Append(e.Root, path, entry, mode, true); err != nil {
		e.Logger.Warnf("unable to graft uploaded entry %s: %v", path, err)
	}
}

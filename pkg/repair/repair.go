// Package repair implements the three repair procedures the engine
// falls back to when its incremental event stream can no longer be
// trusted: a soft repair replays what was missed while offline, a
// normal repair rebuilds the tree and cursor from scratch, and a hard
// repair discards the local mirror outright so the next run starts
// clean.
package repair

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ncsync/ncsync/pkg/cancel"
	"github.com/ncsync/ncsync/pkg/entrytree"
	"github.com/ncsync/ncsync/pkg/exclude"
	"github.com/ncsync/ncsync/pkg/localwatch"
	"github.com/ncsync/ncsync/pkg/logging"
	"github.com/ncsync/ncsync/pkg/stash"
	"github.com/ncsync/ncsync/pkg/webdav"
)

// Context bundles the collaborators a repair needs, mirroring the
// subset of Engine's fields that are meaningful outside the
// dispatcher's single-goroutine confinement.
type Context struct {
	Client    *webdav.Client
	Exclude   *exclude.Checker
	Stash     *stash.Stash
	LocalRoot string
	Logger    *logging.Logger
}

func (rc *Context) localPath(path string) string {
	return filepath.Join(rc.LocalRoot, filepath.FromSlash(path))
}

// Soft pulls whatever activity happened since cursor and applies it
// directly to root, then replays the local events that were buffered
// while offline (uploaded as a Modify if the path is already in the
// tree and as a Create otherwise; a buffered Delete is applied as a
// server delete, and a path that no longer exists locally is skipped).
// Every local write it performs bumps nc2l, and every server mutation it
// performs is recorded in l2nc, so the corresponding echo is dropped
// instead of replayed. It is the caller's responsibility to fall through
// to Normal when Soft returns an error.
func Soft(ctx context.Context, rc *Context, root *entrytree.Entry, cursor string, offline []localwatch.Event, nc2l *cancel.PathCounter, l2nc *cancel.EventSet) (*entrytree.Entry, string, error) {
	events, newCursor, err := rc.Client.PollActivities(ctx, cursor)
	if err != nil {
		return nil, "", errors.Wrap(err, "unable to poll activity during soft repair")
	}

	for _, ev := range events {
		if !rc.Exclude.Judge(ev.Path) {
			continue
		}
		if err := applyRemoteEvent(ctx, rc, root, ev, nc2l); err != nil {
			return nil, "", errors.Wrapf(err, "unable to apply %v during soft repair", ev)
		}
	}

	for _, ev := range offline {
		if !rc.Exclude.Judge(ev.Path) {
			continue
		}
		if err := replayOfflineEvent(ctx, rc, root, ev, l2nc); err != nil {
			return nil, "", errors.Wrapf(err, "unable to replay offline event %v", ev)
		}
	}

	return root, newCursor, nil
}

func applyRemoteEvent(ctx context.Context, rc *Context, root *entrytree.Entry, ev webdav.RemoteEvent, nc2l *cancel.PathCounter) error {
	switch ev.Kind {
	case webdav.RemoteCreate, webdav.RemoteModify:
		entry, err := resolveOrCreate(root, ev.Path)
		if err != nil {
			return err
		}
		return downloadEntry(ctx, rc, ev.Path, entry, nc2l)

	case webdav.RemoteDelete:
		entry, err := entrytree.Pop(root, ev.Path)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		nc2l.Bump(ev.Path)
		if entry.IsFile() {
			if err := rc.Stash.Preserve(rc.localPath(ev.Path), time.Now()); err != nil {
				rc.Logger.Warnf("unable to stash %s before repair delete: %v", ev.Path, err)
			}
		}
		return removeLocal(rc.localPath(ev.Path))

	case webdav.RemoteMove:
		entry, err := entrytree.Pop(root, ev.OldPath)
		if err != nil || entry == nil {
			return err
		}
		if _, err := entrytree.Append(root, ev.Path, entry, entrytree.AppendMove, true); err != nil {
			return err
		}
		nc2l.Bump(ev.Path)
		newLocal := rc.localPath(ev.Path)
		if err := os.MkdirAll(filepath.Dir(newLocal), 0700); err != nil {
			return err
		}
		return os.Rename(rc.localPath(ev.OldPath), newLocal)
	}
	return nil
}

func resolveOrCreate(root *entrytree.Entry, path string) (*entrytree.Entry, error) {
	handle, err := entrytree.Get(root, path)
	if err == nil {
		if entry, uerr := handle.Upgrade(); uerr == nil && entry != nil {
			return entry, nil
		}
	}
	entry := entrytree.New(filepath.Base(filepath.FromSlash(path)), entrytree.KindFile)
	if _, err := entrytree.Append(root, path, entry, entrytree.AppendCreate, true); err != nil {
		return nil, err
	}
	return entry, nil
}

func downloadEntry(ctx context.Context, rc *Context, path string, entry *entrytree.Entry, nc2l *cancel.PathCounter) error {
	body, etag, err := rc.Client.Download(ctx, path)
	if err != nil {
		return err
	}
	defer body.Close()

	if etag == entry.Etag() {
		return nil
	}

	local := rc.localPath(path)
	if err := os.MkdirAll(filepath.Dir(local), 0700); err != nil {
		return err
	}
	if err := rc.Stash.Preserve(local, time.Now()); err != nil {
		rc.Logger.Warnf("unable to stash %s before repair overwrite: %v", local, err)
	}

	nc2l.Bump(path)

	file, err := os.Create(local)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := io.Copy(file, body); err != nil {
		return err
	}

	entry.SetEtag(etag)
	entry.SetStatus(entrytree.StatusUpToDate)
	return nil
}

func removeLocal(path string) error {
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// replayOfflineEvent re-derives a Create or Modify from a buffered
// local event (or applies a buffered Delete on the server), uploading
// whatever currently sits at the path (if anything) and recording the
// echo so the resulting activity-log entry is cancelled rather than
// reprocessed.
func replayOfflineEvent(ctx context.Context, rc *Context, root *entrytree.Entry, ev localwatch.Event, l2nc *cancel.EventSet) error {
	path := ev.Path
	if ev.Kind == localwatch.EventDelete {
		entry, err := entrytree.Pop(root, path)
		if err != nil || entry == nil {
			return err
		}
		if err := rc.Client.Delete(ctx, path); err != nil {
			return err
		}
		l2nc.Add("delete:" + path)
		return nil
	}

	local := rc.localPath(path)
	if _, err := os.Stat(local); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	file, err := os.Open(local)
	if err != nil {
		return err
	}
	defer file.Close()

	etag, err := rc.Client.Upload(ctx, path, file)
	if err != nil {
		return err
	}

	echoKey := "create:" + path
	if handle, herr := entrytree.Get(root, path); herr == nil {
		if existing, uerr := handle.Upgrade(); uerr == nil && existing != nil {
			echoKey = "modify:" + path
		}
	}

	entry, err := resolveOrCreate(root, path)
	if err != nil {
		return err
	}
	entry.SetEtag(etag)
	entry.SetStatus(entrytree.StatusUpToDate)
	l2nc.Add(echoKey)
	return nil
}

// Normal fetches a fresh activity cursor and a fresh recursive listing,
// rebuilds the tree from it (materializing directories before the
// files they contain, so intermediate Append calls never find a
// missing parent), and downloads every file it lists. Local-only paths
// (on disk but absent from the listing) are left in place: they are
// neither removed nor stashed nor uploaded by the repair, and the local
// watcher reports only changes made after it starts, not paths that
// already exist.
func Normal(ctx context.Context, rc *Context) (*entrytree.Entry, string, error) {
	cursor, err := rc.Client.FetchActivityCursor(ctx)
	if err != nil {
		return nil, "", errors.Wrap(err, "unable to fetch activity cursor")
	}

	remote, err := rc.Client.List(ctx, "/")
	if err != nil {
		return nil, "", errors.Wrap(err, "unable to list remote tree")
	}

	sort.Slice(remote, func(i, j int) bool {
		return strings.Count(strings.TrimSuffix(remote[i].Path, "/"), "/") < strings.Count(strings.TrimSuffix(remote[j].Path, "/"), "/")
	})

	root := entrytree.NewRoot()
	for _, re := range remote {
		path := strings.TrimSuffix(re.Path, "/")
		if path == "" || !rc.Exclude.Judge(path) {
			continue
		}

		kind := entrytree.KindFile
		if re.IsDir {
			kind = entrytree.KindDirectory
		}
		entry := entrytree.New(filepath.Base(filepath.FromSlash(path)), kind)
		entry.SetEtag(re.Etag)
		entry.SetStatus(entrytree.StatusUpToDate)
		if _, err := entrytree.Append(root, path, entry, entrytree.AppendCreate, true); err != nil {
			rc.Logger.Warnf("unable to graft %s during normal repair: %v", path, err)
			continue
		}

		if re.IsDir {
			if err := os.MkdirAll(rc.localPath(path), 0700); err != nil {
				rc.Logger.Warnf("unable to create local directory %s: %v", path, err)
			}
			continue
		}

		if err := downloadIfStale(ctx, rc, path, entry); err != nil {
			rc.Logger.Warnf("unable to refresh %s during normal repair: %v", path, err)
			entry.SetStatus(entrytree.StatusError)
		}
	}

	return root, cursor, nil
}

// downloadIfStale always re-fetches the file: Normal repair discards
// the previous cache before rebuilding, so there is no prior etag left
// to compare against, only the server's current one.
func downloadIfStale(ctx context.Context, rc *Context, path string, entry *entrytree.Entry) error {
	local := rc.localPath(path)

	body, etag, err := rc.Client.Download(ctx, path)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0700); err != nil {
		return err
	}
	if err := rc.Stash.Preserve(local, time.Now()); err != nil {
		rc.Logger.Warnf("unable to stash %s before repair overwrite: %v", local, err)
	}

	file, err := os.Create(local)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := io.Copy(file, body); err != nil {
		return err
	}

	entry.SetEtag(etag)
	return nil
}

// Hard discards the local mirror's top-level entries outright (without
// stashing them, since a hard repair is the operator's explicit
// "discard everything and start over" escape hatch) so that the
// dispatcher restarting after Hard begins from a Normal repair against
// an empty local root.
func Hard(rc *Context) error {
	entries, err := os.ReadDir(rc.LocalRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "unable to list local root for hard repair")
	}

	for _, entry := range entries {
		path := filepath.Join(rc.LocalRoot, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrapf(err, "unable to remove %s during hard repair", path)
		}
	}
	return nil
}

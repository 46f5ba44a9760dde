package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ncsync/ncsync/pkg/cache"
	"github.com/ncsync/ncsync/pkg/cancel"
	"github.com/ncsync/ncsync/pkg/entrytree"
	"github.com/ncsync/ncsync/pkg/exclude"
	"github.com/ncsync/ncsync/pkg/localwatch"
	"github.com/ncsync/ncsync/pkg/logging"
	"github.com/ncsync/ncsync/pkg/repair"
	"github.com/ncsync/ncsync/pkg/stash"
	"github.com/ncsync/ncsync/pkg/webdav"
)

// maxTerminateRetries bounds how many times a producer-task failure may
// request a restart before the engine gives up and exits for good.
const maxTerminateRetries = 3

// Engine owns the shared, mutable state a synchronization run operates
// on: the entry tree, the activity cursor, and the two cancellation
// books. Every field below is touched only from the dispatcher
// goroutine running Run, except Commands (safe for concurrent send)
// and the fields explicitly marked otherwise.
type Engine struct {
	// resourceMu is the whole-resource lock: held for the duration of
	// a repair's tree replacement, so no event handler observes a
	// torn-down root mid-swap.
	resourceMu sync.Mutex

	Root      *entrytree.Entry
	NCCursor  string
	LocalRoot string
	MetaDir   string

	Client  *webdav.Client
	Exclude *exclude.Checker
	Stash   *stash.Stash
	Logger  *logging.Logger

	Nc2lCancel *cancel.PathCounter
	L2ncCancel *cancel.EventSet

	Commands chan Command

	online            bool
	offlineLocalQueue []localwatch.Event
	terminateRetries  int
}

// New constructs an Engine. root and cursor are typically restored from
// cache.Load, or produced by a normal repair when no usable cache exists.
func New(root *entrytree.Entry, cursor, localRoot, metaDir string, client *webdav.Client, excl *exclude.Checker, st *stash.Stash, logger *logging.Logger) *Engine {
	return &Engine{
		Root:       root,
		NCCursor:   cursor,
		LocalRoot:  localRoot,
		MetaDir:    metaDir,
		Client:     client,
		Exclude:    excl,
		Stash:      st,
		Logger:     logger,
		Nc2lCancel: cancel.NewPathCounter(),
		L2ncCancel: cancel.NewEventSet(),
		Commands:   make(chan Command, 256),
		online:     true,
	}
}

// Cursor returns the current activity cursor, safe to call from a
// goroutine other than the dispatcher (the activity poller reads it to
// know where its next page request should start).
func (e *Engine) Cursor() string {
	e.resourceMu.Lock()
	defer e.resourceMu.Unlock()
	return e.NCCursor
}

// setCursor updates the activity cursor under the resource lock.
func (e *Engine) setCursor(cursor string) {
	e.resourceMu.Lock()
	e.NCCursor = cursor
	e.resourceMu.Unlock()
}

// localPath joins the canonical textual path onto the local root,
// converting to the host's native separator.
func (e *Engine) localPath(path string) string {
	return filepath.Join(e.LocalRoot, filepath.FromSlash(path))
}

// persist saves the current tree and cursor to cache.json. Errors are
// logged, not propagated, since a failed cache write should not abort
// an otherwise-successful reconciliation step.
func (e *Engine) persist() {
	jsonRoot, err := cache.RootToJSON(e.Root)
	if err != nil {
		e.Logger.Warnf("unable to snapshot tree for cache: %v", err)
		return
	}
	snapshot := &cache.Snapshot{LatestActivityID: e.NCCursor, Root: jsonRoot}
	if err := cache.Save(filepath.Join(e.MetaDir, "cache.json"), snapshot); err != nil {
		e.Logger.Warnf("unable to persist cache: %v", err)
	}
}

// Run drives the dispatcher loop until ctx is cancelled or a
// CommandTerminate without retry is received. It returns (retry, err):
// retry reports whether the caller should construct a fresh Engine and
// call Run again (per a hard repair or a retryable producer failure).
func (e *Engine) Run(ctx context.Context) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()

		case cmd, ok := <-e.Commands:
			if !ok {
				return false, nil
			}

			switch cmd.Kind {
			case CommandLocEvent:
				e.handleLocalEvent(ctx, cmd.LocalEvent)

			case CommandNCEvents:
				e.handleRemoteBatch(ctx, cmd.RemoteEvents, cmd.NewCursor)

			case CommandUpdateExcFile:
				e.Logger.Info("exclude list reload requested")

			case CommandUpdateConfigFile:
				e.Logger.Info("configuration reload requested")

			case CommandNetworkConnect:
				e.handleNetworkConnect(ctx)

			case CommandNetworkDisconnect:
				e.online = false
				e.Logger.Warnf("network disconnected, buffering local events")

			case CommandNormalRepair:
				if err := e.handleNormalRepair(ctx); err != nil {
					e.Logger.Errorf("normal repair failed: %v", err)
				}

			case CommandHardRepair:
				e.Logger.Warnf("hard repair requested, restarting")
				if err := repair.Hard(&repair.Context{LocalRoot: e.LocalRoot, Logger: e.Logger}); err != nil {
					e.Logger.Errorf("hard repair failed: %v", err)
				}
				return true, nil

			case CommandError:
				e.Logger.Error(cmd.Err)

			case CommandTerminate:
				if !cmd.Retry {
					return false, cmd.Err
				}
				e.terminateRetries++
				if e.terminateRetries > maxTerminateRetries {
					return false, errors.Wrap(cmd.Err, "exceeded maximum restart attempts")
				}
				return true, cmd.Err
			}
		}
	}
}

// handleNetworkConnect replays whatever local events accumulated while
// offline through a soft repair, then resumes normal online operation.
func (e *Engine) handleNetworkConnect(ctx context.Context) {
	e.Logger.Info("network reconnected, starting soft repair")

	rc := &repair.Context{
		Client:    e.Client,
		Exclude:   e.Exclude,
		Stash:     e.Stash,
		LocalRoot: e.LocalRoot,
		Logger:    e.Logger,
	}

	newRoot, newCursor, err := repair.Soft(ctx, rc, e.Root, e.NCCursor, e.offlineLocalQueue, e.Nc2lCancel, e.L2ncCancel)
	if err != nil {
		e.Logger.Warnf("soft repair failed, escalating to normal repair: %v", err)
		if err := e.handleNormalRepair(ctx); err != nil {
			e.Logger.Errorf("normal repair failed: %v", err)
		}
		e.online = true
		e.offlineLocalQueue = nil
		return
	}

	e.resourceMu.Lock()
	e.Root = newRoot
	e.NCCursor = newCursor
	e.resourceMu.Unlock()

	e.online = true
	e.offlineLocalQueue = nil
	e.persist()
}

// handleNormalRepair fetches a fresh tree and cursor and installs them
// wholesale under the resource lock.
func (e *Engine) handleNormalRepair(ctx context.Context) error {
	rc := &repair.Context{
		Client:    e.Client,
		Exclude:   e.Exclude,
		Stash:     e.Stash,
		LocalRoot: e.LocalRoot,
		Logger:    e.Logger,
	}

	newRoot, newCursor, err := repair.Normal(ctx, rc)
	if err != nil {
		return err
	}

	e.resourceMu.Lock()
	e.Root = newRoot
	e.NCCursor = newCursor
	e.Nc2lCancel.Clear()
	e.L2ncCancel.Clear()
	e.resourceMu.Unlock()

	e.persist()
	return nil
}

// ensureLocalDir makes sure a local directory exists, creating any
// missing parents.
func ensureLocalDir(path string) error {
	return os.MkdirAll(path, 0700)
}

// now is a seam so tests can observe fixed timestamps; production code
// always calls time.Now.
var now = time.Now

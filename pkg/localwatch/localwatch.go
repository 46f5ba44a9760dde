// Package localwatch wraps a debounced, recursive filesystem watch on
// the synchronization root, coalescing raw Create/Write/Remove/Rename
// events into the Create/Modify/Delete/Move vocabulary the
// reconciliation engine consumes.
package localwatch

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/ncsync/ncsync/pkg/logging"
	"github.com/ncsync/ncsync/pkg/pathutil"
)

// coalescingWindow is the time a Remove/Rename is held before it is
// either resolved into a Move (a Create arrives within the window) or
// emitted as a bare Delete.
const coalescingWindow = 10 * time.Millisecond

// EventKind classifies a coalesced local filesystem event.
type EventKind uint8

const (
	// EventCreate indicates a new path appeared.
	EventCreate EventKind = iota
	// EventModify indicates a file's content changed in place.
	EventModify
	// EventDelete indicates a path was removed, with no corresponding
	// create following within the coalescing window.
	EventDelete
	// EventMove indicates a path was relocated or renamed.
	EventMove
)

// Event is one coalesced change, with paths already stripped of the
// watch root and converted to canonical textual form.
type Event struct {
	Kind    EventKind
	Path    string
	OldPath string // set only for EventMove
}

// Watcher observes root recursively and emits coalesced Events on
// Events. Call Close to stop watching.
type Watcher struct {
	root   string
	logger *logging.Logger
	fsw    *fsnotify.Watcher

	Events chan Event
	Errors chan error

	done chan struct{}
}

// New creates a Watcher rooted at root, adding recursive watches for
// every directory currently under it.
func New(root string, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "unable to create filesystem watcher")
	}

	w := &Watcher{
		root:   filepath.Clean(root),
		logger: logger,
		fsw:    fsw,
		Events: make(chan Event, 64),
		Errors: make(chan error, 16),
		done:   make(chan struct{}),
	}

	if err := w.addRecursive(w.root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()

	return w, nil
}

// Close stops the watcher and releases its underlying resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if addErr := w.fsw.Add(path); addErr != nil {
				w.logger.Warnf("unable to watch %s: %v", path, addErr)
			}
		}
		return nil
	})
}

func (w *Watcher) relativePath(absPath string) string {
	rel := strings.TrimPrefix(absPath, w.root)
	return pathutil.Path2Str(rel)
}

func (w *Watcher) run() {
	var pendingPath string
	var hasPending bool
	var timer *time.Timer
	var timerC <-chan time.Time

	flushPending := func() {
		if !hasPending {
			return
		}
		if timer != nil {
			timer.Stop()
		}
		w.emit(Event{Kind: EventDelete, Path: w.relativePath(pendingPath)})
		hasPending = false
		pendingPath = ""
		timerC = nil
	}

	startPending := func(path string) {
		pendingPath = path
		hasPending = true
		timer = time.NewTimer(coalescingWindow)
		timerC = timer.C
	}

	for {
		select {
		case <-w.done:
			return

		case <-timerC:
			flushPending()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			default:
			}

		case raw, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			switch {
			case raw.Op&fsnotify.Create != 0:
				if hasPending {
					oldPath := pendingPath
					hasPending = false
					pendingPath = ""
					timerC = nil
					if timer != nil {
						timer.Stop()
					}
					w.emit(Event{
						Kind:    EventMove,
						Path:    w.relativePath(raw.Name),
						OldPath: w.relativePath(oldPath),
					})
				} else {
					w.emit(Event{Kind: EventCreate, Path: w.relativePath(raw.Name)})
				}
				w.maybeWatchDirectory(raw.Name)

			case raw.Op&fsnotify.Write != 0:
				flushPending()
				w.emit(Event{Kind: EventModify, Path: w.relativePath(raw.Name)})

			case raw.Op&fsnotify.Remove != 0, raw.Op&fsnotify.Rename != 0:
				flushPending()
				startPending(raw.Name)

			default:
				// Chmod and any other bits are not of interest.
			}
		}
	}
}

func (w *Watcher) maybeWatchDirectory(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addRecursive(path); err != nil {
		w.logger.Warnf("unable to extend watch to %s: %v", path, err)
	}
}

func (w *Watcher) emit(e Event) {
	select {
	case w.Events <- e:
	case <-w.done:
	}
}

package entrytree

import "errors"

// Error kinds returned by tree operations, per the error taxonomy shared
// across ncsync (see pkg/webdav and pkg/reconcile for the other kinds).
var (
	// ErrLock indicates that an entry's lock could not be acquired for a
	// mutation. Under the engine's single-dispatcher concurrency model this
	// only fires if tree operations are (incorrectly) invoked reentrantly or
	// from more than one goroutine at once.
	ErrLock = errors.New("failed locking entry")

	// ErrWeakUpgrade indicates that a weak handle's target has since been
	// detached from the tree (its owning slot was popped and never
	// reattached, or was overwritten by a different entry).
	ErrWeakUpgrade = errors.New("failed to upgrade weak handle")

	// ErrInvalidPath indicates that a path is malformed or violates a tree
	// invariant (e.g. it passes through a file as though it were a
	// directory).
	ErrInvalidPath = errors.New("invalid path")

	// ErrAlreadyExists indicates that Append was called in Create mode
	// against a path that already resolves to an entry, without overwrite.
	ErrAlreadyExists = errors.New("entry already exists")

	// ErrNotRoot indicates that a root-only operation (Get, Pop, Append) was
	// invoked against a non-root entry.
	ErrNotRoot = errors.New("receiver is not the tree root")
)

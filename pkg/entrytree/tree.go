package entrytree

import (
	"fmt"
	"strings"

	"github.com/ncsync/ncsync/pkg/pathutil"
)

// AppendMode selects the grafting behavior of Append.
type AppendMode uint8

const (
	// AppendCreate grafts a brand-new entry. The path must not already
	// resolve to an entry unless overwrite is set.
	AppendCreate AppendMode = iota
	// AppendMove grafts an entry that is being relocated from elsewhere in
	// the tree (or freshly popped pending reattachment). If the
	// destination already resolves to a directory, the moved entry is
	// placed inside it, preserving its own name; otherwise the
	// destination's final path segment is written onto the moved entry and
	// it replaces whatever the destination currently holds.
	AppendMove
)

// AppendChild attaches child to parent, setting child's parent
// back-reference and inserting it into parent's child map under its raw
// name. parent must be a directory.
func AppendChild(parent, child *Entry) error {
	if !parent.mu.TryLock() {
		return ErrLock
	}
	defer parent.mu.Unlock()

	if parent.kind != KindDirectory {
		return fmt.Errorf("%w: parent is not a directory", ErrInvalidPath)
	}

	if !child.mu.TryLock() {
		return ErrLock
	}
	name := child.name
	child.parent = parent
	child.detached = false
	child.mu.Unlock()

	parent.children[name] = child

	return nil
}

// Get looks up the entry at the canonical path, starting from root. root
// must be the tree root. Path "/" returns the root. If the resolved value
// would have to pass through a file as though it were a directory, or the
// path simply does not resolve, Get returns a zero WeakHandle with no
// error (the absence itself is not a failure).
func Get(root *Entry, path string) (WeakHandle, error) {
	if !root.IsRoot() {
		return WeakHandle{}, ErrNotRoot
	}

	segments := pathutil.PreparePathVec(path)
	cur := root
	for len(segments) > 0 {
		seg := segments[len(segments)-1]
		segments = segments[:len(segments)-1]
		if seg == "" {
			continue
		}
		if cur.Kind() != KindDirectory {
			return WeakHandle{}, nil
		}
		cur.mu.Lock()
		child, ok := cur.children[seg]
		cur.mu.Unlock()
		if !ok {
			return WeakHandle{}, nil
		}
		cur = child
	}
	return weaken(cur), nil
}

// Pop removes and returns the entry at path, clearing its parent
// back-reference. root must be the tree root. If the path does not
// resolve, Pop returns (nil, nil).
func Pop(root *Entry, path string) (*Entry, error) {
	if !root.IsRoot() {
		return nil, ErrNotRoot
	}

	if pathutil.FixRoot(path) == "/" {
		return nil, fmt.Errorf("%w: cannot pop the root", ErrInvalidPath)
	}

	parentPath, finalName := splitParentAndName(path)
	parentHandle, err := Get(root, parentPath)
	if err != nil {
		return nil, err
	}
	parent, err := parentHandle.Upgrade()
	if err != nil || parent == nil {
		return nil, nil
	}
	if parent.Kind() != KindDirectory {
		return nil, nil
	}

	if !parent.mu.TryLock() {
		return nil, ErrLock
	}
	child, ok := parent.children[finalName]
	if ok {
		delete(parent.children, finalName)
	}
	parent.mu.Unlock()

	if !ok {
		return nil, nil
	}

	child.mu.Lock()
	child.parent = nil
	child.detached = true
	child.mu.Unlock()

	return child, nil
}

// Append grafts entry at path under root, per mode. It returns the list of
// intermediate directories that had to be materialized as placeholders (so
// the caller can realize them on disk), in descent order (shallowest
// first).
func Append(root *Entry, path string, entry *Entry, mode AppendMode, overwrite bool) ([]*Entry, error) {
	if !root.IsRoot() {
		return nil, ErrNotRoot
	}

	parentPath, finalName := splitParentAndName(path)

	parent, materialized, err := ensureDir(root, parentPath)
	if err != nil {
		return nil, err
	}

	if !parent.mu.TryLock() {
		return nil, ErrLock
	}
	existing, exists := parent.children[finalName]
	parent.mu.Unlock()

	switch mode {
	case AppendCreate:
		if exists && !overwrite {
			return materialized, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}
		entry.mu.Lock()
		entry.name = finalName
		entry.mu.Unlock()
		if exists {
			destroy(existing)
		}
		if err := AppendChild(parent, entry); err != nil {
			return materialized, err
		}
	case AppendMove:
		if exists && existing.IsDirectory() {
			// Place the moved entry inside the existing directory,
			// preserving its own name.
			if err := AppendChild(existing, entry); err != nil {
				return materialized, err
			}
		} else {
			entry.mu.Lock()
			entry.name = finalName
			entry.mu.Unlock()
			if exists {
				destroy(existing)
			}
			if err := AppendChild(parent, entry); err != nil {
				return materialized, err
			}
		}
	default:
		return materialized, fmt.Errorf("unhandled append mode %d", mode)
	}

	return materialized, nil
}

// destroy permanently marks an entry (and, recursively, its children) as
// detached, invalidating any WeakHandle that refers to it. This is the
// "last owning handle released" moment from the data model for entries
// that are discarded rather than reattached (overwritten creates, fixed-up
// entry kinds).
func destroy(entry *Entry) {
	entry.mu.Lock()
	entry.detached = true
	entry.parent = nil
	children := make([]*Entry, 0, len(entry.children))
	for _, child := range entry.children {
		children = append(children, child)
	}
	entry.mu.Unlock()
	for _, child := range children {
		destroy(child)
	}
}

// ensureDir resolves dirPath under root, materializing any missing
// intermediate directories as UpToDate placeholders. It fails with
// ErrInvalidPath if a path segment resolves to a file.
func ensureDir(root *Entry, dirPath string) (*Entry, []*Entry, error) {
	var materialized []*Entry

	segments := pathutil.PreparePathVec(dirPath)
	cur := root
	for len(segments) > 0 {
		seg := segments[len(segments)-1]
		segments = segments[:len(segments)-1]
		if seg == "" {
			continue
		}
		if cur.Kind() != KindDirectory {
			return nil, materialized, fmt.Errorf("%w: %q is not a directory", ErrInvalidPath, cur.Name())
		}

		cur.mu.Lock()
		child, ok := cur.children[seg]
		cur.mu.Unlock()

		if !ok {
			placeholder := New(seg, KindDirectory)
			placeholder.status = StatusUpToDate
			if err := AppendChild(cur, placeholder); err != nil {
				return nil, materialized, err
			}
			materialized = append(materialized, placeholder)
			child = placeholder
		} else if child.Kind() != KindDirectory {
			return nil, materialized, fmt.Errorf("%w: %q is a file, not a directory", ErrInvalidPath, seg)
		}

		cur = child
	}

	return cur, materialized, nil
}

// splitParentAndName splits a canonical path into its parent directory
// path and final raw segment name.
func splitParentAndName(path string) (string, string) {
	fixed := pathutil.FixRoot(path)
	trimmed := strings.TrimPrefix(fixed, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx == -1 {
		return "/", trimmed
	}
	return "/" + trimmed[:idx], trimmed[idx+1:]
}

// GetPath reconstructs the canonical path of entry by walking its parent
// chain. It must not be called while any ancestor of entry is held
// exclusively by the caller, since it walks parents top-down (here: bottom
// up, acquiring each ancestor's lock only momentarily to read its name).
func GetPath(entry *Entry) (string, error) {
	var segments []string
	cur := entry
	for {
		cur.mu.Lock()
		name := cur.name
		parent := cur.parent
		cur.mu.Unlock()

		if parent == nil {
			if name != "" {
				return "", fmt.Errorf("%w: encountered a parentless non-root entry", ErrInvalidPath)
			}
			break
		}
		segments = append(segments, name)
		cur = parent
	}

	if len(segments) == 0 {
		return "/", nil
	}

	// segments were collected leaf-to-root; reverse them.
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}

	return "/" + strings.Join(segments, "/"), nil
}

// GetChild performs a non-owning lookup of a direct child by raw name.
func GetChild(parent *Entry, name string) (*Entry, bool) {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	child, ok := parent.children[name]
	return child, ok
}

// GetAllChildren performs a non-owning snapshot of all direct children.
func GetAllChildren(parent *Entry) []*Entry {
	parent.mu.Lock()
	defer parent.mu.Unlock()
	children := make([]*Entry, 0, len(parent.children))
	for _, child := range parent.children {
		children = append(children, child)
	}
	return children
}

// GetTree renders a human-readable, indented box-drawing dump of the
// hierarchy rooted at entry, for diagnostics.
func GetTree(entry *Entry) string {
	var b strings.Builder
	renderTree(&b, entry, "")
	return b.String()
}

func renderTree(b *strings.Builder, entry *Entry, indent string) {
	name := entry.DisplayName()
	if name == "" {
		name = "/"
	}
	etag := entry.Etag()
	if etag != "" {
		if len(etag) > 8 {
			etag = etag[:8]
		}
		fmt.Fprintf(b, "%s (%s)\n", name, etag)
	} else {
		fmt.Fprintf(b, "%s\n", name)
	}

	children := GetAllChildren(entry)
	for i, child := range children {
		last := i == len(children)-1
		var branch, nextIndent string
		if last {
			branch = "└── "
			nextIndent = indent + "    "
		} else {
			branch = "├── "
			nextIndent = indent + "│   "
		}
		b.WriteString(indent + branch)
		renderTree(b, child, nextIndent)
	}
}

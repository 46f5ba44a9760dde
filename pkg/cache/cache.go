// Package cache persists the engine's durable state: the latest processed
// activity cursor and a JSON snapshot of the entry tree, stored as
// cache.json under the metadata directory.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ncsync/ncsync/pkg/entrytree"
)

const temporaryNamePrefix = ".ncsync-tmp-"

// Snapshot is the on-disk shape of cache.json.
type Snapshot struct {
	LatestActivityID string    `json:"latest_activity_id"`
	Root             JSONEntry `json:"root_entry"`
}

// JSONEntry is the recursive sum-type encoding of an entrytree.Entry: a
// directory carries children, a file carries an etag. The Type field
// discriminates the two on the wire, matching the tagged-enum encoding
// the reference implementation's serializer produces.
type JSONEntry struct {
	Type     string      `json:"type"`
	Name     string      `json:"name"`
	Etag     string      `json:"etag,omitempty"`
	Children []JSONEntry `json:"children,omitempty"`
}

const (
	jsonEntryTypeDir  = "Dir"
	jsonEntryTypeFile = "File"
)

// RootToJSON converts the tree rooted at root into its JSON encoding.
// root must be the tree root.
func RootToJSON(root *entrytree.Entry) (JSONEntry, error) {
	if !root.IsRoot() {
		return JSONEntry{}, errors.New("RootToJSON requires the tree root")
	}
	return entryToJSON(root), nil
}

func entryToJSON(e *entrytree.Entry) JSONEntry {
	if e.IsFile() {
		return JSONEntry{
			Type: jsonEntryTypeFile,
			Name: e.Name(),
			Etag: e.Etag(),
		}
	}

	children := entrytree.GetAllChildren(e)
	out := make([]JSONEntry, 0, len(children))
	for _, child := range children {
		out = append(out, entryToJSON(child))
	}
	return JSONEntry{
		Type:     jsonEntryTypeDir,
		Name:     e.Name(),
		Children: out,
	}
}

// JSONToEntry reconstructs an in-memory entry (and, recursively, its
// subtree) from its JSON encoding. Every reconstructed entry is marked
// StatusUpToDate, since a cached snapshot by definition reflects a
// previously-synchronized state.
func JSONToEntry(j JSONEntry) (*entrytree.Entry, error) {
	switch j.Type {
	case jsonEntryTypeFile:
		e := entrytree.New(j.Name, entrytree.KindFile)
		e.SetEtag(j.Etag)
		e.SetStatus(entrytree.StatusUpToDate)
		return e, nil
	case jsonEntryTypeDir:
		dir := entrytree.New(j.Name, entrytree.KindDirectory)
		dir.SetStatus(entrytree.StatusUpToDate)
		for _, childJSON := range j.Children {
			child, err := JSONToEntry(childJSON)
			if err != nil {
				return nil, err
			}
			if err := entrytree.AppendChild(dir, child); err != nil {
				return nil, err
			}
		}
		return dir, nil
	default:
		return nil, errors.Errorf("unrecognized cache entry type %q", j.Type)
	}
}

// Load reads and decodes cache.json at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(err, "unable to decode cache")
	}
	return &snapshot, nil
}

// Save encodes and atomically writes the snapshot to path.
func Save(path string, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "unable to encode cache")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "unable to create cache directory")
	}

	return writeFileAtomic(path, data, 0600)
}

// writeFileAtomic writes data to path via a temporary file swapped into
// place with a rename, so a crash mid-write never leaves a truncated or
// partially-written cache.json behind.
func writeFileAtomic(path string, data []byte, permissions os.FileMode) error {
	temporary, err := os.CreateTemp(filepath.Dir(path), temporaryNamePrefix)
	if err != nil {
		return errors.Wrap(err, "unable to create temporary file")
	}

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		os.Remove(temporary.Name())
		return errors.Wrap(err, "unable to write temporary file")
	}

	if err := temporary.Close(); err != nil {
		os.Remove(temporary.Name())
		return errors.Wrap(err, "unable to close temporary file")
	}

	if err := os.Chmod(temporary.Name(), permissions); err != nil {
		os.Remove(temporary.Name())
		return errors.Wrap(err, "unable to set file permissions")
	}

	if err := os.Rename(temporary.Name(), path); err != nil {
		os.Remove(temporary.Name())
		return errors.Wrap(err, "unable to rename temporary file into place")
	}

	return nil
}

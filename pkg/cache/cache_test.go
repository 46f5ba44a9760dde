package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncsync/ncsync/pkg/entrytree"
)

func TestRootToJSONAndBackRoundTrip(t *testing.T) {
	root := entrytree.NewRoot()
	file := entrytree.New("note.md", entrytree.KindFile)
	file.SetEtag("abc123")
	require.NoError(t, entrytree.AppendChild(root, file))

	encoded, err := RootToJSON(root)
	require.NoError(t, err)
	assert.Equal(t, jsonEntryTypeDir, encoded.Type)
	require.Len(t, encoded.Children, 1)
	assert.Equal(t, "note.md", encoded.Children[0].Name)
	assert.Equal(t, "abc123", encoded.Children[0].Etag)

	decoded, err := JSONToEntry(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.IsDirectory())
	assert.Equal(t, entrytree.StatusUpToDate, decoded.Status())

	child, ok := entrytree.GetChild(decoded, "note.md")
	require.True(t, ok)
	assert.Equal(t, "abc123", child.Etag())
	assert.Equal(t, entrytree.StatusUpToDate, child.Status())
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".ncs", "cache.json")

	root := entrytree.NewRoot()
	encoded, err := RootToJSON(root)
	require.NoError(t, err)

	snapshot := &Snapshot{
		LatestActivityID: "42",
		Root:             encoded,
	}
	require.NoError(t, Save(path, snapshot))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.LatestActivityID)
	assert.Equal(t, jsonEntryTypeDir, loaded.Root.Type)
}

func TestRootToJSONRejectsNonRoot(t *testing.T) {
	nonRoot := entrytree.New("child", entrytree.KindDirectory)
	_, err := RootToJSON(nonRoot)
	assert.Error(t, err)
}

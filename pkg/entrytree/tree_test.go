package entrytree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRootReturnsRoot(t *testing.T) {
	root := NewRoot()
	handle, err := Get(root, "/")
	require.NoError(t, err)
	got, err := handle.Upgrade()
	require.NoError(t, err)
	assert.Same(t, root, got)
}

func TestAppendThenGetPathRoundTrip(t *testing.T) {
	root := NewRoot()
	file := New("c.md", KindFile)

	_, err := Append(root, "/a/b/c.md", file, AppendCreate, false)
	require.NoError(t, err)

	handle, err := Get(root, "/a/b/c.md")
	require.NoError(t, err)
	got, err := handle.Upgrade()
	require.NoError(t, err)
	assert.Same(t, file, got)

	path, err := GetPath(got)
	require.NoError(t, err)
	assert.Equal(t, "/a/b/c.md", path)
}

func TestAppendMaterializesIntermediateDirectories(t *testing.T) {
	root := NewRoot()
	file := New("c.md", KindFile)

	materialized, err := Append(root, "/a/b/c.md", file, AppendCreate, false)
	require.NoError(t, err)
	require.Len(t, materialized, 2)
	assert.Equal(t, "a", materialized[0].Name())
	assert.Equal(t, "b", materialized[1].Name())
	assert.Equal(t, StatusUpToDate, materialized[0].Status())
}

func TestAppendCreateFailsWhenExistsWithoutOverwrite(t *testing.T) {
	root := NewRoot()
	_, err := Append(root, "/note.md", New("note.md", KindFile), AppendCreate, false)
	require.NoError(t, err)

	_, err = Append(root, "/note.md", New("note.md", KindFile), AppendCreate, false)
	assert.True(t, errors.Is(err, ErrAlreadyExists))
}

func TestAppendCreateOverwriteDetachesPrevious(t *testing.T) {
	root := NewRoot()
	_, err := Append(root, "/note.md", New("note.md", KindFile), AppendCreate, false)
	require.NoError(t, err)

	handle, err := Get(root, "/note.md")
	require.NoError(t, err)
	_, err = handle.Upgrade()
	require.NoError(t, err)

	_, err = Append(root, "/note.md", New("note.md", KindFile), AppendCreate, true)
	require.NoError(t, err)

	_, err = handle.Upgrade()
	assert.True(t, errors.Is(err, ErrWeakUpgrade))
}

func TestPopDetachesWeakHandle(t *testing.T) {
	root := NewRoot()
	_, err := Append(root, "/a/b.md", New("b.md", KindFile), AppendCreate, false)
	require.NoError(t, err)

	handle, err := Get(root, "/a/b.md")
	require.NoError(t, err)

	popped, err := Pop(root, "/a/b.md")
	require.NoError(t, err)
	require.NotNil(t, popped)

	_, err = handle.Upgrade()
	assert.True(t, errors.Is(err, ErrWeakUpgrade))
}

func TestPopThenAppendRoundTripReattaches(t *testing.T) {
	root := NewRoot()
	_, err := Append(root, "/a/b.md", New("b.md", KindFile), AppendCreate, false)
	require.NoError(t, err)

	popped, err := Pop(root, "/a/b.md")
	require.NoError(t, err)
	require.NotNil(t, popped)

	_, err = Append(root, "/a/c.md", popped, AppendMove, false)
	require.NoError(t, err)

	handle, err := Get(root, "/a/c.md")
	require.NoError(t, err)
	got, err := handle.Upgrade()
	require.NoError(t, err)
	assert.Same(t, popped, got)
	assert.Equal(t, "c.md", got.Name())
}

func TestAppendMoveIntoExistingDirectoryPreservesName(t *testing.T) {
	root := NewRoot()
	_, err := Append(root, "/dest/", New("dest", KindDirectory), AppendCreate, false)
	require.NoError(t, err)

	moved := New("file.md", KindFile)
	_, err = Append(root, "/dest", moved, AppendMove, false)
	require.NoError(t, err)

	handle, err := Get(root, "/dest/file.md")
	require.NoError(t, err)
	got, err := handle.Upgrade()
	require.NoError(t, err)
	assert.Same(t, moved, got)
}

func TestAppendFailsThroughFile(t *testing.T) {
	root := NewRoot()
	_, err := Append(root, "/note.md", New("note.md", KindFile), AppendCreate, false)
	require.NoError(t, err)

	_, err = Append(root, "/note.md/child.md", New("child.md", KindFile), AppendCreate, false)
	assert.True(t, errors.Is(err, ErrInvalidPath))
}

func TestGetMissingPathReturnsInvalidHandle(t *testing.T) {
	root := NewRoot()
	handle, err := Get(root, "/missing/path.md")
	require.NoError(t, err)
	assert.False(t, handle.Valid())
}

func TestGetRequiresRootReceiver(t *testing.T) {
	nonRoot := New("child", KindDirectory)
	_, err := Get(nonRoot, "/x")
	assert.True(t, errors.Is(err, ErrNotRoot))
}

func TestGetTreeRendersHierarchy(t *testing.T) {
	root := NewRoot()
	_, err := Append(root, "/a/b.md", New("b.md", KindFile), AppendCreate, false)
	require.NoError(t, err)

	rendered := GetTree(root)
	assert.Contains(t, rendered, "a/")
	assert.Contains(t, rendered, "b.md")
}

package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddHeadSlashIdempotent(t *testing.T) {
	assert.Equal(t, AddHeadSlash("a/b"), AddHeadSlash(AddHeadSlash("a/b")))
	assert.Equal(t, "/a/b", AddHeadSlash("a/b"))
	assert.Equal(t, "/a/b", AddHeadSlash("/a/b"))
}

func TestAddLastSlashIdempotent(t *testing.T) {
	assert.Equal(t, AddLastSlash("a/b"), AddLastSlash(AddLastSlash("a/b")))
	assert.Equal(t, "a/b/", AddLastSlash("a/b"))
	assert.Equal(t, "a/b/", AddLastSlash("a/b/"))
}

func TestFixRootIdempotent(t *testing.T) {
	for _, s := range []string{"a/b", "/a/b/", "a/b/", "/a/b"} {
		fixed := FixRoot(s)
		assert.Equal(t, fixed, FixRoot(fixed))
	}
	assert.Equal(t, "/a/b", FixRoot("a/b/"))
}

func TestFixHost(t *testing.T) {
	assert.Equal(t, "https://cloud.example.com", FixHost("https://cloud.example.com/"))
	assert.Equal(t, "https://cloud.example.com", FixHost("https://cloud.example.com"))
}

func TestPath2Name(t *testing.T) {
	assert.Equal(t, "c.md", Path2Name("/a/b/c.md"))
	assert.Equal(t, "b/", Path2Name("/a/b/"))
}

func TestPath2Str(t *testing.T) {
	assert.Equal(t, "/a/b/c.md", Path2Str(`a\b\c.md`))
	assert.Equal(t, "/a/b", Path2Str("/a/b/"))
}

func TestPreparePathVecRoot(t *testing.T) {
	assert.Equal(t, []string{""}, PreparePathVec("/"))
}

func TestPreparePathVecNested(t *testing.T) {
	assert.Equal(t, []string{"c.md", "b", "a", ""}, PreparePathVec("/a/b/c.md"))
}

// Package pathutil implements the canonical textual path manipulation
// functions used throughout ncsync. All paths are represented using forward
// slashes regardless of host platform, with a leading slash and no trailing
// slash except where explicitly noted.
package pathutil

import (
	"regexp"
	"strings"
)

// reHasLastSlash matches a trailing slash, capturing everything before it.
var reHasLastSlash = regexp.MustCompile(`(.*)/$`)

// reHasHeadSlash matches a leading slash.
var reHasHeadSlash = regexp.MustCompile(`^/`)

// AddHeadSlash prepends a leading slash if one is not already present.
func AddHeadSlash(s string) string {
	if reHasHeadSlash.MatchString(s) {
		return s
	}
	return "/" + s
}

// AddLastSlash appends a trailing slash if one is not already present.
func AddLastSlash(s string) string {
	if reHasLastSlash.MatchString(s) {
		return s
	}
	return s + "/"
}

// DropSlash strips a single leading or trailing slash matched by re, as
// indicated by re's capture group.
func DropSlash(s string, re *regexp.Regexp) string {
	if re.MatchString(s) {
		return re.ReplaceAllString(s, "$1")
	}
	return s
}

// DropLastSlash strips a single trailing slash, if present.
func DropLastSlash(s string) string {
	return DropSlash(s, reHasLastSlash)
}

// FixHost strips a trailing slash from a server host URL.
func FixHost(host string) string {
	return DropLastSlash(host)
}

// FixRoot ensures a leading slash is present and a trailing slash is absent.
func FixRoot(rootPath string) string {
	rootPath = DropLastSlash(rootPath)
	if !reHasHeadSlash.MatchString(rootPath) {
		rootPath = "/" + rootPath
	}
	return rootPath
}

// Path2Name returns the last path component. If p ends in a slash, the
// trailing slash is preserved on the returned name (directory convention).
func Path2Name(p string) string {
	hasTrailingSlash := strings.HasSuffix(p, "/")
	trimmed := strings.TrimSuffix(p, "/")
	segments := strings.Split(trimmed, "/")
	name := segments[len(segments)-1]
	if hasTrailingSlash {
		name += "/"
	}
	return name
}

// Path2Str converts an OS-native path (which may use backslashes, as on
// Windows) into ncsync's canonical textual path form: forward slashes, a
// leading slash, and no trailing slash.
func Path2Str(p string) string {
	s := strings.ReplaceAll(p, `\`, "/")
	s = AddHeadSlash(s)
	s = DropLastSlash(s)
	return s
}

// PreparePathVec splits a canonical path into a reversed stack of segments,
// suitable for iterative tree descent via repeated pop-from-back. The root
// path "/" produces a single empty-string segment representing the root
// itself; "/a/b/c.md" produces ["c.md", "b", "a", ""] so that popping from
// the end yields "", "a", "b", "c.md" in descent order.
func PreparePathVec(p string) []string {
	p = FixRoot(p)
	trimmed := strings.TrimPrefix(p, "/")
	if trimmed == "" {
		return []string{""}
	}
	parts := strings.Split(trimmed, "/")
	reversed := make([]string, len(parts)+1)
	reversed[len(parts)] = ""
	for i, part := range parts {
		reversed[len(parts)-1-i] = part
	}
	return reversed
}

// Package exclude implements the ordered whitelist/blacklist path filter
// that decides whether a given relative path participates in
// synchronization at all.
package exclude

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// defaultBlackPatterns are always appended to the configured blacklist,
// regardless of what excludes.json contains: dotfiles and editor backup
// files are never synchronized.
var defaultBlackPatterns = []string{`^\.`, `^~`}

// List is the on-disk representation of excludes.json: two ordered lists
// of regular expressions, evaluated per path component.
type List struct {
	Blacks []string `json:"blacks"`
	Whites []string `json:"whites"`
}

// NewList returns an empty exclude list.
func NewList() *List {
	return &List{
		Blacks: []string{},
		Whites: []string{},
	}
}

// LoadOrCreate reads excludes.json from path, creating it (with an empty
// list) if it does not yet exist.
func LoadOrCreate(path string) (*List, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		list := NewList()
		if err := list.Save(path); err != nil {
			return nil, err
		}
		return list, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "unable to stat exclude list")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read exclude list")
	}

	var list List
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrap(err, "unable to decode exclude list")
	}
	return &list, nil
}

// Save writes the exclude list to path as pretty-printed JSON, creating
// any missing parent directory.
func (l *List) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "unable to create exclude list directory")
	}

	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to encode exclude list")
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(err, "unable to write exclude list")
	}
	return nil
}

// Checker evaluates paths against a compiled List, with the default
// dotfile/backup-file patterns always active in addition to whatever the
// list configures.
type Checker struct {
	blacks []*regexp.Regexp
	whites []*regexp.Regexp
}

// NewChecker compiles list into a Checker. Patterns that fail to compile
// as regular expressions are silently skipped, matching the reference
// behavior of tolerating a malformed excludes.json entry rather than
// refusing to start.
func NewChecker(list *List) *Checker {
	c := &Checker{}

	for _, pattern := range list.Blacks {
		if re, err := regexp.Compile(pattern); err == nil {
			c.blacks = append(c.blacks, re)
		}
	}
	for _, pattern := range defaultBlackPatterns {
		c.blacks = append(c.blacks, regexp.MustCompile(pattern))
	}
	for _, pattern := range list.Whites {
		if re, err := regexp.Compile(pattern); err == nil {
			c.whites = append(c.whites, re)
		}
	}

	return c
}

// Judge reports whether path should participate in synchronization. It
// walks path component by component; a component matched by any
// whitelist pattern skips the blacklist check for that component, and a
// component matched by any blacklist pattern excludes the whole path.
func (c *Checker) Judge(path string) bool {
	path = strings.Trim(filepath.ToSlash(path), "/")
	if path == "" {
		return true
	}

components:
	for _, component := range strings.Split(path, "/") {
		for _, re := range c.whites {
			if re.MatchString(component) {
				continue components
			}
		}

		for _, re := range c.blacks {
			if re.MatchString(component) {
				return false
			}
		}
	}

	return true
}

// String returns a short diagnostic summary of the checker's pattern
// counts.
func (c *Checker) String() string {
	return fmt.Sprintf("exclude.Checker{blacks:%d whites:%d}", len(c.blacks), len(c.whites))
}

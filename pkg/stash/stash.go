// Package stash implements the meta-directory's auto-stash and
// user-stash: whenever the engine is about to overwrite or remove a
// local file as a consequence of a remote change, the displaced file is
// preserved here rather than discarded outright.
package stash

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// timestampFormat produces the "YYYYMMDDhhmmssSSS" suffix the reference
// implementation appends to stashed file stems. Go's reference layout has
// no token for a contiguous (non-dot-separated) millisecond suffix, so
// the milliseconds are formatted separately and concatenated below.
const timestampFormat = "20060102150405"

// Stash manages both the auto-stash (keyed by date, pruned after a
// configured retention span) and the optional user-stash under a root's
// metadata directory.
type Stash struct {
	// MetaDir is the root's hidden metadata directory (".ncs").
	MetaDir string
	// Enabled controls whether the user-stash receives copies in
	// addition to the auto-stash.
	Enabled bool
	// KeepSpan bounds how long auto-stash dated directories are kept.
	KeepSpan time.Duration
}

// New constructs a Stash rooted at metaDir.
func New(metaDir string, enabled bool, keepSpan time.Duration) *Stash {
	return &Stash{MetaDir: metaDir, Enabled: enabled, KeepSpan: keepSpan}
}

// autoStashDir returns today's auto-stash directory path, creating it if
// necessary.
func (s *Stash) autoStashDir(now time.Time) (string, error) {
	dir := filepath.Join(s.MetaDir, now.Format("20060102"))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", errors.Wrap(err, "unable to create auto-stash directory")
	}
	return dir, nil
}

// userStashDir returns the user-stash directory path, creating it if
// necessary.
func (s *Stash) userStashDir() (string, error) {
	dir := filepath.Join(s.MetaDir, "stash")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", errors.Wrap(err, "unable to create user-stash directory")
	}
	return dir, nil
}

// timestampedName renames a path's base name to "<stem>_<timestamp>[.ext]".
func timestampedName(originalPath string, now time.Time) string {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	millis := fmt.Sprintf("%03d", now.Nanosecond()/int(time.Millisecond))
	return stem + "_" + now.Format(timestampFormat) + millis + ext
}

// Preserve moves the file at localPath into the auto-stash (always, if
// the file exists) and, if the user-stash is enabled, additionally
// copies it there. It is a no-op (not an error) if localPath does not
// exist, since "preserve before overwrite" is routinely called for
// paths that have nothing to preserve yet.
func (s *Stash) Preserve(localPath string, now time.Time) error {
	if _, err := os.Stat(localPath); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "unable to stat path being preserved")
	}

	autoDir, err := s.autoStashDir(now)
	if err != nil {
		return err
	}
	name := timestampedName(localPath, now)

	if s.Enabled {
		userDir, err := s.userStashDir()
		if err != nil {
			return err
		}
		if err := copyFile(localPath, filepath.Join(userDir, name)); err != nil {
			return errors.Wrap(err, "unable to copy into user-stash")
		}
	}

	if err := os.Rename(localPath, filepath.Join(autoDir, name)); err != nil {
		return errors.Wrap(err, "unable to move into auto-stash")
	}

	return nil
}

// Prune removes auto-stash date directories older than KeepSpan,
// relative to now.
func (s *Stash) Prune(now time.Time) error {
	entries, err := os.ReadDir(s.MetaDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrap(err, "unable to list metadata directory")
	}

	cutoff := now.Add(-s.KeepSpan)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		day, err := time.ParseInLocation("20060102", entry.Name(), now.Location())
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			path := filepath.Join(s.MetaDir, entry.Name())
			if err := os.RemoveAll(path); err != nil {
				return errors.Wrapf(err, "unable to prune auto-stash directory %s", path)
			}
		}
	}

	return nil
}

// copyFile copies the contents of src to dst, creating dst's parent
// directory if necessary.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0600)
}

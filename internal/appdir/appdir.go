// Package appdir locates posture's per-user directories and creates private files and
// directories under them.
package appdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Name is the directory name used under the OS config and cache roots.
const Name = "posture"

const (
	dirPerm  fs.FileMode = 0o700
	filePerm fs.FileMode = 0o600
)

// ConfigDir returns <os.UserConfigDir>/posture.
func ConfigDir() (string, error) { return under(os.UserConfigDir, "config") }

// DataDir returns <os.UserCacheDir>/posture, home of the default SQLite ledger store.
func DataDir() (string, error) { return under(os.UserCacheDir, "cache") }

func under(root func() (string, error), what string) (string, error) {
	base, err := root()
	if err != nil {
		return "", fmt.Errorf("locating user %s dir: %w", what, err)
	}
	return filepath.Join(base, Name), nil
}

// EnsureDir creates dir and its parents, owner-only.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

// EnsureParent creates the directory that will hold path.
func EnsureParent(path string) error { return EnsureDir(filepath.Dir(path)) }

// EnsureFile creates an empty owner-only file at path unless one already exists.
// Existing content is never touched.
func EnsureFile(path string) error {
	if err := EnsureParent(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	return f.Close()
}

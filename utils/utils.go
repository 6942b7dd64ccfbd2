package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

var (
	ErrEmptyExecPath = errors.New("binary path is not defined")
	ErrNotExists     = errors.New("does not exist")
)

// ResolvePath returns [path] unchanged if it is absolute,
// otherwise [path] relative to [dir].
func ResolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// CheckExecPath returns an error wrapping ErrNotExists
// and naming [exec] if there is no file at [exec].
func CheckExecPath(fsys afero.Fs, exec string) error {
	if exec == "" {
		return ErrEmptyExecPath
	}
	info, err := fsys.Stat(exec)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("binary %w: %s", ErrNotExists, exec)
		}
		return fmt.Errorf("failed to stat binary %q (%w)", exec, err)
	}
	if info.IsDir() {
		return fmt.Errorf("binary %q is a directory", exec)
	}
	return nil
}

// FileExists reports whether a regular file exists at [path].
func FileExists(fsys afero.Fs, path string) (bool, error) {
	info, err := fsys.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	}
	return !info.IsDir(), nil
}

package fs

import (
	"os"
	"path/filepath"

	"go.trai.ch/ship/internal/core/domain"
	"go.trai.ch/zerr"
)

// WriteFileAtomic writes data to a temporary file next to path and renames it into place,
// so readers observe either the old content or the complete new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create directory"), "path", dir)
	}

	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create temp file"), "path", path)
	}
	tmpName := tmpFile.Name()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return zerr.With(zerr.Wrap(err, "failed to write temp file"), "path", path)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return zerr.With(zerr.Wrap(err, "failed to sync temp file"), "path", path)
	}
	if err := tmpFile.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to close temp file"), "path", path)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to set permissions"), "path", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to rename temp file"), "path", path)
	}

	committed = true
	return nil
}

package filespec

import (
	"io"
	"path/filepath"

	"github.com/jmgilman/go/fs/core"

	"github.com/kleenlab/ucsfbids/errors"
)

// Location is a path on a particular filesystem.
type Location struct {
	FS   core.FS
	Path string
}

// Join returns the location of elem below l.
func (l Location) Join(elem ...string) Location {
	return Location{FS: l.FS, Path: filepath.Join(append([]string{l.Path}, elem...)...)}
}

// Base returns the last element of the path.
func (l Location) Base() string {
	return filepath.Base(l.Path)
}

// Exists reports whether the location exists. An empty path never exists.
func (l Location) Exists() (bool, error) {
	if l.Path == "" || l.FS == nil {
		return false, nil
	}
	return l.FS.Exists(l.Path)
}

// IsLocal reports whether the location is on the local disk.
func (l Location) IsLocal() bool {
	return l.FS != nil && l.FS.Type() == core.FSTypeLocal
}

// Copy streams src to dst, creating dst's parent directory.
func Copy(src, dst Location) error {
	in, err := src.FS.Open(src.Path)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to open source file", map[string]interface{}{"source": src.Path})
	}
	defer func() { _ = in.Close() }()

	if err := dst.FS.MkdirAll(filepath.Dir(dst.Path), 0o755); err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to create destination directory", map[string]interface{}{"destination": dst.Path})
	}

	out, err := dst.FS.Create(dst.Path)
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to create destination file", map[string]interface{}{"destination": dst.Path})
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.WrapWithContext(err, errors.CodeIO, "failed to copy file", map[string]interface{}{
			"source":      src.Path,
			"destination": dst.Path,
		})
	}

	if err := out.Close(); err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to close destination file", map[string]interface{}{"destination": dst.Path})
	}
	return nil
}

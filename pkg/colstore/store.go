package colstore

import (
	"os"
	"path/filepath"

	"github.com/ajitpratap0/treeport/pkg/treeporterrors"
)

const (
	objectExt     = ".arrow"
	compressedExt = ".arrow.zst"
	stagingSuffix = ".tmp"
)

// Store is a directory of named columnar objects. Objects are written to a
// staging file and atomically published on commit, so a failed import never
// leaves a destination object behind.
type Store struct {
	dir string
}

// OpenStore opens (creating if needed) the store rooted at dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
			"cannot open destination store "+dir)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Exists reports whether an object with the given name has been published,
// regardless of compression codec.
func (s *Store) Exists(name string) bool {
	for _, ext := range []string{objectExt, compressedExt} {
		if _, err := os.Stat(filepath.Join(s.dir, name+ext)); err == nil {
			return true
		}
	}
	return false
}

// Remove deletes a published object.
func (s *Store) Remove(name string) error {
	removed := false
	for _, ext := range []string{objectExt, compressedExt} {
		path := filepath.Join(s.dir, name+ext)
		if err := os.Remove(path); err == nil {
			removed = true
		} else if !os.IsNotExist(err) {
			return treeporterrors.Wrap(err, treeporterrors.ErrorTypeFile,
				"cannot remove object "+name)
		}
	}
	if !removed {
		return treeporterrors.Newf(treeporterrors.ErrorTypeNotFound,
			"object %q does not exist", name)
	}
	return nil
}

func (s *Store) objectPath(name string, compressed bool) string {
	if compressed {
		return filepath.Join(s.dir, name+compressedExt)
	}
	return filepath.Join(s.dir, name+objectExt)
}

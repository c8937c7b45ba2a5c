package store

import (
	"os"
	"path/filepath"

	"github.com/antstorage/ant/addr"
)

// BlobStore persists a record's serialized body: a directory whose
// entries are named by address hex, each holding one serialized record.
// Index metadata (size, modification time, kind) is kept separately in
// a database.Database, not in this interface.
type BlobStore interface {
	Write(a addr.Address, body []byte) error
	Read(a addr.Address) ([]byte, error)
	Delete(a addr.Address) error
}

// FileBlobStore is a BlobStore backed by a plain directory on the
// local filesystem.
type FileBlobStore struct {
	dir string
}

// NewFileBlobStore returns a FileBlobStore rooted at dir, creating it if
// necessary.
func NewFileBlobStore(dir string) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileBlobStore{dir: dir}, nil
}

func (f *FileBlobStore) path(a addr.Address) string {
	return filepath.Join(f.dir, a.Hex())
}

// Write atomically writes body to the address's file via a temp-file
// rename, so a crash mid-write never leaves a partial record visible.
func (f *FileBlobStore) Write(a addr.Address, body []byte) error {
	final := f.path(a)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// Read returns the stored bytes for a, or an error satisfying os.IsNotExist.
func (f *FileBlobStore) Read(a addr.Address) ([]byte, error) {
	return os.ReadFile(f.path(a))
}

// Delete removes the stored file for a, if present.
func (f *FileBlobStore) Delete(a addr.Address) error {
	err := os.Remove(f.path(a))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Package store provides a simple, goroutine safe key-value interface. Instead
// of values being an opaque array of bytes, though, they are a stream. This
// approach allows large bags and many index documents to be stored easily.
//
// The FileSystem store keeps one file per key in a single directory, which is
// how index documents are written to disk. The S3 store keeps them in a
// bucket. The Memory store is useful for testing.
package store

import (
	"errors"
	"io"
)

// ReadAtCloser combines the io.ReaderAt and io.Closer interfaces.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Store defines the basic stream based key-value store.
// Items are immutable once stored, but they may be deleted and then replaced
// with a new value.
//
// Since the FileSystem store uses the key as file names, keys should not
// contain forbidden filesystem characters, such as '/'.
//
// Open() returns a ReadAtCloser instead of a ReadCloser so a stored zip file
// can be read in place.
type Store interface {
	ROStore
	Create(key string) (io.WriteCloser, error)
	Delete(key string) error
}

// ROStore is the read-only pieces of a Store. It allows one to list contents,
// and to retrieve data.
type ROStore interface {
	ListPrefix(prefix string) ([]string, error)
	Open(key string) (ReadAtCloser, int64, error)
}

var (
	// ErrKeyExists indicates an attempt to create a key which already exists
	ErrKeyExists = errors.New("key already exists")

	// ErrNotExist means the key is not in the store
	ErrNotExist = errors.New("key does not exist")
)

// NewReader converts a ReaderAt into a io.Reader. It is here as a utility to
// help work with the ReadAtCloser returned by Open.
func NewReader(r io.ReaderAt) io.Reader {
	return &reader{r: r}
}

type reader struct {
	r   io.ReaderAt
	off int64
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		// reading less than a full buffer is not an error for
		// an io.Reader
		err = nil
	}
	return
}

// Replace stores the bytes read from r under key, deleting any existing
// value first.
func Replace(s Store, key string, r io.Reader) error {
	if err := s.Delete(key); err != nil {
		return err
	}
	w, err := s.Create(key)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	err2 := w.Close()
	if err == nil {
		err = err2
	}
	return err
}

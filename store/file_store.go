package store

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FileSystem implements a store kept in a single directory. Every key is a
// file name directly under the root. Files are written to a hidden temporary
// name first and renamed into place when closed, so a reader never sees a
// half written document.
type FileSystem struct {
	root string
}

const tempPrefix = ".tmp-"

var (
	// make sure it implements the Store interface
	_ Store = &FileSystem{}

	// ErrKeyContainsSlash means the key provided contains a forward slash '/'
	ErrKeyContainsSlash = errors.New("key contains forward slash")

	// ErrKeyContainsNonUnicode means the key provided is not valid UTF-8
	ErrKeyContainsNonUnicode = errors.New("key contains non-unicode character")

	// ErrKeyContainsWhiteSpace means the key provided contains white space
	ErrKeyContainsWhiteSpace = errors.New("key contains white space")

	// ErrKeyContainsControlChar means the key provided contains control characters
	ErrKeyContainsControlChar = errors.New("key contains control characters")

	// ErrKeyInvalid is returned for empty keys and the names "." and ".."
	ErrKeyInvalid = errors.New("invalid key")
)

// NewFileSystem creates a new FileSystem store based at the given root path.
// The directory is created on the first write if it does not exist.
func NewFileSystem(root string) *FileSystem {
	return &FileSystem{root: root}
}

// Root returns the directory this store writes into.
func (s *FileSystem) Root() string { return s.root }

// ListPrefix returns a sorted list of all the keys beginning with prefix.
// A missing root directory is treated as an empty store.
func (s *FileSystem) ListPrefix(prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var result []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, tempPrefix) {
			continue
		}
		if strings.HasPrefix(name, prefix) {
			result = append(result, name)
		}
	}
	sort.Strings(result)
	return result, nil
}

// Open returns a reader for the given key along with its size.
func (s *FileSystem) Open(key string) (ReadAtCloser, int64, error) {
	if err := isKeyValid(key); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(filepath.Join(s.root, key))
	if os.IsNotExist(err) {
		return nil, 0, ErrNotExist
	} else if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// Create makes a new item with the given key, and returns a writer to save
// data into it.
func (s *FileSystem) Create(key string) (io.WriteCloser, error) {
	if err := isKeyValid(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.root, 0775); err != nil {
		return nil, err
	}
	target := filepath.Join(s.root, key)
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		return nil, ErrKeyExists
	}
	f, err := os.CreateTemp(s.root, tempPrefix+key+"-")
	if err != nil {
		return nil, err
	}
	return &moveCloser{File: f, target: target}, nil
}

// track the file so when it is closed, we can move it into the correct place
type moveCloser struct {
	*os.File
	target string
}

func (w *moveCloser) Close() error {
	source := w.File.Name()
	err := w.File.Close()
	if err == nil {
		if _, err2 := os.Stat(w.target); !os.IsNotExist(err2) {
			err = ErrKeyExists
		}
	}
	if err != nil {
		os.Remove(source)
		return err
	}
	return os.Rename(source, w.target)
}

// Delete the given key from the store. It is not an error if the key doesn't
// exist.
func (s *FileSystem) Delete(key string) error {
	if err := isKeyValid(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, key))
	// don't report a missing file as an error
	if err != nil && os.IsNotExist(err) {
		err = nil
	}
	return err
}

func isKeyValid(key string) error {
	if key == "" || key == "." || key == ".." {
		return ErrKeyInvalid
	}
	if !utf8.ValidString(key) {
		return ErrKeyContainsNonUnicode
	}
	if strings.Contains(key, "/") {
		return ErrKeyContainsSlash
	}
	for _, r := range key {
		if unicode.IsSpace(r) {
			return ErrKeyContainsWhiteSpace
		}
		if unicode.IsControl(r) {
			return ErrKeyContainsControlChar
		}
	}
	return nil
}

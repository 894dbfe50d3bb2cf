// Package bagit implements enough of the BagIt specification to read,
// validate, and create the bags handed to the indexer.
//
// A bag is read through an Archive, which may be a zip file, a tar or
// gzipped tar file, a plain directory, or an in-memory collection of files.
// Read parses the structural files (bagit.txt, bag-info.txt, fetch.txt and
// the payload manifest) into a Bag. No checksums are calculated when reading.
// Use a Validator to recompute them in one pass over the archive.
//
// Fetch entries are recorded but never retrieved, so holey bags are fine.
// The order of the tags in bag-info.txt is preserved. A repeated tag keeps
// the position of its first occurrence and the value of its last.
//
// The Writer creates new bags as zip files which do not use compression.
//
// BagIt is described in RFC 8493, https://tools.ietf.org/html/rfc8493.
package bagit

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Bag is the parsed form of a single bag. A Bag is not changed once Read
// returns it.
type Bag struct {
	// Location is the path of the bag, as given to Read.
	Location string

	// ID identifies the bag. It is the base name of Location without any
	// archive extension.
	ID string

	// Root is the folder inside the archive holding bagit.txt, e.g.
	// "ex-bag". It is empty if bagit.txt is at the top level.
	Root string

	// Version and Encoding come from bagit.txt.
	Version  string
	Encoding string

	// Tags from bag-info.txt. Never nil.
	Tags *Tags

	// Fetch holds the well formed lines of fetch.txt. FetchLines holds the
	// lines which could not be parsed.
	Fetch      []FetchEntry
	FetchLines []FetchLine

	// Manifest is the payload manifest. It is empty if the bag has no
	// manifest files. TagManifest is chosen among the tag manifests the
	// same way, and may use a different algorithm.
	Manifest    Manifest
	TagManifest Manifest
}

// FetchEntry is one line from fetch.txt.
type FetchEntry struct {
	URL string
	// Size is nil when the length was given as "-".
	Size *int64
	// Target is the path relative to the bag root, as declared.
	Target string
}

// FetchLine is a line of fetch.txt that is not well formed.
type FetchLine struct {
	Line   int
	Text   string
	Reason string
}

// Manifest is the content of one manifest file.
type Manifest struct {
	// FileName is the base name of the manifest file,
	// e.g. "manifest-sha256.txt".
	FileName  string
	Algorithm string
	Entries   []ManifestEntry
}

// ManifestEntry is one line of a manifest.
type ManifestEntry struct {
	// Path is relative to the bag root. Payload paths begin with "data/".
	Path     string
	Checksum string
}

// Lookup returns the expected checksum for path.
func (m Manifest) Lookup(path string) (string, bool) {
	for _, e := range m.Entries {
		if e.Path == path {
			return e.Checksum, true
		}
	}
	return "", false
}

// DataFiles returns the paths listed in the payload manifest, in manifest
// order.
func (b *Bag) DataFiles() []string {
	result := make([]string, 0, len(b.Manifest.Entries))
	for _, e := range b.Manifest.Entries {
		result = append(result, e.Path)
	}
	return result
}

// entry returns the archive name of the given path relative to the bag root.
func (b *Bag) entry(rel string) string {
	return joinRoot(b.Root, rel)
}

func joinRoot(root, rel string) string {
	if root == "" {
		return rel
	}
	return root + "/" + rel
}

const (
	// Version is the version of the BagIt specification the Writer produces.
	Version = "0.97"
)

// archive extensions stripped to make a bag ID, longest first
var archiveExts = []string{".tar.gz", ".tgz", ".zip", ".tar"}

// BagID returns the identifier for the bag at location: its base name
// without an archive extension. Directory names are used as is.
func BagID(location string) string {
	base := filepath.Base(location)
	lower := strings.ToLower(base)
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) && len(base) > len(ext) {
			return base[:len(base)-len(ext)]
		}
	}
	return base
}

var (
	// ErrNotFound means an entry with the given name is not in the archive.
	ErrNotFound = errors.New("entry not found in archive")

	// ErrUnknownFormat means the file is not an archive type we can read.
	ErrUnknownFormat = errors.New("unknown archive format")
)

// MalformedBagError is returned by Read when one of the structural files is
// missing or cannot be parsed.
type MalformedBagError struct {
	File string // e.g. "bagit.txt"
	Line int    // 0 if not specific to a line
	Err  error
}

func (e *MalformedBagError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed bag: %s line %d: %v", e.File, e.Line, e.Err)
	}
	return fmt.Sprintf("malformed bag: %s: %v", e.File, e.Err)
}

// Cause returns the underlying error, for github.com/pkg/errors.
func (e *MalformedBagError) Cause() error { return e.Err }

func (e *MalformedBagError) Unwrap() error { return e.Err }

func malformed(file string, line int, format string, args ...interface{}) error {
	return &MalformedBagError{File: file, Line: line, Err: fmt.Errorf(format, args...)}
}

// ChecksumMismatchError means a file's content does not match its manifest
// entry.
type ChecksumMismatchError struct {
	Path      string
	Algorithm string
	Expected  string
	Actual    string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s checksum mismatch for %s: expected %s, got %s",
		e.Algorithm, e.Path, e.Expected, e.Actual)
}

// MissingFileError means a file listed in a manifest is not in the bag.
type MissingFileError struct {
	Path     string
	Manifest string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("%s listed in %s is missing", e.Path, e.Manifest)
}

// UnreadableFileError means a file listed in a manifest is present but its
// content could not be read, e.g. a zip member failing its CRC.
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("%s could not be read: %v", e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() error { return e.Err }

// UnmanifestedFileError means a payload file is not listed in the manifest.
type UnmanifestedFileError struct {
	Path string
}

func (e *UnmanifestedFileError) Error() string {
	return fmt.Sprintf("%s is not listed in the manifest", e.Path)
}

// MalformedFetchError means a line of fetch.txt is not well formed.
type MalformedFetchError struct {
	Line   int
	Text   string
	Reason string
}

func (e *MalformedFetchError) Error() string {
	return fmt.Sprintf("fetch.txt line %d: %s: %q", e.Line, e.Reason, e.Text)
}

package bagit

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// An Archive gives access to the files making up a bag. Names use forward
// slashes and include the bag's root folder, e.g. "ex-bag/data/readme.txt".
// Only regular files are listed.
type Archive interface {
	// Files lists every file in the archive, in archive order.
	Files() []string

	// Open returns the content of the named file, or ErrNotFound.
	Open(name string) (io.ReadCloser, error)

	// Walk calls fn for every file, in archive order, reading the archive
	// once. The reader is only valid during the call. A file which cannot be
	// opened is still passed to fn, with a reader returning the error. Walk
	// stops at the first error returned by fn.
	Walk(fn func(name string, r io.Reader) error) error

	Close() error
}

// OpenArchive opens the bag at path. Directories are read in place. Files
// are sniffed to tell zip, tar, and gzipped tar apart.
func OpenArchive(p string) (Archive, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		d, err := NewDirArchive(p)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	opener := func() (io.ReadCloser, error) { return os.Open(p) }
	format := detectFormat(p)
	switch format {
	case "zip":
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		z, err := NewZipArchive(f, fi.Size())
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, p)
		}
		z.closer = f
		return z, nil
	case "tar", "tar.gz":
		a, err := NewTarArchive(opener, strings.HasSuffix(format, ".gz"))
		if err != nil {
			return nil, errors.Wrap(err, p)
		}
		return a, nil
	}
	return nil, errors.Wrap(ErrUnknownFormat, p)
}

func detectFormat(p string) string {
	mt, err := mimetype.DetectFile(p)
	if err == nil {
		for m := mt; m != nil; m = m.Parent() {
			switch {
			case m.Is("application/zip"):
				return "zip"
			case m.Is("application/gzip"):
				return "tar.gz"
			case m.Is("application/x-tar"):
				return "tar"
			}
		}
	}
	// fall back to the extension for files the sniffer does not know
	lower := strings.ToLower(p)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return "zip"
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return "tar.gz"
	case strings.HasSuffix(lower, ".tar"):
		return "tar"
	}
	return ""
}

// cleanName normalizes an archive entry name. It returns "" for names which
// should be ignored.
func cleanName(name string) string {
	name = strings.TrimPrefix(name, "./")
	if name == "" || strings.HasSuffix(name, "/") {
		return ""
	}
	name = path.Clean(name)
	if name == "." || strings.HasPrefix(name, "../") || path.IsAbs(name) {
		return ""
	}
	return name
}

// isPayload is true for names inside a data/ folder at the top level or one
// folder down.
func isPayload(name string) bool {
	parts := strings.SplitN(name, "/", 3)
	if parts[0] == "data" && len(parts) > 1 {
		return true
	}
	return len(parts) == 3 && parts[1] == "data"
}

// ZipArchive reads a bag serialized as a zip file.
type ZipArchive struct {
	z      *zip.Reader
	names  []string
	files  map[string]*zip.File
	closer io.Closer
}

// NewZipArchive reads the zip file in r. It uses size to locate the zip
// directory, which is at the end. Closing a ZipArchive made this way does not
// close r.
func NewZipArchive(r io.ReaderAt, size int64) (*ZipArchive, error) {
	z, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	result := &ZipArchive{
		z:     z,
		files: make(map[string]*zip.File),
	}
	for _, f := range z.File {
		name := cleanName(f.Name)
		if name == "" || f.FileInfo().IsDir() {
			continue
		}
		if _, ok := result.files[name]; ok {
			continue
		}
		result.names = append(result.names, name)
		result.files[name] = f
	}
	return result, nil
}

// Files implements Archive.
func (za *ZipArchive) Files() []string { return append([]string(nil), za.names...) }

// Open implements Archive.
func (za *ZipArchive) Open(name string) (io.ReadCloser, error) {
	f, ok := za.files[name]
	if !ok {
		return nil, ErrNotFound
	}
	return f.Open()
}

// Walk implements Archive.
func (za *ZipArchive) Walk(fn func(name string, r io.Reader) error) error {
	for _, name := range za.names {
		rc, err := za.files[name].Open()
		if err != nil {
			if err := fn(name, errReader{errors.Wrap(err, name)}); err != nil {
				return err
			}
			continue
		}
		err = fn(name, rc)
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Close implements Archive.
func (za *ZipArchive) Close() error {
	if za.closer != nil {
		return za.closer.Close()
	}
	return nil
}

// TarArchive reads a bag serialized as a tar file, possibly gzipped. A tar
// stream can only be read front to back, so the file is scanned once up
// front to list it, keeping the (small) tag files in memory. Opening a
// payload file or walking the archive reads the stream again.
type TarArchive struct {
	open  func() (io.ReadCloser, error)
	gz    bool
	names []string
	tags  map[string][]byte
}

// the largest tag file kept in memory
var maxTagFileSize int64 = 16 << 20

// NewTarArchive reads the tar file returned by open. Open is called each
// time the stream needs to be read. If gz is true the stream is gunzipped.
func NewTarArchive(open func() (io.ReadCloser, error), gz bool) (*TarArchive, error) {
	ta := &TarArchive{
		open: open,
		gz:   gz,
		tags: make(map[string][]byte),
	}
	seen := make(map[string]bool)
	err := ta.scan(func(name string, r io.Reader) error {
		if seen[name] {
			return nil
		}
		seen[name] = true
		ta.names = append(ta.names, name)
		if !isPayload(name) {
			b, err := io.ReadAll(io.LimitReader(r, maxTagFileSize+1))
			if err != nil {
				return err
			}
			if int64(len(b)) > maxTagFileSize {
				return malformed(name, 0, "larger than %d bytes", maxTagFileSize)
			}
			ta.tags[name] = b
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ta, nil
}

type tarStream struct {
	*tar.Reader
	closers []io.Closer
}

func (ts *tarStream) Close() error {
	var err error
	for i := len(ts.closers) - 1; i >= 0; i-- {
		if err2 := ts.closers[i].Close(); err == nil {
			err = err2
		}
	}
	return err
}

func (ta *TarArchive) stream() (*tarStream, error) {
	f, err := ta.open()
	if err != nil {
		return nil, err
	}
	ts := &tarStream{closers: []io.Closer{f}}
	var r io.Reader = f
	if ta.gz {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		ts.closers = append(ts.closers, gzr)
		r = gzr
	}
	ts.Reader = tar.NewReader(r)
	return ts, nil
}

// scan reads the stream once, calling fn for each regular file. The stream
// is positioned at the file's content during the call.
func (ta *TarArchive) scan(fn func(name string, r io.Reader) error) error {
	ts, err := ta.stream()
	if err != nil {
		return err
	}
	defer ts.Close()
	for {
		hdr, err := ts.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeRegA {
			continue
		}
		name := cleanName(hdr.Name)
		if name == "" {
			continue
		}
		if err := fn(name, ts); err != nil {
			return err
		}
	}
}

// Files implements Archive.
func (ta *TarArchive) Files() []string { return append([]string(nil), ta.names...) }

// Open implements Archive.
func (ta *TarArchive) Open(name string) (io.ReadCloser, error) {
	if b, ok := ta.tags[name]; ok {
		return io.NopCloser(bytes.NewReader(b)), nil
	}
	ts, err := ta.stream()
	if err != nil {
		return nil, err
	}
	for {
		hdr, err := ts.Next()
		if err == io.EOF {
			ts.Close()
			return nil, ErrNotFound
		} else if err != nil {
			ts.Close()
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg && hdr.Typeflag != tar.TypeRegA {
			continue
		}
		if cleanName(hdr.Name) == name {
			return ts, nil
		}
	}
}

// Walk implements Archive.
func (ta *TarArchive) Walk(fn func(name string, r io.Reader) error) error {
	seen := make(map[string]bool)
	return ta.scan(func(name string, r io.Reader) error {
		if seen[name] {
			return nil
		}
		seen[name] = true
		return fn(name, r)
	})
}

// Close implements Archive.
func (ta *TarArchive) Close() error { return nil }

// DirArchive reads a bag stored as a directory. Names are relative to the
// directory's parent, so they begin with the directory's own name, the same
// as a zip file made from it.
type DirArchive struct {
	parent string
	names  []string
	known  map[string]bool
}

// NewDirArchive lists the files under dir.
func NewDirArchive(dir string) (*DirArchive, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	da := &DirArchive{
		parent: filepath.Dir(dir),
		known:  make(map[string]bool),
	}
	base := filepath.Base(dir)
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := base + "/" + filepath.ToSlash(rel)
		da.names = append(da.names, name)
		da.known[name] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(da.names)
	return da, nil
}

// Files implements Archive.
func (da *DirArchive) Files() []string { return append([]string(nil), da.names...) }

// Open implements Archive.
func (da *DirArchive) Open(name string) (io.ReadCloser, error) {
	if !da.known[name] {
		return nil, ErrNotFound
	}
	return os.Open(filepath.Join(da.parent, filepath.FromSlash(name)))
}

// Walk implements Archive.
func (da *DirArchive) Walk(fn func(name string, r io.Reader) error) error {
	for _, name := range da.names {
		f, err := da.Open(name)
		if err != nil {
			if err := fn(name, errReader{errors.Wrap(err, name)}); err != nil {
				return err
			}
			continue
		}
		err = fn(name, f)
		f.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Close implements Archive.
func (da *DirArchive) Close() error { return nil }

// errReader stands in for a file which could not be opened.
type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// MemArchive is an Archive kept in memory. It is intended for tests.
type MemArchive struct {
	names []string
	files map[string][]byte
}

// NewMemArchive returns an empty MemArchive.
func NewMemArchive() *MemArchive {
	return &MemArchive{files: make(map[string][]byte)}
}

// Add stores content under name, replacing anything already there. It
// returns the archive to allow chaining.
func (ma *MemArchive) Add(name, content string) *MemArchive {
	if _, ok := ma.files[name]; !ok {
		ma.names = append(ma.names, name)
	}
	ma.files[name] = []byte(content)
	return ma
}

// Files implements Archive.
func (ma *MemArchive) Files() []string { return append([]string(nil), ma.names...) }

// Open implements Archive.
func (ma *MemArchive) Open(name string) (io.ReadCloser, error) {
	b, ok := ma.files[name]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Walk implements Archive.
func (ma *MemArchive) Walk(fn func(name string, r io.Reader) error) error {
	for _, name := range ma.names {
		if err := fn(name, bytes.NewReader(ma.files[name])); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Archive.
func (ma *MemArchive) Close() error { return nil }

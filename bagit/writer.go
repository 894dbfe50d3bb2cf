package bagit

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mjordan/bagit-indexer/util"
)

// the algorithms the Writer puts in its manifests
var writerAlgorithms = []string{util.SHA1, util.SHA256}

// Writer allows for writing a new bag file. When it is closed, all the
// relevant tag files and manifests will be written out.
type Writer struct {
	z       *zip.Writer      // the underlying zip writer
	dirname string           // includes the trailing slash
	tags    *Tags            // for bag-info.txt
	files   []string         // names written, in order
	sums    map[string]*Checksum
	current *Checksum        // checksum of the file being written
	hw      *util.HashWriter // hash writer for current
	ns      int              // number of payload files
	sz      int64            // size of the payload files, in bytes
	now     func() time.Time
}

// Checksum holds the hex checksums of a file written by a Writer.
type Checksum struct {
	SHA1   string
	SHA256 string
}

// NewWriter creates a new bag writer which will serialize itself to the
// provided io.Writer. Use name to set the directory name the bag will
// unserialize into.
func NewWriter(w io.Writer, name string) *Writer {
	return &Writer{
		z:       zip.NewWriter(w),
		dirname: name + "/",
		tags:    NewTags(),
		sums:    make(map[string]*Checksum),
		now:     time.Now,
	}
}

// Close this Writer and serialize all necessary bookkeeping files. It does
// not close the original io.Writer provided to NewWriter().
func (w *Writer) Close() error {
	w.tags.Set("Bagging-Date", w.now().Format("2006-01-02"))
	w.tags.Set("Payload-Oxum", fmt.Sprintf("%d.%d", w.sz, w.ns))
	w.tags.Set("Bag-Size", humanize.Bytes(uint64(w.sz)))

	// If Close() is called after a write error, then this first
	// call will also fail with an error.
	err := w.writeTags()
	if err != nil {
		return err
	}
	for _, alg := range writerAlgorithms {
		if err := w.manifest(false, alg); err != nil {
			return err
		}
	}
	if err := w.manifest(true, util.SHA1); err != nil {
		return err
	}
	return w.z.Close()
}

// SetTag adds the given tag to this bag, and sets it to be equal to content.
// The bag writer will add the tags "Payload-Oxum", "Bagging-Date", and
// "Bag-Size" itself.
func (w *Writer) SetTag(tag, content string) {
	w.tags.Set(tag, content)
}

// Create a new file inside this bag. The file will be put inside the "data/"
// directory.
func (w *Writer) Create(name string) (io.Writer, error) {
	w.ns++
	out, err := w.create("data/" + name)
	if err != nil {
		return nil, err
	}
	return &countWriter{
		w:     out,
		count: &w.sz,
	}, nil
}

// create is for internal use. It allows non-payload files to be written.
func (w *Writer) create(name string) (io.Writer, error) {
	// save checksums in case there is an active writer
	_ = w.Checksum()

	header := zip.FileHeader{
		Name:   w.dirname + name,
		Method: zip.Store,
	}
	header.Modified = w.now()
	out, err := w.z.CreateHeader(&header)
	if err != nil {
		return nil, err
	}
	w.hw, err = util.NewHashWriter(out, writerAlgorithms...)
	if err != nil {
		return nil, err
	}
	ck := new(Checksum)
	w.files = append(w.files, name)
	w.sums[name] = ck
	w.current = ck
	return w.hw, nil
}

// Checksum returns the checksums for what has been written so far to the
// last io.Writer returned by Create().
func (w *Writer) Checksum() *Checksum {
	if w.hw != nil && w.current != nil {
		w.current.SHA1 = w.hw.Sum(util.SHA1)
		w.current.SHA256 = w.hw.Sum(util.SHA256)
	}
	return w.current
}

func (w *Writer) writeTags() error {
	// first write bag-it marker file
	out, err := w.create("bagit.txt")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "BagIt-Version: %s\n", Version)
	fmt.Fprintf(out, "Tag-File-Character-Encoding: UTF-8\n")

	// now write tags file
	out, err = w.create("bag-info.txt")
	if err != nil {
		return err
	}
	for _, k := range w.tags.Names() {
		v, _ := w.tags.Get(k)
		fmt.Fprintf(out, "%s: %s\n", k, v)
	}
	return nil
}

func (c *Checksum) get(alg string) string {
	if alg == util.SHA256 {
		return c.SHA256
	}
	return c.SHA1
}

func (w *Writer) manifest(istag bool, alg string) error {
	// ensure any pending checksum is saved
	_ = w.Checksum()

	mname := "manifest-" + alg + ".txt"
	if istag {
		mname = "tag" + mname
	}
	// copy the list, since creating the manifest adds to it
	names := append([]string(nil), w.files...)
	out, err := w.create(mname)
	if err != nil {
		return err
	}
	for _, fname := range names {
		// tag manifests only include files NOT having the prefix "data/"
		// non-tag manifests only include "data/" files
		if istag == strings.HasPrefix(fname, "data/") {
			continue
		}
		// The 2 spaces is to be identical to the GNU md5sum output.
		fmt.Fprintf(out, "%s  %s\n", w.sums[fname].get(alg), fname)
	}
	return nil
}

// countWriter is an io.Writer that counts the number of bytes written to it.
type countWriter struct {
	w     io.Writer
	count *int64
}

func (w *countWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	*w.count += int64(n)
	return n, err
}

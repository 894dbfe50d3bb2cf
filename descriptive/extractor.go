// Package descriptive pulls human readable text out of files inside a bag,
// so it can be put into a single searchable field.
package descriptive

import (
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/beevik/etree"

	"github.com/mjordan/bagit-indexer/bagit"
)

// Kind is how a file's content is turned into text.
type Kind int

// The content kinds.
const (
	Unrecognized Kind = iota // skipped
	PlainText                // bytes are used as text
	XML                      // text content of the root element
)

func (k Kind) String() string {
	switch k {
	case PlainText:
		return "text"
	case XML:
		return "xml"
	}
	return "unrecognized"
}

// DefaultExtensions are the file extensions extracted when none are given.
var DefaultExtensions = []string{"txt", "md", "xml"}

// ExtractionError is reported for a file which exists but whose text could
// not be extracted. The file contributes nothing to the result.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s: %v", e.Path, e.Err)
}

// Cause returns the underlying error, for github.com/pkg/errors.
func (e *ExtractionError) Cause() error { return e.Err }

func (e *ExtractionError) Unwrap() error { return e.Err }

// An Extractor turns a list of files in a bag into one normalized string.
// It is safe for concurrent use.
type Extractor struct {
	kinds map[string]Kind
}

// NewExtractor returns an Extractor which recognizes the given file
// extensions, with or without a leading dot. The extension "xml" is parsed
// as XML. Every other one is plain text. With no extensions,
// DefaultExtensions is used.
func NewExtractor(extensions ...string) *Extractor {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	x := &Extractor{kinds: make(map[string]Kind, len(extensions))}
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			continue
		}
		if ext == "xml" {
			x.kinds[ext] = XML
		} else {
			x.kinds[ext] = PlainText
		}
	}
	return x
}

// KindOf returns how the file at p would be handled.
func (x *Extractor) KindOf(p string) Kind {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	return x.kinds[ext]
}

// Extract returns the text of each of the files in paths, in order, joined
// by single spaces. Paths are relative to the bag's data folder, and are
// looked up in a as "{bagID}/data/{path}".
//
// Files that are not in the archive, or whose extension is not recognized,
// are skipped. Files that cannot be read or parsed are skipped as well, and
// an ExtractionError is returned for each of them alongside the text.
// If paths is empty the archive is not touched.
func (x *Extractor) Extract(a bagit.Archive, bagID string, paths []string) (string, []error) {
	if len(paths) == 0 {
		return "", nil
	}
	var b strings.Builder
	var errs []error
	for _, p := range paths {
		kind := x.KindOf(p)
		if kind == Unrecognized {
			continue
		}
		text, err := extractFile(a, bagID+"/data/"+p, kind)
		if err != nil {
			errs = append(errs, &ExtractionError{Path: p, Err: err})
			continue
		}
		text = Normalize(text)
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteByte(' ')
	}
	return trim(b.String()), errs
}

func extractFile(a bagit.Archive, name string, kind Kind) (string, error) {
	rc, err := a.Open(name)
	if err == bagit.ErrNotFound {
		return "", nil
	} else if err != nil {
		return "", err
	}
	defer rc.Close()

	if kind == XML {
		return xmlText(rc)
	}
	content, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// xmlText parses r as an XML document and returns the text content of its
// root element.
func xmlText(r io.Reader) (string, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return "", err
	}
	root := doc.Root()
	if root == nil {
		return "", fmt.Errorf("no root element")
	}
	var b strings.Builder
	appendText(&b, root)
	return b.String(), nil
}

// appendText writes the character data below e in document order. CDATA
// sections count; comments and processing instructions do not.
func appendText(b *strings.Builder, e *etree.Element) {
	for _, tok := range e.Child {
		switch t := tok.(type) {
		case *etree.CharData:
			b.WriteString(t.Data)
		case *etree.Element:
			appendText(b, t)
		}
	}
}

// whitespace includes the vertical tab, which \s does not match in RE2.
var whitespace = regexp.MustCompile(`[\s\v]+`)

// Normalize replaces every run of white space in s with a single space and
// trims the ends.
func Normalize(s string) string {
	return trim(whitespace.ReplaceAllString(s, " "))
}

func trim(s string) string {
	return strings.Trim(s, " \t\n\r\x00\x0b")
}

// ParseSelector splits a comma separated list of paths. Entries are trimmed
// and empty ones dropped.
func ParseSelector(s string) []string {
	var result []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Package index shapes what was learned about a bag into the document
// handed to a search index.
package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mjordan/bagit-indexer/bagit"
)

// TimestampFormat is how validation times appear in a document.
const TimestampFormat = "2006-01-02T15:04:05Z"

// Document is the index record for one bag.
type Document struct {
	// ID is the bag identifier the document is stored under. It is not part
	// of the document body.
	ID string `json:"-" yaml:"-"`

	Location        string       `json:"location" yaml:"location"`
	Validation      Validation   `json:"validation" yaml:"validation"`
	ContentHash     ContentHash  `json:"contentHash" yaml:"contentHash"`
	Version         string       `json:"version" yaml:"version"`
	FetchEntries    []FetchEntry `json:"fetchEntries" yaml:"fetchEntries"`
	DescriptiveText string       `json:"descriptiveText" yaml:"descriptiveText"`
	Tags            *bagit.Tags  `json:"tags" yaml:"tags"`
	DataFiles       []string     `json:"dataFiles" yaml:"dataFiles"`
	Manifest        Manifest     `json:"manifest" yaml:"manifest"`
}

// Validation is the outcome of validating the bag.
type Validation struct {
	Timestamp string   `json:"timestamp" yaml:"timestamp"`
	Outcome   string   `json:"outcome" yaml:"outcome"`
	Errors    []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// ContentHash is the checksum of the bag artifact as a whole.
type ContentHash struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Value     string `json:"value" yaml:"value"`
}

// FetchEntry describes a file listed in fetch.txt. TargetName is the base
// name of the declared path.
type FetchEntry struct {
	SourceURL  string `json:"sourceUrl" yaml:"sourceUrl"`
	Size       *int64 `json:"size,omitempty" yaml:"size,omitempty"`
	TargetName string `json:"targetName" yaml:"targetName"`
}

// Manifest is the payload manifest as it appears in a document.
type Manifest struct {
	FileName  string  `json:"fileName" yaml:"fileName"`
	Algorithm string  `json:"algorithm" yaml:"algorithm"`
	Entries   Entries `json:"entries" yaml:"entries"`
}

// Entries maps payload paths to checksums, keeping manifest order.
type Entries []bagit.ManifestEntry

// MarshalJSON writes the entries as an object of path to checksum.
func (e Entries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range e {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(entry.Path)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(entry.Checksum)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of path to checksum, keeping key order.
func (e *Entries) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("entries: expected object, got %v", tok)
	}
	*e = (*e)[:0]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		p, _ := tok.(string)
		var sum string
		if err := dec.Decode(&sum); err != nil {
			return err
		}
		*e = append(*e, bagit.ManifestEntry{Path: p, Checksum: sum})
	}
	_, err := dec.Token()
	return err
}

// MarshalYAML writes the entries as a mapping of path to checksum.
func (e Entries) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, entry := range e {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: entry.Path},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: entry.Checksum},
		)
	}
	return node, nil
}

// UnmarshalYAML reads a mapping of path to checksum, keeping key order.
func (e *Entries) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("entries: expected mapping, got line %d", node.Line)
	}
	*e = (*e)[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		*e = append(*e, bagit.ManifestEntry{
			Path:     node.Content[i].Value,
			Checksum: node.Content[i+1].Value,
		})
	}
	return nil
}

// IncompleteDocumentError means Build was called before every part of the
// document was supplied.
type IncompleteDocumentError struct {
	Missing []string
}

func (e *IncompleteDocumentError) Error() string {
	return "incomplete index document: missing " + strings.Join(e.Missing, ", ")
}

// A Builder collects the parts of one bag's document. Use a new Builder for
// each bag.
type Builder struct {
	location   string
	bag        *bagit.Bag
	validation *bagit.ValidationResult
	hash       *ContentHash
	text       *string
}

// NewBuilder starts a document for the bag at location.
func NewBuilder(location string) *Builder {
	return &Builder{location: location}
}

// Bag supplies the parsed bag.
func (b *Builder) Bag(bag *bagit.Bag) *Builder {
	b.bag = bag
	return b
}

// Validation supplies the validation result.
func (b *Builder) Validation(v bagit.ValidationResult) *Builder {
	b.validation = &v
	return b
}

// ContentHash supplies the checksum of the bag artifact.
func (b *Builder) ContentHash(h ContentHash) *Builder {
	b.hash = &h
	return b
}

// DescriptiveText supplies the extracted text. An empty string is a valid
// value.
func (b *Builder) DescriptiveText(s string) *Builder {
	b.text = &s
	return b
}

// Build assembles the document. It returns an IncompleteDocumentError if any
// part was not supplied. The document shares no memory with the parts it
// was built from.
func (b *Builder) Build() (*Document, error) {
	var missing []string
	if b.location == "" {
		missing = append(missing, "location")
	}
	if b.bag == nil {
		missing = append(missing, "bag")
	}
	if b.validation == nil {
		missing = append(missing, "validation")
	}
	if b.hash == nil || b.hash.Value == "" {
		missing = append(missing, "content hash")
	}
	if b.text == nil {
		missing = append(missing, "descriptive text")
	}
	if len(missing) > 0 {
		return nil, &IncompleteDocumentError{Missing: missing}
	}

	doc := &Document{
		ID:       b.bag.ID,
		Location: b.location,
		Validation: Validation{
			Timestamp: b.validation.Timestamp.UTC().Format(TimestampFormat),
			Outcome:   string(b.validation.Outcome),
			Errors:    append([]string(nil), b.validation.Errors...),
		},
		ContentHash:     *b.hash,
		Version:         b.bag.Version,
		FetchEntries:    make([]FetchEntry, 0, len(b.bag.Fetch)),
		DescriptiveText: *b.text,
		Tags:            b.bag.Tags.Clone(),
		DataFiles:       b.bag.DataFiles(),
		Manifest: Manifest{
			FileName:  path.Base(b.bag.Manifest.FileName),
			Algorithm: b.bag.Manifest.Algorithm,
			Entries:   append(Entries{}, b.bag.Manifest.Entries...),
		},
	}
	if b.bag.Manifest.FileName == "" {
		doc.Manifest.FileName = ""
	}
	for _, f := range b.bag.Fetch {
		entry := FetchEntry{
			SourceURL:  f.URL,
			TargetName: path.Base(f.Target),
		}
		if f.Size != nil {
			n := *f.Size
			entry.Size = &n
		}
		doc.FetchEntries = append(doc.FetchEntries, entry)
	}
	return doc, nil
}

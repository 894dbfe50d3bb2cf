package emit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mjordan/bagit-indexer/index"
	"github.com/mjordan/bagit-indexer/store"
)

// Files keeps each document as a file named after the bag, in either JSON or
// YAML, inside a store. The store may be a local directory or an S3 bucket.
type Files struct {
	store  store.Store
	format string
}

var _ Emitter = &Files{}

// NewFiles returns an emitter writing into s. format is "json" or "yaml".
func NewFiles(s store.Store, format string) (*Files, error) {
	switch format {
	case "json", "yaml":
	default:
		return nil, fmt.Errorf("unknown document format %q", format)
	}
	return &Files{store: s, format: format}, nil
}

func (f *Files) Name() string { return "files" }

// Key is the store key a bag's document is kept under.
func (f *Files) Key(id string) string {
	return id + "." + f.format
}

// Emit replaces any earlier document for the same bag.
func (f *Files) Emit(ctx context.Context, doc *index.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	var err error
	switch f.format {
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
	case "yaml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		err = enc.Encode(doc)
		if err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return err
	}
	return store.Replace(f.store, f.Key(doc.ID), &buf)
}

// IDs lists the bags which have a document in the store, sorted.
func (f *Files) IDs() ([]string, error) {
	keys, err := f.store.ListPrefix("")
	if err != nil {
		return nil, err
	}
	suffix := "." + f.format
	var result []string
	for _, k := range keys {
		if strings.HasSuffix(k, suffix) {
			result = append(result, strings.TrimSuffix(k, suffix))
		}
	}
	sort.Strings(result)
	return result, nil
}

// Load reads back the document for the bag id.
func (f *Files) Load(id string) (*index.Document, error) {
	key := f.Key(id)
	r, _, err := f.store.Open(key)
	if err != nil {
		return nil, err
	}
	doc := &index.Document{ID: id}
	src := store.NewReader(r)
	if f.format == "yaml" {
		err = yaml.NewDecoder(src).Decode(doc)
	} else {
		err = json.NewDecoder(src).Decode(doc)
	}
	err2 := r.Close()
	if err == nil {
		err = err2
	} else if err2 != nil {
		logrus.WithField("key", key).WithError(err2).Warn("closing document")
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (f *Files) Close() error { return nil }

package emit

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/pkg/errors"

	"github.com/mjordan/bagit-indexer/index"
)

// Bleve adds documents to a local bleve index, for searching bags without
// a search server.
type Bleve struct {
	mu    sync.Mutex
	index bleve.Index
}

var _ Emitter = &Bleve{}

// NewBleve opens the index at path, creating it if needed. An empty path
// gives an index kept in memory.
func NewBleve(path string) (*Bleve, error) {
	mapping := bleve.NewIndexMapping()
	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, mapping)
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "open bleve index")
	}
	return &Bleve{index: idx}, nil
}

func (b *Bleve) Name() string { return "bleve" }

// Emit indexes doc under its bag ID. The document is indexed in the same
// shape it is serialized in, so field names match the JSON output.
func (b *Bleve) Emit(ctx context.Context, doc *index.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.index.NewBatch()
	if err := batch.Index(doc.ID, fields); err != nil {
		return err
	}
	return b.index.Batch(batch)
}

// Count returns the number of documents in the index.
func (b *Bleve) Count() (uint64, error) {
	return b.index.DocCount()
}

func (b *Bleve) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index.Close()
}

// Package registry remembers which version of each bag was last indexed, so
// a bag whose content has not changed can be skipped.
package registry

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Record is what is remembered about one bag.
type Record struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"contentHash"`
	Outcome     string    `json:"outcome"`
	IndexedAt   time.Time `json:"indexedAt"`
}

// A Registry stores one Record per bag ID.
type Registry interface {
	// Lookup returns the record for id. The boolean is false if there is
	// none.
	Lookup(id string) (Record, bool, error)
	// Save creates or replaces the record for r.ID.
	Save(r Record) error
	Close() error
}

// ErrUnknownDSN means the DSN names no supported database.
var ErrUnknownDSN = errors.New("registry: unknown database")

// Open connects to the registry named by dsn. The forms are "ql:memory",
// "ql:FILENAME" and "mysql:MYSQL-DSN".
func Open(dsn string) (Registry, error) {
	kind, rest, _ := strings.Cut(dsn, ":")
	switch kind {
	case "ql":
		r, err := NewQl(rest)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "mysql":
		r, err := NewMysql(rest)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, errors.Wrap(ErrUnknownDSN, dsn)
}

// Unchanged reports whether the registry already has a record for id with
// the given content hash.
func Unchanged(r Registry, id, contentHash string) (bool, error) {
	rec, ok, err := r.Lookup(id)
	if err != nil || !ok {
		return false, err
	}
	return rec.ContentHash == contentHash, nil
}

// Package emit sends finished index documents to where they are searched
// or kept. A document is only handed to an Emitter once it is complete.
package emit

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mjordan/bagit-indexer/index"
	"github.com/mjordan/bagit-indexer/metrics"
)

// An Emitter delivers documents to one destination.
type Emitter interface {
	// Name identifies the emitter in logs and metrics.
	Name() string
	// Emit delivers doc, keyed by doc.ID. Delivering the same document
	// twice replaces the first copy.
	Emit(ctx context.Context, doc *index.Document) error
	Close() error
}

// Multi delivers each document to every emitter in turn. A failing emitter
// does not stop the others.
type Multi []Emitter

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, e := range m {
		names[i] = e.Name()
	}
	return strings.Join(names, "+")
}

// Emit returns a *MultiError listing the emitters that failed.
func (m Multi) Emit(ctx context.Context, doc *index.Document) error {
	var failed MultiError
	for _, e := range m {
		err := e.Emit(ctx, doc)
		result := metrics.ResultSucceeded
		if err != nil {
			result = metrics.ResultError
			logrus.WithFields(logrus.Fields{
				"bag":     doc.ID,
				"emitter": e.Name(),
			}).WithError(err).Warn("emit failed")
			failed = append(failed, EmitterError{Emitter: e.Name(), Err: err})
		}
		metrics.Emitted.WithLabelValues(e.Name(), result).Inc()
	}
	if len(failed) > 0 {
		return failed
	}
	return nil
}

func (m Multi) Close() error {
	var err error
	for _, e := range m {
		if err2 := e.Close(); err == nil {
			err = err2
		}
	}
	return err
}

// EmitterError is the failure of one emitter.
type EmitterError struct {
	Emitter string
	Err     error
}

func (e EmitterError) Error() string { return e.Emitter + ": " + e.Err.Error() }

func (e EmitterError) Unwrap() error { return e.Err }

// MultiError collects the failures of a Multi.
type MultiError []EmitterError

func (me MultiError) Error() string {
	msgs := make([]string, len(me))
	for i, e := range me {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Discard accepts and drops every document. It is used when no destination
// is configured, so bags are still read and validated.
type Discard struct{}

func (Discard) Name() string { return "discard" }

func (Discard) Emit(ctx context.Context, _ *index.Document) error { return ctx.Err() }

func (Discard) Close() error { return nil }

// Package indexer runs bags through reading, validation and text
// extraction, and hands the resulting documents to an emitter.
package indexer

import (
	"context"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mjordan/bagit-indexer/bagit"
	"github.com/mjordan/bagit-indexer/descriptive"
	"github.com/mjordan/bagit-indexer/emit"
	"github.com/mjordan/bagit-indexer/index"
	"github.com/mjordan/bagit-indexer/metrics"
	"github.com/mjordan/bagit-indexer/registry"
)

// A Pipeline processes one bag at a time. It holds no per-bag state, so one
// Pipeline may be used by many goroutines.
type Pipeline struct {
	// Selector lists the payload files whose text is extracted.
	Selector  []string
	Extractor *descriptive.Extractor
	Validator *bagit.Validator
	Emitter   emit.Emitter
	// Registry, if not nil, is used to skip bags whose content is unchanged
	// since they were last indexed.
	Registry registry.Registry
}

// Result describes what happened to one bag.
type Result struct {
	ID       string
	Location string
	Outcome  bagit.Outcome
	// Skipped is true if the bag was unchanged and not indexed again.
	Skipped  bool
	Document *index.Document
	// BytesRead counts the bytes hashed, for the content hash and the
	// validation together.
	BytesRead int64
}

// Process indexes the bag at location, which is an archive file or a bag
// directory. A bag which fails validation is still indexed; its document
// records the errors. An error is returned if the bag could not be read or
// the document could not be delivered.
func (p *Pipeline) Process(ctx context.Context, location string) (Result, error) {
	start := time.Now()
	abs, err := filepath.Abs(location)
	if err != nil {
		return Result{Location: location}, err
	}
	res := Result{ID: bagit.BagID(abs), Location: abs}
	log := logrus.WithFields(logrus.Fields{"bag": res.ID, "location": abs})

	hash, n, err := index.HashArtifact(abs)
	res.BytesRead += n
	metrics.BytesHashed.Add(float64(n))
	if err != nil {
		return res, errors.Wrap(err, "hashing bag")
	}
	if p.Registry != nil {
		same, err := registry.Unchanged(p.Registry, res.ID, hash.Value)
		if err != nil {
			log.WithError(err).Warn("registry lookup")
		} else if same {
			log.Debug("unchanged since last indexed")
			res.Skipped = true
			return res, nil
		}
	}

	doc, v, err := p.build(abs, hash, log)
	if err != nil {
		return res, err
	}
	res.BytesRead += v.BytesRead
	res.Outcome = v.Outcome
	res.Document = doc
	metrics.BytesHashed.Add(float64(v.BytesRead))
	if v.Outcome == bagit.Invalid {
		metrics.InvalidBags.Inc()
		log.WithField("errors", len(v.Errors)).Warn("bag is not valid")
	}

	if err := p.Emitter.Emit(ctx, doc); err != nil {
		return res, errors.Wrap(err, "emitting document")
	}
	if p.Registry != nil {
		err := p.Registry.Save(registry.Record{
			ID:          res.ID,
			ContentHash: hash.Value,
			Outcome:     string(v.Outcome),
			IndexedAt:   v.Timestamp,
		})
		if err != nil {
			log.WithError(err).Warn("registry save")
		}
	}
	elapsed := time.Since(start)
	metrics.BagSeconds.Observe(elapsed.Seconds())
	log.WithFields(logrus.Fields{
		"outcome": v.Outcome,
		"read":    humanize.Bytes(uint64(res.BytesRead)),
		"elapsed": elapsed,
	}).Info("indexed")
	return res, nil
}

// build does the work which needs the bag's contents. The archive is open
// only for the duration of the call.
func (p *Pipeline) build(location string, hash index.ContentHash, log *logrus.Entry) (*index.Document, bagit.ValidationResult, error) {
	var v bagit.ValidationResult
	a, err := bagit.OpenArchive(location)
	if err != nil {
		return nil, v, errors.Wrap(err, "opening bag")
	}
	defer a.Close()

	bag, err := bagit.Read(a, location)
	if err != nil {
		return nil, v, err
	}
	v = p.validator().Validate(bag, a)

	text, errs := p.extractor().Extract(a, bag.ID, p.Selector)
	for _, err := range errs {
		log.WithError(err).Warn("descriptive text")
	}

	doc, err := index.NewBuilder(location).
		Bag(bag).
		Validation(v).
		ContentHash(hash).
		DescriptiveText(text).
		Build()
	return doc, v, err
}

func (p *Pipeline) validator() *bagit.Validator {
	if p.Validator == nil {
		return &bagit.Validator{}
	}
	return p.Validator
}

func (p *Pipeline) extractor() *descriptive.Extractor {
	if p.Extractor == nil {
		return descriptive.NewExtractor()
	}
	return p.Extractor
}

// report sends a failed bag to sentry. It does nothing if no DSN is set.
func report(res Result, err error) {
	raven.CaptureError(err, map[string]string{
		"bag":      res.ID,
		"location": res.Location,
	})
}

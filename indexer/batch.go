package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mjordan/bagit-indexer/bagit"
	"github.com/mjordan/bagit-indexer/metrics"
)

// Stats counts what happened to the bags seen so far.
type Stats struct {
	Processed int64 `json:"processed"`
	Indexed   int64 `json:"indexed"`
	Invalid   int64 `json:"invalid"`
	Skipped   int64 `json:"skipped"`
	Failed    int64 `json:"failed"`
}

// Counters is a Stats which may be updated from many goroutines.
type Counters struct {
	processed, indexed, invalid, skipped, failed int64
}

// Record counts the outcome of one bag.
func (c *Counters) Record(res Result, err error) {
	atomic.AddInt64(&c.processed, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&c.failed, 1)
		metrics.BagsProcessed.WithLabelValues(metrics.ResultFailed).Inc()
	case res.Skipped:
		atomic.AddInt64(&c.skipped, 1)
		metrics.BagsProcessed.WithLabelValues(metrics.ResultSkipped).Inc()
	default:
		atomic.AddInt64(&c.indexed, 1)
		if res.Outcome == bagit.Invalid {
			atomic.AddInt64(&c.invalid, 1)
		}
		metrics.BagsProcessed.WithLabelValues(metrics.ResultIndexed).Inc()
	}
}

// Stats returns a snapshot of the counters.
func (c *Counters) Stats() Stats {
	return Stats{
		Processed: atomic.LoadInt64(&c.processed),
		Indexed:   atomic.LoadInt64(&c.indexed),
		Invalid:   atomic.LoadInt64(&c.invalid),
		Skipped:   atomic.LoadInt64(&c.skipped),
		Failed:    atomic.LoadInt64(&c.failed),
	}
}

// A Batch runs many bags through a Pipeline at once.
type Batch struct {
	Pipeline *Pipeline
	// Workers bounds the number of bags processed at the same time.
	Workers  int
	Counters Counters
}

// Handle processes one bag and records its outcome. Failures are logged and
// reported, never returned: one bad bag must not stop the others.
func (b *Batch) Handle(ctx context.Context, location string) Result {
	res, err := b.Pipeline.Process(ctx, location)
	b.Counters.Record(res, err)
	if err != nil {
		logrus.WithFields(logrus.Fields{"bag": res.ID, "location": location}).
			WithError(err).Error("bag failed")
		report(res, err)
	}
	return res
}

// Run processes each of paths and waits for them to finish. Once ctx is
// cancelled no further bags are started, but those already started run to
// completion so no bag is left half emitted.
func (b *Batch) Run(ctx context.Context, paths []string) Stats {
	workers := b.Workers
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	inflight := context.WithoutCancel(ctx)
	for i, p := range paths {
		if ctx.Err() != nil {
			logrus.WithField("remaining", len(paths)-i).Info("batch cancelled")
			break
		}
		p := p
		g.Go(func() error {
			b.Handle(inflight, p)
			return nil
		})
	}
	g.Wait()
	return b.Counters.Stats()
}

// Enumerate lists the bags named by input. A bag directory, one holding
// bagit.txt, or a file is a single bag. Any other directory holds bags: each
// entry in it which is not hidden is taken to be one. The result is sorted.
func Enumerate(input string) ([]string, error) {
	fi, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() || isBagDir(input) {
		return []string{input}, nil
	}
	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		result = append(result, filepath.Join(input, e.Name()))
	}
	return result, nil
}

func isBagDir(dir string) bool {
	fi, err := os.Stat(filepath.Join(dir, "bagit.txt"))
	return err == nil && fi.Mode().IsRegular()
}

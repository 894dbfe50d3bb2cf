package main

import (
	"context"

	"github.com/mjordan/bagit-indexer/indexer"
	"github.com/mjordan/bagit-indexer/server"
	"github.com/mjordan/bagit-indexer/watch"
)

// Run indexes bags dropped into the directory until interrupted.
func (c *WatchCmd) Run(deps *Dependencies) error {
	cfg := deps.Config
	if err := c.apply(cfg); err != nil {
		return err
	}
	if c.Settle > 0 {
		cfg.Watch.Settle.Duration = c.Settle
	}
	if c.Status != "" {
		cfg.Status.Addr = c.Status
	}
	p, cleanup, err := newPipeline(cfg)
	defer cleanup()
	if err != nil {
		return err
	}

	batch := &indexer.Batch{Pipeline: p, Workers: cfg.Index.Workers}
	if cfg.Status.Addr != "" {
		s := &server.StatusServer{
			Addr:     cfg.Status.Addr,
			Stats:    &batch.Counters,
			Registry: p.Registry,
		}
		if err := s.Start(); err != nil {
			return err
		}
		defer s.Stop()
	}

	w := &watch.Watcher{
		Dir:      c.Dir,
		Settle:   cfg.Watch.Settle.Duration,
		Workers:  cfg.Index.Workers,
		Existing: c.Existing,
		Handle: func(ctx context.Context, path string) {
			batch.Handle(ctx, path)
		},
	}
	err = w.Run(deps.Ctx)
	printStats(deps, batch.Counters.Stats())
	return err
}

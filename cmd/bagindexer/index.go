package main

import (
	"fmt"

	"github.com/mjordan/bagit-indexer/indexer"
)

// Run indexes every bag named by the input.
func (c *IndexCmd) Run(deps *Dependencies) error {
	cfg := deps.Config
	if err := c.apply(cfg); err != nil {
		return err
	}
	paths, err := indexer.Enumerate(c.Input)
	if err != nil {
		return err
	}
	p, cleanup, err := newPipeline(cfg)
	defer cleanup()
	if err != nil {
		return err
	}

	batch := &indexer.Batch{Pipeline: p, Workers: cfg.Index.Workers}
	stats := batch.Run(deps.Ctx, paths)
	printStats(deps, stats)
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d bags failed", stats.Failed, len(paths))
	}
	return deps.Ctx.Err()
}

func printStats(deps *Dependencies, s indexer.Stats) {
	fmt.Fprintf(deps.Stdout, "processed %d: %d indexed, %d invalid, %d skipped, %d failed\n",
		s.Processed, s.Indexed, s.Invalid, s.Skipped, s.Failed)
}

package main

import (
	"context"
	"io"
	"time"

	"github.com/mjordan/bagit-indexer/config"
)

// Dependencies holds what every command needs.
type Dependencies struct {
	Ctx    context.Context
	Stdout io.Writer
	Stderr io.Writer
	Config *config.Config
}

// CLI defines the command-line interface structure for Kong.
type CLI struct {
	Config   string `short:"c" help:"TOML configuration file"`
	LogLevel string `help:"Log level (debug, info, warn, error)"`
	LogJSON  bool   `name:"log-json" help:"Log in JSON"`

	Index    IndexCmd    `cmd:"" help:"Index a bag, a bag directory, or a directory of bags"`
	Validate ValidateCmd `cmd:"" help:"Validate bags and report problems"`
	Watch    WatchCmd    `cmd:"" help:"Index bags as they appear in a directory"`
	Bag      BagCmd      `cmd:"" help:"Package a directory as a zipped bag"`
}

// PipelineFlags override the configuration file for commands that index.
type PipelineFlags struct {
	Descriptive string `short:"d" help:"Comma separated payload files whose text is indexed"`
	ESURL       string `name:"es-url" help:"Elasticsearch base URL"`
	ESIndex     string `name:"es-index" help:"Elasticsearch index name"`
	Output      string `short:"o" help:"Write one document per bag into this directory or s3://bucket/prefix"`
	Format      string `help:"Document file format (json or yaml)"`
	Bleve       string `help:"Add documents to the bleve index at this path"`
	Registry    string `help:"Registry database, e.g. ql:registry.db, to skip unchanged bags"`
	Workers     int    `short:"w" help:"Bags processed at the same time"`
}

// IndexCmd is the "index" subcommand.
type IndexCmd struct {
	PipelineFlags `embed:""`

	Input string `arg:"" help:"Bag, bag directory, or directory of bags"`
}

// ValidateCmd is the "validate" subcommand.
type ValidateCmd struct {
	Paths []string `arg:"" help:"Bags or directories of bags"`
}

// WatchCmd is the "watch" subcommand.
type WatchCmd struct {
	PipelineFlags `embed:""`

	Dir      string        `arg:"" help:"Directory to watch"`
	Settle   time.Duration `help:"How long a file must be unchanged before it is indexed"`
	Status   string        `help:"Address for the status server, e.g. :14001"`
	Existing bool          `help:"Also index the bags already in the directory"`
}

// BagCmd is the "bag" subcommand.
type BagCmd struct {
	Source string   `arg:"" help:"Directory holding the payload"`
	Out    string   `arg:"" help:"Zip file to create"`
	Tags   []string `short:"t" name:"tag" sep:"none" help:"Tag for bag-info.txt as NAME=VALUE (repeatable)"`
}

// apply copies the flags which were given over cfg.
func (f *PipelineFlags) apply(cfg *config.Config) error {
	if f.Descriptive != "" {
		cfg.Index.Descriptive = f.Descriptive
	}
	if f.ESURL != "" {
		cfg.Elasticsearch.URL = f.ESURL
	}
	if f.ESIndex != "" {
		cfg.Elasticsearch.Index = f.ESIndex
	}
	if f.Output != "" {
		cfg.Output.Dir = f.Output
	}
	if f.Format != "" {
		cfg.Output.Format = f.Format
	}
	if f.Bleve != "" {
		cfg.Bleve.Path = f.Bleve
	}
	if f.Registry != "" {
		cfg.Registry.DSN = f.Registry
	}
	if f.Workers > 0 {
		cfg.Index.Workers = f.Workers
	}
	return cfg.Validate()
}

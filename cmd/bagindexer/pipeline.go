package main

import (
	"github.com/sirupsen/logrus"

	"github.com/mjordan/bagit-indexer/bagit"
	"github.com/mjordan/bagit-indexer/config"
	"github.com/mjordan/bagit-indexer/descriptive"
	"github.com/mjordan/bagit-indexer/emit"
	"github.com/mjordan/bagit-indexer/indexer"
	"github.com/mjordan/bagit-indexer/registry"
)

// newPipeline wires a pipeline from cfg. The returned function releases
// what was opened, and must be called even on error.
func newPipeline(cfg *config.Config) (*indexer.Pipeline, func(), error) {
	var emitters emit.Multi
	var reg registry.Registry
	cleanup := func() {
		if err := emitters.Close(); err != nil {
			logrus.WithError(err).Warn("closing emitters")
		}
		if reg != nil {
			reg.Close()
		}
	}

	if cfg.Elasticsearch.URL != "" {
		emitters = append(emitters, emit.NewElasticsearch(
			cfg.Elasticsearch.URL,
			cfg.Elasticsearch.Index,
			cfg.Elasticsearch.Type,
			cfg.Elasticsearch.Retries,
			cfg.Elasticsearch.Timeout.Duration))
	}
	if cfg.Output.Dir != "" {
		s, err := emit.ParseLocation(cfg.Output.Dir)
		if err != nil {
			return nil, cleanup, err
		}
		files, err := emit.NewFiles(s, cfg.Output.Format)
		if err != nil {
			return nil, cleanup, err
		}
		emitters = append(emitters, files)
	}
	if cfg.Bleve.Path != "" {
		b, err := emit.NewBleve(cfg.Bleve.Path)
		if err != nil {
			return nil, cleanup, err
		}
		emitters = append(emitters, b)
	}
	if len(emitters) == 0 {
		logrus.Warn("no destination configured, documents are discarded")
		emitters = append(emitters, emit.Discard{})
	}

	if cfg.Registry.DSN != "" {
		var err error
		reg, err = registry.Open(cfg.Registry.DSN)
		if err != nil {
			return nil, cleanup, err
		}
	}

	p := &indexer.Pipeline{
		Selector:  descriptive.ParseSelector(cfg.Index.Descriptive),
		Extractor: descriptive.NewExtractor(cfg.Index.Extensions...),
		Validator: bagit.NewValidator(),
		Emitter:   emitters,
		Registry:  reg,
	}
	return p, cleanup, nil
}

// Package config holds the settings for bagindexer. Settings come from an
// optional TOML file layered over Default; command line flags are applied
// on top by the caller.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config is the complete configuration.
type Config struct {
	Index         IndexConfig         `toml:"index"`
	Elasticsearch ElasticsearchConfig `toml:"elasticsearch"`
	Output        OutputConfig        `toml:"output"`
	Bleve         BleveConfig         `toml:"bleve"`
	Registry      RegistryConfig      `toml:"registry"`
	Log           LogConfig           `toml:"log"`
	Sentry        SentryConfig        `toml:"sentry"`
	Status        StatusConfig        `toml:"status"`
	Watch         WatchConfig         `toml:"watch"`
}

// IndexConfig controls how each bag is processed.
type IndexConfig struct {
	// Descriptive is the comma separated list of payload paths whose text
	// goes into the document.
	Descriptive string `toml:"descriptive"`
	// Extensions recognized by the text extractor.
	Extensions []string `toml:"extensions"`
	Workers    int      `toml:"workers"`
}

// ElasticsearchConfig describes the search index. An empty URL disables it.
type ElasticsearchConfig struct {
	URL     string   `toml:"url"`
	Index   string   `toml:"index"`
	Type    string   `toml:"type"`
	Retries int      `toml:"retries"`
	Timeout Duration `toml:"timeout"`
}

// OutputConfig writes one document file per bag. Dir may be a local
// directory or s3://bucket/prefix. An empty Dir disables it.
type OutputConfig struct {
	Dir    string `toml:"dir"`
	Format string `toml:"format"`
}

// BleveConfig writes documents to a local bleve index at Path.
type BleveConfig struct {
	Path string `toml:"path"`
}

// RegistryConfig names the database remembering what was indexed, e.g.
// "ql:/var/lib/bagindexer/registry.db", "ql:memory" or "mysql:user@/db".
type RegistryConfig struct {
	DSN string `toml:"dsn"`
}

type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
	Dir   string `toml:"dir"`
}

type SentryConfig struct {
	DSN string `toml:"dsn"`
}

// StatusConfig is the listen address of the watch mode status server. An
// empty Addr disables it.
type StatusConfig struct {
	Addr string `toml:"addr"`
}

type WatchConfig struct {
	// Settle is how long a file must stay unchanged before it is indexed.
	Settle Duration `toml:"settle"`
}

// Duration is a time.Duration written as a string such as "1m30s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText writes the duration in time.Duration's format.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Index: IndexConfig{
			Extensions: []string{"txt", "md", "xml"},
			Workers:    runtime.NumCPU(),
		},
		Elasticsearch: ElasticsearchConfig{
			Index:   "bags",
			Type:    "_doc",
			Retries: 3,
			Timeout: Duration{30 * time.Second},
		},
		Output: OutputConfig{
			Format: "json",
		},
		Log: LogConfig{
			Level: "info",
		},
		Watch: WatchConfig{
			Settle: Duration{5 * time.Second},
		},
	}
}

// Load reads the TOML file at path over the defaults. Keys not present in
// the file keep their default values. Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	if c.Index.Workers < 1 {
		return errors.New("index.workers must be at least 1")
	}
	switch c.Output.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("output.format must be json or yaml, not %q", c.Output.Format)
	}
	if c.Elasticsearch.Retries < 0 {
		return errors.New("elasticsearch.retries must not be negative")
	}
	if c.Registry.DSN != "" && !strings.HasPrefix(c.Registry.DSN, "ql:") &&
		!strings.HasPrefix(c.Registry.DSN, "mysql:") {
		return fmt.Errorf("registry.dsn must start with ql: or mysql:, not %q", c.Registry.DSN)
	}
	return nil
}

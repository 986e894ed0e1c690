// Package config loads and validates the quarry configuration file.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/logging"
)

// DefaultFileName is the config file looked up in the index directory.
const DefaultFileName = "quarry.yaml"

// Driver names accepted in the drivers section.
const (
	DriverBleve  = "bleve"
	DriverSQLite = "sqlite"
	DriverHNSW   = "hnsw"
	DriverQdrant = "qdrant"
)

// Embedder provider names.
const (
	EmbedderOllama = "ollama"
	EmbedderStatic = "static"
)

// Config is the root configuration.
type Config struct {
	// IndexDir is where index files and the lock live.
	IndexDir string `yaml:"index_dir"`

	Drivers  DriversConfig  `yaml:"drivers"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Search   SearchConfig   `yaml:"search"`
	Qdrant   QdrantConfig   `yaml:"qdrant,omitempty"`
	Logging  logging.Config `yaml:"logging"`
}

// DriversConfig selects the search backends. Single takes precedence; when
// empty, Vector and Keyword compose a hybrid pair.
type DriversConfig struct {
	Single  string `yaml:"single,omitempty"`
	Vector  string `yaml:"vector,omitempty"`
	Keyword string `yaml:"keyword,omitempty"`
}

// EmbedderConfig selects and tunes the embedding provider.
type EmbedderConfig struct {
	Provider   string `yaml:"provider"`
	Host       string `yaml:"host,omitempty"`
	Model      string `yaml:"model,omitempty"`
	Dimensions int    `yaml:"dimensions,omitempty"`
	MaxTokens  int    `yaml:"max_tokens,omitempty"`
}

// ChunkingConfig tunes document chunking.
type ChunkingConfig struct {
	MaxTokens    int `yaml:"max_tokens"`
	OverlapLines int `yaml:"overlap_lines"`
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// SearchConfig tunes query behavior.
type SearchConfig struct {
	Limit int `yaml:"limit"`
}

// QdrantConfig holds connection details for the qdrant driver.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	return &Config{
		IndexDir: ".quarry",
		Drivers: DriversConfig{
			Vector:  DriverHNSW,
			Keyword: DriverBleve,
		},
		Embedder: EmbedderConfig{
			Provider: EmbedderStatic,
		},
		Chunking: ChunkingConfig{
			MaxTokens:    512,
			OverlapLines: 0,
			ChunkSize:    1000,
			ChunkOverlap: 100,
		},
		Search: SearchConfig{
			Limit: 10,
		},
		Qdrant: QdrantConfig{
			Addr:       "localhost:6334",
			Collection: "quarry",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load reads a config file and merges it over defaults. A missing file
// returns defaults without error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.New(errors.ErrCodeConfigNotFound, "read config file", err).
			WithDetail("path", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "parse config file", err).
			WithDetail("path", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.InternalError("marshal config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IOError("create config directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IOError("write config file", err).WithDetail("path", path)
	}
	return nil
}

// Validate checks driver and embedder selections.
func (c *Config) Validate() error {
	if c.IndexDir == "" {
		return errors.ConfigError("index_dir must not be empty", nil)
	}

	if c.Drivers.Single == "" && c.Drivers.Vector == "" && c.Drivers.Keyword == "" {
		return errors.New(errors.ErrCodeNoDrivers, "no search drivers configured", nil).
			WithSuggestion("set drivers.single, or drivers.vector and drivers.keyword")
	}

	for _, sel := range []struct{ field, name string }{
		{"drivers.single", c.Drivers.Single},
		{"drivers.vector", c.Drivers.Vector},
		{"drivers.keyword", c.Drivers.Keyword},
	} {
		if sel.name == "" {
			continue
		}
		switch sel.name {
		case DriverBleve, DriverSQLite, DriverHNSW, DriverQdrant:
		default:
			return errors.ConfigError("unknown search driver", nil).
				WithDetail("field", sel.field).
				WithDetail("value", sel.name)
		}
	}

	switch c.Embedder.Provider {
	case EmbedderOllama, EmbedderStatic, "":
	default:
		return errors.ConfigError("unknown embedder provider", nil).
			WithDetail("value", c.Embedder.Provider)
	}

	if c.Chunking.MaxTokens < 0 || c.Chunking.OverlapLines < 0 {
		return errors.ConfigError("chunking values must not be negative", nil)
	}
	if c.Search.Limit < 0 {
		return errors.ConfigError("search.limit must not be negative", nil)
	}
	return nil
}

// Path returns the config file path inside an index directory.
func Path(indexDir string) string {
	return filepath.Join(indexDir, DefaultFileName)
}

// Package config holds the process-wide configuration snapshot. A Config is
// constructed once at startup (defaults overlaid with an optional YAML file)
// and passed explicitly to every component; there is no global lookup, so
// tests and concurrent runs can hold isolated instances.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full configuration snapshot.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Extract   ExtractConfig   `yaml:"extract"`
	Lexicon   LexiconConfig   `yaml:"lexicon"`
	Controls  ControlsConfig  `yaml:"controls"`
	Mapping   MappingConfig   `yaml:"mapping"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig names the output and audit directories.
type StorageConfig struct {
	DataDir  string `yaml:"data_dir"`
	AuditDir string `yaml:"audit_dir"`
}

// ExtractConfig tunes obligation extraction.
type ExtractConfig struct {
	MinLength int `yaml:"min_length"`
}

// LexiconConfig points at the lexicon file; empty means the built-in lexicon.
type LexiconConfig struct {
	File string `yaml:"file"`
}

// ControlsConfig locates the catalog files.
type ControlsConfig struct {
	CatalogDir string   `yaml:"catalog_dir"`
	Catalogs   []string `yaml:"catalogs"`
}

// MappingConfig tunes hybrid control mapping.
type MappingConfig struct {
	TopK       int              `yaml:"top_k"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Blend      BlendConfig      `yaml:"blend"`
}

// ThresholdsConfig holds the triage boundaries.
type ThresholdsConfig struct {
	High float64 `yaml:"high"`
	Low  float64 `yaml:"low"`
}

// BlendConfig holds the score blend weights.
type BlendConfig struct {
	CosineWeight  float64 `yaml:"cosine_weight"`
	LexicalWeight float64 `yaml:"lexical_weight"`
}

// EmbeddingConfig selects the embedding provider, e.g. "hash:256".
type EmbeddingConfig struct {
	Provider string `yaml:"provider"`
}

// LoggingConfig tunes the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:  "data",
			AuditDir: "audit",
		},
		Extract: ExtractConfig{
			MinLength: 30,
		},
		Controls: ControlsConfig{
			CatalogDir: "catalogs",
			Catalogs:   []string{"*.yml", "*.yaml"},
		},
		Mapping: MappingConfig{
			TopK:       5,
			Thresholds: ThresholdsConfig{High: 0.75, Low: 0.60},
			Blend:      BlendConfig{CosineWeight: 0.7, LexicalWeight: 0.3},
		},
		Embedding: EmbeddingConfig{
			Provider: "hash:256",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults unchanged; a named file must exist and validate.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrInvalidConfig, path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" || c.Storage.AuditDir == "" {
		return fmt.Errorf("%w: storage.data_dir and storage.audit_dir are required", ErrInvalidConfig)
	}
	if c.Extract.MinLength < 0 {
		return fmt.Errorf("%w: extract.min_length must be >= 0, got %d", ErrInvalidConfig, c.Extract.MinLength)
	}
	if len(c.Controls.Catalogs) == 0 {
		return fmt.Errorf("%w: controls.catalogs must name at least one pattern", ErrInvalidConfig)
	}
	if c.Mapping.TopK <= 0 {
		return fmt.Errorf("%w: mapping.top_k must be > 0, got %d", ErrInvalidConfig, c.Mapping.TopK)
	}
	if c.Mapping.Thresholds.High < c.Mapping.Thresholds.Low {
		return fmt.Errorf("%w: mapping.thresholds.high %g < mapping.thresholds.low %g",
			ErrInvalidConfig, c.Mapping.Thresholds.High, c.Mapping.Thresholds.Low)
	}
	b := c.Mapping.Blend
	if b.CosineWeight < 0 || b.LexicalWeight < 0 || b.CosineWeight+b.LexicalWeight == 0 {
		return fmt.Errorf("%w: blend weights cosine=%g lexical=%g", ErrInvalidConfig, b.CosineWeight, b.LexicalWeight)
	}
	if c.Embedding.Provider == "" {
		return fmt.Errorf("%w: embedding.provider is required", ErrInvalidConfig)
	}
	return nil
}

// AuditFile returns the path of the audit log file.
func (c *Config) AuditFile() string {
	return filepath.Join(c.Storage.AuditDir, "audit.jsonl")
}

// EnsureDirectories creates the storage directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.DataDir, c.Storage.AuditDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

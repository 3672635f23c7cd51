// Package config loads and validates the hub configuration. Configuration
// is applied in order of increasing precedence: hardcoded defaults, user
// config, project config, then CARTRITAHUB_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete hub configuration.
type Config struct {
	Version int            `yaml:"version" json:"version"`
	DataDir string         `yaml:"data_dir" json:"data_dir"`
	Models  map[string]ModelConfig `yaml:"models" json:"models"`
	Search  SearchConfig   `yaml:"search" json:"search"`
	Index   IndexConfig    `yaml:"index" json:"index"`
	Logging LoggingConfig  `yaml:"logging" json:"logging"`
}

// ModelConfig describes one embedding model tag. Dimensionality and distance
// metric are part of a tag's identity and never change after creation.
type ModelConfig struct {
	// Dimensions is the vector dimensionality for this model tag.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// Metric is the distance metric: "cos" (default) or "l2".
	Metric string `yaml:"metric" json:"metric"`
}

// SearchConfig configures hybrid query parameters.
type SearchConfig struct {
	// VectorWeight is the fusion weight for embedding similarity (0.0-1.0).
	// Must sum to 1.0 with LexicalWeight.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`

	// LexicalWeight is the fusion weight for BM25 keyword matching (0.0-1.0).
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// Overfetch is the per-source candidate floor before fusion.
	// Each source is asked for max(k, overfetch) candidates.
	Overfetch int `yaml:"overfetch" json:"overfetch"`

	// DefaultK is the result count when a query does not specify one.
	DefaultK int `yaml:"default_k" json:"default_k"`

	// MaxK caps the result count of a single query.
	MaxK int `yaml:"max_k" json:"max_k"`

	// LexicalBackend selects the BM25 index backend.
	// Options: "sqlite" (default, FTS5) or "bleve".
	LexicalBackend string `yaml:"lexical_backend" json:"lexical_backend"`

	// CacheSize is the record enrichment cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// QueryTimeout bounds a single query, e.g. "5s".
	QueryTimeout string `yaml:"query_timeout" json:"query_timeout"`
}

// IndexConfig configures the vector index partitions.
type IndexConfig struct {
	// VectorBackend selects the ANN structure: "hnsw" (default) or "ivf".
	VectorBackend string `yaml:"vector_backend" json:"vector_backend"`

	// M is the HNSW connectivity parameter.
	M int `yaml:"m" json:"m"`

	// EfSearch is the HNSW search beam width.
	EfSearch int `yaml:"ef_search" json:"ef_search"`

	// Partitions is the IVF cluster count.
	Partitions int `yaml:"partitions" json:"partitions"`

	// Probes is the number of IVF clusters scanned per search.
	Probes int `yaml:"probes" json:"probes"`

	// OrphanRatio is the lazily-deleted share that triggers an automatic
	// rebuild. Range: 0.0-1.0.
	OrphanRatio float64 `yaml:"orphan_ratio" json:"orphan_ratio"`

	// RebuildInterval rate-limits automatic rebuilds, e.g. "1m".
	RebuildInterval string `yaml:"rebuild_interval" json:"rebuild_interval"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level" json:"level"`

	// File is the log file path. Empty logs to stderr.
	File string `yaml:"file" json:"file"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Models:  map[string]ModelConfig{},
		Search: SearchConfig{
			VectorWeight:   0.7,
			LexicalWeight:  0.3,
			Overfetch:      50,
			DefaultK:       10,
			MaxK:           100,
			LexicalBackend: "sqlite",
			CacheSize:      1024,
			QueryTimeout:   "5s",
		},
		Index: IndexConfig{
			VectorBackend:   "hnsw",
			M:               16,
			EfSearch:        20,
			Partitions:      64,
			Probes:          8,
			OrphanRatio:     0.3,
			RebuildInterval: "1m",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultDataDir returns the default on-disk location for records, lexical
// indexes, and ANN artifacts.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".cartrita-hub")
	}
	return filepath.Join(home, ".cartrita-hub")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/cartrita-hub/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/cartrita-hub/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cartrita-hub", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "cartrita-hub", "config.yaml")
	}
	return filepath.Join(home, ".config", "cartrita-hub", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/cartrita-hub/config.yaml)
//  3. Project config (.cartrita-hub.yaml in dir)
//  4. Environment variables (CARTRITAHUB_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile attempts to load configuration from .cartrita-hub.yaml or .yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".cartrita-hub.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".cartrita-hub.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	for tag, m := range other.Models {
		c.Models[tag] = m
	}

	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.Overfetch != 0 {
		c.Search.Overfetch = other.Search.Overfetch
	}
	if other.Search.DefaultK != 0 {
		c.Search.DefaultK = other.Search.DefaultK
	}
	if other.Search.MaxK != 0 {
		c.Search.MaxK = other.Search.MaxK
	}
	if other.Search.LexicalBackend != "" {
		c.Search.LexicalBackend = other.Search.LexicalBackend
	}
	if other.Search.CacheSize != 0 {
		c.Search.CacheSize = other.Search.CacheSize
	}
	if other.Search.QueryTimeout != "" {
		c.Search.QueryTimeout = other.Search.QueryTimeout
	}

	if other.Index.VectorBackend != "" {
		c.Index.VectorBackend = other.Index.VectorBackend
	}
	if other.Index.M != 0 {
		c.Index.M = other.Index.M
	}
	if other.Index.EfSearch != 0 {
		c.Index.EfSearch = other.Index.EfSearch
	}
	if other.Index.Partitions != 0 {
		c.Index.Partitions = other.Index.Partitions
	}
	if other.Index.Probes != 0 {
		c.Index.Probes = other.Index.Probes
	}
	if other.Index.OrphanRatio != 0 {
		c.Index.OrphanRatio = other.Index.OrphanRatio
	}
	if other.Index.RebuildInterval != "" {
		c.Index.RebuildInterval = other.Index.RebuildInterval
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies CARTRITAHUB_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CARTRITAHUB_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CARTRITAHUB_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("CARTRITAHUB_LEXICAL_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("CARTRITAHUB_OVERFETCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.Overfetch = n
		}
	}
	if v := os.Getenv("CARTRITAHUB_LEXICAL_BACKEND"); v != "" {
		c.Search.LexicalBackend = v
	}
	if v := os.Getenv("CARTRITAHUB_VECTOR_BACKEND"); v != "" {
		c.Index.VectorBackend = v
	}
	if v := os.Getenv("CARTRITAHUB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}
	sum := c.Search.VectorWeight + c.Search.LexicalWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("vector_weight + lexical_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.Overfetch < 0 {
		return fmt.Errorf("overfetch must be non-negative, got %d", c.Search.Overfetch)
	}
	if c.Search.DefaultK < 0 {
		return fmt.Errorf("default_k must be non-negative, got %d", c.Search.DefaultK)
	}
	if c.Search.MaxK < c.Search.DefaultK {
		return fmt.Errorf("max_k (%d) must be >= default_k (%d)", c.Search.MaxK, c.Search.DefaultK)
	}

	validLexical := map[string]bool{"sqlite": true, "bleve": true}
	if !validLexical[strings.ToLower(c.Search.LexicalBackend)] {
		return fmt.Errorf("lexical_backend must be 'sqlite' or 'bleve', got %s", c.Search.LexicalBackend)
	}
	validVector := map[string]bool{"hnsw": true, "ivf": true}
	if !validVector[strings.ToLower(c.Index.VectorBackend)] {
		return fmt.Errorf("vector_backend must be 'hnsw' or 'ivf', got %s", c.Index.VectorBackend)
	}

	if c.Index.OrphanRatio < 0 || c.Index.OrphanRatio > 1 {
		return fmt.Errorf("orphan_ratio must be between 0 and 1, got %f", c.Index.OrphanRatio)
	}

	for tag, m := range c.Models {
		if tag == "" {
			return fmt.Errorf("model tag must not be empty")
		}
		if m.Dimensions <= 0 {
			return fmt.Errorf("model %q: dimensions must be positive, got %d", tag, m.Dimensions)
		}
		switch strings.ToLower(m.Metric) {
		case "", "cos", "l2":
		default:
			return fmt.Errorf("model %q: metric must be 'cos' or 'l2', got %s", tag, m.Metric)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Model returns the configuration for a model tag, false if unknown.
func (c *Config) Model(tag string) (ModelConfig, bool) {
	m, ok := c.Models[tag]
	return m, ok
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

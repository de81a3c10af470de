// Package config loads and validates parafuse configuration.
//
// Precedence, lowest to highest: built-in defaults, config file
// (.parafuse.yaml in the working directory), environment variables
// (PARAFUSE_* prefix).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete parafuse configuration.
type Config struct {
	Search     SearchConfig     `yaml:"search" json:"search"`
	Fanout     FanoutConfig     `yaml:"fanout" json:"fanout"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Paraphrase ParaphraseConfig `yaml:"paraphrase" json:"paraphrase"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// SearchConfig configures the query service.
type SearchConfig struct {
	// Limit is the maximum number of answers to return (default: 5).
	Limit int `yaml:"limit" json:"limit"`

	// ScoreThreshold is the baseline similarity threshold (default: 0.7).
	// Zero means no threshold; paraphrase branches then fall back to the
	// absolute relaxed threshold.
	ScoreThreshold float64 `yaml:"score_threshold" json:"score_threshold"`

	// VotingMethod selects the fusion algorithm: simple, weighted, ensemble.
	// Default: weighted.
	VotingMethod string `yaml:"voting_method" json:"voting_method"`
}

// FanoutConfig configures the per-paraphrase search fanout.
type FanoutConfig struct {
	// BranchLimit is the per-paraphrase result limit (default: 5).
	BranchLimit int `yaml:"branch_limit" json:"branch_limit"`

	// RelaxedThresholdRatio scales the baseline threshold for paraphrase
	// branches (default: 0.7). Fusion filters by consensus downstream, so
	// branches intentionally admit more candidates than a baseline search.
	RelaxedThresholdRatio float64 `yaml:"relaxed_threshold_ratio" json:"relaxed_threshold_ratio"`

	// AbsoluteRelaxedThreshold is used when no baseline threshold is
	// configured (default: 0.2).
	AbsoluteRelaxedThreshold float64 `yaml:"absolute_relaxed_threshold" json:"absolute_relaxed_threshold"`

	// BranchTimeout bounds a single embed+search branch (default: "10s").
	BranchTimeout string `yaml:"branch_timeout" json:"branch_timeout"`

	// Timeout bounds the whole fanout. Must be at least BranchTimeout.
	// Default: "30s".
	Timeout string `yaml:"timeout" json:"timeout"`
}

// BranchTimeoutDuration parses BranchTimeout, falling back to 10s.
func (f *FanoutConfig) BranchTimeoutDuration() time.Duration {
	return parseDuration(f.BranchTimeout, 10*time.Second)
}

// TimeoutDuration parses Timeout, falling back to 30s.
func (f *FanoutConfig) TimeoutDuration() time.Duration {
	return parseDuration(f.Timeout, 30*time.Second)
}

// EmbeddingsConfig configures the embedding collaborator.
type EmbeddingsConfig struct {
	// Host is the base URL of an OpenAI-compatible embedding API.
	// Default: http://localhost:11434/v1 (Ollama).
	Host string `yaml:"host" json:"host"`

	// Model is the embedding model identifier.
	Model string `yaml:"model" json:"model"`

	// CacheSize is the number of query embeddings kept in the LRU cache
	// (default: 1000). Zero disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// ParaphraseConfig configures the paraphrase source.
type ParaphraseConfig struct {
	// Enabled toggles the fusion path. When false every query takes the
	// baseline path.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Provider selects the source: "llm" or "static" (default: llm).
	Provider string `yaml:"provider" json:"provider"`

	// Host is the base URL of an OpenAI-compatible chat API.
	Host string `yaml:"host" json:"host"`

	// Model is the chat model used to rephrase queries.
	Model string `yaml:"model" json:"model"`

	// Count is the number of paraphrases requested per query (default: 5).
	Count int `yaml:"count" json:"count"`

	// Temperature controls sampling diversity (default: 0.9).
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

// StoreConfig configures the Qdrant vector store collaborator.
type StoreConfig struct {
	// URL is the Qdrant base URL (default: http://localhost:6333).
	URL string `yaml:"url" json:"url"`

	// Collection is the Qdrant collection holding answer vectors.
	Collection string `yaml:"collection" json:"collection"`

	// Timeout is the per-request HTTP timeout (default: "5s").
	Timeout string `yaml:"timeout" json:"timeout"`

	// RetryMax is the number of retries on 5xx responses (default: 2).
	RetryMax int `yaml:"retry_max" json:"retry_max"`
}

// TimeoutDuration parses Timeout, falling back to 5s.
func (s *StoreConfig) TimeoutDuration() time.Duration {
	return parseDuration(s.Timeout, 5*time.Second)
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Search: SearchConfig{
			Limit:          5,
			ScoreThreshold: 0.7,
			VotingMethod:   "weighted",
		},
		Fanout: FanoutConfig{
			BranchLimit:              5,
			RelaxedThresholdRatio:    0.7,
			AbsoluteRelaxedThreshold: 0.2,
			BranchTimeout:            "10s",
			Timeout:                  "30s",
		},
		Embeddings: EmbeddingsConfig{
			Host:      "http://localhost:11434/v1",
			Model:     "embeddinggemma",
			CacheSize: 1000,
		},
		Paraphrase: ParaphraseConfig{
			Enabled:     true,
			Provider:    "llm",
			Host:        "http://localhost:11434/v1",
			Model:       "qwen2.5:3b",
			Count:       5,
			Temperature: 0.9,
		},
		Store: StoreConfig{
			URL:        "http://localhost:6333",
			Collection: "answers",
			Timeout:    "5s",
			RetryMax:   2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration for the given directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .parafuse.yaml or .parafuse.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".parafuse.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".parafuse.yml")
	if _, err := os.Stat(ymlPath); err == nil {
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
// Booleans cannot be distinguished from "unset" by zero value, so
// paraphrase.enabled is merged only when the file sets any paraphrase field.
func (c *Config) mergeWith(other *Config) {
	if other.Search.Limit != 0 {
		c.Search.Limit = other.Search.Limit
	}
	if other.Search.ScoreThreshold != 0 {
		c.Search.ScoreThreshold = other.Search.ScoreThreshold
	}
	if other.Search.VotingMethod != "" {
		c.Search.VotingMethod = other.Search.VotingMethod
	}

	if other.Fanout.BranchLimit != 0 {
		c.Fanout.BranchLimit = other.Fanout.BranchLimit
	}
	if other.Fanout.RelaxedThresholdRatio != 0 {
		c.Fanout.RelaxedThresholdRatio = other.Fanout.RelaxedThresholdRatio
	}
	if other.Fanout.AbsoluteRelaxedThreshold != 0 {
		c.Fanout.AbsoluteRelaxedThreshold = other.Fanout.AbsoluteRelaxedThreshold
	}
	if other.Fanout.BranchTimeout != "" {
		c.Fanout.BranchTimeout = other.Fanout.BranchTimeout
	}
	if other.Fanout.Timeout != "" {
		c.Fanout.Timeout = other.Fanout.Timeout
	}

	if other.Embeddings.Host != "" {
		c.Embeddings.Host = other.Embeddings.Host
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Paraphrase.Provider != "" || other.Paraphrase.Host != "" ||
		other.Paraphrase.Model != "" || other.Paraphrase.Count != 0 {
		c.Paraphrase.Enabled = other.Paraphrase.Enabled
	}
	if other.Paraphrase.Provider != "" {
		c.Paraphrase.Provider = other.Paraphrase.Provider
	}
	if other.Paraphrase.Host != "" {
		c.Paraphrase.Host = other.Paraphrase.Host
	}
	if other.Paraphrase.Model != "" {
		c.Paraphrase.Model = other.Paraphrase.Model
	}
	if other.Paraphrase.Count != 0 {
		c.Paraphrase.Count = other.Paraphrase.Count
	}
	if other.Paraphrase.Temperature != 0 {
		c.Paraphrase.Temperature = other.Paraphrase.Temperature
	}

	if other.Store.URL != "" {
		c.Store.URL = other.Store.URL
	}
	if other.Store.Collection != "" {
		c.Store.Collection = other.Store.Collection
	}
	if other.Store.Timeout != "" {
		c.Store.Timeout = other.Store.Timeout
	}
	if other.Store.RetryMax != 0 {
		c.Store.RetryMax = other.Store.RetryMax
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
}

// applyEnvOverrides applies PARAFUSE_* environment variables.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PARAFUSE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.Limit = n
		}
	}
	if v := os.Getenv("PARAFUSE_SCORE_THRESHOLD"); v != "" {
		if t, err := parseFloat64(v); err == nil && t >= 0 && t <= 1 {
			c.Search.ScoreThreshold = t
		}
	}
	if v := os.Getenv("PARAFUSE_VOTING_METHOD"); v != "" {
		c.Search.VotingMethod = v
	}
	if v := os.Getenv("PARAFUSE_PARAPHRASE_ENABLED"); v != "" {
		c.Paraphrase.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("PARAFUSE_PARAPHRASE_HOST"); v != "" {
		c.Paraphrase.Host = v
	}
	if v := os.Getenv("PARAFUSE_PARAPHRASE_MODEL"); v != "" {
		c.Paraphrase.Model = v
	}
	if v := os.Getenv("PARAFUSE_EMBEDDINGS_HOST"); v != "" {
		c.Embeddings.Host = v
	}
	if v := os.Getenv("PARAFUSE_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("PARAFUSE_QDRANT_URL"); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv("PARAFUSE_QDRANT_COLLECTION"); v != "" {
		c.Store.Collection = v
	}
	if v := os.Getenv("PARAFUSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the final configuration for deployment mistakes.
func (c *Config) Validate() error {
	if c.Search.Limit < 0 {
		return fmt.Errorf("search.limit must be non-negative, got %d", c.Search.Limit)
	}
	if c.Search.ScoreThreshold < 0 || c.Search.ScoreThreshold > 1 {
		return fmt.Errorf("search.score_threshold must be between 0 and 1, got %f", c.Search.ScoreThreshold)
	}

	validMethods := map[string]bool{"simple": true, "weighted": true, "ensemble": true}
	if !validMethods[strings.ToLower(c.Search.VotingMethod)] {
		return fmt.Errorf("search.voting_method must be 'simple', 'weighted', or 'ensemble', got %s", c.Search.VotingMethod)
	}

	if c.Fanout.BranchLimit <= 0 {
		return fmt.Errorf("fanout.branch_limit must be positive, got %d", c.Fanout.BranchLimit)
	}
	if c.Fanout.RelaxedThresholdRatio < 0 || c.Fanout.RelaxedThresholdRatio > 1 {
		return fmt.Errorf("fanout.relaxed_threshold_ratio must be between 0 and 1, got %f", c.Fanout.RelaxedThresholdRatio)
	}
	for _, d := range []string{c.Fanout.BranchTimeout, c.Fanout.Timeout, c.Store.Timeout} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid duration %q: %w", d, err)
		}
	}
	if c.Fanout.TimeoutDuration() < c.Fanout.BranchTimeoutDuration() {
		return fmt.Errorf("fanout.timeout (%s) must be at least fanout.branch_timeout (%s)",
			c.Fanout.TimeoutDuration(), c.Fanout.BranchTimeoutDuration())
	}

	validProviders := map[string]bool{"llm": true, "static": true}
	if !validProviders[strings.ToLower(c.Paraphrase.Provider)] {
		return fmt.Errorf("paraphrase.provider must be 'llm' or 'static', got %s", c.Paraphrase.Provider)
	}
	if c.Paraphrase.Count < 0 {
		return fmt.Errorf("paraphrase.count must be non-negative, got %d", c.Paraphrase.Count)
	}

	if c.Store.Collection == "" {
		return fmt.Errorf("store.collection must not be empty")
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

// parseFloat64 parses a string to float64, used for env overrides.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// parseDuration parses a duration string, returning fallback on empty or
// malformed input.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

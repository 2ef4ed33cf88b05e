package engine

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/docstream/dedupe/internal/hashing"
	"github.com/docstream/dedupe/internal/identity"
	"github.com/docstream/dedupe/internal/minhash"
)

// Config holds the deduplication engine configuration.
type Config struct {
	// Permutations is the MinHash signature length k. Longer signatures
	// estimate Jaccard similarity more accurately at higher memory/compute
	// cost. Must equal Bands*Rows.
	Permutations int `yaml:"permutations"`

	// Bands and Rows define the LSH band split. See minhash.DefaultBands for
	// the retrieval-probability trade-off of the defaults.
	Bands int `yaml:"lsh_bands"`
	Rows  int `yaml:"lsh_rows"`

	// JaccardThreshold is the minimum estimated similarity for a layer-3
	// candidate to be accepted. Higher = more conservative.
	// Default: 0.85.
	JaccardThreshold float64 `yaml:"jaccard_threshold"`

	// ChunkSize is the read size for byte hashing. Default: 8 KiB.
	ChunkSize int `yaml:"chunk_size"`

	// MaxExtractChars caps the text prefix sent to the identity extractor.
	// Default: 4000.
	MaxExtractChars int `yaml:"max_extract_chars"`

	// MaxWorkers bounds the fingerprint worker pool. Default: 4.
	MaxWorkers int `yaml:"max_workers"`

	// ExtractTimeout is the per-call identity-extraction timeout.
	// Default: 30s. In config files this is extract_timeout_secs.
	ExtractTimeout time.Duration `yaml:"-"`

	// Collaborators, injected at runtime (never read from files or env).

	// TextExtractor supplies text for entries without pre-extracted text.
	// Optional; without it such entries run layer 1 only.
	TextExtractor TextExtractor `yaml:"-"`

	// IdentityExtractor produces blocking keys for guard arbitration.
	// Optional; the deterministic regex fallback always runs.
	IdentityExtractor identity.Extractor `yaml:"-"`
}

// DefaultConfig returns the default engine configuration.
//
// The defaults favor precision: a high acceptance threshold, a band split
// that rarely misses candidates above it, and lazy identity extraction.
func DefaultConfig() Config {
	return Config{
		Permutations:     minhash.DefaultPermutations,
		Bands:            minhash.DefaultBands,
		Rows:             minhash.DefaultRows,
		JaccardThreshold: 0.85,
		ChunkSize:        hashing.DefaultChunkSize,
		MaxExtractChars:  identity.DefaultMaxExtractChars,
		MaxWorkers:       4,
		ExtractTimeout:   30 * time.Second,
	}
}

// Validate checks if the configuration has valid values.
func (c Config) Validate() error {
	if c.Permutations <= 0 {
		return fmt.Errorf("permutations must be positive (got %d)", c.Permutations)
	}
	if c.Permutations > 4096 {
		return fmt.Errorf("permutations too large (got %d, max 4096)", c.Permutations)
	}
	if c.Bands <= 0 || c.Rows <= 0 {
		return fmt.Errorf("lsh_bands and lsh_rows must be positive (got %d, %d)", c.Bands, c.Rows)
	}
	if c.Bands*c.Rows != c.Permutations {
		return fmt.Errorf("lsh_bands*lsh_rows (%d*%d) must equal permutations (%d)",
			c.Bands, c.Rows, c.Permutations)
	}
	if c.JaccardThreshold <= 0.0 || c.JaccardThreshold > 1.0 {
		return fmt.Errorf("jaccard_threshold must be in (0.0, 1.0] (got %.2f)", c.JaccardThreshold)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive (got %d)", c.ChunkSize)
	}
	if c.MaxExtractChars <= 0 {
		return fmt.Errorf("max_extract_chars must be positive (got %d)", c.MaxExtractChars)
	}
	if c.MaxExtractChars > 100000 {
		return fmt.Errorf("max_extract_chars too large (got %d, max 100000)", c.MaxExtractChars)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive (got %d)", c.MaxWorkers)
	}
	if c.MaxWorkers > 64 {
		return fmt.Errorf("max_workers too large (got %d, max 64)", c.MaxWorkers)
	}
	if c.ExtractTimeout <= 0 {
		return fmt.Errorf("extract_timeout must be positive (got %v)", c.ExtractTimeout)
	}
	return nil
}

// String returns a human-readable representation of the config.
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{Permutations: %d, Bands: %d, Rows: %d, Threshold: %.2f, "+
			"ChunkSize: %d, MaxExtractChars: %d, MaxWorkers: %d, ExtractTimeout: %v}",
		c.Permutations, c.Bands, c.Rows, c.JaccardThreshold,
		c.ChunkSize, c.MaxExtractChars, c.MaxWorkers, c.ExtractTimeout,
	)
}

// ConfigFromEnv creates a Config from environment variables, falling back to
// defaults.
//
// Environment variables:
//   - DEDUPE_PERMUTATIONS: MinHash signature length (default: 128)
//   - DEDUPE_LSH_BANDS: LSH band count (default: 16)
//   - DEDUPE_LSH_ROWS: LSH rows per band (default: 8)
//   - DEDUPE_JACCARD_THRESHOLD: layer-3 acceptance threshold (default: 0.85)
//   - DEDUPE_CHUNK_SIZE: byte-hash read size in bytes (default: 8192)
//   - DEDUPE_MAX_EXTRACT_CHARS: extractor text cap (default: 4000)
//   - DEDUPE_MAX_WORKERS: fingerprint worker pool size (default: 4)
//   - DEDUPE_EXTRACT_TIMEOUT_SECS: extraction timeout in seconds (default: 30)
//
// Returns an error if any variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := parseEnvInt("DEDUPE_PERMUTATIONS", &cfg.Permutations); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEDUPE_LSH_BANDS", &cfg.Bands); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEDUPE_LSH_ROWS", &cfg.Rows); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("DEDUPE_JACCARD_THRESHOLD", &cfg.JaccardThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEDUPE_CHUNK_SIZE", &cfg.ChunkSize); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEDUPE_MAX_EXTRACT_CHARS", &cfg.MaxExtractChars); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("DEDUPE_MAX_WORKERS", &cfg.MaxWorkers); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("DEDUPE_EXTRACT_TIMEOUT_SECS", &cfg.ExtractTimeout, time.Second); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML config file over the base config, so settings
// absent from the file (environment overrides included) survive the load.
// Timeouts are expressed in whole seconds (extract_timeout_secs).
func LoadConfigFile(path string, base Config) (Config, error) {
	cfg := base
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	var file struct {
		Config             `yaml:",inline"`
		ExtractTimeoutSecs int `yaml:"extract_timeout_secs"`
	}
	file.Config = cfg
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg = file.Config
	if file.ExtractTimeoutSecs > 0 {
		cfg.ExtractTimeout = time.Duration(file.ExtractTimeoutSecs) * time.Second
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// parseEnvFloat parses a float64 from an environment variable.
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable.
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable. The
// multiplier converts the numeric value to a duration.
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}

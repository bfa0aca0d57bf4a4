// Package config provides configuration for the eventagg engine and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// SourceType selects the record provider.
type SourceType string

const (
	SourceMemory SourceType = "memory"
	SourceSQLite SourceType = "sqlite"
	SourceLocal  SourceType = "local"
	SourceS3     SourceType = "s3"
)

// Type-mismatch policies.
const (
	PolicyNull   = "null"
	PolicyReject = "reject"
)

// Config holds the configuration of one eventagg invocation.
type Config struct {
	// DataDir is the base directory for partition files and caches
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Engine configuration
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Report parameters
	Report ReportConfig `json:"report" yaml:"report"`

	// Source configuration
	Source SourceConfig `json:"source" yaml:"source"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`
}

// EngineConfig holds partition-parallel execution settings.
type EngineConfig struct {
	// Concurrency is the number of partitions scanned in parallel
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// MaxRetries is the number of retries per failed partition scan
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// RetryBackoff is the delay before the first retry; it doubles per attempt
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`

	// BestEffort returns partial results when partitions are missing
	BestEffort bool `json:"best_effort" yaml:"best_effort"`

	// TypeMismatchPolicy is "null" or "reject"
	TypeMismatchPolicy string `json:"type_mismatch_policy" yaml:"type_mismatch_policy"`
}

// ReportConfig holds the parameters shared by all reports.
type ReportConfig struct {
	// StartDate is the first date of the range (YYYYMMDD)
	StartDate string `json:"start_date" yaml:"start_date"`

	// EndDate is the last date of the range (YYYYMMDD), inclusive
	EndDate string `json:"end_date" yaml:"end_date"`

	// EventNames restricts reports that scan every event
	EventNames []string `json:"event_names" yaml:"event_names"`

	// TopN is the post-rank filter threshold
	TopN int `json:"top_n" yaml:"top_n"`

	// TopK is the capacity of top-K collections
	TopK int `json:"top_k" yaml:"top_k"`

	// WindowSize is the trailing moving-average window
	WindowSize int `json:"window_size" yaml:"window_size"`

	// ApproxDistinct counts distinct users with a sketch instead of exactly
	ApproxDistinct bool `json:"approx_distinct" yaml:"approx_distinct"`

	// Precision is the sketch precision (4..18)
	Precision uint8 `json:"precision" yaml:"precision"`

	// RatioPlaces is the number of decimal places of ratios
	RatioPlaces int32 `json:"ratio_places" yaml:"ratio_places"`
}

// SourceConfig holds record provider configuration.
type SourceConfig struct {
	// Type is the provider type: memory, sqlite, local, s3
	Type SourceType `json:"type" yaml:"type"`

	// Path is the partition directory (sqlite) or storage root (local)
	Path string `json:"path" yaml:"path"`

	// CacheDir is where object storage partitions are downloaded
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// CacheMaxBytes bounds the partition cache; 0 leaves it unbounded
	CacheMaxBytes int64 `json:"cache_max_bytes" yaml:"cache_max_bytes"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultConfig returns the default configuration for local use.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/eventagg",
		Engine: EngineConfig{
			Concurrency:        4,
			MaxRetries:         3,
			RetryBackoff:       100 * time.Millisecond,
			TypeMismatchPolicy: PolicyNull,
		},
		Report: ReportConfig{
			TopN:        5,
			TopK:        3,
			WindowSize:  7,
			Precision:   14,
			RatioPlaces: 2,
		},
		Source: SourceConfig{
			Type: SourceSQLite,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/eventagg"
	}

	if c.Source.Path == "" {
		switch c.Source.Type {
		case SourceLocal:
			c.Source.Path = filepath.Join(c.DataDir, "storage")
		default:
			c.Source.Path = filepath.Join(c.DataDir, "partitions")
		}
	}

	if c.Source.CacheDir == "" {
		c.Source.CacheDir = filepath.Join(c.DataDir, "cache")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be positive, got %d", c.Engine.Concurrency)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.RetryBackoff < 0 {
		return fmt.Errorf("engine.retry_backoff must not be negative, got %s", c.Engine.RetryBackoff)
	}
	switch c.Engine.TypeMismatchPolicy {
	case PolicyNull, PolicyReject:
	default:
		return fmt.Errorf("invalid engine.type_mismatch_policy: %s (must be null or reject)", c.Engine.TypeMismatchPolicy)
	}

	switch c.Source.Type {
	case SourceMemory, SourceSQLite, SourceLocal, SourceS3:
	default:
		return fmt.Errorf("invalid source type: %s (must be memory, sqlite, local, or s3)", c.Source.Type)
	}
	if c.Source.CacheMaxBytes < 0 {
		return fmt.Errorf("source.cache_max_bytes must not be negative, got %d", c.Source.CacheMaxBytes)
	}
	if c.Source.Type == SourceS3 && c.Source.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when source type is s3")
	}

	if c.Report.TopN < 1 {
		return fmt.Errorf("report.top_n must be positive, got %d", c.Report.TopN)
	}
	if c.Report.TopK < 1 {
		return fmt.Errorf("report.top_k must be positive, got %d", c.Report.TopK)
	}
	if c.Report.WindowSize < 1 {
		return fmt.Errorf("report.window_size must be positive, got %d", c.Report.WindowSize)
	}
	if c.Report.Precision < 4 || c.Report.Precision > 18 {
		return fmt.Errorf("report.precision must be between 4 and 18, got %d", c.Report.Precision)
	}
	if c.Report.RatioPlaces < 0 {
		return fmt.Errorf("report.ratio_places must not be negative, got %d", c.Report.RatioPlaces)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the EVENTAGG_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("EVENTAGG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Engine configuration
	if v := os.Getenv("EVENTAGG_ENGINE_CONCURRENCY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Engine.Concurrency)
	}
	if v := os.Getenv("EVENTAGG_ENGINE_MAX_RETRIES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Engine.MaxRetries)
	}
	if v := os.Getenv("EVENTAGG_ENGINE_RETRY_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.RetryBackoff = d
		}
	}
	if v := os.Getenv("EVENTAGG_ENGINE_BEST_EFFORT"); v != "" {
		cfg.Engine.BestEffort = v == "true" || v == "1"
	}
	if v := os.Getenv("EVENTAGG_ENGINE_TYPE_MISMATCH_POLICY"); v != "" {
		cfg.Engine.TypeMismatchPolicy = v
	}

	// Report configuration
	if v := os.Getenv("EVENTAGG_REPORT_START_DATE"); v != "" {
		cfg.Report.StartDate = v
	}
	if v := os.Getenv("EVENTAGG_REPORT_END_DATE"); v != "" {
		cfg.Report.EndDate = v
	}
	if v := os.Getenv("EVENTAGG_REPORT_EVENT_NAMES"); v != "" {
		cfg.Report.EventNames = strings.Split(v, ",")
	}
	if v := os.Getenv("EVENTAGG_REPORT_TOP_N"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Report.TopN)
	}
	if v := os.Getenv("EVENTAGG_REPORT_TOP_K"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Report.TopK)
	}
	if v := os.Getenv("EVENTAGG_REPORT_WINDOW_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Report.WindowSize)
	}
	if v := os.Getenv("EVENTAGG_REPORT_APPROX_DISTINCT"); v != "" {
		cfg.Report.ApproxDistinct = v == "true" || v == "1"
	}
	if v := os.Getenv("EVENTAGG_REPORT_PRECISION"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Report.Precision)
	}

	// Source configuration
	if v := os.Getenv("EVENTAGG_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = SourceType(v)
	}
	if v := os.Getenv("EVENTAGG_SOURCE_PATH"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("EVENTAGG_SOURCE_CACHE_DIR"); v != "" {
		cfg.Source.CacheDir = v
	}
	if v := os.Getenv("EVENTAGG_SOURCE_CACHE_MAX_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Source.CacheMaxBytes)
	}
	if v := os.Getenv("EVENTAGG_S3_BUCKET"); v != "" {
		cfg.Source.S3.Bucket = v
	}
	if v := os.Getenv("EVENTAGG_S3_REGION"); v != "" {
		cfg.Source.S3.Region = v
	}
	if v := os.Getenv("EVENTAGG_S3_ENDPOINT"); v != "" {
		cfg.Source.S3.Endpoint = v
	}
	if v := os.Getenv("EVENTAGG_S3_USE_PATH_STYLE"); v != "" {
		cfg.Source.S3.UsePathStyle = v == "true" || v == "1"
	}

	if v := os.Getenv("EVENTAGG_DEBUG"); v != "" {
		cfg.Log.Debug = v == "true" || v == "1"
	}
}

// EnsureDirectories creates the directories the configured source writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir, c.Source.CacheDir}
	if c.Source.Type != SourceS3 && c.Source.Type != SourceMemory {
		dirs = append(dirs, c.Source.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

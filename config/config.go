// Package config defines service configuration with YAML and environment
// variable sources.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level service configuration.
type Config struct {
	WorkerCount       int    `yaml:"worker_count" env:"PIXELSERVE_WORKER_COUNT"`
	QueueDepth        int    `yaml:"queue_depth" env:"PIXELSERVE_QUEUE_DEPTH"`
	JobTimeoutSeconds int    `yaml:"job_timeout_seconds" env:"PIXELSERVE_JOB_TIMEOUT_SECONDS"`
	DefaultQuality    int    `yaml:"default_quality" env:"PIXELSERVE_DEFAULT_QUALITY"`
	LogLevel          string `yaml:"log_level" env:"PIXELSERVE_LOG_LEVEL"`

	Limits  LimitsConfig  `yaml:"limits"`
	Cache   CacheConfig   `yaml:"cache"`
	Storage StorageConfig `yaml:"storage"`
	Watch   WatchConfig   `yaml:"watch"`
}

// LimitsConfig bounds accepted inputs.
type LimitsConfig struct {
	MaxSourceBytes int64 `yaml:"max_source_bytes" env:"PIXELSERVE_MAX_SOURCE_BYTES"`
	MaxDimension   int   `yaml:"max_dimension" env:"PIXELSERVE_MAX_DIMENSION"`
	MaxPixels      int64 `yaml:"max_pixels" env:"PIXELSERVE_MAX_PIXELS"`
}

// CacheConfig tunes the result cache.
type CacheConfig struct {
	MaxBytes           int64 `yaml:"max_bytes" env:"PIXELSERVE_CACHE_MAX_BYTES"`
	MaxEntries         int   `yaml:"max_entries" env:"PIXELSERVE_CACHE_MAX_ENTRIES"`
	Shards             int   `yaml:"shards" env:"PIXELSERVE_CACHE_SHARDS"`
	EntryTTLSeconds    int   `yaml:"entry_ttl_seconds" env:"PIXELSERVE_CACHE_ENTRY_TTL_SECONDS"`
	NegativeTTLSeconds int   `yaml:"negative_ttl_seconds" env:"PIXELSERVE_CACHE_NEGATIVE_TTL_SECONDS"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend string             `yaml:"backend" env:"PIXELSERVE_STORAGE_BACKEND"` // "local", "s3", or "none"
	Local   LocalStorageConfig `yaml:"local"`
	S3      S3StorageConfig    `yaml:"s3"`
}

// LocalStorageConfig configures filesystem storage.
type LocalStorageConfig struct {
	RootDir     string `yaml:"root_dir" env:"PIXELSERVE_STORAGE_ROOT_DIR"`
	Permissions uint32 `yaml:"permissions" env:"PIXELSERVE_STORAGE_PERMISSIONS"`
}

// S3StorageConfig configures S3-compatible object storage.
type S3StorageConfig struct {
	Bucket          string `yaml:"bucket" env:"PIXELSERVE_S3_BUCKET"`
	Region          string `yaml:"region" env:"PIXELSERVE_S3_REGION"`
	Endpoint        string `yaml:"endpoint" env:"PIXELSERVE_S3_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"PIXELSERVE_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"PIXELSERVE_S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"PIXELSERVE_S3_USE_PATH_STYLE"`
}

// WatchConfig configures directory ingestion.
type WatchConfig struct {
	Enabled        bool   `yaml:"enabled" env:"PIXELSERVE_WATCH_ENABLED"`
	InputDir       string `yaml:"input_dir" env:"PIXELSERVE_WATCH_INPUT_DIR"`
	StorageFormat  string `yaml:"storage_format" env:"PIXELSERVE_WATCH_STORAGE_FORMAT"`
	Quality        int    `yaml:"quality" env:"PIXELSERVE_WATCH_QUALITY"`
	DeleteOriginal bool   `yaml:"delete_original" env:"PIXELSERVE_WATCH_DELETE_ORIGINAL"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		WorkerCount:       0, // 0 means NumCPU
		QueueDepth:        256,
		JobTimeoutSeconds: 30,
		DefaultQuality:    85,
		LogLevel:          "info",
		Limits: LimitsConfig{
			MaxSourceBytes: 32 << 20,
			MaxDimension:   8192,
			MaxPixels:      64 << 20,
		},
		Cache: CacheConfig{
			MaxBytes:           256 << 20,
			MaxEntries:         4096,
			Shards:             16,
			EntryTTLSeconds:    0,
			NegativeTTLSeconds: 0,
		},
		Storage: StorageConfig{
			Backend: "none",
			Local: LocalStorageConfig{
				RootDir:     "./data",
				Permissions: 0o644,
			},
		},
		Watch: WatchConfig{
			Enabled:        false,
			StorageFormat:  "webp",
			Quality:        85,
			DeleteOriginal: false,
		},
	}
}

// JobTimeout converts JobTimeoutSeconds to a duration.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

// EntryTTL converts EntryTTLSeconds to a duration.
func (c CacheConfig) EntryTTL() time.Duration {
	return time.Duration(c.EntryTTLSeconds) * time.Second
}

// NegativeTTL converts NegativeTTLSeconds to a duration.
func (c CacheConfig) NegativeTTL() time.Duration {
	return time.Duration(c.NegativeTTLSeconds) * time.Second
}

// Validate checks configuration consistency.
func (c Config) Validate() error {
	if c.WorkerCount < 0 {
		return fmt.Errorf("config: worker_count must not be negative")
	}
	if c.QueueDepth < 0 {
		return fmt.Errorf("config: queue_depth must not be negative")
	}
	if c.DefaultQuality < 1 || c.DefaultQuality > 100 {
		return fmt.Errorf("config: default_quality must be within [1,100], got %d", c.DefaultQuality)
	}
	if c.Limits.MaxDimension <= 0 {
		return fmt.Errorf("config: limits.max_dimension must be positive")
	}
	if c.Cache.MaxBytes <= 0 {
		return fmt.Errorf("config: cache.max_bytes must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("config: cache.max_entries must be positive")
	}
	if c.Cache.Shards < 0 {
		return fmt.Errorf("config: cache.shards must not be negative")
	}
	switch c.Storage.Backend {
	case "none", "local", "s3":
	default:
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "local" && c.Storage.Local.RootDir == "" {
		return fmt.Errorf("config: storage.local.root_dir is required for the local backend")
	}
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("config: storage.s3.bucket is required for the s3 backend")
	}
	if c.Watch.Enabled {
		if c.Watch.InputDir == "" {
			return fmt.Errorf("config: watch.input_dir is required when watching is enabled")
		}
		if c.Storage.Backend == "none" {
			return fmt.Errorf("config: watching requires a storage backend")
		}
	}
	return nil
}

// Package config handles typed configuration for the hopper worker:
// defaults, optional YAML file, environment overrides, validation.
package config

import (
	"fmt"
	"time"
)

// Config is the full configuration surface of a pipeline run.
// Resolution order: defaults, then YAML file (if given), then HOPPER_*
// environment variables, then CLI flags. Immutable after Validate.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	Folders  FolderConfig   `yaml:"folders"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Filter   FilterConfig   `yaml:"filter"`
}

// StoreConfig holds the object store connection settings.
type StoreConfig struct {
	// Endpoint is the store URL (MinIO, R2, or AWS default when empty).
	Endpoint string `yaml:"endpoint"`
	// AccessKey / SecretKey are static credentials. Empty falls back to
	// the AWS SDK default chain.
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	// Prefix prefixes every data object key.
	Prefix string `yaml:"prefix"`
	// PathStyle forces path-style addressing (required by MinIO).
	PathStyle bool `yaml:"path_style"`
	// Versioning is the bucket versioning mode: enabled, suspended, or
	// anything else for no-op.
	Versioning string `yaml:"versioning"`
}

// FolderConfig holds the local directory roles.
type FolderConfig struct {
	Input   string `yaml:"input"`
	Temp    string `yaml:"temp"`
	Archive string `yaml:"archive"`
	LogFile string `yaml:"log_file"`
}

// PipelineConfig holds the control-loop tuning knobs.
type PipelineConfig struct {
	MaxConcurrentFiles int      `yaml:"max_concurrent_files"`
	Debounce           Duration `yaml:"debounce"`
	Step               Duration `yaml:"step"`
	StabilityPoll      Duration `yaml:"stability_poll"`
	StabilityConfirm   Duration `yaml:"stability_confirm"`
	StabilityTimeout   Duration `yaml:"stability_timeout"`
	FlushInterval      Duration `yaml:"flush_interval"`
	FlushTick          Duration `yaml:"flush_tick"`
	DrainTimeout       Duration `yaml:"drain_timeout"`
}

// FilterConfig holds the row predicate bounds.
type FilterConfig struct {
	// Column is the filtered column name. Files lacking the column pass
	// through unchanged.
	Column string  `yaml:"column"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Default returns the built-in configuration, tuned for a local MinIO.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Endpoint:   "http://localhost:9000",
			AccessKey:  "minioadmin",
			SecretKey:  "minioadmin",
			Region:     "us-east-1",
			Bucket:     "hopper-data",
			Prefix:     "processed-data",
			PathStyle:  true,
			Versioning: "enabled",
		},
		Folders: FolderConfig{
			Input:   "data/input",
			Temp:    "data/temp",
			Archive: "data/archive",
			LogFile: "logs/pipeline.log",
		},
		Pipeline: PipelineConfig{
			MaxConcurrentFiles: 5,
			Debounce:           Duration{3 * time.Second},
			Step:               Duration{2 * time.Second},
			StabilityPoll:      Duration{500 * time.Millisecond},
			StabilityConfirm:   Duration{2 * time.Second},
			StabilityTimeout:   Duration{30 * time.Second},
			FlushInterval:      Duration{time.Minute},
			FlushTick:          Duration{10 * time.Second},
			DrainTimeout:       Duration{30 * time.Second},
		},
		Filter: FilterConfig{
			Column: "age",
			Min:    18,
			Max:    40,
		},
	}
}

// Validate checks the resolved configuration at startup.
// An invalid configuration is a fatal startup error.
func (c *Config) Validate() error {
	if c.Store.Bucket == "" {
		return fmt.Errorf("store.bucket is required")
	}
	if c.Folders.Input == "" {
		return fmt.Errorf("folders.input is required")
	}
	if c.Folders.Temp == "" {
		return fmt.Errorf("folders.temp is required")
	}
	if c.Folders.Archive == "" {
		return fmt.Errorf("folders.archive is required")
	}
	if c.Folders.LogFile == "" {
		return fmt.Errorf("folders.log_file is required")
	}
	if c.Pipeline.MaxConcurrentFiles <= 0 {
		return fmt.Errorf("pipeline.max_concurrent_files must be positive, got %d",
			c.Pipeline.MaxConcurrentFiles)
	}
	if c.Filter.Column != "" && c.Filter.Min > c.Filter.Max {
		return fmt.Errorf("filter.min %v exceeds filter.max %v", c.Filter.Min, c.Filter.Max)
	}
	return nil
}

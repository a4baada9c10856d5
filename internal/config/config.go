// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"ltcombine/internal/errors"
	"ltcombine/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Pipeline contains processor pipeline settings
	Pipeline PipelineConfig `json:"pipeline"`

	// Sampling contains random sampling settings
	Sampling SamplingConfig `json:"sampling"`

	// Output contains output configuration
	Output OutputConfig `json:"output"`

	// Redis contains the redis sink configuration
	Redis RedisConfig `json:"redis,omitempty"`

	// Metrics contains metrics exposition settings
	Metrics MetricsConfig `json:"metrics,omitempty"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// PipelineConfig sizes the processor thread pools
type PipelineConfig struct {
	// ComputeThreads bounds the compute pool; 0 uses GOMAXPROCS
	ComputeThreads int `json:"compute_threads"`

	// IOThreads bounds the IO pool; 0 derives it from ComputeThreads
	IOThreads int `json:"io_threads"`
}

// SamplingConfig contains sampling settings
type SamplingConfig struct {
	// Seed for all random draws; 0 derives a seed from the tree sizes
	Seed int64 `json:"seed"`

	// PairwiseSamples is the number of inner draws per outer branch (0 disables)
	PairwiseSamples int `json:"pairwise_samples"`

	// OuterSamples pre-samples the outer tree for pairwise sampling (0 keeps all)
	OuterSamples int `json:"outer_samples"`

	// DownSample reduces the combined tree to this many branches (0 disables)
	DownSample int `json:"downsample"`
}

// OutputConfig contains output-related settings
type OutputConfig struct {
	// CSVPath receives one row per combined branch
	CSVPath string `json:"csv_path,omitempty"`

	// TreePath receives the combined tree as JSON
	TreePath string `json:"tree_path,omitempty"`

	// ShowSummary prints the node weight summary
	ShowSummary bool `json:"show_summary"`
}

// RedisConfig contains redis sink settings
type RedisConfig struct {
	// Addr is the redis address; empty disables the sink
	Addr string `json:"addr,omitempty"`

	// KeyPrefix namespaces the stored hashes
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	// Addr serves /metrics while combining; empty disables
	Addr string `json:"addr,omitempty"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		Version: "1.0",
		Pipeline: PipelineConfig{
			ComputeThreads: 0,
			IOThreads:      0,
		},
		Sampling: SamplingConfig{},
		Output: OutputConfig{
			ShowSummary: true,
		},
		Redis: RedisConfig{
			KeyPrefix: "ltcombine",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Validate checks the configuration for impossible values
func (c *Config) Validate() error {
	if c.Pipeline.ComputeThreads < 0 || c.Pipeline.IOThreads < 0 {
		return errors.Config("thread counts must not be negative", nil)
	}
	if c.Sampling.PairwiseSamples < 0 || c.Sampling.OuterSamples < 0 || c.Sampling.DownSample < 0 {
		return errors.Config("sample counts must not be negative", nil)
	}
	if c.Sampling.OuterSamples > 0 && c.Sampling.PairwiseSamples == 0 {
		return errors.Config("outer_samples requires pairwise_samples", nil)
	}
	return nil
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Config("read config", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Config("decode config "+path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}

// Package config loads optional run settings from a YAML file.
package config

import (
	"fmt"
	"math"
	"os"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultWorkers   = 8
	DefaultMinSize   = "32KiB"
	DefaultMaxSize   = "10GiB"
	DefaultBoundary  = "capacity"
	DefaultBlockSize = "64KiB"
	DefaultLogLevel  = "info"
)

// Config holds settings loaded from a config file. Sizes are human strings
// ("32KiB", "10G") parsed by Sizes.
type Config struct {
	Workers   int    `yaml:"workers"`
	MinSize   string `yaml:"min_size"`
	MaxSize   string `yaml:"max_size"`
	Boundary  string `yaml:"boundary"`
	BlockSize string `yaml:"block_size"`
	CacheFile string `yaml:"cache_file"`
	LogLevel  string `yaml:"log_level"`
	Progress  *bool  `yaml:"progress"`
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills zero/empty fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.MinSize == "" {
		c.MinSize = DefaultMinSize
	}
	if c.MaxSize == "" {
		c.MaxSize = DefaultMaxSize
	}
	if c.Boundary == "" {
		c.Boundary = DefaultBoundary
	}
	if c.BlockSize == "" {
		c.BlockSize = DefaultBlockSize
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Progress == nil {
		enabled := true
		c.Progress = &enabled
	}
}

// Load reads and parses the YAML config file at path.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Sizes parses the size settings into bytes.
func (c *Config) Sizes() (minSize, maxSize, blockSize int64, err error) {
	if minSize, err = parseSize(c.MinSize); err != nil {
		return 0, 0, 0, fmt.Errorf("min_size: %w", err)
	}
	if maxSize, err = parseSize(c.MaxSize); err != nil {
		return 0, 0, 0, fmt.Errorf("max_size: %w", err)
	}
	if blockSize, err = parseSize(c.BlockSize); err != nil {
		return 0, 0, 0, fmt.Errorf("block_size: %w", err)
	}
	return minSize, maxSize, blockSize, nil
}

func parseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("size %q out of range", s)
	}
	return int64(n), nil
}

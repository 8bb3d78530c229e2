// Package config provides configuration loading and validation for the
// packfang CLI.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/packfang/pkg/pack/count"
)

// Sentinel validation errors.
var (
	ErrInvalidThreadLimit = errors.New("thread limit must not be negative")
	ErrInvalidChunkSize   = errors.New("chunk size must not be negative")
	ErrInvalidCacheSize   = errors.New("invalid cache size")
	ErrInvalidPolicy      = errors.New("invalid expansion policy")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidFormat      = errors.New("invalid output format")
)

// Config holds all configuration for the packfang CLI.
type Config struct {
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Verify  VerifyConfig  `mapstructure:"verify"`
	Count   CountConfig   `mapstructure:"count"`
	Output  OutputConfig  `mapstructure:"output"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// RuntimeConfig sizes the worker pool.
type RuntimeConfig struct {
	// ThreadLimit caps worker goroutines; zero means one per core.
	ThreadLimit int `mapstructure:"thread_limit"`
	// ChunkSize is the number of work items per chunk; zero lets the
	// scheduler pick.
	ChunkSize int `mapstructure:"chunk_size"`
}

// CacheConfig budgets the decode caches. Sizes are humanized byte strings
// ("64MiB", "1GB"); empty or zero disables the cache.
type CacheConfig struct {
	DecodeSize string `mapstructure:"decode_size"`
	ObjectSize string `mapstructure:"object_size"`
	Compress   bool   `mapstructure:"compress"`
}

// VerifyConfig selects the default safety checks of pack verification.
type VerifyConfig struct {
	FileChecksum   bool `mapstructure:"file_checksum"`
	ObjectChecksum bool `mapstructure:"object_checksum"`
	KeepGoing      bool `mapstructure:"keep_going"`
}

// CountConfig holds object counting defaults.
type CountConfig struct {
	Policy string `mapstructure:"policy"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig exposes the optional prometheus endpoint.
type MetricsConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

// DecodeBytes returns the decode cache budget in bytes.
func (c CacheConfig) DecodeBytes() (int64, error) {
	return parseSize(c.DecodeSize)
}

// ObjectBytes returns the tree-diff object cache budget in bytes.
func (c CacheConfig) ObjectBytes() (int64, error) {
	return parseSize(c.ObjectSize)
}

// parseSize turns a humanized byte string into a byte count; empty means
// disabled.
func parseSize(size string) (int64, error) {
	if size == "" {
		return 0, nil
	}

	parsed, err := humanize.ParseBytes(size)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCacheSize, size)
	}

	return int64(parsed), nil
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	// Set defaults.
	setDefaults(viperCfg)

	// Read config file.
	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("packfang")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("/etc/packfang")
	}

	// Read environment variables.
	viperCfg.SetEnvPrefix("PACKFANG")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file.
	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Runtime defaults.
	viperCfg.SetDefault("runtime.thread_limit", DefaultThreadLimit)
	viperCfg.SetDefault("runtime.chunk_size", DefaultChunkSize)

	// Cache defaults.
	viperCfg.SetDefault("cache.decode_size", DefaultDecodeCacheSize)
	viperCfg.SetDefault("cache.object_size", DefaultObjectCacheSize)
	viperCfg.SetDefault("cache.compress", DefaultCacheCompress)

	// Verify defaults.
	viperCfg.SetDefault("verify.file_checksum", DefaultVerifyFileChecksum)
	viperCfg.SetDefault("verify.object_checksum", DefaultVerifyObjectChecksum)
	viperCfg.SetDefault("verify.keep_going", DefaultVerifyKeepGoing)

	// Count defaults.
	viperCfg.SetDefault("count.policy", DefaultCountPolicy)

	// Output defaults.
	viperCfg.SetDefault("output.format", DefaultOutputFormat)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	// Metrics defaults.
	viperCfg.SetDefault("metrics.enabled", DefaultMetricsEnabled)
	viperCfg.SetDefault("metrics.addr", DefaultMetricsAddr)
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	if config.Runtime.ThreadLimit < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreadLimit, config.Runtime.ThreadLimit)
	}

	if config.Runtime.ChunkSize < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, config.Runtime.ChunkSize)
	}

	if _, err := config.Cache.DecodeBytes(); err != nil {
		return err
	}

	if _, err := config.Cache.ObjectBytes(); err != nil {
		return err
	}

	if _, err := count.ParseObjectExpansion(config.Count.Policy); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidPolicy, config.Count.Policy)
	}

	switch config.Output.Format {
	case "table", "yaml":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, config.Output.Format)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, config.Logging.Level)
	}

	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	return nil
}

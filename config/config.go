// Package config provides the wis2node process configuration: YAML file
// with WIS2NODE_* environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wmo-im/wis2node/errors"
)

// Default broker subjects and storage names
const (
	DefaultSubjectPrefix = "wis2node"
	DefaultSourceBucket  = "wis2node-incoming"
	DefaultPublicBucket  = "wis2node-public"
	DefaultArchivePrefix = "wis2node-archive"
)

// Config represents the complete wis2node configuration
type Config struct {
	Broker   BrokerConfig   `yaml:"broker"`
	Storage  StorageConfig  `yaml:"storage"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BrokerConfig defines the NATS broker connection settings
type BrokerConfig struct {
	URL           string        `yaml:"url"`
	Username      string        `yaml:"username,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	SubjectPrefix string        `yaml:"subject_prefix,omitempty"`
	ReconnectWait time.Duration `yaml:"reconnect_wait,omitempty"`
	MaxReconnects int           `yaml:"max_reconnects,omitempty"`
}

// StorageConfig defines the object-store buckets and the archive prefix.
// Object keys that start with ArchivePrefix mark already-processed data and
// are never re-dispatched.
type StorageConfig struct {
	SourceBucket  string `yaml:"source_bucket,omitempty"`
	PublicBucket  string `yaml:"public_bucket,omitempty"`
	ArchivePrefix string `yaml:"archive_prefix,omitempty"`

	// PublicURL is the base URL under which public-bucket objects are
	// served; notification canonical links are built from it.
	PublicURL string `yaml:"public_url,omitempty"`
}

// CatalogConfig defines the discovery-metadata catalog API settings
type CatalogConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// DispatchConfig defines dispatch engine settings
type DispatchConfig struct {
	// WorkerCeiling bounds concurrently running transform workers.
	// Zero means the number of logical CPUs.
	WorkerCeiling int `yaml:"worker_ceiling,omitempty"`
}

// MetricsConfig defines the metrics/health HTTP listener
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// LoggingConfig defines log output settings
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text, json
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: DefaultSubjectPrefix,
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
		},
		Storage: StorageConfig{
			SourceBucket:  DefaultSourceBucket,
			PublicBucket:  DefaultPublicBucket,
			ArchivePrefix: DefaultArchivePrefix,
			PublicURL:     "http://localhost/data",
		},
		Catalog: CatalogConfig{
			URL:     "http://localhost:8999/oapi",
			Timeout: 30 * time.Second,
		},
		Dispatch: DispatchConfig{
			WorkerCeiling: runtime.NumCPU(),
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file, applies environment overrides
// and validates the result. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "parse config file")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides settings from WIS2NODE_* environment variables
func (c *Config) applyEnv() {
	overrideString(&c.Broker.URL, "WIS2NODE_BROKER_URL")
	overrideString(&c.Broker.Username, "WIS2NODE_BROKER_USERNAME")
	overrideString(&c.Broker.Password, "WIS2NODE_BROKER_PASSWORD")
	overrideString(&c.Broker.SubjectPrefix, "WIS2NODE_SUBJECT_PREFIX")
	overrideString(&c.Storage.SourceBucket, "WIS2NODE_STORAGE_SOURCE")
	overrideString(&c.Storage.PublicBucket, "WIS2NODE_STORAGE_PUBLIC")
	overrideString(&c.Storage.ArchivePrefix, "WIS2NODE_STORAGE_ARCHIVE")
	overrideString(&c.Storage.PublicURL, "WIS2NODE_PUBLIC_URL")
	overrideString(&c.Catalog.URL, "WIS2NODE_API_URL")
	overrideInt(&c.Dispatch.WorkerCeiling, "WIS2NODE_WORKER_CEILING")
	overrideString(&c.Metrics.Addr, "WIS2NODE_METRICS_ADDR")
	overrideString(&c.Logging.Level, "WIS2NODE_LOG_LEVEL")
	overrideString(&c.Logging.Format, "WIS2NODE_LOG_FORMAT")
}

func overrideString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func overrideInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// Validate checks if the config is valid and normalizes defaulted fields
func (c *Config) Validate() error {
	if c.Broker.URL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "broker.url")
	}
	if c.Catalog.URL == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "catalog.url")
	}

	if c.Broker.SubjectPrefix == "" {
		c.Broker.SubjectPrefix = DefaultSubjectPrefix
	}
	if !isValidSubjectPart(c.Broker.SubjectPrefix) {
		return errors.WrapFatal(
			fmt.Errorf("broker.subject_prefix %q is not a valid subject token", c.Broker.SubjectPrefix),
			"Config", "Validate", "subject prefix")
	}

	if c.Storage.SourceBucket == "" {
		c.Storage.SourceBucket = DefaultSourceBucket
	}
	if c.Storage.PublicBucket == "" {
		c.Storage.PublicBucket = DefaultPublicBucket
	}
	if c.Storage.ArchivePrefix == "" {
		c.Storage.ArchivePrefix = DefaultArchivePrefix
	}

	if c.Dispatch.WorkerCeiling <= 0 {
		c.Dispatch.WorkerCeiling = runtime.NumCPU()
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return errors.WrapFatal(
			fmt.Errorf("logging.level %q not one of debug, info, warn, error", c.Logging.Level),
			"Config", "Validate", "log level")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return errors.WrapFatal(
			fmt.Errorf("logging.format %q not one of text, json", c.Logging.Format),
			"Config", "Validate", "log format")
	}

	return nil
}

// isValidSubjectPart reports whether s is usable as a single NATS subject token
func isValidSubjectPart(s string) bool {
	if s == "" {
		return false
	}
	if strings.ContainsAny(s, ". *>") {
		return false
	}
	return true
}

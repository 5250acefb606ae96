package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "wis2node", cfg.Broker.SubjectPrefix)
	assert.Equal(t, "wis2node-incoming", cfg.Storage.SourceBucket)
	assert.Equal(t, "wis2node-archive", cfg.Storage.ArchivePrefix)
	assert.Equal(t, runtime.NumCPU(), cfg.Dispatch.WorkerCeiling)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wis2node.yml")
	content := `
broker:
  url: nats://broker:4222
  username: wis2node
  password: secret
  reconnect_wait: 5s
catalog:
  url: http://api:8999/oapi
dispatch:
  worker_ceiling: 4
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://broker:4222", cfg.Broker.URL)
	assert.Equal(t, 5*time.Second, cfg.Broker.ReconnectWait)
	assert.Equal(t, 4, cfg.Dispatch.WorkerCeiling)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched fields keep their defaults
	assert.Equal(t, "wis2node-public", cfg.Storage.PublicBucket)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WIS2NODE_BROKER_URL", "nats://env:4222")
	t.Setenv("WIS2NODE_WORKER_CEILING", "2")
	t.Setenv("WIS2NODE_STORAGE_ARCHIVE", "archive-data")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nats://env:4222", cfg.Broker.URL)
	assert.Equal(t, 2, cfg.Dispatch.WorkerCeiling)
	assert.Equal(t, "archive-data", cfg.Storage.ArchivePrefix)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/wis2node.yml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(*Config) {}, false},
		{"missing broker url", func(c *Config) { c.Broker.URL = "" }, true},
		{"missing catalog url", func(c *Config) { c.Catalog.URL = "" }, true},
		{"bad subject prefix", func(c *Config) { c.Broker.SubjectPrefix = "wis2.node" }, true},
		{"wildcard subject prefix", func(c *Config) { c.Broker.SubjectPrefix = "wis>" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "logfmt" }, true},
		{"zero ceiling defaults to cpus", func(c *Config) { c.Dispatch.WorkerCeiling = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Positive(t, cfg.Dispatch.WorkerCeiling)
			}
		})
	}
}

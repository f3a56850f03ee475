package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 120*time.Second, cfg.A2A.Timeout)
	assert.Equal(t, 100, cfg.Runner.MaxModelCalls)
	assert.False(t, cfg.Tracing.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileEnvAndBind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
store:
  driver: sqlite
  dsn: file:test.db
server:
  addr: ":9000"
  concurrency: 2
`), 0o600))

	t.Setenv("AGENTFORGE_SERVER_ADDR", ":9100")

	cfg, err := Load(path, func(v *viper.Viper) error {
		v.Set("runner.max_model_calls", 7)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "file:test.db", cfg.Store.DSN)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, 2, cfg.Server.Concurrency)
	assert.Equal(t, 7, cfg.Runner.MaxModelCalls)
	assert.Equal(t, 20, cfg.Server.Burst)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = "sqlite" }, "store.dsn"},
		{"zero rate", func(c *Config) { c.Server.Rate = 0 }, "server.rate"},
		{"zero concurrency", func(c *Config) { c.Server.Concurrency = 0 }, "server.concurrency"},
		{"zero timeout", func(c *Config) { c.A2A.Timeout = 0 }, "a2a.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 10_000, cfg.Engine.QueryChannelDepth)
}

func TestValidateRejectsBadBackend(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Backend = "clickhouse"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingFileDir(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Backend = "file"
	cfg.Storage.FileDir = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveChannelDepth(t *testing.T) {
	cases := []struct {
		name  string
		mutate func(*Config)
	}{
		{"query", func(c *Config) { c.Engine.QueryChannelDepth = 0 }},
		{"insert", func(c *Config) { c.Engine.InsertChannelDepth = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadWithNoConfigFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Storage.Backend, cfg.Storage.Backend)
	assert.Equal(t, Defaults().API.Addr, cfg.API.Addr)
}

package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	flags := &rootFlags{
		configPath: filepath.Join(t.TempDir(), "missing.yaml"),
		port:       6123,
		logLevel:   "debug",
	}

	cfg, err := loadConfig(flags)
	require.NoError(t, err)
	assert.Equal(t, 6123, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}

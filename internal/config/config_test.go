package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "pdimport.db", cfg.Store.Path)
	assert.Equal(t, 100, cfg.Import.ChunkSize)
	assert.Equal(t, 5000, cfg.Resolve.Capacity)
	assert.Equal(t, 5, cfg.Resolve.Concurrency)
	assert.Equal(t, 500, cfg.Resolve.BaseDelayMS)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	content := "server:\n  port: 9999\nimport:\n  chunk_size: 50\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(content), 0o644))

	cfg, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Import.ChunkSize)
	assert.Equal(t, "pdimport.db", cfg.Store.Path, "untouched keys keep defaults")
}

func TestLoad_YmlFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileNameAlt), []byte("server:\n  port: 7777\n"), 0o644))

	cfg, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("server:\n  port: 9999\n"), 0o644))
	t.Setenv("PDIMPORT_SERVER_PORT", "6060")
	t.Setenv("PDIMPORT_RESOLVE_BASE_URL", "http://api.example.com")

	cfg, err := Load(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, 6060, cfg.Server.Port)
	assert.Equal(t, "http://api.example.com", cfg.Resolve.BaseURL)
}

func TestLoad_FlagsWinOverEverything(t *testing.T) {
	t.Setenv("PDIMPORT_SERVER_PORT", "6060")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("server.port", 8080, "")
	require.NoError(t, flags.Parse([]string{"--server.port=5050"}))

	cfg, err := Load(t.TempDir(), flags)
	require.NoError(t, err)
	assert.Equal(t, 5050, cfg.Server.Port)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("server: [not a map"), 0o644))

	_, err := Load(dir, nil)
	require.Error(t, err)
}

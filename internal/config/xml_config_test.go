package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheetviz.config")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "default config should be written")
	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, filepath.Join(dir, "data/uploads"), cfg.Storage.UploadsDirectory)
	assert.Equal(t, 2*time.Second, cfg.UploadDelay())
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheetviz.config")
	content := `<?xml version="1.0" encoding="UTF-8"?>
<SheetViz>
  <Server><Port>9000</Port></Server>
  <Processing><UploadDelayMs>10</UploadDelayMs></Processing>
</SheetViz>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 10*time.Millisecond, cfg.UploadDelay())
	assert.Equal(t, ".xlsx,.xls", cfg.Security.AllowedFileTypes)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7777")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "sheetviz.config"))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Advanced.LogLevel)
}

func TestAllowedExtensions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Security.AllowedFileTypes = " .XLSX, xls ,,"
	assert.Equal(t, []string{".xlsx", ".xls"}, cfg.AllowedExtensions())
}

func TestFrameIntervalFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scene.FrameIntervalMs = 0
	assert.Equal(t, 33*time.Millisecond, cfg.FrameInterval())
}

func TestDerivedDurationsAndLimits(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 10*time.Minute, cfg.RenderCacheTTL())
	assert.Equal(t, time.Hour, cfg.ScratchRetention())
	assert.Equal(t, 10*time.Minute, cfg.CleanupInterval())

	cfg.Processing.MaxUploadSizeMB = 0
	cfg.Storage.CleanupIntervalMinutes = 0
	assert.Equal(t, int64(0), cfg.MaxUploadBytes())
	assert.Equal(t, 10*time.Minute, cfg.CleanupInterval())
}

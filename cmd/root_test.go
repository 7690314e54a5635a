package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brensch/mrtstat/internal/budget"
	"github.com/brensch/mrtstat/internal/config"
)

func TestFlagDefaultsBuildValidConfig(t *testing.T) {
	cfg, err := buildConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	d := config.Default()
	assert.Equal(t, int64(budget.DefaultCapacity), cfg.BufferSpace)
	assert.Equal(t, int64(budget.DefaultMaxSingle), cfg.MaxBuffer)
	assert.Equal(t, int64(config.DefaultInitialBuffer), cfg.InitialBuffer)
	assert.Equal(t, d.BrokerURL, cfg.BrokerURL)
	assert.Equal(t, d.DataTypes, cfg.DataTypes)
}

func TestByteFlags(t *testing.T) {
	old := maxBuffer
	t.Cleanup(func() { maxBuffer = old })

	maxBuffer = "256MiB"
	cfg, err := buildConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(256<<20), cfg.MaxBuffer)

	maxBuffer = "lots"
	_, err = buildConfig()
	assert.ErrorContains(t, err, "--max-buffer")
}

func TestParseBytes(t *testing.T) {
	n, err := parseBytes("1 GiB")
	require.NoError(t, err)
	assert.Equal(t, int64(1<<30), n)

	n, err = parseBytes("128MB")
	require.NoError(t, err)
	assert.Equal(t, int64(128_000_000), n)
}

func TestNewLoggerFallsBackToStderr(t *testing.T) {
	logger := newLogger("debug", "json", filepath.Join(t.TempDir(), "missing", "x.log"))
	require.NotNil(t, logger)

	logPath := filepath.Join(t.TempDir(), "app.log")
	logger = newLogger("info", "text", logPath)
	logger.Info("hello")
	assert.FileExists(t, logPath)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.FetchWorkers = 0
	cfg.ConsumerWorkers = -1
	cfg.DataTypes = []string{"update", "ribs"}
	cfg.Until = 48 * time.Hour

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"fetch workers", "consumer workers", `"ribs"`, "until"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateAllowsCapacityBelowWorkers(t *testing.T) {
	cfg := Default()
	cfg.ChannelCapacity = 1
	assert.NoError(t, cfg.Validate())
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	cfg := Default()

	start, end := cfg.Window(now)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.True(t, end.IsZero())

	cfg.Until = time.Hour
	_, end = cfg.Window(now)
	assert.Equal(t, time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC), end)
}

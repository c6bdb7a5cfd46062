package cmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/can1357/smgrep/internal/config"
)

func TestThermalConfigFrom_ParsesInterBatchDelay(t *testing.T) {
	// Given: a config with a parseable delay string
	cfg := config.NewConfig()
	cfg.Embeddings.InterBatchDelay = "200ms"
	cfg.Embeddings.TimeoutProgression = 1.5
	cfg.Embeddings.RetryTimeoutMultiplier = 1.2

	// When: converting to an embed.ThermalConfig
	thermal := thermalConfigFrom(cfg)

	// Then: all three fields carry over
	assert.Equal(t, 200*time.Millisecond, thermal.InterBatchDelay)
	assert.Equal(t, 1.5, thermal.TimeoutProgression)
	assert.Equal(t, 1.2, thermal.RetryTimeoutMultiplier)
}

func TestThermalConfigFrom_InvalidDelay_LeavesZero(t *testing.T) {
	// Given: an unparseable delay string
	cfg := config.NewConfig()
	cfg.Embeddings.InterBatchDelay = "not-a-duration"

	// When: converting to an embed.ThermalConfig
	thermal := thermalConfigFrom(cfg)

	// Then: the bad value is dropped rather than propagated
	assert.Zero(t, thermal.InterBatchDelay)
}

func TestFastModeDefault_ReadsEnvVar(t *testing.T) {
	t.Setenv("RSGREP_FAST", "true")
	assert.True(t, fastModeDefault())
}

func TestFastModeDefault_UnsetDefaultsFalse(t *testing.T) {
	assert.False(t, fastModeDefault())
}

func TestSkipMetaSave_ReadsEnvVar(t *testing.T) {
	t.Setenv("RSGREP_SKIP_META_SAVE", "1")
	assert.True(t, skipMetaSave())
}

func TestSkipMetaSave_UnsetDefaultsFalse(t *testing.T) {
	assert.False(t, skipMetaSave())
}

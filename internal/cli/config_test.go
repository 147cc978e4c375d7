package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Empty(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Zero(t, cfg.TickIntervalMs)
	assert.Empty(t, cfg.ID)
}

func TestLoadConfig_FromYAML(t *testing.T) {
	path := writeFile(t, "warden.yaml", `
id: village
tickIntervalMs: 250
logLevel: debug
auditCapacity: 512
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "village", cfg.ID)
	assert.Equal(t, int64(250), cfg.TickIntervalMs)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 512, cfg.AuditCapacity)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "warden.yaml", "id: village\ntickIntervalMs: 250\n")

	t.Setenv("WARDEN_TICK_INTERVAL_MS", "50")
	t.Setenv("WARDEN_ENGINE_ID", "village-override")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "village-override", cfg.ID)
	assert.Equal(t, int64(50), cfg.TickIntervalMs)
}

func TestLoadConfig_UnknownFieldRejected(t *testing.T) {
	path := writeFile(t, "warden.yaml", "tickInterval: 250\n")

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("no-such-file.yaml")
	require.Error(t, err)
}

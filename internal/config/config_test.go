package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/daygrid")
	t.Setenv("REDIS_URL", "localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 100, cfg.MaxItemsPerList)
	assert.Equal(t, 500, cfg.MaxTotalItems)
	assert.Equal(t, 200, cfg.DefaultPullLimit)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SYNC_MAX_ITEMS_PER_LIST", "25")
	t.Setenv("SYNC_MAX_TOTAL_ITEMS", "50")
	t.Setenv("SYNC_DEFAULT_PULL_LIMIT", "10")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 25, cfg.MaxItemsPerList)
	assert.Equal(t, 50, cfg.MaxTotalItems)
	assert.Equal(t, 10, cfg.DefaultPullLimit)
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadConfig_RejectsNonPositiveLimits(t *testing.T) {
	setRequired(t)
	t.Setenv("SYNC_MAX_TOTAL_ITEMS", "0")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNC_MAX_TOTAL_ITEMS")
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/notifications")
	t.Setenv("REDIS_URL", "localhost:6379")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3003", cfg.HTTPPort)
	assert.Equal(t, "3004", cfg.WorkerPort)
	assert.Equal(t, 20, cfg.FanoutConcurrency)
	assert.Equal(t, 3, cfg.QueueMaxAttempts)
	assert.Equal(t, time.Second, cfg.QueueBaseDelay)
	assert.Equal(t, 10, cfg.InitialFetchLimit)
	assert.Empty(t, cfg.Hackathons)
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "localhost:6379")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadParsesHackathonList(t *testing.T) {
	setRequired(t)
	t.Setenv("HACKATHON_IDS", "ethindia-2024, tinkerquest-2025 ,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"ethindia-2024", "tinkerquest-2025"}, cfg.Hackathons)
}

func TestLoadRejectsNonPositiveConcurrency(t *testing.T) {
	setRequired(t)
	t.Setenv("FANOUT_CONCURRENCY", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadFallsBackOnBadInt(t *testing.T) {
	setRequired(t)
	t.Setenv("QUEUE_MAX_ATTEMPTS", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.QueueMaxAttempts)
}

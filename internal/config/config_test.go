package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "ADAPTER_TIMEOUT_SECONDS", "HTTP_TIMEOUT_SECONDS", "SYNC_WINDOW_DAYS", "LINE_ADS_USE_MOCK", "KAFKA_BROKERS", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.AdapterTimeout)
	assert.Equal(t, 30, cfg.SyncWindowDays)
	assert.Equal(t, 7, cfg.AlertWindowDays)
	assert.True(t, cfg.LineAdsUseMock)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Zero(t, cfg.SyncInterval)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ADAPTER_TIMEOUT_SECONDS", "")
	t.Setenv("HTTP_TIMEOUT_SECONDS", "3")
	t.Setenv("SYNC_WINDOW_DAYS", "14")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LINE_ADS_USE_MOCK", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SYNC_INTERVAL_MINUTES", "60")

	cfg := FromEnv()

	assert.Equal(t, 3*time.Second, cfg.AdapterTimeout)
	assert.Equal(t, 14, cfg.SyncWindowDays)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.LineAdsUseMock)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, time.Hour, cfg.SyncInterval)
}

func TestFromEnvRejectsNegativeNumbers(t *testing.T) {
	t.Setenv("SYNC_CONCURRENCY", "-2")
	assert.Equal(t, 4, FromEnv().SyncConcurrency)
}

package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     string
	LogLevel slog.Level

	DatabaseURL      string
	DBMaxConns       int
	DBConnectRetries int

	RedisURL    string
	SyncLockTTL time.Duration

	KafkaBrokers     []string
	KafkaAlertsTopic string

	// AdapterTimeout bounds every outbound platform call.
	AdapterTimeout  time.Duration
	SyncWindowDays  int
	AlertWindowDays int
	SyncConcurrency int
	// SyncInterval of zero disables the background scheduler.
	SyncInterval time.Duration

	// CredentialsKey is the hex encoded 32 byte key for stored tokens.
	CredentialsKey string

	GoogleAdsURL            string
	GoogleAdsDeveloperToken string
	FacebookURL             string
	FacebookAPIVersion      string
	AnalyticsURL            string
	TikTokURL               string
	TikTokUseSandbox        bool
	LineAdsURL              string
	LineAdsUseMock          bool
}

func FromEnv() Config {
	to := 15 * time.Second
	if v := envFirst("ADAPTER_TIMEOUT_SECONDS", "HTTP_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			to = d
		}
	}
	return Config{
		Port:     envOr("PORT", "8080"),
		LogLevel: parseLevel(os.Getenv("LOG_LEVEL")),

		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:       atoiEnv("DB_MAX_CONNS", 10),
		DBConnectRetries: atoiEnv("DB_CONNECT_RETRIES", 5),

		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		SyncLockTTL: time.Duration(atoiEnv("SYNC_LOCK_TTL_SECONDS", 900)) * time.Second,

		KafkaBrokers:     csv(os.Getenv("KAFKA_BROKERS")),
		KafkaAlertsTopic: envOr("KAFKA_ALERTS_TOPIC", "adsync.alerts"),

		AdapterTimeout:  to,
		SyncWindowDays:  atoiEnv("SYNC_WINDOW_DAYS", 30),
		AlertWindowDays: atoiEnv("ALERT_WINDOW_DAYS", 7),
		SyncConcurrency: atoiEnv("SYNC_CONCURRENCY", 4),
		SyncInterval:    time.Duration(atoiEnv("SYNC_INTERVAL_MINUTES", 0)) * time.Minute,

		CredentialsKey: os.Getenv("CREDENTIALS_KEY"),

		GoogleAdsURL:            envOr("GOOGLE_ADS_API_URL", "https://googleads.googleapis.com/v17"),
		GoogleAdsDeveloperToken: os.Getenv("GOOGLE_ADS_DEVELOPER_TOKEN"),
		FacebookURL:             envOr("FACEBOOK_API_URL", "https://graph.facebook.com"),
		FacebookAPIVersion:      envOr("FACEBOOK_API_VERSION", "v18.0"),
		AnalyticsURL:            os.Getenv("GA_API_URL"),
		TikTokURL:               os.Getenv("TIKTOK_API_URL"),
		TikTokUseSandbox:        boolEnv("TIKTOK_USE_SANDBOX", false),
		LineAdsURL:              envOr("LINE_ADS_API_URL", "https://ads.line.me/api"),
		LineAdsUseMock:          boolEnv("LINE_ADS_USE_MOCK", true),
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envFirst(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func atoiEnv(k string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func boolEnv(k string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(k)))
	if err != nil {
		return def
	}
	return v
}

func csv(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

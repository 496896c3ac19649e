package config

import (
	"os"
	"strconv"
)

// Config holds runtime configuration for the release gate CLI.
type Config struct {
	LogLevel       string
	ServiceName    string
	OTLPEndpoint   string
	OTLPInsecure   bool
	CacheSize      int
	HistoryDSN     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisStream    string
	SigningKeyPath string
	SigningKeyID   string
}

// Load loads configuration from environment variables.
func Load() *Config {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = "releasegate"
	}

	stream := os.Getenv("RELEASEGATE_REDIS_STREAM")
	if stream == "" {
		stream = "releasegate:reports"
	}

	return &Config{
		LogLevel:       logLevel,
		ServiceName:    serviceName,
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPInsecure:   os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true",
		CacheSize:      envInt("RELEASEGATE_CACHE_SIZE", 64),
		HistoryDSN:     os.Getenv("RELEASEGATE_HISTORY_DSN"),
		RedisAddr:      os.Getenv("RELEASEGATE_REDIS_ADDR"),
		RedisPassword:  os.Getenv("RELEASEGATE_REDIS_PASSWORD"),
		RedisDB:        envInt("RELEASEGATE_REDIS_DB", 0),
		RedisStream:    stream,
		SigningKeyPath: os.Getenv("RELEASEGATE_SIGNING_KEY"),
		SigningKeyID:   os.Getenv("RELEASEGATE_SIGNING_KEY_ID"),
	}
}

// envInt reads a positive-or-zero integer, falling back to def on absence or garbage.
func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

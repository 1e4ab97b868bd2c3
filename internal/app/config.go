package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	DatabasePath    string
	PolicyPath      string
	LogLevel        string
	LogFormat       string
	RedisURL        string
	CacheTTL        time.Duration
	CacheDisabled   bool
	ExternalTimeout time.Duration
	ExternalRPS     float64
	ExternalBurst   int
	IGDBClientID    string
	IGDBSecret      string
	IGDBBaseURL     string
	IGDBCacheTTL    time.Duration
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8090"),
		DatabasePath:    getEnv("CATALOG_DB_PATH", "catalog.db"),
		PolicyPath:      getEnv("CATALOG_POLICY_PATH", ""),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
		RedisURL:        getEnv("REDIS_URL", ""),
		CacheTTL:        time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 5)) * time.Minute,
		CacheDisabled:   getEnvBool("SEARCH_CACHE_DISABLED", false),
		ExternalTimeout: time.Duration(getEnvInt("EXTERNAL_TIMEOUT_SECONDS", 3)) * time.Second,
		ExternalRPS:     float64(getEnvInt("EXTERNAL_RATE_LIMIT_RPS", 4)),
		ExternalBurst:   getEnvInt("EXTERNAL_RATE_LIMIT_BURST", 4),
		IGDBClientID:    strings.TrimSpace(os.Getenv("IGDB_CLIENT_ID")),
		IGDBSecret:      strings.TrimSpace(os.Getenv("IGDB_CLIENT_SECRET")),
		IGDBBaseURL:     getEnv("IGDB_BASE_URL", ""),
		IGDBCacheTTL:    time.Duration(getEnvInt("IGDB_CACHE_TTL_MINUTES", 60)) * time.Minute,
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"thsrquery/internal/auth"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	TDXAPIBaseURL      string
	TDXAuthURL         string
	UpstreamTimeout    time.Duration
	TokenRefreshMargin time.Duration

	StationCacheTTL    time.Duration
	TimetableCacheSize int
	TimetableCacheTTL  time.Duration

	RedisEnabled     bool
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	CacheWarmOnStart bool

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string

	CORSAllowedOrigins []string
}

// Load reads the process configuration. Provider credentials are not part
// of it: they are read per request by LookupCredentials.
func Load() (*Config, error) {
	return &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		TDXAPIBaseURL:      getEnv("TDX_API_URL", "https://tdx.transportdata.tw/api/basic/v2/Rail/THSR"),
		TDXAuthURL:         getEnv("TDX_AUTH_URL", "https://tdx.transportdata.tw/auth/realms/TDXConnect/protocol/openid-connect/token"),
		UpstreamTimeout:    getDurationEnv("UPSTREAM_TIMEOUT", 30*time.Second),
		TokenRefreshMargin: getDurationEnv("TOKEN_REFRESH_MARGIN", auth.DefaultRefreshMargin),

		StationCacheTTL:    getDurationEnv("STATION_CACHE_TTL", 24*time.Hour),
		TimetableCacheSize: getIntEnv("TIMETABLE_CACHE_SIZE", 512),
		TimetableCacheTTL:  getDurationEnv("TIMETABLE_CACHE_TTL", 6*time.Hour),

		RedisEnabled:     getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getIntEnv("REDIS_DB", 0),
		CacheWarmOnStart: getBoolEnv("CACHE_WARM_ON_START", true),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getPositiveDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),

		CORSAllowedOrigins: getCSVEnvDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}, nil
}

// LookupCredentials reads the TDX client credentials from the environment
// on every call, so rotating them takes effect without a restart. ok is
// false unless both values are set.
func LookupCredentials() (creds auth.Credentials, ok bool) {
	creds = auth.Credentials{
		ClientID:     strings.TrimSpace(os.Getenv("TDX_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv("TDX_CLIENT_SECRET")),
	}
	return creds, !creds.Empty()
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getPositiveDurationEnv is getDurationEnv for settings where zero or a
// negative duration has no meaning.
func getPositiveDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if d := getDurationEnv(key, defaultVal); d > 0 {
		return d
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}

func getCSVEnvDefault(key string, defaultVal []string) []string {
	if v := getCSVEnv(key); len(v) > 0 {
		return v
	}
	return defaultVal
}

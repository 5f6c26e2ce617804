package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenAddr string

	HomeboxURL      string
	HomeboxToken    string
	HomeboxUser     string
	HomeboxPassword string
	RetryAttempts   int
	RetryDelay      time.Duration
	RetryBackoff    float64

	ClassifierBackend string
	AnthropicAPIKey   string
	AnthropicModel    string
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	Language          string

	LocationFilterMode string
	LocationMarker     string

	SessionBackend string
	SessionDBPath  string

	PhotoCachePath string
	SweepInterval  time.Duration
	SweepMaxAge    time.Duration

	MaxImageMB   int64
	MaxImageDim  int
	DownscaleDim int

	LogLevel string
	LogFile  string
}

func Load() *Config {
	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		HomeboxURL:      getEnv("HOMEBOX_URL", ""),
		HomeboxToken:    getEnv("HOMEBOX_TOKEN", ""),
		HomeboxUser:     getEnv("HOMEBOX_USER", ""),
		HomeboxPassword: getEnv("HOMEBOX_PASSWORD", ""),
		RetryAttempts:   getEnvInt("HOMEBOX_RETRY_ATTEMPTS", 3),
		RetryDelay:      getEnvDuration("HOMEBOX_RETRY_DELAY", time.Second),
		RetryBackoff:    getEnvFloat("HOMEBOX_RETRY_BACKOFF", 2.0),

		ClassifierBackend: getEnv("CLASSIFIER_BACKEND", "openai"),
		AnthropicAPIKey:   getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:    getEnv("ANTHROPIC_MODEL", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", ""),
		Language:          getEnv("DEFAULT_LANGUAGE", "en"),

		LocationFilterMode: getEnv("LOCATION_FILTER_MODE", "marker"),
		LocationMarker:     getEnv("LOCATION_MARKER", "[BOT]"),

		SessionBackend: getEnv("SESSION_BACKEND", "memory"),
		SessionDBPath:  getEnv("SESSION_DB_PATH", "/data/sessions.db"),

		PhotoCachePath: getEnv("PHOTO_CACHE_PATH", "/data/photo-cache"),
		SweepInterval:  getEnvDuration("PHOTO_SWEEP_INTERVAL", time.Hour),
		SweepMaxAge:    getEnvDuration("PHOTO_SWEEP_MAX_AGE", 24*time.Hour),

		MaxImageMB:   int64(getEnvInt("MAX_IMAGE_MB", 20)),
		MaxImageDim:  getEnvInt("MAX_IMAGE_DIMENSION", 4096),
		DownscaleDim: getEnvInt("DOWNSCALE_MAX_DIMENSION", 2048),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

// MaxImageBytes converts the configured megabyte limit into bytes.
func (c *Config) MaxImageBytes() int64 {
	return c.MaxImageMB << 20
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

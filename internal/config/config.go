package config

import (
	"os"
	"strconv"
	"time"
)

type ProviderConfig struct {
	APIKey  string
	BaseURL string
}

type Config struct {
	ServerPort  string
	DBPath      string
	CatalogPath string
	LogLevel    string

	GlobalDailyCostLimitUSD float64
	SpikeMultiplier         float64

	RequestTimeout   time.Duration
	ProviderCooldown time.Duration

	CacheMaxEntries int
	CacheSweepEvery int

	RateLimitRPS float64
	AdminToken   string

	CORSAllowedOrigins string

	ProbeSchedule      string
	AlertSweepSchedule string
	CacheSweepSchedule string

	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	Gemini    ProviderConfig
}

var cfg *Config

func Load() *Config {
	cfg = &Config{
		ServerPort:  getEnv("SERVER_PORT", "16823"),
		DBPath:      getEnv("DB_PATH", "./data/data.db"),
		CatalogPath: getEnv("CATALOG_PATH", "./catalog.yaml"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		GlobalDailyCostLimitUSD: getEnvFloat("GLOBAL_DAILY_COST_LIMIT", 500),
		SpikeMultiplier:         getEnvFloat("SPIKE_MULTIPLIER", 5),

		RequestTimeout:   time.Duration(getEnvInt("REQUEST_TIMEOUT_MS", 60000)) * time.Millisecond,
		ProviderCooldown: time.Duration(getEnvInt("PROVIDER_COOLDOWN_SEC", 300)) * time.Second,

		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 10000),
		CacheSweepEvery: getEnvInt("CACHE_SWEEP_EVERY", 100),

		RateLimitRPS: getEnvFloat("RATE_LIMIT_RPS", 20),
		AdminToken:   os.Getenv("ADMIN_TOKEN"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		ProbeSchedule:      getEnv("PROBE_SCHEDULE", "@every 30s"),
		AlertSweepSchedule: getEnv("ALERT_SWEEP_SCHEDULE", "@every 5m"),
		CacheSweepSchedule: getEnv("CACHE_SWEEP_SCHEDULE", "@every 1m"),

		OpenAI: ProviderConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
		},
		Anthropic: ProviderConfig{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		},
		Gemini: ProviderConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		},
	}
	return cfg
}

func Get() *Config {
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration settings for the batch geocoder.
//
// Fields:
// - Env: The current environment (e.g., local, development, production).
// - Port: The port for the monitoring server.
// - BaseURL: The versioned Geoclient API base path.
// - SubscriptionKey: The NYC API portal subscription key.
// - Workers: The number of concurrent workers; 1 keeps the batch sequential.
// - RatePerMinute: The outbound request ceiling (Geoclient allows 2,500/min).
// - RequestTimeout: The per-request deadline.
// - CacheEnabled: Whether responses are cached in PostgreSQL.
// - CacheMaxAge: The age beyond which cached responses are swept on startup.
// - Database: Configuration settings for the PostgreSQL database.
type Config struct {
	Env             string
	Port            int
	BaseURL         string
	SubscriptionKey string
	Workers         int
	RatePerMinute   int
	RequestTimeout  time.Duration
	CacheEnabled    bool
	CacheMaxAge     time.Duration
	Database        PostgresConfig
}

// PostgresConfig struct holds the configuration details for connecting to a PostgreSQL database.
type PostgresConfig struct {
	Host     string // Host is the database server address.
	Port     string // Port is the database server port.
	User     string // User is the database user.
	Password string // Password is the database user's password.
	Name     string // Name is the name of the database.
}

// MustLoad loads the configuration from the environment and returns a Config
// struct, panicking on malformed values.
func MustLoad() *Config {
	_ = godotenv.Load()

	healthPort, err := strconv.Atoi(setDefaultEnv("GEOCLIENT_HEALTH_PORT", "8080"))
	if err != nil {
		panic("failed to parse port for monitoring server from configuration")
	}

	workers, err := strconv.Atoi(setDefaultEnv("GEOCLIENT_WORKERS", "1"))
	if err != nil {
		panic("failed to parse workers from configuration, must be an integer")
	}

	ratePerMinute, err := strconv.Atoi(setDefaultEnv("GEOCLIENT_RATE_LIMIT", "2500"))
	if err != nil {
		panic("failed to parse rate limit from configuration, must be an integer")
	}

	requestTimeout, err := time.ParseDuration(setDefaultEnv("GEOCLIENT_REQUEST_TIMEOUT", "10s"))
	if err != nil {
		panic("failed to parse request timeout from configuration")
	}

	cacheEnabled, err := strconv.ParseBool(setDefaultEnv("GEOCLIENT_CACHE", "false"))
	if err != nil {
		panic("failed to parse cache flag from configuration, must be a boolean")
	}

	cacheMaxAge, err := time.ParseDuration(setDefaultEnv("GEOCLIENT_CACHE_MAX_AGE", "720h"))
	if err != nil {
		panic("failed to parse cache max age from configuration")
	}

	return &Config{
		Env:             setDefaultEnv("GEOCLIENT_ENV", "production"),
		Port:            healthPort,
		BaseURL:         setDefaultEnv("GEOCLIENT_BASE_URL", "https://api.nyc.gov/geo/geoclient/v1"),
		SubscriptionKey: os.Getenv("GEOCLIENT_SUBSCRIPTION_KEY"),
		Workers:         workers,
		RatePerMinute:   ratePerMinute,
		RequestTimeout:  requestTimeout,
		CacheEnabled:    cacheEnabled,
		CacheMaxAge:     cacheMaxAge,
		Database: PostgresConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     setDefaultEnv("DB_PORT", "5432"),
			User:     os.Getenv("DB_USERNAME"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
		},
	}
}

func setDefaultEnv(key, override string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = override
	}

	return value
}

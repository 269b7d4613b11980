package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mrops-br/price-cache-api/internal/domain"
)

const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	Store   StoreConfig
	Redis   RedisConfig
	Scraper ScraperConfig
	OTLP    OTLPConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type AuthConfig struct {
	SecretToken string
}

type StoreConfig struct {
	CacheBackend string
	CacheTTL     time.Duration
	DataFile     string
	IOTimeout    time.Duration
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// ScraperConfig is consumed by the scraping layer, not by the store.
type ScraperConfig struct {
	NumPages   int
	RetryDelay time.Duration
	Proxy      string
}

type OTLPConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Environment string
	LogLevel    string
}

// LoadConfig loads configuration from a .env file, if present, and
// environment variables. Variables already set in the environment take
// precedence over the file.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "config: ignoring unreadable .env: %v\n", err)
	}

	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Auth: AuthConfig{
			SecretToken: getEnv("SECRET_KEY", ""),
		},
		Store: StoreConfig{
			CacheBackend: getEnv("CACHE_BACKEND", CacheBackendRedis),
			CacheTTL:     getSeconds("CACHE_EXPIRY", 3600),
			DataFile:     getEnv("DATA_FILE", "data/products.json"),
			IOTimeout:    getSeconds("STORE_IO_TIMEOUT", 5),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getInt("REDIS_DB", 0),
			KeyPrefix: lookupEnv("REDIS_KEY_PREFIX", "price:"),
		},
		Scraper: ScraperConfig{
			NumPages:   getInt("NUM_PAGES", 5),
			RetryDelay: getSeconds("RETRY_DELAY", 5),
			Proxy:      getEnv("PROXY", ""),
		},
		OTLP: OTLPConfig{
			Enabled:     getBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "price-cache-api"),
			Environment: getEnv("OTEL_ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
	}
}

// Validate reports settings the service cannot start with
func (c *Config) Validate() error {
	if c.Auth.SecretToken == "" {
		return domain.ErrMissingSecret
	}
	if c.Store.CacheTTL <= 0 {
		return fmt.Errorf("%w: CACHE_EXPIRY must be positive", domain.ErrInvalidConfig)
	}
	if c.Store.IOTimeout <= 0 {
		return fmt.Errorf("%w: STORE_IO_TIMEOUT must be positive", domain.ErrInvalidConfig)
	}
	if c.Store.DataFile == "" {
		return fmt.Errorf("%w: DATA_FILE is required", domain.ErrInvalidConfig)
	}
	switch c.Store.CacheBackend {
	case CacheBackendRedis, CacheBackendMemory:
	default:
		return fmt.Errorf("%w: unknown CACHE_BACKEND %q", domain.ErrInvalidConfig, c.Store.CacheBackend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupEnv is getEnv for settings where an explicitly empty value is
// meaningful
func lookupEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func getSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getInt(key, defaultSeconds)) * time.Second
}

func getBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

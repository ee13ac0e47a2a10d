package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort int

	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	AutoMigrate      bool
	SeedCatalog      bool

	RedisHost     string
	RedisPort     int
	RedisPassword string

	CatalogCacheTTL    time.Duration
	CatalogCachePrefix string

	JWTSecret        string
	LogFile          string
	BulkCheckWorkers int

	// Granted PERMISSIONS_MANAGE and AUDIT_VIEW at startup when both are set.
	BootstrapAdminID   string
	BootstrapCompanyID string
}

// LoadConfig reads .env when present, then the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		AppPort:            getEnvInt("APP_PORT", 8080),
		PostgresHost:       getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:       getEnvInt("POSTGRES_PORT", 5432),
		PostgresUser:       getEnv("POSTGRES_USER", "rbac_user"),
		PostgresPassword:   getEnv("POSTGRES_PASSWORD", ""),
		PostgresDB:         getEnv("POSTGRES_DB", "rbac_db"),
		AutoMigrate:        getEnvBool("AUTO_MIGRATE", true),
		SeedCatalog:        getEnvBool("SEED_CATALOG", true),
		RedisHost:          getEnv("REDIS_HOST", ""),
		RedisPort:          getEnvInt("REDIS_PORT", 6379),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		CatalogCacheTTL:    getEnvDuration("CATALOG_CACHE_TTL", 30*time.Minute),
		CatalogCachePrefix: getEnv("CATALOG_CACHE_PREFIX", "rbac:"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		LogFile:            getEnv("LOG_FILE", "app.log"),
		BulkCheckWorkers:   getEnvInt("BULK_CHECK_WORKERS", 10),
		BootstrapAdminID:   getEnv("BOOTSTRAP_ADMIN_ID", ""),
		BootstrapCompanyID: getEnv("BOOTSTRAP_COMPANY_ID", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.PostgresHost) == "" || strings.TrimSpace(c.PostgresDB) == "" {
		return fmt.Errorf("POSTGRES_HOST and POSTGRES_DB are required")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.AppPort <= 0 {
		return fmt.Errorf("APP_PORT must be positive")
	}
	if c.BulkCheckWorkers <= 0 {
		return fmt.Errorf("BULK_CHECK_WORKERS must be positive")
	}
	return nil
}

// PostgresDSN renders the connection string for the gorm postgres driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB)
}

// RedisEnabled reports whether a Redis host is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return parsed
}

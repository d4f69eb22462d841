package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadTestConfig loads the configuration for integration tests from the .env file or environment variables.
//
// When TEST_DB_HOST and friends are not set the returned Config points at a SQLite file,
// which allows tests to run without a MySQL server.
func LoadTestConfig(sqlitePath string) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist - it's optional)
	_ = godotenv.Load()

	cfg := &Config{
		Logging: LoggingConfig{Level: "debug"},
		CORS:    CORSConfig{AllowedOrigins: []string{"*"}},
		Auth: AuthConfig{
			Mode:      AuthModeHeader,
			JWTSecret: "test-secret",
			APIKey:    "test-api-key",
		},
		Storage:   StorageConfig{Timeout: 5 * time.Second},
		RateLimit: RateLimitConfig{RequestsPerMinute: 10000},
	}

	dbHost := os.Getenv("TEST_DB_HOST")
	if dbHost == "" {
		cfg.Database.Driver = DriverSQLite
		cfg.Database.SQLitePath = sqlitePath
		return cfg, nil
	}

	cfg.Database.Driver = DriverMySQL
	cfg.Database.Host = dbHost

	dbPort, err := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	if err != nil {
		return nil, fmt.Errorf("invalid TEST_DB_PORT: %w", err)
	}
	cfg.Database.Port = dbPort
	cfg.Database.User = os.Getenv("TEST_DB_USER")
	cfg.Database.Password = os.Getenv("TEST_DB_PASSWORD")
	cfg.Database.DBName = os.Getenv("TEST_DB_NAME")

	return cfg, nil
}

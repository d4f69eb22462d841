// Package config provides configuration for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported database drivers
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Supported identity modes
const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"
)

// Config holds all configuration for the application
type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Logging   LoggingConfig
	CORS      CORSConfig
	Auth      AuthConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port int
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// AuthConfig holds settings of the identity layer placed in front of progress routes
type AuthConfig struct {
	Mode      string
	JWTSecret string
	APIKey    string
}

// StorageConfig holds progress store settings
type StorageConfig struct {
	// Timeout bounds every storage operation, including the wait for the per-user lock
	Timeout time.Duration
}

// RateLimitConfig holds per-IP rate limit settings
type RateLimitConfig struct {
	RequestsPerMinute int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	godotenv.Load()

	cfg := &Config{}

	// Database configuration
	driver := strings.ToLower(os.Getenv("DB_DRIVER"))
	if driver == "" {
		driver = DriverMySQL
	}
	cfg.Database.Driver = driver

	switch driver {
	case DriverMySQL:
		if err := loadMySQL(&cfg.Database); err != nil {
			return nil, err
		}
	case DriverSQLite:
		cfg.Database.SQLitePath = os.Getenv("SQLITE_PATH")
		if cfg.Database.SQLitePath == "" {
			cfg.Database.SQLitePath = "progress.db"
		}
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER: %s, must be '%s' or '%s'", driver, DriverMySQL, DriverSQLite)
	}

	// Server configuration
	serverPortStr := os.Getenv("SERVER_PORT")
	if serverPortStr == "" {
		serverPortStr = "8080" // default port
	}
	serverPort, err := strconv.Atoi(serverPortStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	cfg.Server.Port = serverPort

	// Logging configuration
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info" // default level
	}
	cfg.Logging.Level = logLevel

	// CORS configuration
	cfg.CORS.AllowedOrigins = parseOrigins(os.Getenv("CORS_ALLOWED_ORIGINS"))

	// Auth configuration
	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.Auth.APIKey = os.Getenv("API_KEY")
	cfg.Auth.Mode = strings.ToLower(os.Getenv("AUTH_MODE"))
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = AuthModeJWT
	}
	switch cfg.Auth.Mode {
	case AuthModeJWT:
		if cfg.Auth.JWTSecret == "" {
			return nil, fmt.Errorf("JWT_SECRET is required when AUTH_MODE is '%s'", AuthModeJWT)
		}
	case AuthModeHeader:
	default:
		return nil, fmt.Errorf("invalid AUTH_MODE: %s, must be '%s' or '%s'", cfg.Auth.Mode, AuthModeJWT, AuthModeHeader)
	}

	// Storage configuration
	storageTimeout := os.Getenv("STORAGE_TIMEOUT")
	if storageTimeout == "" {
		storageTimeout = "5s"
	}
	cfg.Storage.Timeout, err = time.ParseDuration(storageTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid STORAGE_TIMEOUT: %w", err)
	}
	if cfg.Storage.Timeout <= 0 {
		return nil, fmt.Errorf("STORAGE_TIMEOUT must be positive")
	}

	// Rate limit configuration
	rateLimit := os.Getenv("RATE_LIMIT_PER_MINUTE")
	if rateLimit == "" {
		rateLimit = "100"
	}
	cfg.RateLimit.RequestsPerMinute, err = strconv.Atoi(rateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_MINUTE: %w", err)
	}

	return cfg, nil
}

// loadMySQL reads the MySQL connection settings, all of them are required
func loadMySQL(db *DatabaseConfig) error {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	db.Host = dbHost

	dbPortStr := os.Getenv("DB_PORT")
	if dbPortStr == "" {
		return fmt.Errorf("DB_PORT is required")
	}
	dbPort, err := strconv.Atoi(dbPortStr)
	if err != nil {
		return fmt.Errorf("invalid DB_PORT: %w", err)
	}
	db.Port = dbPort

	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		return fmt.Errorf("DB_USER is required")
	}
	db.User = dbUser

	dbPassword := os.Getenv("DB_PASSWORD")
	if dbPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	db.Password = dbPassword

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	db.DBName = dbName

	return nil
}

// parseOrigins parses a comma-separated list of origins.
// An empty list allows all origins (for development).
func parseOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}

	origins := strings.Split(raw, ",")
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowed = append(allowed, origin)
		}
	}
	if len(allowed) == 0 {
		return []string{"*"}
	}
	return allowed
}

// DSN returns the database connection string for the configured driver
func (c *Config) DSN() string {
	if c.Database.Driver == DriverSQLite {
		return c.SQLiteDSN()
	}
	if c.Database.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
	)
}

// SQLiteDSN returns the connection string of the embedded SQLite database.
// Transactions take the write lock immediately so concurrent writers queue instead of failing on upgrade.
func (c *Config) SQLiteDSN() string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate", c.Database.SQLitePath)
}

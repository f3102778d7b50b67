// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/justestif/go-mixpoint/internal/model"
)

// Storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Default values.
const (
	DefaultAddr       = "127.0.0.1:8080"
	DefaultSQLitePath = "data/mixpoint.db"
	DefaultMusicDir   = "."
	DefaultLogLevel   = "info"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required for the postgres backend")
	ErrUnknownBackend     = errors.New("unknown storage backend")
	ErrTooFewSlots        = errors.New("at least two track slots are required")
	ErrIncompleteMinio    = errors.New("MINIO_BUCKET, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required with MINIO_ENDPOINT")
)

// Config holds the application configuration.
type Config struct {
	Addr string

	Backend     string
	SQLitePath  string
	DatabaseURL string

	// Redis is optional; when RedisAddr is set session state lives there.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// MinIO is optional; when MinioEndpoint is set tracks are read from a bucket.
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	MusicDir string
	Slots    int

	LogLevel string
	LogFile  string
}

// Load reads an optional .env file and then the environment.
// Variables already set in the environment take precedence over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Addr:           getEnv("MIXPOINT_ADDR", DefaultAddr),
		Backend:        strings.ToLower(getEnv("MIXPOINT_BACKEND", BackendSQLite)),
		SQLitePath:     getEnv("MIXPOINT_SQLITE_PATH", DefaultSQLitePath),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    os.Getenv("MINIO_BUCKET"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", true),
		MusicDir:       getEnv("MIXPOINT_MUSIC_DIR", DefaultMusicDir),
		Slots:          getEnvInt("MIXPOINT_SLOTS", model.DefaultSlots),
		LogLevel:       getEnv("MIXPOINT_LOG_LEVEL", DefaultLogLevel),
		LogFile:        os.Getenv("MIXPOINT_LOG_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}

	if c.Slots < model.DefaultSlots {
		return fmt.Errorf("%w: got %d", ErrTooFewSlots, c.Slots)
	}

	if c.MinioEndpoint != "" && (c.MinioBucket == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "") {
		return ErrIncompleteMinio
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

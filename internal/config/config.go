package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port string

	// Database
	DBHost      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPort      string
	DBSSLMode   string
	AutoMigrate bool

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret      string
	AllowedOrigins string
	CSRFMode       string

	MaxMessageLength int
	MaxSubjectLength int
	UnreadCacheTTL   time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration

	// Cron spec for the last-activity consistency sweep; empty disables it.
	ActivityRepairSchedule string
}

func Load() Config {
	return Config{
		Port:                   getenv("PORT", "8080"),
		DBHost:                 getenv("DB_HOST", "localhost"),
		DBUser:                 getenv("DB_USER", "postgres"),
		DBPassword:             os.Getenv("DB_PASSWORD"),
		DBName:                 getenv("DB_NAME", "inbox"),
		DBPort:                 getenv("DB_PORT", "5432"),
		DBSSLMode:              getenv("DB_SSLMODE", "disable"),
		AutoMigrate:            getenvBool("DB_AUTO_MIGRATE", true),
		RedisAddr:              getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                getenvInt("REDIS_DB", 0),
		JWTSecret:              os.Getenv("JWT_SECRET"),
		AllowedOrigins:         os.Getenv("ALLOWED_ORIGINS"),
		CSRFMode:               strings.ToLower(strings.TrimSpace(getenv("CSRF_MODE", "token"))),
		MaxMessageLength:       getenvInt("MAX_MESSAGE_LENGTH", 4000),
		MaxSubjectLength:       getenvInt("MAX_SUBJECT_LENGTH", 200),
		UnreadCacheTTL:         getenvDuration("UNREAD_CACHE_TTL", time.Minute),
		RateLimitMax:           getenvInt("RATE_LIMIT_MAX", 120),
		RateLimitWindow:        getenvDuration("RATE_LIMIT_WINDOW", time.Minute),
		ActivityRepairSchedule: getenv("ACTIVITY_REPAIR_SCHEDULE", "@every 1h"),
	}
}

// Validate reports settings the server cannot start without.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.MaxMessageLength < 1 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive, got %d", c.MaxMessageLength)
	}
	switch c.CSRFMode {
	case "token", "origin", "off":
	default:
		return fmt.Errorf("unknown CSRF_MODE %q", c.CSRFMode)
	}
	return nil
}

func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port        string
	Environment string
	JWTSecret   string
	CORSOrigins []string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// StoreTimeout bounds every store-touching operation.
	StoreTimeout time.Duration
	// AdminThreshold adds an admin step to purchases at or above it. Invalid means disabled.
	AdminThreshold  decimal.NullDecimal
	NotifyQueueSize int

	ReconcileSchedule string
	ReconcileGrace    time.Duration
	BusBuffer         int
}

// LoadConfig reads configs/.env when present and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}
	return Load()
}

const devJWTSecret = "my_super_secret_key"

// Load builds a Config from the environment alone.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("APP_ENV", "development"),
		JWTSecret:   getEnv("JWT_SECRET", devJWTSecret),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "postgres"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@every 1m"),
	}

	var err error
	if cfg.StoreTimeout, err = durationEnv("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconcileGrace, err = durationEnv("RECONCILE_GRACE", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.NotifyQueueSize, err = intEnv("NOTIFY_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.BusBuffer, err = intEnv("BUS_BUFFER", 64); err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(os.Getenv("ADMIN_APPROVAL_THRESHOLD")); raw != "" {
		threshold, err := decimal.NewFromString(raw)
		if err != nil || !threshold.IsPositive() {
			return nil, fmt.Errorf("ADMIN_APPROVAL_THRESHOLD must be a positive decimal, got %q", raw)
		}
		cfg.AdminThreshold = decimal.NewNullDecimal(threshold)
	}

	if cfg.IsProduction() && cfg.JWTSecret == devJWTSecret {
		return nil, fmt.Errorf("JWT_SECRET must be set when APP_ENV=production")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Durations are given in minutes in the
// environment and converted here.
type Config struct {
	Env    string // application environment (e.g. "dev", "prod")
	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	AMQPURL string // RabbitMQ connection URL

	HoldTTL            time.Duration // lifetime of a temporary space hold
	HoldSweepInterval  time.Duration // how often expired holds are released
	DeadlineSweepEvery time.Duration // how often overdue reservations are cancelled

	StorageDir    string        // root directory for uploaded documents
	PriceCacheTTL time.Duration // how long configured prices stay cached
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:     must("APP_ENV"),
		DBUser:  must("DB_USER"),
		DBPass:  os.Getenv("DB_PASS"), // empty allowed
		DBHost:  must("DB_HOST"),
		DBPort:  must("DB_PORT"),
		DBName:  must("DB_NAME"),
		AMQPURL: must("AMQP_URL"),

		HoldTTL:            minutes("HOLD_TTL_MIN", 15),
		HoldSweepInterval:  minutes("HOLD_SWEEP_MIN", 5),
		DeadlineSweepEvery: minutes("DEADLINE_SWEEP_MIN", 60),

		StorageDir:    getenv("STORAGE_DIR", "data/documents"),
		PriceCacheTTL: minutes("PRICE_CACHE_TTL_MIN", 10),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// getenv returns the variable's value or the fallback when unset.
func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// minutes reads an integer number of minutes with a default.  A value that
// is set but not a valid positive integer is a configuration error and
// exits the program.
func minutes(key string, fallback int) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return time.Duration(fallback) * time.Minute
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		log.Fatalf("invalid minutes for %s: %q", key, s)
	}
	return time.Duration(n) * time.Minute
}

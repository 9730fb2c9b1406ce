// Package config reads server settings from the environment. A .env file is
// honored in development; real deployments set the variables directly.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr string

	// Matchmaking.
	MatchThreshold float64
	StarvationMin  int

	// Rooms.
	GraceWindow      time.Duration
	ProvisionTimeout time.Duration
	Retention        time.Duration

	// Client transport defaults, exposed so served clients can read them.
	PushConnectTimeout time.Duration
	PollInterval       time.Duration

	// Archive. Empty disables archiving.
	ArchiveDSN string
}

func Load() Config {
	// Missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	return Config{
		Addr:               getenv("ADDR", ":8080"),
		MatchThreshold:     getfloat("MATCH_THRESHOLD", 0.3),
		StarvationMin:      getint("STARVATION_MIN", 3),
		GraceWindow:        getdur("GRACE_WINDOW", 0),
		ProvisionTimeout:   getdur("PROVISION_TIMEOUT", 10*time.Second),
		Retention:          getdur("ROOM_RETENTION", 5*time.Minute),
		PushConnectTimeout: getdur("PUSH_CONNECT_TIMEOUT", 5*time.Second),
		PollInterval:       getdur("POLL_INTERVAL", time.Second),
		ArchiveDSN:         getenv("ARCHIVE_DSN", ""),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getdur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

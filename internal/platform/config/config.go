// Package config builds server configuration from environment variables so
// main stays lean.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration for the attendance service.
type Server struct {
	Addr string

	// TokenSecret is the server-held master secret for check-in token
	// signing. Per-day signing keys are derived from it; stations only
	// ever see opaque signed tokens.
	TokenSecret string
	TokenTTL    time.Duration

	PostgresURL string
	RedisURL    string

	// MemberDirectoryURL points at the church-management directory
	// service. Empty runs an empty in-memory directory (development).
	MemberDirectoryURL string

	// KafkaBrokers is empty when the change-event sink is disabled.
	KafkaBrokers []string
	KafkaTopic   string
}

// Redis holds connection tuning for the replay guard store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	addr := os.Getenv("FLOCK_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	secret := os.Getenv("FLOCK_TOKEN_SECRET")
	if secret == "" {
		// Development fallback; must be overridden in production.
		secret = "dev-secret-key-change-in-production"
	}

	ttl := 5 * time.Minute
	if raw := os.Getenv("FLOCK_TOKEN_TTL_SECONDS"); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			ttl = time.Duration(seconds) * time.Second
		}
	}

	var brokers []string
	if raw := os.Getenv("FLOCK_KAFKA_BROKERS"); raw != "" {
		brokers = splitCSV(raw)
	}
	topic := os.Getenv("FLOCK_KAFKA_TOPIC")
	if topic == "" {
		topic = "attendance.mark-events"
	}

	return Server{
		Addr:               addr,
		TokenSecret:        secret,
		TokenTTL:           ttl,
		PostgresURL:        os.Getenv("FLOCK_POSTGRES_URL"),
		RedisURL:           os.Getenv("FLOCK_REDIS_URL"),
		MemberDirectoryURL: os.Getenv("FLOCK_MEMBER_DIRECTORY_URL"),
		KafkaBrokers:       brokers,
		KafkaTopic:         topic,
	}
}

// RedisFromEnv builds Redis configuration with conservative defaults.
func RedisFromEnv() Redis {
	return Redis{
		URL:          os.Getenv("FLOCK_REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

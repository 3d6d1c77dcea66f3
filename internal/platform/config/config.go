package config

import (
	"log/slog"
	"os"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	Environment   string
	LogLevel      slog.Level
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  string
	JWTSigningKey string

	// StoreTimeout bounds every record store write; a write that misses the
	// deadline either landed fully or not at all.
	StoreTimeout time.Duration
	// AuditRetryMax caps how often a decision's audit append is retried
	// before the failure is escalated to alerting.
	AuditRetryMax int
}

var defaultStoreTimeout = 5 * time.Second

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("BOUNTYDESK_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	env := os.Getenv("BOUNTYDESK_ENV")
	if env == "" {
		env = "development"
	}

	level := slog.LevelInfo
	if s := os.Getenv("BOUNTYDESK_LOG_LEVEL"); s != "" {
		// Unknown values keep the info default.
		_ = level.UnmarshalText([]byte(s))
	}

	storeTimeout := defaultStoreTimeout
	if s := os.Getenv("BOUNTYDESK_STORE_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			storeTimeout = d
		}
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          addr,
		Environment:   env,
		LogLevel:      level,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaBrokers:  os.Getenv("KAFKA_BROKERS"),
		JWTSigningKey: jwtSigningKey,
		StoreTimeout:  storeTimeout,
		AuditRetryMax: 5,
	}
}

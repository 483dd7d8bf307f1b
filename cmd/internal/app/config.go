package app

import (
	"time"

	"vidtube/cmd/internal/envx"
)

// Config contains the runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// DatabaseURL selects the Postgres store. Empty means in-memory.
	DatabaseURL      string
	DBMaxConns       int32
	DBMinConns       int32
	DBConnectRetries int
	DBAutoMigrate    bool

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// RedisURL enables login throttling.
	RedisURL string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool

	// If true, VIDTUBE_TOKEN_HMAC_KEY must be set and refresh tokens are
	// digested with HMAC-SHA256.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  envx.String("VIDTUBE_HTTP_ADDR", "0.0.0.0:8000"),
		LogLevel:  envx.String("VIDTUBE_LOG_LEVEL", "info"),
		LogFormat: envx.String("VIDTUBE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: envx.Duration("VIDTUBE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       envx.Duration("VIDTUBE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      envx.Duration("VIDTUBE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       envx.Duration("VIDTUBE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: envx.Int("VIDTUBE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:      envx.String("VIDTUBE_DATABASE_URL", ""),
		DBMaxConns:       envx.Int32("VIDTUBE_DB_MAX_CONNS", 10),
		DBMinConns:       envx.Int32("VIDTUBE_DB_MIN_CONNS", 0),
		DBConnectRetries: envx.Int("VIDTUBE_DB_CONNECT_RETRIES", 5),
		DBAutoMigrate:    envx.Bool("VIDTUBE_DB_AUTO_MIGRATE", false),

		ReadinessRequireDB: envx.Bool("VIDTUBE_READINESS_REQUIRE_DB", false),

		RedisURL: envx.String("VIDTUBE_REDIS_URL", ""),

		CORSAllowedOrigins:   envx.List("VIDTUBE_CORS_ORIGINS"),
		CORSAllowCredentials: envx.Bool("VIDTUBE_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    envx.Int("VIDTUBE_CORS_MAX_AGE", 600),

		MetricsEnabled: envx.Bool("VIDTUBE_METRICS_ENABLED", true),

		RequireTokenHMAC: envx.Bool("VIDTUBE_REQUIRE_TOKEN_HMAC", false),
	}
}

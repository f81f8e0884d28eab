package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// Identity resolution. When the PASETO public key is unset, the server
	// falls back to a static dev verifier fed from PasetoDevTokens
	// ("token:user,token:user") and logs loudly about it.
	PasetoPublicKeyHex string
	PasetoIssuer       string
	PasetoClockSkew    time.Duration
	PasetoDevTokens    string

	// Friend-graph cache (presence fan-out tolerates brief staleness).
	FriendCacheSize int
	FriendCacheTTL  time.Duration

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("RIPPLE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("RIPPLE_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("RIPPLE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("RIPPLE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("RIPPLE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("RIPPLE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("RIPPLE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("RIPPLE_DATABASE_URL", ""),
		DBSchema:    EnvString("RIPPLE_DB_SCHEMA", "ripple"),
		DBMaxConns:  EnvInt32("RIPPLE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("RIPPLE_DB_MIN_CONNS", 0),

		PasetoPublicKeyHex: EnvString("RIPPLE_PASETO_PUBLIC_KEY", ""),
		PasetoIssuer:       EnvString("RIPPLE_PASETO_ISSUER", "ripple-accounts"),
		PasetoClockSkew:    EnvDuration("RIPPLE_PASETO_CLOCK_SKEW", 30*time.Second),
		PasetoDevTokens:    EnvString("RIPPLE_DEV_TOKENS", ""),

		FriendCacheSize: EnvInt("RIPPLE_FRIEND_CACHE_SIZE", 4096),
		FriendCacheTTL:  EnvDuration("RIPPLE_FRIEND_CACHE_TTL", 30*time.Second),

		ReadinessRequireDB: EnvBool("RIPPLE_READINESS_REQUIRE_DB", false),
	}
}

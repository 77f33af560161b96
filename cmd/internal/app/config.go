package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Room document persistence. The first configured backend wins:
	// DatabaseURL -> Postgres, RedisAddr -> Redis, DataDir -> Badger,
	// otherwise in-memory (documents are lost on restart).
	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DataDir string

	// If true, /readyz returns 503 unless a durable store backend is
	// configured and reachable.
	ReadinessRequireStore bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("SLATE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("SLATE_LOG_LEVEL", "info"),
		LogFormat: EnvString("SLATE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("SLATE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("SLATE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("SLATE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("SLATE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("SLATE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("SLATE_DATABASE_URL", ""),
		DBSchema:    EnvString("SLATE_DB_SCHEMA", "slate"),
		DBMaxConns:  EnvInt32("SLATE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("SLATE_DB_MIN_CONNS", 0),

		RedisAddr:     EnvString("SLATE_REDIS_ADDR", ""),
		RedisPassword: EnvString("SLATE_REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("SLATE_REDIS_DB", 0),

		DataDir: EnvString("SLATE_DATA_DIR", ""),

		ReadinessRequireStore: EnvBool("SLATE_READINESS_REQUIRE_STORE", false),
	}
}

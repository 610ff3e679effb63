package app

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	// Env is "dev" or "prod". Dev turns on seeding and pretty logs by default.
	Env string

	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL        string
	DBSchema           string
	DBMaxConns         int32
	DBMinConns         int32
	DBLockTimeout      time.Duration
	DBStatementTimeout time.Duration
	MigrateOnStart     bool

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, TDP_TOKEN_HMAC_KEY must be set (>= 32 bytes) and refresh-token hashing must be HMAC-based.
	RequireTokenHMAC bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AMQPURL   string
	AMQPQueue string

	Seed              bool
	SeedAdminEmail    string
	SeedAdminPassword string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig reads an optional dotenv file (TDP_ENV_FILE, default .env) and then
// loads Config from the environment. Variables already set win over the file.
func LoadConfig() (Config, error) {
	if err := loadDotenv(EnvString("TDP_ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	env := strings.ToLower(EnvString("TDP_ENV", "dev"))
	dev := env != "prod"

	defaultFormat := "json"
	if dev {
		defaultFormat = "pretty"
	}

	return Config{
		Env: env,

		HTTPAddr:  EnvString("TDP_HTTP_ADDR", "0.0.0.0:5201"),
		LogLevel:  EnvString("TDP_LOG_LEVEL", "info"),
		LogFormat: EnvString("TDP_LOG_FORMAT", defaultFormat),

		ReadHeaderTimeout: EnvDuration("TDP_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("TDP_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("TDP_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("TDP_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("TDP_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:        EnvString("TDP_DATABASE_URL", ""),
		DBSchema:           EnvString("TDP_DB_SCHEMA", "public"),
		DBMaxConns:         EnvInt32("TDP_DB_MAX_CONNS", 10),
		DBMinConns:         EnvInt32("TDP_DB_MIN_CONNS", 0),
		DBLockTimeout:      EnvDuration("TDP_DB_LOCK_TIMEOUT", 5*time.Second),
		DBStatementTimeout: EnvDuration("TDP_DB_STATEMENT_TIMEOUT", 15*time.Second),
		MigrateOnStart:     EnvBool("TDP_DB_MIGRATE", true),

		ReadinessRequireDB: EnvBool("TDP_READINESS_REQUIRE_DB", !dev),
		RequireTokenHMAC:   EnvBool("TDP_REQUIRE_TOKEN_HMAC", false),

		RedisAddr:     EnvString("TDP_REDIS_ADDR", ""),
		RedisPassword: EnvString("TDP_REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("TDP_REDIS_DB", 0),

		AMQPURL:   EnvString("TDP_AMQP_URL", ""),
		AMQPQueue: EnvString("TDP_AMQP_QUEUE", "tdp.events"),

		Seed:              EnvBool("TDP_SEED", dev),
		SeedAdminEmail:    EnvString("TDP_SEED_ADMIN_EMAIL", "admin@tdp.local"),
		SeedAdminPassword: EnvString("TDP_SEED_ADMIN_PASSWORD", "Admin123!"),

		CORSAllowedOrigins:   EnvList("TDP_CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "http://127.0.0.1:*"}),
		CORSAllowCredentials: EnvBool("TDP_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("TDP_CORS_MAX_AGE_SECONDS", 600),
	}, nil
}

func loadDotenv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

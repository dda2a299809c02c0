package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application configuration.
var Module = fx.Provide(Load)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// APIKeyPepper is a process-wide secret mixed into every key digest.
	// Injected once at startup and never mutated.
	APIKeyPepper string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	QueueStream     string
	QueueGroup      string
	QueueDeadStream string

	NormalizerWorkers int
	NormalizerPollMs  int
	// NormalizerMaxTries seeds the pipeline tuning's maxAttempts default;
	// a pipeline.yml value overrides it.
	NormalizerMaxTries int

	BlobEndpoint  string
	BlobAccessKey string
	BlobSecretKey string
	BlobBucket    string
	BlobRegion    string
	BlobUseTLS    bool

	StoreTimeoutSeconds int

	RateLimitEnabled     bool
	IngestTenantRate     float64
	IngestTenantBurst    int

	SeedTenantName string
	SeedAPIKey     string
}

// Load reads configuration from the environment. A .env file is honored
// for local development.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "edgepulse-ingest"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		APIKeyPepper: strings.TrimSpace(getenv("API_KEY_PEPPER", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "edgepulse"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
		RedisDB:       getenvInt("REDIS_DB", 0),

		QueueStream:        getenv("QUEUE_STREAM", "edgepulse:ingest"),
		QueueGroup:         getenv("QUEUE_GROUP", "normalizer"),
		QueueDeadStream:    getenv("QUEUE_DEAD_STREAM", "edgepulse:ingest:dead"),
		NormalizerWorkers:  getenvInt("NORMALIZER_WORKERS", 4),
		NormalizerPollMs:   getenvInt("NORMALIZER_POLL_MS", 1000),
		NormalizerMaxTries: getenvInt("NORMALIZER_MAX_TRIES", 5),

		BlobEndpoint:  getenv("BLOB_ENDPOINT", "localhost:9000"),
		BlobAccessKey: getenv("BLOB_ACCESS_KEY", ""),
		BlobSecretKey: getenv("BLOB_SECRET_KEY", ""),
		BlobBucket:    getenv("BLOB_BUCKET", "edgepulse-raw"),
		BlobRegion:    getenv("BLOB_REGION", "us-east-1"),
		BlobUseTLS:    getenvBool("BLOB_USE_TLS", false),

		StoreTimeoutSeconds: getenvInt("STORE_TIMEOUT_SECONDS", 10),

		RateLimitEnabled:  getenvBool("RATE_LIMIT_ENABLED", false),
		IngestTenantRate:  getenvFloat("INGEST_TENANT_RATE", 50),
		IngestTenantBurst: getenvInt("INGEST_TENANT_BURST", 100),

		SeedTenantName: strings.TrimSpace(getenv("SEED_TENANT_NAME", "")),
		SeedAPIKey:     strings.TrimSpace(getenv("SEED_API_KEY", "")),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

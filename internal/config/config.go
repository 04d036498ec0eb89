package config

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// InsecureJWTSecret is the development fallback. Never run production with it.
const InsecureJWTSecret = "changeme"

type Config struct {
	Env  string
	Port int

	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int

	// StoreDriver is one of memory, file, sqlite, postgres, mongo.
	StoreDriver   string
	DataFile      string
	SQLitePath    string
	DBURL         string
	MongoURI      string
	MongoDatabase string

	// CacheDriver is one of none, memory, redis.
	CacheDriver     string
	CacheTTL        time.Duration
	CacheMaxEntries int // memory driver only
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	MaxBodyBytes       int64
	CORSAllowedOrigins []string
	AuthRateLimit      int // requests per minute per client IP on register/login

	LogFile string

	// Tracing is off while OTLPEndpoint is empty.
	OTLPEndpoint     string
	OTelServiceName  string
	TraceSampleRatio float64
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Real environment variables win over .env entries.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 3001),

		JWTSecret:  getEnv("JWT_SECRET", InsecureJWTSecret),
		JWTTTL:     getEnvDuration("JWT_TTL", 7*24*time.Hour),
		BcryptCost: getEnvInt("BCRYPT_COST", 10),

		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", "file")),
		DataFile:      getEnv("DATA_FILE", "data.json"),
		SQLitePath:    getEnv("SQLITE_PATH", "hotchoc.db"),
		DBURL:         buildDBURL(),
		MongoURI:      getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "hotchoc"),

		CacheDriver:     strings.ToLower(getEnv("CACHE_DRIVER", "memory")),
		CacheTTL:        getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 256),
		RedisAddr:       getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),

		MaxBodyBytes:       int64(getEnvInt("MAX_BODY_BYTES", 16<<20)),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		AuthRateLimit:      getEnvInt("AUTH_RATE_LIMIT", 10),

		LogFile: getEnv("LOG_FILE", ""),

		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelServiceName:  getEnv("OTEL_SERVICE_NAME", "hotchoc"),
		TraceSampleRatio: getEnvRatio("OTEL_TRACES_SAMPLER_ARG", 1),
	}
}

// UsesInsecureSecret reports whether tokens are signed with the dev fallback.
func (c Config) UsesInsecureSecret() bool {
	return c.JWTSecret == InsecureJWTSecret
}

func buildDBURL() string {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "hotchoc")
	pass := getEnv("DB_PASSWORD", "hotchoc")
	name := getEnv("DB_NAME", "hotchoc")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)

		if err != nil {
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)

		if err != nil || d <= 0 {
			return fallback
		}

		return d
	}
	return fallback
}

// getEnvRatio reads a sampling ratio in [0, 1].
func getEnvRatio(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)

		if err != nil || f < 0 || f > 1 {
			return fallback
		}

		return f
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	if len(out) == 0 {
		return fallback
	}
	return out
}

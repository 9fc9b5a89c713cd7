package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel  string
	LogFormat string

	Workers          int
	QueueSize        int
	FetchTimeout     time.Duration
	ExtractTimeout   time.Duration
	MaxDocumentBytes int64
	UserAgent        string
	UseReadability   bool
	FingerprintAlgo  string
	MissingURLPolicy string

	OutputPath string

	DatabaseURL string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	CacheSize     int

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	Port string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Workers:          getEnvInt("WORKERS", 8),
		QueueSize:        getEnvInt("QUEUE_SIZE", 64),
		FetchTimeout:     getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		ExtractTimeout:   getEnvDuration("EXTRACT_TIMEOUT", 2*time.Minute),
		MaxDocumentBytes: int64(getEnvInt("MAX_DOCUMENT_BYTES", 100<<20)),
		UserAgent:        getEnv("USER_AGENT", "iatidocs/1.0"),
		UseReadability:   getEnvBool("USE_READABILITY", false),
		FingerprintAlgo:  getEnv("FINGERPRINT_ALGO", "sha224"),
		MissingURLPolicy: getEnv("MISSING_URL_POLICY", "skip"),

		OutputPath: getEnv("OUTPUT_PATH", "outcomes.jsonl"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDatabase:   getEnv("MONGO_DATABASE", "iatidocs"),
		MongoCollection: getEnv("MONGO_COLLECTION", "outcomes"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvDuration("CACHE_TTL", 720*time.Hour),
		CacheSize:     getEnvInt("CACHE_SIZE", 1024),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", ""),

		Port: getEnv("PORT", "8080"),
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("QUEUE_SIZE must not be negative, got %d", c.QueueSize)
	}
	switch strings.ToLower(c.FingerprintAlgo) {
	case "", "sha224", "sha3-224":
	default:
		return fmt.Errorf("unknown FINGERPRINT_ALGO %q", c.FingerprintAlgo)
	}
	switch strings.ToLower(strings.TrimSpace(c.MissingURLPolicy)) {
	case "", "skip", "fail":
	default:
		return fmt.Errorf("unknown MISSING_URL_POLICY %q", c.MissingURLPolicy)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("CACHE_SIZE must not be negative, got %d", c.CacheSize)
	}
	return nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Config value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("Config value is not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Config value is not a bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/joho/godotenv"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
	StoreScylla = "scylla"
)

// Config aggregates gateway configuration loaded from the environment.
type Config struct {
	Env             string
	LogLevel        string
	HTTPAddr        string
	JWTSecret       string
	JWTLeeway       time.Duration
	AllowedOrigins  []string
	ShutdownTimeout time.Duration

	RedisURL string

	StoreDriver string
	MongoURI    string
	MongoDB     string

	ChatStore         string
	ScyllaHosts       []string
	ScyllaKeyspace    string
	ScyllaConsistency gocql.Consistency
	ScyllaTimeout     time.Duration

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaBookingTopic  string
	KafkaConsumerGroup string
	KafkaSource        string

	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3UseSSL        bool
	S3PublicBaseURL string

	SystemEmail        string
	SystemPassword     string
	SystemPasswordCost int

	OTLPEndpoint string
}

// Load reads an optional .env file and parses configuration from the
// environment. Variables already set win over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg := Config{
		Env:                getEnv("APP_ENV", "dev"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":3001"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AllowedOrigins:     splitAndTrim(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		RedisURL:           os.Getenv("REDIS_URL"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", StoreMongo)),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getEnv("MONGO_DB", "gigs"),
		ChatStore:          strings.ToLower(getEnv("CHAT_STORE", StoreMongo)),
		ScyllaHosts:        splitAndTrim(getEnv("SCYLLA_HOSTS", "localhost")),
		ScyllaKeyspace:     strings.TrimSpace(getEnv("SCYLLA_KEYSPACE", "gigsocket_chat")),
		KafkaBrokers:       splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicPrefix:   getEnv("KAFKA_TOPIC_PREFIX", "gigs"),
		KafkaBookingTopic:  getEnv("KAFKA_BOOKING_TOPIC", ""),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "gigsocket"),
		KafkaSource:        getEnv("KAFKA_SOURCE", "gigsocket"),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		S3AccessKey:        getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:        getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:           getEnv("S3_BUCKET", "chat-attachments"),
		S3PublicBaseURL:    getEnv("S3_PUBLIC_BASE_URL", ""),
		SystemEmail:        getEnv("SYSTEM_EMAIL", "system@gigs.local"),
		SystemPassword:     os.Getenv("SYSTEM_PASSWORD"),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if frontend := strings.TrimSpace(os.Getenv("FRONTEND_URL")); frontend != "" {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, frontend)
	}
	if cfg.KafkaBookingTopic == "" {
		cfg.KafkaBookingTopic = cfg.KafkaTopicPrefix + ".crud.bookings.v1"
	}

	var err error
	if cfg.JWTLeeway, err = parseDurationEnv("JWT_LEEWAY", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaTimeout, err = parseDurationEnv("SCYLLA_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.SystemPasswordCost, err = parseIntEnv("SYSTEM_PASSWORD_COST", 0); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaConsistency, err = parseConsistency(getEnv("SCYLLA_CONSISTENCY", "quorum")); err != nil {
		return Config{}, err
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL is required")
	}
	switch cfg.StoreDriver {
	case StoreMongo:
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	case StoreMemory:
	default:
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER: %s", cfg.StoreDriver)
	}
	switch cfg.ChatStore {
	case StoreMongo, StoreMemory:
	case StoreScylla:
		if len(cfg.ScyllaHosts) == 0 || cfg.ScyllaKeyspace == "" {
			return Config{}, fmt.Errorf("SCYLLA_HOSTS and SCYLLA_KEYSPACE are required when CHAT_STORE=scylla")
		}
	default:
		return Config{}, fmt.Errorf("unsupported CHAT_STORE: %s", cfg.ChatStore)
	}
	if cfg.SystemPassword == "" {
		return Config{}, fmt.Errorf("SYSTEM_PASSWORD is required")
	}
	return cfg, nil
}

// KafkaEnabled reports whether domain events go to Kafka.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// S3Enabled reports whether chat attachments are checked against object storage.
func (c Config) S3Enabled() bool {
	return c.S3Endpoint != ""
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
	return v, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %q", key, raw)
	}
	return v, nil
}

func parseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}

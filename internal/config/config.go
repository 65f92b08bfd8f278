package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Store drivers
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Blob drivers, mirrored from blob.Driver so config stays import-free
const (
	BlobDatabase = "database"
	BlobS3       = "s3"
	BlobMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	LogLevel    string
	Store       StoreConfig
	Blob        BlobConfig
	HTTP        HTTPConfig
	RabbitMQ    RabbitMQConfig
	Validation  ValidationConfig
	Report      ReportConfig
}

// StoreConfig selects and locates the record store
type StoreConfig struct {
	Driver       string
	DatabaseURL  string
	DatabaseName string
	SQLitePath   string
}

// BlobConfig selects and locates the image store
type BlobConfig struct {
	Driver            string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3PathStyle       bool
	S3Prefix          string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// HTTPConfig holds API limits
type HTTPConfig struct {
	MaxUploadBytes  int64
	DefaultPageSize int
	MaxPageSize     int
}

// RabbitMQConfig holds RabbitMQ connection and exchange settings.
// Events and reading sync are disabled when URL is empty.
type RabbitMQConfig struct {
	URL                string
	EventsExchange     string
	ReadingsExchange   string
	ReadingsQueue      string
	ReadingsRoutingKey string
	DLQQueue           string
	PrefetchCount      int
}

// Enabled reports whether a broker is configured
func (c RabbitMQConfig) Enabled() bool {
	return c.URL != ""
}

// ValidationConfig holds reading validation settings
type ValidationConfig struct {
	TimestampToleranceMinutes int
}

// ReportConfig lists PDF engines in the order they are tried
type ReportConfig struct {
	Engines []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "meter-dashboard"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8080),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Store: StoreConfig{
			Driver:       strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
			DatabaseURL:  getEnv("DATABASE_URL", ""),
			DatabaseName: getEnv("DATABASE_NAME", ""),
			SQLitePath:   getEnv("SQLITE_PATH", "meter-dashboard.db"),
		},
		Blob: BlobConfig{
			Driver:            strings.ToLower(getEnv("BLOB_DRIVER", BlobDatabase)),
			S3Bucket:          getEnv("BLOB_S3_BUCKET", ""),
			S3Region:          getEnv("BLOB_S3_REGION", "us-east-1"),
			S3Endpoint:        getEnv("BLOB_S3_ENDPOINT", ""),
			S3PathStyle:       getEnvAsBool("BLOB_S3_PATH_STYLE", false),
			S3Prefix:          getEnv("BLOB_S3_PREFIX", "meter-images/"),
			S3AccessKeyID:     getEnv("BLOB_S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("BLOB_S3_SECRET_ACCESS_KEY", ""),
		},
		HTTP: HTTPConfig{
			MaxUploadBytes:  int64(getEnvAsFloat("HTTP_MAX_UPLOAD_MB", 10) * 1024 * 1024),
			DefaultPageSize: getEnvAsInt("HTTP_DEFAULT_PAGE_SIZE", 9),
			MaxPageSize:     getEnvAsInt("HTTP_MAX_PAGE_SIZE", 100),
		},
		RabbitMQ: RabbitMQConfig{
			URL:                getEnv("RABBITMQ_URL", ""),
			EventsExchange:     getEnv("RABBITMQ_EVENTS_EXCHANGE", "meter-dashboard.events.exchange"),
			ReadingsExchange:   getEnv("RABBITMQ_READINGS_EXCHANGE", "energy-metering.worker.events.exchange"),
			ReadingsQueue:      getEnv("RABBITMQ_READINGS_QUEUE", "meter-dashboard.readings.queue"),
			ReadingsRoutingKey: getEnv("RABBITMQ_READINGS_ROUTING_KEY", "meter.reading.accepted"),
			DLQQueue:           getEnv("RABBITMQ_DLQ_QUEUE", "meter-dashboard.readings.dlq"),
			PrefetchCount:      getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Validation: ValidationConfig{
			TimestampToleranceMinutes: getEnvAsInt("VALIDATION_TIMESTAMP_TOLERANCE_MINUTES", 10080),
		},
		Report: ReportConfig{
			Engines: getEnvAsList("REPORT_ENGINES", []string{"fpdf", "basic"}),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StorePostgres)
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=%s", StoreSQLite)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q (want %s or %s)", c.Store.Driver, StorePostgres, StoreSQLite)
	}

	switch c.Blob.Driver {
	case BlobDatabase, BlobMemory:
	case BlobS3:
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("BLOB_S3_BUCKET is required when BLOB_DRIVER=%s", BlobS3)
		}
	default:
		return fmt.Errorf("unsupported BLOB_DRIVER %q (want %s, %s or %s)", c.Blob.Driver, BlobDatabase, BlobS3, BlobMemory)
	}

	if c.HTTP.DefaultPageSize <= 0 || c.HTTP.MaxPageSize < c.HTTP.DefaultPageSize {
		return fmt.Errorf("invalid page sizes: default %d, max %d", c.HTTP.DefaultPageSize, c.HTTP.MaxPageSize)
	}
	if len(c.Report.Engines) == 0 {
		return fmt.Errorf("REPORT_ENGINES must name at least one engine")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

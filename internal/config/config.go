package config

import (
	"os"
	"strconv"
)

// Store backends selectable through REGISTRY_STORE.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// MinIOConfig holds object storage settings for the audit journal.
// An empty Endpoint disables auditing.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// ObjectLocking enables object locking when the bucket has to be created.
	ObjectLocking bool
	// AuditRetentionDays keeps each audit object under governance retention for this many days (0 disables).
	AuditRetentionDays int
}

// RedisConfig locates the Redis instance the ledger publishes its height to.
// An empty Host makes the service use an in-process height counter.
type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	HeightKey string
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// RegistryConfig holds settings of the registry itself.
type RegistryConfig struct {
	// Administrator is the principal allowed to read statistics and freeze any document.
	Administrator string
	// GrantMode is "persist" or "check-only".
	GrantMode string
	// Store is StorePostgres or StoreMemory.
	Store string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost  string
	Port     string
	LogLevel string
	Registry RegistryConfig
	Database DatabaseConfig
	MinIO    MinIOConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:  getEnv("APP_HOST", "localhost:8080"),
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Registry: RegistryConfig{
			Administrator: getEnv("REGISTRY_ADMIN", ""),
			GrantMode:     getEnv("REGISTRY_GRANT_MODE", "persist"),
			Store:         getEnv("REGISTRY_STORE", StorePostgres),
		},
		Database: DatabaseConfig{
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),

			ObjectLocking:      getEnvBool("MINIO_OBJECT_LOCKING", false),
			AuditRetentionDays: getEnvInt("MINIO_AUDIT_RETENTION_DAYS", 0),
		},
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", ""),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			HeightKey: getEnv("REDIS_HEIGHT_KEY", "ledger:height"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "docregistry"),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

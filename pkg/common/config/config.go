package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	PIIDriverSQLite   = "sqlite"
	PIIDriverPostgres = "postgres"

	ClinicalBackendFirestore = "firestore"
	ClinicalBackendSQL       = "sql"
	ClinicalBackendRedis     = "redis"
	ClinicalBackendMemory    = "memory"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	RateLimitRPS   int
	RateLimitBurst int

	// PII store (restricted)
	PIIDriver     string
	PIISQLitePath string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Clinical store (open)
	ClinicalBackend         string
	ClinicalDatabaseURL     string
	ClinicalCollection      string
	FirebaseCredentialsFile string
	FirebaseProjectID       string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers   []string
	KafkaGroupID   string
	LifecycleTopic string

	// Separation
	StoreTimeout         time.Duration
	GuardRulesPath       string
	VerifierPreviewLimit int

	// Logging
	LogLevel string
	LogFile  string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1024*1024)),
		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),

		PIIDriver:     strings.ToLower(getEnv("PII_DRIVER", PIIDriverSQLite)),
		PIISQLitePath: getEnv("PII_SQLITE_PATH", "db_local.sqlite"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "medsplit"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "medsplit"),
		PostgresDB:       getEnv("POSTGRES_DB", "medsplit_pii"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		ClinicalBackend:         strings.ToLower(getEnv("CLINICAL_BACKEND", ClinicalBackendFirestore)),
		ClinicalDatabaseURL:     getEnv("CLINICAL_DATABASE_URL", ""),
		ClinicalCollection:      getEnv("CLINICAL_COLLECTION", "patients_medical"),
		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", "firebase_key.json"),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:   getStringSliceEnv("KAFKA_BROKERS", nil),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "separation-auditor"),
		LifecycleTopic: getEnv("LIFECYCLE_TOPIC", "patient-lifecycle"),

		StoreTimeout:         getDuration("STORE_TIMEOUT", 5*time.Second),
		GuardRulesPath:       getEnv("GUARD_RULES_PATH", ""),
		VerifierPreviewLimit: getIntEnv("VERIFIER_PREVIEW_LIMIT", 3),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", "app.log"),
	}
}

// EventsEnabled reports whether lifecycle events should be published.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.LifecycleTopic != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppMode string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// CacheTTL is how long a cached account (and its secondary lookup
	// keys) survives before a read falls through to the primary store.
	CacheTTL time.Duration

	// TombstoneTTL is how long a deleted account's ACI is retained as a
	// recently-deleted tombstone, eligible for re-registration reuse.
	TombstoneTTL time.Duration

	// LeaseTTL bounds how long a phone-number critical section may be
	// held before it is considered abandoned and safe to steal.
	LeaseTTL time.Duration

	SecureStorageRegion string
	SecureStorageBucket string
	SecureBackupRegion  string
	SecureBackupBucket  string
	AWSAccessKey        string
	AWSSecretKey        string
	AWSEndpoint         string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort: getEnv("APP_PORT", "8080"),
		AppMode: getEnv("APP_MODE", "debug"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "accountd"),
		DBPort:     getEnv("DB_PORT", "5432"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		CacheTTL:     time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 2*24*3600)) * time.Second,
		TombstoneTTL: time.Duration(getEnvAsInt("TOMBSTONE_TTL_SECONDS", 7*24*3600)) * time.Second,
		LeaseTTL:     time.Duration(getEnvAsInt("LEASE_TTL_SECONDS", 10)) * time.Second,

		SecureStorageRegion: getEnv("SECURE_STORAGE_REGION", "us-east-1"),
		SecureStorageBucket: getEnv("SECURE_STORAGE_BUCKET", "secure-storage"),
		SecureBackupRegion:  getEnv("SECURE_BACKUP_REGION", "us-east-1"),
		SecureBackupBucket:  getEnv("SECURE_BACKUP_BUCKET", "secure-backup"),
		AWSAccessKey:        getEnv("AWS_ACCESS_KEY", ""),
		AWSSecretKey:        getEnv("AWS_SECRET_KEY", ""),
		AWSEndpoint:         getEnv("AWS_ENDPOINT", ""),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

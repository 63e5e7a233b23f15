// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port           string
	LogLevel       string
	MaxUploadBytes int64

	DatabaseDriver string
	DatabaseURL    string
	MigrationsDir  string

	JWTSecret string
	JWTTTL    time.Duration

	SigexBaseURL         string
	SigexTimeout         time.Duration
	SigexLongPollTimeout time.Duration
	SigexPollRetries     int
	SigexPollInterval    time.Duration
	SigexSendRetries     int
	SigexSendRetryDelay  time.Duration

	StorageBackend    string
	MediaRoot         string
	StorageEncryption string
	KMSKeyName        string

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Prefix          string

	MinioEndpoint        string
	MinioAccessKeyID     string
	MinioSecretAccessKey string
	MinioUseSSL          bool
	MinioBucket          string
	MinioRegion          string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SigningLockTTL time.Duration

	GoogleCloudProject string
	OtelEnabled        bool
	OtelEndpoint       string
	OtelInsecure       bool
	OtelServiceName    string
	OtelSamplingRate   float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),
		MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 50<<20),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "mysql"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrationsDir:  getEnv("MIGRATIONS_DIR", "migrations"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		SigexBaseURL:         getEnv("SIGEX_BASE_URL", "https://sigex.kz"),
		SigexTimeout:         getEnvDuration("SIGEX_TIMEOUT", 30*time.Second),
		SigexLongPollTimeout: getEnvDuration("SIGEX_LONG_POLL_TIMEOUT", 5*time.Minute),
		SigexPollRetries:     getEnvInt("SIGEX_QR_POLL_RETRIES", 60),
		SigexPollInterval:    getEnvDuration("SIGEX_QR_POLL_INTERVAL", 3*time.Second),
		SigexSendRetries:     getEnvInt("SIGEX_SEND_RETRIES", 5),
		SigexSendRetryDelay:  getEnvDuration("SIGEX_SEND_RETRY_DELAY", time.Second),

		StorageBackend:    getEnv("FILE_STORAGE_BACKEND", "local"),
		MediaRoot:         getEnv("MEDIA_ROOT", "./media"),
		StorageEncryption: getEnv("STORAGE_ENCRYPTION", "none"),
		KMSKeyName:        os.Getenv("KMS_KEY_NAME"),

		S3Bucket:          os.Getenv("AWS_STORAGE_BUCKET_NAME"),
		S3Region:          getEnv("AWS_S3_REGION_NAME", "us-east-1"),
		S3Endpoint:        os.Getenv("AWS_S3_ENDPOINT_URL"),
		S3AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		S3Prefix:          os.Getenv("AWS_S3_PREFIX"),

		MinioEndpoint:        os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKeyID:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretAccessKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:          getEnvBool("MINIO_USE_SSL", false),
		MinioBucket:          getEnv("MINIO_BUCKET", "documents"),
		MinioRegion:          os.Getenv("MINIO_REGION"),

		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		SigningLockTTL: getEnvDuration("SIGNING_LOCK_TTL", 10*time.Minute),

		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		OtelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelInsecure:       getEnvBool("OTEL_INSECURE", false),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "doc-sign-service"),
		OtelSamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultVal
}

// getEnvDuration は "30s" のような期間か秒数を受け付ける。
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

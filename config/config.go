package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort    string
	AppMode    string
	LogMode    string
	AgentName  string
	UploadRoot string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	S3Region     string
	S3Bucket     string
	S3AccessKey  string
	S3SecretKey  string
	S3Endpoint   string
	S3PublicBase string
	S3PresignTTL time.Duration

	Transfer  TransferConfig
	RateLimit RateLimitConfig
}

// TransferConfig tunes the upload pipeline. The *GB/*MB values are only
// fallbacks: the live values come from the system_config feature flags.
type TransferConfig struct {
	HashChunkSize         int
	ETAWindow             int
	ProgressPersistStep   int
	UploadTimeout         time.Duration
	VerifyTimeout         time.Duration
	MultipartPartSize     int64
	DefaultMaxFileSizeGB  float64
	DefaultClientQuotaGB  float64
	DefaultPlan           string
	ResumableEnabled      bool
	ResumableThresholdMB  float64
	EnforceMIMEWhitelist  bool
	FlagCacheTTL          time.Duration
	MetricsWriteTimeout   time.Duration
	EventLogWriteTimeout  time.Duration
	MaxConcurrentSessions int
}

type RateLimitConfig struct {
	StartLimit    int
	StartWindow   time.Duration
	ConnectLimit  int
	ConnectWindow time.Duration
}

func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),
		AppMode:    getEnv("APP_MODE", "debug"),
		LogMode:    getEnv("LOG_MODE", "development"),
		AgentName:  getEnv("AGENT_NAME", "docvault-agent"),
		UploadRoot: getEnv("UPLOAD_ROOT", "."),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "docvault"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		S3Region:     getEnv("S3_REGION", "us-east-1"),
		S3Bucket:     getEnv("S3_BUCKET", "client-documents"),
		S3AccessKey:  getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:  getEnv("S3_SECRET_KEY", ""),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3PublicBase: getEnv("S3_PUBLIC_BASE", ""),
		S3PresignTTL: getEnvAsDuration("S3_PRESIGN_TTL", time.Hour),

		Transfer: TransferConfig{
			HashChunkSize:         getEnvAsInt("HASH_CHUNK_SIZE", 0),
			ETAWindow:             getEnvAsInt("HASH_ETA_WINDOW", 5),
			ProgressPersistStep:   getEnvAsInt("PROGRESS_PERSIST_STEP", 10),
			UploadTimeout:         getEnvAsDuration("UPLOAD_TIMEOUT", 2*time.Hour),
			VerifyTimeout:         getEnvAsDuration("VERIFY_TIMEOUT", 30*time.Second),
			MultipartPartSize:     int64(getEnvAsInt("MULTIPART_PART_SIZE_MB", 16)) * 1024 * 1024,
			DefaultMaxFileSizeGB:  getEnvAsFloat("MAX_FILE_SIZE_GB", 5),
			DefaultClientQuotaGB:  getEnvAsFloat("CLIENT_QUOTA_GB", 10),
			DefaultPlan:           getEnv("STORAGE_PLAN", "pro"),
			ResumableEnabled:      getEnvAsBool("ENABLE_RESUMABLE_UPLOADS", true),
			ResumableThresholdMB:  getEnvAsFloat("RESUMABLE_THRESHOLD_MB", 100),
			EnforceMIMEWhitelist:  getEnvAsBool("ENFORCE_MIME_WHITELIST", true),
			FlagCacheTTL:          getEnvAsDuration("FLAG_CACHE_TTL", time.Minute),
			MetricsWriteTimeout:   getEnvAsDuration("METRICS_WRITE_TIMEOUT", 10*time.Second),
			EventLogWriteTimeout:  getEnvAsDuration("EVENT_LOG_WRITE_TIMEOUT", 5*time.Second),
			MaxConcurrentSessions: getEnvAsInt("MAX_CONCURRENT_SESSIONS", 8),
		},
		RateLimit: RateLimitConfig{
			StartLimit:    getEnvAsInt("UPLOAD_START_LIMIT", 30),
			StartWindow:   getEnvAsDuration("UPLOAD_START_WINDOW", time.Minute),
			ConnectLimit:  getEnvAsInt("WS_CONNECT_LIMIT", 20),
			ConnectWindow: getEnvAsDuration("WS_CONNECT_WINDOW", time.Minute),
		},
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

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

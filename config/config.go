package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the pixeltruth service
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	TrustedProxies []string
	AllowedOrigins []string

	// Logging
	LogLevel  string
	LogFormat string

	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Security
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Uploads
	UploadDir              string
	MaxFileSize            int64
	AllowedImageExtensions []string
	StorePreviews          bool

	// Classifier
	ClassifierMode       string
	ClassifierURL        string
	ClassifierModel      string
	ClassifierTimeout    time.Duration
	ClassifierMaxRetries int
	ClassifierFallback   string
	ModelVersion         string

	// RabbitMQ, disabled when AMQPURL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Rate limiting per client IP
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug(".env file not found, using system environment variables")
	}

	cfg := &Config{
		Port:    getEnv("PORT", "8000"),
		GinMode: getEnv("GIN_MODE", "release"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "pixeltruth"),

		AccessTokenTTL:  getDurationEnv("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTokenTTL: getDurationEnv("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		UploadDir:              getEnv("UPLOAD_DIR", "uploads"),
		MaxFileSize:            int64(getIntEnv("MAX_FILE_SIZE", 50*1024*1024)),
		AllowedImageExtensions: getStringSliceEnv("ALLOWED_IMAGE_EXTENSIONS", ".jpg,.jpeg,.png,.bmp,.tiff,.tif,.webp,.gif"),
		StorePreviews:          getBoolEnv("STORE_PREVIEWS", true),

		ClassifierMode:       getEnv("CLASSIFIER_MODE", "remote"),
		ClassifierURL:        getEnv("CLASSIFIER_URL", "http://localhost:8080"),
		ClassifierModel:      getEnv("CLASSIFIER_MODEL", "ai_detection"),
		ClassifierTimeout:    getDurationEnv("CLASSIFIER_TIMEOUT", 30*time.Second),
		ClassifierMaxRetries: getIntEnv("CLASSIFIER_MAX_RETRIES", 2),
		ClassifierFallback:   getEnv("CLASSIFIER_FALLBACK", "error"),
		ModelVersion:         getEnv("MODEL_VERSION", "2.1.0"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "pixeltruth"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "analysis.completed"),

		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 20),

		TrustedProxies: getStringSliceEnv("TRUSTED_PROXIES", ""),
		AllowedOrigins: getStringSliceEnv("ALLOWED_ORIGINS", "*"),
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		// Tokens signed with a random key do not survive a restart.
		key := make([]byte, 32)
		rand.Read(key)
		jwtSecret = hex.EncodeToString(key)
		log.Warn("JWT_SECRET not set, generated a temporary signing key")
	}
	cfg.JWTSecret = jwtSecret

	return cfg
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv accepts the values strconv.ParseBool understands
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getStringSliceEnv splits a comma-separated variable, dropping empty items
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return []string{}
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	Environment     string

	// Chat engine tuning.
	PageSize            int
	CacheTTL            time.Duration
	CacheSweepInterval  time.Duration
	ListenerMaxRetries  int
	ListenerBaseBackoff time.Duration
	ListenerMaxBackoff  time.Duration

	// Key for private-conversation message bodies, base64 or hex, 32 bytes.
	MessageEncryptionKey string
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		FirebaseProject: getEnv("FIREBASE_PROJECT_ID", ""),
		Environment:     getEnv("ENVIRONMENT", "development"),

		PageSize:            getEnvAsInt("CHAT_PAGE_SIZE", 50),
		CacheTTL:            getEnvAsDuration("CHAT_CACHE_TTL", 10*time.Minute),
		CacheSweepInterval:  getEnvAsDuration("CHAT_CACHE_SWEEP_INTERVAL", 5*time.Minute),
		ListenerMaxRetries:  getEnvAsInt("CHAT_LISTENER_MAX_RETRIES", 5),
		ListenerBaseBackoff: getEnvAsDuration("CHAT_LISTENER_BASE_BACKOFF", time.Second),
		ListenerMaxBackoff:  getEnvAsDuration("CHAT_LISTENER_MAX_BACKOFF", 30*time.Second),

		MessageEncryptionKey: getEnv("MESSAGE_ENCRYPTION_KEY", ""),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.Atoi(value)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

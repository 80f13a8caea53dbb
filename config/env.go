package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Secrets are read from the environment only, never from the config file.
type Secrets struct {
	BinanceAPIKey    string
	BinanceSecretKey string
	TelegramToken    string
	TelegramChatID   string
	RedisAddr        string
	RedisPassword    string
	RedisChannel     string
	PostgresDSN      string
	SQLitePath       string
	LogLevel         string
}

// LoadEnv loads a .env file into the process environment. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func SecretsFromEnv() Secrets {
	return Secrets{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceSecretKey: os.Getenv("BINANCE_SECRET_KEY"),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisChannel:     getEnvOrDefault("REDIS_CHANNEL", DefaultRedisChannel),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		SQLitePath:       os.Getenv("SQLITE_PATH"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

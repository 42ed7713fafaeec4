package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the bot
type Config struct {
	// Discord
	DiscordToken string

	// Operator webhook for task summaries (optional)
	LogWebhookURL string

	// Database
	DatabasePath string

	// Per-game stream schedule file
	SchedulePath string

	// Polling
	OfficialPollIntervalSeconds int

	// Metrics listener address, empty to disable
	MetricsAddr string

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:  os.Getenv("DISCORD_BOT_TOKEN"),
		LogWebhookURL: os.Getenv("LOG_WEBHOOK_URL"),
		DatabasePath:  getEnvOrDefault("DATABASE_PATH", "./data/bot.db"),
		SchedulePath:  getEnvOrDefault("SCHEDULE_CONFIG_PATH", "./data/schedule.json"),
		MetricsAddr:   getEnvOrDefault("METRICS_ADDR", ""),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
	}

	// Parse polling interval
	pollingStr := getEnvOrDefault("OFFICIAL_POLL_INTERVAL_SECONDS", "180")
	polling, err := strconv.Atoi(pollingStr)
	if err != nil {
		return nil, fmt.Errorf("invalid OFFICIAL_POLL_INTERVAL_SECONDS: %w", err)
	}
	cfg.OfficialPollIntervalSeconds = polling

	// Validate required fields
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"clipbot/internal/logging"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the bot process.
type Config struct {
	// Telegram transport.
	BotToken string
	APIURL   string // Base URL of the Bot API, override for testing.

	// External tools.
	FFmpegPath  string
	FFprobePath string

	// Scratch space for downloaded inputs and produced outputs.
	WorkDir string

	// Admin HTTP surface (health + metrics).
	AdminPort      string
	MetricsEnabled bool

	// Job execution.
	JobTimeout       time.Duration
	MaxActiveJobs    int
	ProgressInterval time.Duration
}

// Load reads configuration from the environment, applying defaults and
// validating required values. A .env file in the working directory is
// loaded first when present.
func Load() (*Config, error) {
	// Missing .env is the normal case in production.
	_ = godotenv.Load()

	cfg := &Config{
		BotToken:         os.Getenv("BOT_TOKEN"),
		APIURL:           getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:      getEnv("FFPROBE_PATH", "ffprobe"),
		WorkDir:          getEnv("WORK_DIR", filepath.Join(os.TempDir(), "clipbot")),
		AdminPort:        getEnv("ADMIN_PORT", "9090"),
		MetricsEnabled:   getEnvBool("METRICS_ENABLED", true),
		JobTimeout:       getEnvDuration("JOB_TIMEOUT", 30*time.Minute),
		MaxActiveJobs:    getEnvInt("MAX_ACTIVE_JOBS", 2*runtime.GOMAXPROCS(0)),
		ProgressInterval: getEnvDuration("PROGRESS_INTERVAL", 2*time.Second),
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.MaxActiveJobs < 1 {
		cfg.MaxActiveJobs = 1
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir %s: %w", cfg.WorkDir, err)
	}

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  TELEGRAM_API_URL:  %s", cfg.APIURL)
	logging.Info("  FFMPEG_PATH:       %s", cfg.FFmpegPath)
	logging.Info("  FFPROBE_PATH:      %s", cfg.FFprobePath)
	logging.Info("  WORK_DIR:          %s", cfg.WorkDir)
	logging.Info("  ADMIN_PORT:        %s", cfg.AdminPort)
	logging.Info("  METRICS_ENABLED:   %v", cfg.MetricsEnabled)
	logging.Info("  JOB_TIMEOUT:       %s", cfg.JobTimeout)
	logging.Info("  MAX_ACTIVE_JOBS:   %d", cfg.MaxActiveJobs)
	logging.Info("  PROGRESS_INTERVAL: %s", cfg.ProgressInterval)
	logging.Info("  LOG_LEVEL:         %s", logging.GetLevel())

	return cfg, nil
}

// getEnv returns the environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns the environment variable as a boolean or a default
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an int or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		logging.Warn("Invalid %s=%q, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration returns the environment variable as a duration or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		logging.Warn("Invalid %s=%q, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

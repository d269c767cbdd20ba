// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir         string
	Port            string
	OpenAIAPIKey    string
	OpenAIModel     string
	BlueprintLimit  int
	BlueprintWindow time.Duration
	MaxBodyBytes    int64
}

// Load reads .env files in the working directory, if any, then the
// environment. Variables already set in the environment win.
func Load(files ...string) (Config, error) {
	_ = godotenv.Load(files...)
	return LoadConfig()
}

func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.DataDir = envOrDefault("AEON_DATA_DIR", defaultDataDir())
	cfg.Port = envOrDefault("PORT", "8080")
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = envOrDefault("OPENAI_MODEL", "gpt-3.5-turbo")

	limit, err := parseIntEnv("BLUEPRINT_RATE_LIMIT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse BLUEPRINT_RATE_LIMIT: %w", err)
	}
	cfg.BlueprintLimit = int(limit)

	windowSeconds, err := parseIntEnv("BLUEPRINT_RATE_WINDOW_SECONDS", 60)
	if err != nil {
		return Config{}, fmt.Errorf("parse BLUEPRINT_RATE_WINDOW_SECONDS: %w", err)
	}
	cfg.BlueprintWindow = time.Duration(windowSeconds) * time.Second

	cfg.MaxBodyBytes, err = parseIntEnv("MAX_BODY_BYTES", 16*1024)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_BODY_BYTES: %w", err)
	}

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = absDataDir

	return cfg, nil
}

// LibraryPath is the catalog database inside the data directory.
func (c Config) LibraryPath() string {
	return filepath.Join(c.DataDir, "library.db")
}

// defaultDataDir is XDG_DATA_HOME/aeonsight or ~/.local/share/aeonsight.
func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "aeonsight")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "aeonsight")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}

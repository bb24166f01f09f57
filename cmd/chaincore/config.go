package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all chaincore server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath        string `json:"db_path"`
	InMemory      bool   `json:"in_memory"`
	LogLevel      string `json:"log_level"`
	LogFormat     string `json:"log_format"`
	MetricsAddr   string `json:"metrics_addr"`
	PanelAddr     string `json:"panel_addr"`
	WebhookURL    string `json:"webhook_url"`
	WebhookSecret string `json:"webhook_secret"`
	Scheduler     bool   `json:"scheduler"`
}

func defaultConfig() Config {
	return Config{
		DBPath:    "file:" + filepath.Join(chaincoreDir(), "chaincore.db"),
		LogLevel:  "info",
		LogFormat: "json",
		Scheduler: true,
	}
}

func chaincoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chaincore"
	}
	return filepath.Join(home, ".chaincore")
}

func settingsPath() string {
	return filepath.Join(chaincoreDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("CHAINCORE_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("CHAINCORE_IN_MEMORY"); v != "" {
		cfg.InMemory = parseBool(v)
	}
	if v := os.Getenv("CHAINCORE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CHAINCORE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("CHAINCORE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("CHAINCORE_PANEL_ADDR"); v != "" {
		cfg.PanelAddr = v
	}
	if v := os.Getenv("CHAINCORE_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("CHAINCORE_WEBHOOK_SECRET"); v != "" {
		cfg.WebhookSecret = v
	}
	if v := os.Getenv("CHAINCORE_SCHEDULER"); v != "" {
		cfg.Scheduler = parseBool(v)
	}

	return cfg
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

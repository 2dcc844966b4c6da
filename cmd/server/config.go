package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from an optional yaml file
// with environment overrides on top.
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
	Game struct {
		MaxPlayers       int `yaml:"max_players"`
		TargetScore      int `yaml:"target_score"`
		TurnTimeLimitSec int `yaml:"turn_time_limit_sec"`
	} `yaml:"game"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Addr = getEnv("ADDR", defaultString(config.Server.Addr, ":8080"))
	config.Database.URL = getEnv("DATABASE_URL", config.Database.URL)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)
	config.Game.MaxPlayers = getEnvAsInt("GAME_MAX_PLAYERS", defaultInt(config.Game.MaxPlayers, 6))
	config.Game.TargetScore = getEnvAsInt("GAME_TARGET_SCORE", defaultInt(config.Game.TargetScore, 100))
	config.Game.TurnTimeLimitSec = getEnvAsInt("GAME_TURN_TIME_LIMIT_SEC", defaultInt(config.Game.TurnTimeLimitSec, 20))

	return &config, nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

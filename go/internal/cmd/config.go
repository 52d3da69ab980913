package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration loaded from yaml, with env-var
// fallbacks for the workflow durations.
type Config struct {
	Workflow struct {
		AutoConfirmSeconds   int `yaml:"auto_confirm_seconds"`
		InactivitySeconds    int `yaml:"inactivity_seconds"`
		CountdownTickSeconds int `yaml:"countdown_tick_seconds"`
	} `yaml:"workflow"`
	NATS struct {
		URL           string `yaml:"url"`
		StreamName    string `yaml:"stream_name"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	Outbox struct {
		NotifyChannel           string `yaml:"notify_channel"`
		FallbackIntervalSeconds int    `yaml:"fallback_interval_seconds"`
	} `yaml:"outbox"`
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
	// Defaults match the interactive workflow's stock durations.
	config.Workflow.AutoConfirmSeconds = 30
	config.Workflow.InactivitySeconds = 15
	config.Workflow.CountdownTickSeconds = 1
	config.NATS.URL = getEnv("NATS_URL", "nats://localhost:4222")
	config.NATS.StreamName = "CURATOR_EVENTS"
	config.NATS.SubjectPrefix = "curator.events"
	config.Outbox.NotifyChannel = "curator_outbox_events"
	config.Outbox.FallbackIntervalSeconds = 30

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Workflow.AutoConfirmSeconds = getEnvAsInt("AUTO_CONFIRM_SECONDS", config.Workflow.AutoConfirmSeconds)
	config.Workflow.InactivitySeconds = getEnvAsInt("INACTIVITY_SECONDS", config.Workflow.InactivitySeconds)

	return &config, nil
}

func (c *Config) autoConfirm() time.Duration {
	return time.Duration(c.Workflow.AutoConfirmSeconds) * time.Second
}

func (c *Config) inactivity() time.Duration {
	return time.Duration(c.Workflow.InactivitySeconds) * time.Second
}

func (c *Config) countdownTick() time.Duration {
	return time.Duration(c.Workflow.CountdownTickSeconds) * time.Second
}

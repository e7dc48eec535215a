package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/flipside/internal/timer"
)

// Config is the server's YAML configuration: named timer presets plus the
// default preset new games fall back to.
type Config struct {
	Timers struct {
		DefaultPreset string                  `yaml:"default_preset"`
		Presets       map[string]timer.Config `yaml:"presets"`
	} `yaml:"timers"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	for name, preset := range config.Timers.Presets {
		if err := preset.Validate(); err != nil {
			return nil, fmt.Errorf("invalid timer preset %q: %w", name, err)
		}
	}
	if config.Timers.DefaultPreset != "" {
		if _, ok := config.Timers.Presets[config.Timers.DefaultPreset]; !ok {
			return nil, fmt.Errorf("default preset %q is not defined", config.Timers.DefaultPreset)
		}
	}
	return &config, nil
}

// defaultPreset resolves the preset new games use when a request names none.
func (c *Config) defaultPreset() timer.Config {
	if c != nil && c.Timers.DefaultPreset != "" {
		if preset, ok := c.Timers.Presets[c.Timers.DefaultPreset]; ok {
			return preset
		}
	}
	return timer.Config{
		Type:                timer.TypeIncrement,
		InitialTime:         300,
		Increment:           5,
		MaxTime:             600,
		LowTimeWarning:      60,
		CriticalTimeWarning: 10,
		AutoFlagOnTimeout:   true,
		PauseOnDisconnect:   true,
		MaxPauseTime:        120,
		TimeoutAction:       timer.ActionForfeit,
	}
}

// Package config loads the shell configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	// Address of the appliance middleware socket.
	Address string `yaml:"address"`
	// Prompt template. The token %p is replaced with the current
	// namespace path.
	Prompt string `yaml:"prompt"`
	Debug  bool   `yaml:"debug"`

	Tasks   TasksConfig   `yaml:"tasks"`
	History HistoryConfig `yaml:"history"`
}

// TasksConfig configures how submitted tasks are waited on.
type TasksConfig struct {
	// Blocking makes task-submitting commands wait for completion
	// instead of printing the task ID and returning.
	Blocking bool `yaml:"blocking"`
}

// HistoryConfig configures the persisted command history.
type HistoryConfig struct {
	// Size is the maximum number of history entries kept. Zero or
	// negative means unlimited.
	Size int `yaml:"size"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Address: "/var/run/coral/middleware.sock",
		Prompt:  "%p> ",
		Tasks:   TasksConfig{Blocking: true},
		History: HistoryConfig{Size: 1000},
	}
}

// Load reads the configuration file at path, applying defaults for absent
// fields. A missing file is not an error and yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

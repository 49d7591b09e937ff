// Package config loads the host configuration of the QDataServer daemon.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config describes everything the daemon needs at start-up.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Plugins   PluginsConfig   `json:"plugins"`
	Settings  SettingsConfig  `json:"settings"`
	Lifecycle LifecycleConfig `json:"lifecycle"`
	Logging   LoggingConfig   `json:"logging"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig controls the status API listener.
type ServerConfig struct {
	Address string `json:"address"`
}

// PluginsConfig points at the plugin search roots and the optional YAML
// policy file applied after discovery.
type PluginsConfig struct {
	SearchPaths []string `json:"search_paths"`
	PolicyFile  string   `json:"policy_file"`
}

// SettingsConfig selects the settings store backend.
type SettingsConfig struct {
	Driver  string              `json:"driver"`
	DSN     string              `json:"dsn"`
	Redis   RedisEndpointConfig `json:"redis"`
	DataDir string              `json:"data_dir"`
}

// LifecycleConfig selects the lifecycle event publisher backend.
type LifecycleConfig struct {
	Driver   string              `json:"driver"`
	Redis    RedisEndpointConfig `json:"redis"`
	RabbitMQ RabbitMQConfig      `json:"rabbitmq"`
}

// RedisEndpointConfig describes one Redis connection.
type RedisEndpointConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// RabbitMQConfig describes one RabbitMQ connection.
type RabbitMQConfig struct {
	URL        string `json:"url"`
	Queue      string `json:"queue"`
	Durable    bool   `json:"durable"`
	AutoDelete bool   `json:"auto_delete"`
}

// LoggingConfig mirrors the logger package configuration.
type LoggingConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig controls the lifecycle audit log file.
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// RuntimeConfig holds general runtime parameters.
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// Load parses the JSON configuration file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults fills reasonable values for fields the user left out.
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":7600"
	}

	if len(c.Plugins.SearchPaths) == 0 {
		c.Plugins.SearchPaths = []string{filepath.Join(baseDir, "plugins")}
	}

	if c.Settings.Driver == "" {
		c.Settings.Driver = "file"
	}

	if c.Lifecycle.Driver == "" {
		c.Lifecycle.Driver = "memory"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	}
	if c.Settings.DataDir == "" {
		c.Settings.DataDir = c.Runtime.DataDir
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		c.Logging.Audit.Path = filepath.Join(c.Runtime.DataDir, "lifecycle-audit.log")
	}
}

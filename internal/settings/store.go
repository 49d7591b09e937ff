// Package settings provides the host's key-value settings service. Every
// value is a list of strings; the plugin manager uses one key to persist
// the names of the plugins the user disabled.
//
// Three drivers exist: a file-backed store for single-machine deployments,
// a MySQL store and a Redis store for hosts that share settings across
// installations.
package settings

import (
	"context"
)

// Store reads and writes string-list settings values.
type Store interface {
	// StringList returns the value stored under key, or an empty list
	// when the key was never written.
	StringList(key string) ([]string, error)
	// SetStringList replaces the value stored under key.
	SetStringList(key string, values []string) error
	// Close releases the underlying storage handle.
	Close() error
}

// Config selects and parameterises a settings driver.
type Config struct {
	Driver string `json:"driver"`
	// DataDir holds the snapshot file of the file driver.
	DataDir string `json:"data_dir"`
	// DSN is the MySQL connection string of the mysql driver.
	DSN string `json:"dsn"`
	// Redis parameterises the redis driver.
	Redis RedisConfig `json:"redis"`
}

// RedisConfig holds the connection parameters of the redis driver.
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// Open constructs the store selected by the configuration. An empty driver
// name selects the file store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.DataDir)
	case "mysql":
		return NewMySQLStore(ctx, cfg.DSN)
	case "redis":
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, ErrUnsupportedDriver
	}
}

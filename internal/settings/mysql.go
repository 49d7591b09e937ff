package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "QDataServer/internal/errors"
)

// MySQLStore persists settings values in a single MySQL table, one row per
// key with the string list encoded as JSON.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens the connection pool and ensures the settings table
// exists.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("settings: MySQL DSN cannot be empty")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open MySQL connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to MySQL: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS host_settings (
		setting_key VARCHAR(191) NOT NULL PRIMARY KEY,
		setting_value JSON NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			ON UPDATE CURRENT_TIMESTAMP
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}

	return &MySQLStore{db: db}, nil
}

// StringList implements Store.
func (s *MySQLStore) StringList(key string) ([]string, error) {
	const query = `SELECT setting_value FROM host_settings WHERE setting_key = ?`
	var raw []byte
	err := s.db.QueryRow(query, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "read setting "+key)
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode setting "+key)
	}
	return values, nil
}

// SetStringList implements Store.
func (s *MySQLStore) SetStringList(key string, values []string) error {
	encoded, err := json.Marshal(values)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "encode setting "+key)
	}
	const query = `INSERT INTO host_settings (setting_key, setting_value)
		VALUES (?, ?)
		ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value)`
	if _, err := s.db.Exec(query, key, encoded); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write setting "+key)
	}
	return nil
}

// Close implements Store.
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

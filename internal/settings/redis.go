package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	xerrors "QDataServer/internal/errors"
)

// RedisStore keeps each settings value in one Redis key, JSON-encoded.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("settings: Redis address cannot be empty")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "qdataserver:settings:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// StringList implements Store.
func (s *RedisStore) StringList(key string) ([]string, error) {
	raw, err := s.client.Get(context.Background(), s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
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
func (s *RedisStore) SetStringList(key string, values []string) error {
	encoded, err := json.Marshal(values)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "encode setting "+key)
	}
	if err := s.client.Set(context.Background(), s.prefix+key, encoded, 0).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "write setting "+key)
	}
	return nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

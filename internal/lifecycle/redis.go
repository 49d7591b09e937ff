package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	xerrors "QDataServer/internal/errors"
)

// RedisConfig holds the connection parameters of the redis driver.
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	List     string `json:"list"`
}

// RedisPublisher pushes events onto a Redis list, newest on the left, so a
// consumer drains them with BRPOP in publication order.
type RedisPublisher struct {
	client *redis.Client
	list   string
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("lifecycle: Redis address cannot be empty")
	}
	list := cfg.List
	if list == "" {
		list = "qdataserver:lifecycle"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}
	return &RedisPublisher{client: client, list: list}, nil
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	encoded, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "encode lifecycle event")
	}
	if err := p.client.LPush(ctx, p.list, encoded).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "push lifecycle event")
	}
	return nil
}

// Close implements Publisher.
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

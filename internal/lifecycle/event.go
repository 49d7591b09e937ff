// Package lifecycle publishes plugin lifecycle events to interested
// consumers. The host wires a publisher into the plugin manager as a
// lifecycle listener, so every load, initialization and unload milestone
// leaves the process as a structured event.
//
// Three drivers exist: an in-memory ring for tests and the status API, a
// Redis list and a RabbitMQ queue for deployments that feed the events
// into external tooling.
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"QDataServer/pkg/logger"
	"QDataServer/pkg/plugin"
)

// Event is one plugin lifecycle milestone.
type Event struct {
	ID     string    `json:"id"`
	Kind   string    `json:"kind"`
	Plugin string    `json:"plugin,omitempty"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// NewEvent stamps a milestone with a fresh identifier and the current time.
func NewEvent(kind, pluginName, detail string) Event {
	return Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		Plugin: pluginName,
		Detail: detail,
		At:     time.Now().UTC(),
	}
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Listener adapts a publisher to the plugin manager's listener callback.
// Publish failures are logged and do not interrupt the lifecycle pass.
func Listener(publisher Publisher) plugin.LifecycleListener {
	return func(event plugin.Event, pluginName, detail string) {
		err := publisher.Publish(context.Background(),
			NewEvent(string(event), pluginName, detail))
		if err != nil {
			logger.L().Warn("lifecycle event could not be published",
				"event", string(event), "plugin", pluginName, "error", err)
		}
	}
}

// Config selects and parameterises a publisher driver.
type Config struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// Open constructs the publisher selected by the configuration. An empty
// driver name selects the in-memory publisher.
func Open(ctx context.Context, cfg Config) (Publisher, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryPublisher(0), nil
	case "redis":
		return NewRedisPublisher(ctx, cfg.Redis)
	case "rabbitmq":
		return NewRabbitMQPublisher(cfg.RabbitMQ)
	default:
		return nil, ErrUnsupportedDriver
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"QDataServer/internal/api"
	"QDataServer/internal/config"
	"QDataServer/internal/lifecycle"
	"QDataServer/internal/settings"
	"QDataServer/pkg/logger"
	"QDataServer/pkg/plugin"
)

// main is the entry point of the QDataServer host daemon.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("qdataserverd failed: %v", err)
	}
}

// logMonitor reports initialization progress to the structured logger.
type logMonitor struct{}

func (logMonitor) SetStatus(status string) {
	logger.L().Info("initializing plugin", "plugin", status)
}

func run(ctx context.Context) error {
	configPath := os.Getenv("QDATASERVER_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "qdataserver.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	store, err := settings.Open(ctx, settings.Config{
		Driver:  cfg.Settings.Driver,
		DataDir: cfg.Settings.DataDir,
		DSN:     cfg.Settings.DSN,
		Redis: settings.RedisConfig{
			Address:  cfg.Settings.Redis.Address,
			Password: cfg.Settings.Redis.Password,
			DB:       cfg.Settings.Redis.DB,
		},
	})
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := lifecycle.Open(ctx, lifecycle.Config{
		Driver: cfg.Lifecycle.Driver,
		Redis: lifecycle.RedisConfig{
			Address:  cfg.Lifecycle.Redis.Address,
			Password: cfg.Lifecycle.Redis.Password,
			DB:       cfg.Lifecycle.Redis.DB,
		},
		RabbitMQ: lifecycle.RabbitMQConfig{
			URL:        cfg.Lifecycle.RabbitMQ.URL,
			Queue:      cfg.Lifecycle.RabbitMQ.Queue,
			Durable:    cfg.Lifecycle.RabbitMQ.Durable,
			AutoDelete: cfg.Lifecycle.RabbitMQ.AutoDelete,
		},
	})
	if err != nil {
		return err
	}
	defer publisher.Close()

	manager := plugin.NewManager(
		plugin.WithSettings(store),
		plugin.WithListener(lifecycle.Listener(publisher)))
	defer manager.Close()

	if err := manager.LoadPlugins(cfg.Plugins.SearchPaths); err != nil {
		return err
	}
	defer manager.UnloadPlugins()

	// Policy flags change what the user may disable and what the next run
	// loads; the current run's load set is already fixed at this point.
	if cfg.Plugins.PolicyFile != "" {
		policy, err := plugin.LoadManagerConfig(cfg.Plugins.PolicyFile)
		if err != nil {
			return err
		}
		if err := policy.Validate(); err != nil {
			return err
		}
		policy.Apply(manager)
	}

	if !manager.InitializePlugins(logMonitor{}) {
		if pluginName, requested := manager.IsShutdownRequested(); requested {
			logger.L().Error("plugin requested application shutdown",
				"plugin", pluginName)
			return errors.New("plugin " + pluginName + " requested shutdown")
		}
		logger.L().Warn("some plugins failed to initialize")
	}

	// The memory publisher doubles as the event buffer of the status API.
	memoryEvents, _ := publisher.(*lifecycle.MemoryPublisher)
	server := api.NewServer(cfg.Server.Address, manager, memoryEvents)
	logger.L().Info("status API listening", "address", cfg.Server.Address)
	return server.Start(ctx)
}

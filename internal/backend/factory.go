package backend

import (
	"context"
	"fmt"

	"certdash/internal/adapters"
	"certdash/internal/amqp"
	"certdash/internal/api"
	"certdash/internal/api/memory"
	"certdash/internal/log"
	"certdash/internal/services"
	"certdash/internal/session"
	"certdash/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new component factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentApp)}
}

// Build implements Factory.Build. On error every resource created so far is
// released.
func (f *DefaultFactory) Build(ctx context.Context, config Config) (*Components, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Components{}
	steps := []func(context.Context, Config, *Components) error{
		f.createAPI,
		f.createSessionStore,
		f.createPublisher,
	}
	for _, step := range steps {
		if err := step(ctx, config, c); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (f *DefaultFactory) createAPI(_ context.Context, config Config, c *Components) error {
	switch config.API {
	case HTTPAPI:
		c.API = api.NewClient(config.APIBaseURL, api.NewDefaultHTTPClient(config.APITimeout))
		f.logger.Info("Initialized HTTP API client", "base_url", config.APIBaseURL, "timeout", config.APITimeout)
	case MemoryAPI:
		c.API = memory.NewSeeded()
		f.logger.Info("Initialized in-memory API with demo accounts",
			"consumer", memory.DemoConsumerEmail,
			"business", memory.DemoBusinessEmail)
	default:
		return fmt.Errorf("unsupported API type: %s", config.API)
	}
	return nil
}

func (f *DefaultFactory) createSessionStore(ctx context.Context, config Config, c *Components) error {
	switch config.Store {
	case SQLiteStore:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		store := adapters.NewSQLiteSessionStore(repo)
		c.Sessions = store
		c.Purger = store
		c.addCheck("sqlite", repo.Ping)
		c.addCleanup(repo.Close)
		f.logger.Info("Initialized SQLite session store", "db_path", config.SQLiteDBPath)

	case RedisStore:
		client, err := session.NewRedisClient(config.RedisAddr, config.RedisPassword)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis client: %w", err)
		}
		c.Sessions = session.NewRedisStore(client)
		c.addCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		c.addCleanup(client.Close)
		f.logger.Info("Initialized Redis session store", "addr", config.RedisAddr)

	case MemoryStore:
		c.Sessions = session.NewMemoryStore()
		f.logger.Info("Initialized memory session store")

	default:
		return fmt.Errorf("unsupported session store type: %s", config.Store)
	}
	return nil
}

// createPublisher connects to AMQP when configured. A broker that cannot be
// reached is not fatal: events are dropped and the dashboard keeps working.
func (f *DefaultFactory) createPublisher(_ context.Context, config Config, c *Components) error {
	c.Publisher = services.NopPublisher{}
	if config.AMQPURL == "" {
		f.logger.Info("AMQP disabled, activity events are not published")
		return nil
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		return nil
	}
	c.Publisher = client
	c.addCleanup(client.Close)
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return nil
}

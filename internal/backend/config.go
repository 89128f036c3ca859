package backend

import (
	"fmt"
	"time"

	"certdash/internal/config"
)

// Config holds configuration for component creation
type Config struct {
	API        APIType
	APIBaseURL string
	APITimeout time.Duration

	Store         StoreType
	SQLiteDBPath  string
	RedisAddr     string
	RedisPassword string

	// AMQP is optional; an empty URL disables event publishing.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	cfg := Config{
		API:           APIType(appConfig.APIBackend),
		APIBaseURL:    appConfig.APIBaseURL,
		APITimeout:    appConfig.APITimeout,
		Store:         StoreType(appConfig.SessionBackend),
		SQLiteDBPath:  appConfig.SQLiteDBPath,
		RedisAddr:     appConfig.RedisAddr,
		RedisPassword: appConfig.RedisPassword,
		AMQPURL:       appConfig.AMQPURL,
		AMQPExchange:  appConfig.AMQPExchange,
		AMQPQueue:     appConfig.AMQPQueue,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.API.IsValid() {
		return fmt.Errorf("invalid API type: %s", c.API)
	}
	if !c.Store.IsValid() {
		return fmt.Errorf("invalid session store type: %s", c.Store)
	}

	if c.API == HTTPAPI && c.APIBaseURL == "" {
		return fmt.Errorf("API base URL is required for the http API")
	}

	switch c.Store {
	case SQLiteStore:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite sessions")
		}
	case RedisStore:
		if c.RedisAddr == "" {
			return fmt.Errorf("Redis address is required for redis sessions")
		}
	case MemoryStore:
		// Sessions are lost on restart.
	}

	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return fmt.Errorf("AMQP exchange and queue are required when AMQP URL is set")
	}
	return nil
}

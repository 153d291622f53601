package config

import (
	"fmt"
	"time"
)

// Cache backends
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Cache   CacheConfig
	Broker  BrokerConfig
	Guard   GuardConfig
	Geo     GeoConfig
	Workers WorkerConfig
	Logging LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port string
}

// StoreConfig holds authoritative store configuration
type StoreConfig struct {
	Path    string
	Timeout time.Duration
}

// CacheConfig holds cache layer configuration
type CacheConfig struct {
	Backend   string
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	Timeout   time.Duration
	WarmCount int
}

// BrokerConfig holds event gateway configuration
type BrokerConfig struct {
	URL            string
	Stream         string
	Source         string
	PublishTimeout time.Duration
}

// GuardConfig holds abuse guard configuration
type GuardConfig struct {
	HumanLimit int64
	BotLimit   int64
	Window     time.Duration
}

// GeoConfig holds geo rule engine configuration
type GeoConfig struct {
	RulesPath string
	MMDBPath  string
}

// WorkerConfig holds background bookkeeping configuration
type WorkerConfig struct {
	Count     int
	QueueSize int
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Verbose bool
}

// Validate validates the configuration values
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store timeout must be positive, got: %v", c.Store.Timeout)
	}

	switch c.Cache.Backend {
	case CacheBackendRedis:
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache address cannot be empty for the redis backend")
		}
	case CacheBackendMemory:
	default:
		return fmt.Errorf("unknown cache backend: %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got: %v", c.Cache.TTL)
	}
	if c.Cache.WarmCount < 0 {
		return fmt.Errorf("cache warm count cannot be negative, got: %d", c.Cache.WarmCount)
	}

	if c.Broker.URL == "" {
		return fmt.Errorf("broker URL cannot be empty")
	}

	if c.Guard.HumanLimit <= 0 || c.Guard.BotLimit <= 0 {
		return fmt.Errorf("guard limits must be positive, got: human=%d bot=%d",
			c.Guard.HumanLimit, c.Guard.BotLimit)
	}
	if c.Guard.Window <= 0 {
		return fmt.Errorf("guard window must be positive, got: %v", c.Guard.Window)
	}

	if c.Workers.Count <= 0 {
		return fmt.Errorf("worker count must be positive, got: %d", c.Workers.Count)
	}
	if c.Workers.QueueSize <= 0 {
		return fmt.Errorf("worker queue size must be positive, got: %d", c.Workers.QueueSize)
	}

	return nil
}

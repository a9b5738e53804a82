// Package config loads the runtime settings of the progression command.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends selectable through PROGRESSION_STORE.
const (
	StoreMemory    = "memory"
	StoreBolt      = "bolt"
	StoreSQLite    = "sqlite"
	StorePostgres  = "postgres"
	StoreKurrentDB = "kurrentdb"
)

// Event bus backends selectable through PROGRESSION_EVENTBUS.
const (
	EventBusNone      = "none"
	EventBusMemory    = "memory"
	EventBusFile      = "file"
	EventBusKurrentDB = "kurrentdb"
)

// Config aggregates all runtime settings.
type Config struct {
	Store     StoreConfig
	EventBus  EventBusConfig
	Snapshots SnapshotConfig
	Bus       BusConfig
	Retry     RetryConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

type StoreConfig struct {
	Backend         string `env:"PROGRESSION_STORE" envDefault:"memory"`
	BoltPath        string `env:"PROGRESSION_BOLT_PATH" envDefault:"progression.bolt"`
	SQLitePath      string `env:"PROGRESSION_SQLITE_PATH" envDefault:"progression.db"`
	PostgresURL     string `env:"PROGRESSION_POSTGRES_URL"`
	PostgresMigrate bool   `env:"PROGRESSION_POSTGRES_MIGRATE" envDefault:"true"`
	KurrentDBURL    string `env:"PROGRESSION_KURRENTDB_URL"`
}

// EventBusConfig selects where committed events are published. The
// kurrentdb bus subscribes to the kurrentdb store instead of being published
// to.
type EventBusConfig struct {
	Backend string `env:"PROGRESSION_EVENTBUS" envDefault:"memory"`
	Path    string `env:"PROGRESSION_EVENTBUS_PATH" envDefault:"progression-events"`
	Buffer  int    `env:"PROGRESSION_EVENTBUS_BUFFER" envDefault:"256"`
}

type SnapshotConfig struct {
	RedisURL string        `env:"PROGRESSION_REDIS_URL"`
	Every    uint64        `env:"PROGRESSION_SNAPSHOT_EVERY" envDefault:"0"`
	TTL      time.Duration `env:"PROGRESSION_SNAPSHOT_TTL" envDefault:"24h"`
}

type BusConfig struct {
	Shards int `env:"PROGRESSION_BUS_SHARDS" envDefault:"4"`
	Buffer int `env:"PROGRESSION_BUS_BUFFER" envDefault:"64"`
}

// RetryConfig bounds the re-dispatch of commands that lost a concurrency
// race. Zero disables retries.
type RetryConfig struct {
	MaxElapsed time.Duration `env:"PROGRESSION_RETRY_MAX_ELAPSED" envDefault:"2s"`
}

type LogConfig struct {
	Level  string `env:"PROGRESSION_LOG_LEVEL" envDefault:"info"`
	Format string `env:"PROGRESSION_LOG_FORMAT" envDefault:"text"`
}

type TelemetryConfig struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"progression"`
}

// Load reads the optional dotenv files, then the environment. Variables
// already set in the environment win over the files.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory, StoreBolt, StoreSQLite:
	case StorePostgres:
		if c.Store.PostgresURL == "" {
			return errors.New("PROGRESSION_POSTGRES_URL is required for the postgres store")
		}
	case StoreKurrentDB:
		if c.Store.KurrentDBURL == "" {
			return errors.New("PROGRESSION_KURRENTDB_URL is required for the kurrentdb store")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store.Backend)
	}
	switch c.EventBus.Backend {
	case EventBusNone, EventBusMemory, EventBusFile:
	case EventBusKurrentDB:
		if c.Store.Backend != StoreKurrentDB {
			return errors.New("the kurrentdb event bus requires the kurrentdb store")
		}
	default:
		return fmt.Errorf("unknown event bus %q", c.EventBus.Backend)
	}
	if c.Bus.Shards < 1 {
		return fmt.Errorf("PROGRESSION_BUS_SHARDS must be positive, got %d", c.Bus.Shards)
	}
	if c.Bus.Buffer < 0 {
		return fmt.Errorf("PROGRESSION_BUS_BUFFER must not be negative, got %d", c.Bus.Buffer)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

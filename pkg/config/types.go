package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the persistent capsule configuration stored as config.toml
// in the .capsule/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	Chat        ChatConfig        `toml:"chat"`
	API         APIConfig         `toml:"api"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Log         LogConfig         `toml:"log"`
}

// StorageConfig selects where conversations are stored.
type StorageConfig struct {
	// Driver is one of "sqlite", "postgres" or "memory".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// ChatConfig holds the streaming chat endpoint settings.
type ChatConfig struct {
	Endpoint string `toml:"endpoint,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	Model    string `toml:"model,omitempty"`

	// Timeout is a Go duration string bounding connection setup.
	Timeout string `toml:"timeout,omitempty"`

	// Headers are extra request headers as comma separated Name=Value pairs.
	Headers string `toml:"headers,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventStreamConfig holds turn event publishing settings.
type EventStreamConfig struct {
	// Provider is "none", "kafka" or "redis".
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated Kafka broker list, or the Redis address.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// File additionally receives JSON logs from long running commands.
	File string `toml:"file,omitempty"`
}

// ChatTimeout parses Chat.Timeout, returning zero when it is unset.
func (c *Config) ChatTimeout() (time.Duration, error) {
	if c.Chat.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(c.Chat.Timeout)
}

// ChatHeaders parses Chat.Headers, returning nil when it is unset.
func (c *Config) ChatHeaders() (map[string]string, error) {
	return ParseHeaders(c.Chat.Headers)
}

// ParseHeaders parses comma separated Name=Value pairs. Blank entries are
// skipped; an entry without a name is an error.
func ParseHeaders(s string) (map[string]string, error) {
	var out map[string]string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		name, value, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t:") {
			return nil, fmt.Errorf("invalid header %q (expected Name=Value)", entry)
		}

		if out == nil {
			out = make(map[string]string)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error

	// secret values are masked by "capsule config list".
	secret bool
}

func oneOf(key string, allowed ...string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("invalid value for %s: %q (expected one of %s)", key, v, strings.Join(allowed, ", "))
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			if err := oneOf("storage.driver", StorageSQLite, StoragePostgres, StorageMemory)(v); err != nil {
				return err
			}
			c.Storage.Driver = v
			return nil
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get:    func(c *Config) string { return c.Storage.PostgresDSN },
		set:    func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
		secret: true,
	},
	"chat.endpoint": {
		get: func(c *Config) string { return c.Chat.Endpoint },
		set: func(c *Config, v string) error { c.Chat.Endpoint = v; return nil },
	},
	"chat.api_key": {
		get:    func(c *Config) string { return c.Chat.APIKey },
		set:    func(c *Config, v string) error { c.Chat.APIKey = v; return nil },
		secret: true,
	},
	"chat.model": {
		get: func(c *Config) string { return c.Chat.Model },
		set: func(c *Config, v string) error { c.Chat.Model = v; return nil },
	},
	"chat.timeout": {
		get: func(c *Config) string { return c.Chat.Timeout },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid value for chat.timeout: %w", err)
			}
			if d <= 0 {
				return fmt.Errorf("invalid value for chat.timeout: must be positive")
			}
			c.Chat.Timeout = v
			return nil
		},
	},
	"chat.headers": {
		get: func(c *Config) string { return c.Chat.Headers },
		set: func(c *Config, v string) error {
			if _, err := ParseHeaders(v); err != nil {
				return fmt.Errorf("invalid value for chat.headers: %w", err)
			}
			c.Chat.Headers = v
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"eventstream.provider": {
		get: func(c *Config) string { return c.EventStream.Provider },
		set: func(c *Config, v string) error {
			if err := oneOf("eventstream.provider", EventStreamNone, EventStreamKafka, EventStreamRedis)(v); err != nil {
				return err
			}
			c.EventStream.Provider = v
			return nil
		},
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
	"log.file": {
		get: func(c *Config) string { return c.Log.File },
		set: func(c *Config, v string) error { c.Log.File = v; return nil },
	},
}

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent substream configuration stored as
// config.toml in the .substream/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version      int                `toml:"version"`
	Subscription SubscriptionConfig `toml:"subscription"`
	Watch        WatchConfig        `toml:"watch"`
	Storage      StorageConfig      `toml:"storage"`
	API          APIConfig          `toml:"api"`
	EventStream  EventStreamConfig  `toml:"eventstream"`
	Log          LogConfig          `toml:"log"`
}

// SubscriptionConfig holds the GraphQL subscription endpoint settings.
type SubscriptionConfig struct {
	URL            string `toml:"url,omitempty"`
	ReadBufferSize uint   `toml:"read_buffer_size,omitempty"`
}

// WatchConfig holds transaction watch settings. Timeout is a Go duration
// string; an empty or zero value means no deadline.
type WatchConfig struct {
	Timeout string `toml:"timeout,omitempty"`
}

// StorageConfig selects the watch history backend. Postgres wins when both
// are set; neither means in-memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// EventStreamConfig holds the Kafka publisher settings. Publishing is
// disabled when no brokers are configured.
type EventStreamConfig struct {
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	JSON bool `toml:"json,omitempty"`
}

// WatchTimeout parses Watch.Timeout.
func (c *Config) WatchTimeout() (time.Duration, error) {
	return ParseTimeout(c.Watch.Timeout)
}

// ParseTimeout parses a watch timeout. Empty means no timeout.
func ParseTimeout(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for watch.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid value for watch.timeout: negative duration %s", v)
	}
	return d, nil
}

// SplitList splits comma separated entries, trims them and drops empties.
// Lists may arrive as one "a,b" string from the environment.
func SplitList(values []string) []string {
	var out []string
	for _, v := range values {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"subscription.url": {
		get: func(c *Config) string { return c.Subscription.URL },
		set: func(c *Config, v string) error { c.Subscription.URL = v; return nil },
	},
	"subscription.read_buffer_size": {
		get: func(c *Config) string {
			if c.Subscription.ReadBufferSize == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Subscription.ReadBufferSize), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid value for subscription.read_buffer_size: %w", err)
			}
			c.Subscription.ReadBufferSize = uint(n)
			return nil
		},
	},
	"watch.timeout": {
		get: func(c *Config) string { return c.Watch.Timeout },
		set: func(c *Config, v string) error {
			if _, err := ParseTimeout(v); err != nil {
				return err
			}
			c.Watch.Timeout = v
			return nil
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"eventstream.kafka_brokers": {
		get: func(c *Config) string { return strings.Join(c.EventStream.KafkaBrokers, ",") },
		set: func(c *Config, v string) error { c.EventStream.KafkaBrokers = SplitList([]string{v}); return nil },
	},
	"eventstream.kafka_topic": {
		get: func(c *Config) string { return c.EventStream.KafkaTopic },
		set: func(c *Config, v string) error { c.EventStream.KafkaTopic = v; return nil },
	},
	"log.json": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.JSON) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for log.json: %w", err)
			}
			c.Log.JSON = b
			return nil
		},
	},
}

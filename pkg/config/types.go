package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent branchweave configuration stored as
// config.toml in the .branchweave/ directory. The TOML layout uses
// sections for logical grouping.
type Config struct {
	Version int          `toml:"version"`
	Server  ServerConfig `toml:"server"`
	Store   StoreConfig  `toml:"store"`
	Client  ClientConfig `toml:"client"`
	Events  EventsConfig `toml:"events"`
	Log     LogConfig    `toml:"log"`
}

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// StoreConfig holds the conversation repository's backend selection.
type StoreConfig struct {
	Backend         string `toml:"backend,omitempty"`
	DSN             string `toml:"dsn,omitempty"`
	MaxLineageDepth uint   `toml:"max_lineage_depth,omitempty"`
	MaxBatchSize    uint   `toml:"max_batch_size,omitempty"`
}

// ClientConfig holds the address of a running API server for CLI clients.
// No command in this tree reads it: branchweave tree and branchweave show
// open the configured store directly.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// EventsConfig holds change-event publishing settings.
type EventsConfig struct {
	Enabled      bool   `toml:"enabled,omitempty"`
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"store.backend": {
		get: func(c *Config) string { return c.Store.Backend },
		set: func(c *Config, v string) error { c.Store.Backend = v; return nil },
	},
	"store.dsn": {
		get: func(c *Config) string { return c.Store.DSN },
		set: func(c *Config, v string) error { c.Store.DSN = v; return nil },
	},
	"store.max_lineage_depth": {
		get: func(c *Config) string {
			if c.Store.MaxLineageDepth == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Store.MaxLineageDepth), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for store.max_lineage_depth: %w", err)
			}
			c.Store.MaxLineageDepth = uint(n)
			return nil
		},
	},
	"store.max_batch_size": {
		get: func(c *Config) string {
			if c.Store.MaxBatchSize == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Store.MaxBatchSize), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for store.max_batch_size: %w", err)
			}
			c.Store.MaxBatchSize = uint(n)
			return nil
		},
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"events.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Events.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for events.enabled: %w", err)
			}
			c.Events.Enabled = b
			return nil
		},
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
	"log.level": {
		get: func(c *Config) string { return c.Log.Level },
		set: func(c *Config, v string) error { c.Log.Level = v; return nil },
	},
}

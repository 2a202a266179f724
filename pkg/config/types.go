package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent plans configuration stored as config.toml
// in the .plans/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	API     APIConfig     `toml:"api"`
	Broker  BrokerConfig  `toml:"broker"`
	Search  SearchConfig  `toml:"search"`
	Auth    AuthConfig    `toml:"auth"`
	Log     LogConfig     `toml:"log"`
	Client  ClientConfig  `toml:"client"`
}

// StorageConfig selects and configures the node store.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// BrokerConfig selects the message channel carrying change events.
type BrokerConfig struct {
	// Provider is one of "memory" or "kafka".
	Provider    string   `toml:"provider,omitempty"`
	Brokers     []string `toml:"brokers,omitempty"`
	GroupID     string   `toml:"group_id,omitempty"`
	TopicPrefix string   `toml:"topic_prefix,omitempty"`
	MaxAttempts int      `toml:"max_attempts,omitempty"`
	Backoff     string   `toml:"backoff,omitempty"`
}

// BackoffDuration parses Backoff. An empty value yields zero.
func (b BrokerConfig) BackoffDuration() (time.Duration, error) {
	if b.Backoff == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(b.Backoff)
	if err != nil {
		return 0, fmt.Errorf("invalid broker.backoff: %w", err)
	}
	return d, nil
}

// SearchConfig selects the search index the projector writes to.
type SearchConfig struct {
	// Provider is one of "memory", "sql" or "qdrant".
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Collection string `toml:"collection,omitempty"`
}

// AuthConfig configures bearer token verification on the API.
type AuthConfig struct {
	Enabled          bool     `toml:"enabled,omitempty"`
	Issuers          []string `toml:"issuers,omitempty"`
	HMACSecret       string   `toml:"hmac_secret,omitempty"`
	RSAPublicKeyPath string   `toml:"rsa_public_key_path,omitempty"`
}

// LogConfig configures process logging.
type LogConfig struct {
	Level string `toml:"level,omitempty"`
	JSON  bool   `toml:"json,omitempty"`

	// File, when set, also receives every record as JSON lines.
	File string `toml:"file,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running API
// server (e.g. plans get). Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func splitList(v string) []string {
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func setBool(key, v string, target *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*target = b
	return nil
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error { c.Storage.Driver = v; return nil },
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
	"broker.provider": {
		get: func(c *Config) string { return c.Broker.Provider },
		set: func(c *Config, v string) error { c.Broker.Provider = v; return nil },
	},
	"broker.brokers": {
		get: func(c *Config) string { return strings.Join(c.Broker.Brokers, ",") },
		set: func(c *Config, v string) error { c.Broker.Brokers = splitList(v); return nil },
	},
	"broker.group_id": {
		get: func(c *Config) string { return c.Broker.GroupID },
		set: func(c *Config, v string) error { c.Broker.GroupID = v; return nil },
	},
	"broker.topic_prefix": {
		get: func(c *Config) string { return c.Broker.TopicPrefix },
		set: func(c *Config, v string) error { c.Broker.TopicPrefix = v; return nil },
	},
	"broker.max_attempts": {
		get: func(c *Config) string {
			if c.Broker.MaxAttempts == 0 {
				return ""
			}
			return strconv.Itoa(c.Broker.MaxAttempts)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				return fmt.Errorf("invalid value for broker.max_attempts: %q", v)
			}
			c.Broker.MaxAttempts = n
			return nil
		},
	},
	"broker.backoff": {
		get: func(c *Config) string { return c.Broker.Backoff },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for broker.backoff: %w", err)
			}
			c.Broker.Backoff = v
			return nil
		},
	},
	"search.provider": {
		get: func(c *Config) string { return c.Search.Provider },
		set: func(c *Config, v string) error { c.Search.Provider = v; return nil },
	},
	"search.target": {
		get: func(c *Config) string { return c.Search.Target },
		set: func(c *Config, v string) error { c.Search.Target = v; return nil },
	},
	"search.collection": {
		get: func(c *Config) string { return c.Search.Collection },
		set: func(c *Config, v string) error { c.Search.Collection = v; return nil },
	},
	"auth.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Auth.Enabled) },
		set: func(c *Config, v string) error { return setBool("auth.enabled", v, &c.Auth.Enabled) },
	},
	"auth.issuers": {
		get: func(c *Config) string { return strings.Join(c.Auth.Issuers, ",") },
		set: func(c *Config, v string) error { c.Auth.Issuers = splitList(v); return nil },
	},
	"auth.hmac_secret": {
		get: func(c *Config) string { return c.Auth.HMACSecret },
		set: func(c *Config, v string) error { c.Auth.HMACSecret = v; return nil },
	},
	"auth.rsa_public_key_path": {
		get: func(c *Config) string { return c.Auth.RSAPublicKeyPath },
		set: func(c *Config, v string) error { c.Auth.RSAPublicKeyPath = v; return nil },
	},
	"log.level": {
		get: func(c *Config) string { return c.Log.Level },
		set: func(c *Config, v string) error { c.Log.Level = v; return nil },
	},
	"log.json": {
		get: func(c *Config) string { return strconv.FormatBool(c.Log.JSON) },
		set: func(c *Config, v string) error { return setBool("log.json", v, &c.Log.JSON) },
	},
	"log.file": {
		get: func(c *Config) string { return c.Log.File },
		set: func(c *Config, v string) error { c.Log.File = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/plans/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the PLANS_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (PLANS_API_LISTEN, PLANS_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: PLANS_API_LISTEN, PLANS_BROKER_BROKERS, etc.
	v.SetEnvPrefix("PLANS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper resolves the effective Config from v after flags, environment and
// file values have been layered on.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Broker: BrokerConfig{
			Provider:    v.GetString("broker.provider"),
			Brokers:     StringList(v, "broker.brokers"),
			GroupID:     v.GetString("broker.group_id"),
			TopicPrefix: v.GetString("broker.topic_prefix"),
			MaxAttempts: v.GetInt("broker.max_attempts"),
			Backoff:     v.GetString("broker.backoff"),
		},
		Search: SearchConfig{
			Provider:   v.GetString("search.provider"),
			Target:     v.GetString("search.target"),
			Collection: v.GetString("search.collection"),
		},
		Auth: AuthConfig{
			Enabled:          v.GetBool("auth.enabled"),
			Issuers:          StringList(v, "auth.issuers"),
			HMACSecret:       v.GetString("auth.hmac_secret"),
			RSAPublicKeyPath: v.GetString("auth.rsa_public_key_path"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
			JSON:  v.GetBool("log.json"),
			File:  v.GetString("log.file"),
		},
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
	}
}

// StringList reads a list value that may arrive as a TOML array or as a comma
// separated string from a flag or environment variable.
func StringList(v *viper.Viper, key string) []string {
	switch raw := v.Get(key).(type) {
	case string:
		return splitList(raw)
	case nil:
		return nil
	}
	var out []string
	for _, item := range v.GetStringSlice(key) {
		out = append(out, splitList(item)...)
	}
	return out
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Broker
	v.SetDefault("broker.provider", d.Broker.Provider)
	v.SetDefault("broker.brokers", "")
	v.SetDefault("broker.group_id", d.Broker.GroupID)
	v.SetDefault("broker.topic_prefix", d.Broker.TopicPrefix)
	v.SetDefault("broker.max_attempts", d.Broker.MaxAttempts)
	v.SetDefault("broker.backoff", d.Broker.Backoff)

	// Search
	v.SetDefault("search.provider", d.Search.Provider)
	v.SetDefault("search.target", d.Search.Target)
	v.SetDefault("search.collection", d.Search.Collection)

	// Auth
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.issuers", "")
	v.SetDefault("auth.hmac_secret", d.Auth.HMACSecret)
	v.SetDefault("auth.rsa_public_key_path", d.Auth.RSAPublicKeyPath)

	// Log
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.file", d.Log.File)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
}

package config

const (
	defaultStorageDriver = "sqlite"
	defaultSQLitePath    = "plans.db"

	defaultAPIListen = ":8081"

	defaultBrokerProvider = "memory"
	defaultGroupID        = "plans-projector"
	defaultMaxAttempts    = 5
	defaultBackoff        = "200ms"

	defaultSearchProvider   = "sql"
	defaultSearchCollection = "plans"

	defaultLogLevel = "info"

	defaultClientAPITarget = "http://localhost:8081"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver:     defaultStorageDriver,
			SQLitePath: defaultSQLitePath,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Broker: BrokerConfig{
			Provider:    defaultBrokerProvider,
			GroupID:     defaultGroupID,
			MaxAttempts: defaultMaxAttempts,
			Backoff:     defaultBackoff,
		},
		Search: SearchConfig{
			Provider:   defaultSearchProvider,
			Collection: defaultSearchCollection,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
	}
}

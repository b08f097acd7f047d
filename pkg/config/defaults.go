package config

const (
	defaultServerListen = ":8081"

	defaultStoreBackend         = "memory"
	defaultStoreMaxLineageDepth = 1000
	defaultStoreMaxBatchSize    = 100

	defaultClientAPITarget = "http://localhost:8081"

	defaultEventsKafkaBrokers = "localhost:9092"
	defaultEventsKafkaTopic   = "branchweave.events"

	defaultLogLevel = "info"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen: defaultServerListen,
		},
		Store: StoreConfig{
			Backend:         defaultStoreBackend,
			MaxLineageDepth: defaultStoreMaxLineageDepth,
			MaxBatchSize:    defaultStoreMaxBatchSize,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Events: EventsConfig{
			Enabled:      false,
			KafkaBrokers: defaultEventsKafkaBrokers,
			KafkaTopic:   defaultEventsKafkaTopic,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
	}
}

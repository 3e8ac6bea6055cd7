package config

// Storage drivers.
const (
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Event stream providers.
const (
	EventStreamNone  = "none"
	EventStreamKafka = "kafka"
	EventStreamRedis = "redis"
)

const (
	defaultStorageDriver = StorageSQLite
	defaultChatTimeout   = "30s"
	defaultAPIListen     = ":8081"

	defaultEventStreamProvider = EventStreamNone
	defaultEventStreamTopic    = "capsule.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Chat: ChatConfig{
			Timeout: defaultChatTimeout,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
	}
}

package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --sqlite
// on "capsule chat", "capsule history" and "capsule serve").
type Flag struct {
	// Name is the long flag name (e.g. "endpoint").
	Name string

	// Shorthand is the one-letter short flag (e.g. "e"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "chat.endpoint").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagStorageDriver = "storage"
	FlagSQLite        = "sqlite"
	FlagPostgres      = "postgres"
	FlagEndpoint      = "endpoint"
	FlagAPIKey        = "api-key"
	FlagModel         = "model"
	FlagTimeout       = "timeout"
	FlagHeaders       = "headers"
	FlagListen        = "listen"
	FlagEventStream   = "eventstream"
	FlagBrokers       = "brokers"
	FlagTopic         = "topic"
	FlagLogFile       = "log-file"
)

// Flags is the registry of every capsule flag.
var Flags = FlagSet{
	FlagStorageDriver: {Name: "storage", ViperKey: "storage.driver", Description: "Storage driver: sqlite, postgres or memory"},
	FlagSQLite:        {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite database (default .capsule/capsule.db)"},
	FlagPostgres:      {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagEndpoint:      {Name: "endpoint", Shorthand: "e", ViperKey: "chat.endpoint", Description: "Streaming chat endpoint URL"},
	FlagAPIKey:        {Name: "api-key", ViperKey: "chat.api_key", Description: "Bearer token sent to the chat endpoint"},
	FlagModel:         {Name: "model", Shorthand: "m", ViperKey: "chat.model", Description: "Model name passed to the chat endpoint"},
	FlagTimeout:       {Name: "timeout", ViperKey: "chat.timeout", Description: "Connection timeout for the chat endpoint"},
	FlagHeaders:       {Name: "headers", ViperKey: "chat.headers", Description: "Extra request headers as Name=Value pairs, comma separated"},
	FlagListen:        {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagEventStream:   {Name: "eventstream", ViperKey: "eventstream.provider", Description: "Turn event publisher: none, kafka or redis"},
	FlagBrokers:       {Name: "brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers, or the Redis address"},
	FlagTopic:         {Name: "topic", ViperKey: "eventstream.topic", Description: "Kafka topic or Redis stream for turn events"},
	FlagLogFile:       {Name: "log-file", ViperKey: "log.file", Description: "Also write JSON logs to this file"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

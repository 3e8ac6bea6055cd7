// Package setup builds the components capsule commands share from resolved
// configuration: the storage driver, the chat transport, the turn event pool
// and loggers.
package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/papercomputeco/capsule/pkg/config"
	"github.com/papercomputeco/capsule/pkg/dotdir"
	"github.com/papercomputeco/capsule/pkg/eventstream"
	"github.com/papercomputeco/capsule/pkg/eventstream/kafka"
	"github.com/papercomputeco/capsule/pkg/eventstream/nop"
	"github.com/papercomputeco/capsule/pkg/eventstream/redis"
	"github.com/papercomputeco/capsule/pkg/logger"
	"github.com/papercomputeco/capsule/pkg/storage"
	"github.com/papercomputeco/capsule/pkg/storage/inmemory"
	"github.com/papercomputeco/capsule/pkg/storage/postgres"
	"github.com/papercomputeco/capsule/pkg/storage/sqlite"
	"github.com/papercomputeco/capsule/pkg/transport"
)

// DatabaseFile is the SQLite database created inside the .capsule directory.
const DatabaseFile = "capsule.db"

// ErrNoEndpoint is returned when no chat endpoint is configured.
var ErrNoEndpoint = errors.New(`no chat endpoint configured; pass --endpoint or run "capsule config set chat.endpoint <url>"`)

// LoadConfig resolves the configuration for cmd. Only the registry flags
// named in flagKeys take part in the precedence chain, so a command never
// picks up a flag it does not register.
func LoadConfig(cmd *cobra.Command, flagKeys ...string) (*config.Config, error) {
	v, err := config.InitViper(ConfigDir(cmd))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)
	return config.Unmarshal(v), nil
}

// ConfigDir returns the --config-dir override, empty when it is not set.
func ConfigDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config-dir")
	return dir
}

// Debug returns the --debug flag.
func Debug(cmd *cobra.Command) bool {
	debug, _ := cmd.Flags().GetBool("debug")
	return debug
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Logger builds the logger commands write to out with. Terminals get the
// pretty handler.
func Logger(out io.Writer, debug bool) *slog.Logger {
	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(IsTerminal(out)),
		logger.WithWriter(out),
	)
}

// QuietLogger is Logger for interactive commands, which only report warnings
// and errors unless debug is set.
func QuietLogger(out io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return logger.New(
		logger.WithLevel(level),
		logger.WithPretty(IsTerminal(out)),
		logger.WithWriter(out),
	)
}

// Log file rotation limits.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// FileLogger returns a JSON logger appending to a size-rotated file at path.
// The returned closer closes the current file.
func FileLogger(path string, debug bool) (*slog.Logger, io.Closer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	f := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}

	l := logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)
	return l, f, nil
}

// SQLitePath resolves the SQLite database path. Order of precedence:
//  1. The configured path
//  2. CAPSULE_DB
//  3. An existing capsule.db in the current directory
//  4. capsule.db in the resolved .capsule directory
func SQLitePath(configured, configDir string) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		return configured, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("CAPSULE_DB")); envPath != "" {
		return envPath, nil
	}

	if _, err := os.Stat(DatabaseFile); err == nil {
		return filepath.Abs(DatabaseFile)
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DatabaseFile), nil
}

// OpenDriver opens the storage driver cfg selects.
func OpenDriver(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (storage.Driver, error) {
	if log == nil {
		log = logger.Nop()
	}

	switch cfg.Storage.Driver {
	case config.StorageMemory:
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case config.StoragePostgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("postgres storage requires --postgres or storage.postgres_dsn")
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil

	case "", config.StorageSQLite:
		path, err := SQLitePath(cfg.Storage.SQLitePath, configDir)
		if err != nil {
			return nil, fmt.Errorf("resolving SQLite path: %w", err)
		}
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		log.Debug("using SQLite storage", "path", path)
		return driver, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Publisher builds the turn event publisher cfg selects.
func Publisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.EventStream.Provider {
	case "", config.EventStreamNone:
		return nop.NewPublisher(), nil

	case config.EventStreamKafka:
		p, err := kafka.NewPublisher(&kafka.Config{
			Brokers: []string{cfg.EventStream.Brokers},
			Topic:   cfg.EventStream.Topic,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return p, nil

	case config.EventStreamRedis:
		p, err := redis.NewPublisher(&redis.Config{
			Addr:   cfg.EventStream.Brokers,
			Stream: cfg.EventStream.Topic,
			Logger: log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating redis publisher: %w", err)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown event stream provider %q", cfg.EventStream.Provider)
	}
}

// EventPool starts a publish pool around the configured publisher.
func EventPool(cfg *config.Config, log *slog.Logger) (*eventstream.Pool, error) {
	pub, err := Publisher(cfg, log)
	if err != nil {
		return nil, err
	}

	pool, err := eventstream.NewPool(&eventstream.PoolConfig{
		Publisher: pub,
		Logger:    log,
	})
	if err != nil {
		_ = pub.Close()
		return nil, err
	}
	return pool, nil
}

// Transport builds the chat endpoint client.
func Transport(cfg *config.Config, log *slog.Logger) (*transport.Client, error) {
	if strings.TrimSpace(cfg.Chat.Endpoint) == "" {
		return nil, ErrNoEndpoint
	}

	timeout, err := cfg.ChatTimeout()
	if err != nil {
		return nil, fmt.Errorf("parsing chat timeout: %w", err)
	}

	headers, err := cfg.ChatHeaders()
	if err != nil {
		return nil, fmt.Errorf("parsing chat headers: %w", err)
	}

	return transport.NewClient(&transport.Config{
		Endpoint: cfg.Chat.Endpoint,
		APIKey:   cfg.Chat.APIKey,
		Headers:  headers,
		Timeout:  timeout,
		Logger:   log,
	})
}

// Package components builds the storage, event stream, search and auth
// backends selected by a resolved config.Config. The serve commands share it
// so one process or several separate ones wire the same way.
package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/plans/api/auth"
	"github.com/papercomputeco/plans/pkg/config"
	"github.com/papercomputeco/plans/pkg/eventstream"
	eventsmem "github.com/papercomputeco/plans/pkg/eventstream/inmemory"
	"github.com/papercomputeco/plans/pkg/eventstream/kafka"
	"github.com/papercomputeco/plans/pkg/eventstream/nop"
	"github.com/papercomputeco/plans/pkg/logger"
	"github.com/papercomputeco/plans/pkg/metrics"
	"github.com/papercomputeco/plans/pkg/searchindex"
	indexmem "github.com/papercomputeco/plans/pkg/searchindex/inmemory"
	"github.com/papercomputeco/plans/pkg/searchindex/qdrant"
	"github.com/papercomputeco/plans/pkg/searchindex/sqlindex"
	"github.com/papercomputeco/plans/pkg/storage"
	storagemem "github.com/papercomputeco/plans/pkg/storage/inmemory"
	"github.com/papercomputeco/plans/pkg/storage/postgres"
	"github.com/papercomputeco/plans/pkg/storage/sqlite"
)

// Provider and driver names accepted in config.
const (
	Memory   = "memory"
	SQLite   = "sqlite"
	Postgres = "postgres"
	Kafka    = "kafka"
	SQL      = "sql"
	Qdrant   = "qdrant"
)

// LoadConfig resolves the effective configuration for cmd: registered flags
// over PLANS_ environment variables over config.toml over defaults.
func LoadConfig(cmd *cobra.Command, flagKeys []string) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.PlansFlags, flagKeys)

	return config.FromViper(v), nil
}

// NewLogger builds the process logger. debug overrides the configured level.
// When log.file is set every record is also appended to that file as JSON;
// the returned close function releases it and is safe to call either way.
func NewLogger(cfg *config.Config, debug bool, component string) (*slog.Logger, func() error, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		level = slog.LevelDebug
	}

	console := logger.New(
		logger.WithLevel(level),
		logger.WithJSON(cfg.Log.JSON),
		logger.WithPretty(!cfg.Log.JSON),
		logger.WithWriter(os.Stderr),
		logger.WithSource(debug),
		logger.WithComponent(component),
	)
	if cfg.Log.File == "" {
		return console, func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(
		logger.WithLevel(level),
		logger.WithJSON(true),
		logger.WithWriter(f),
		logger.WithComponent(component),
	)
	return logger.Multi(console, file), f.Close, nil
}

// NewStore opens the configured node store.
func NewStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Driver, error) {
	switch cfg.Storage.Driver {
	case Memory:
		log.Warn("using in-memory storage; plans are lost on exit")
		return storagemem.NewDriver(), nil
	case SQLite, "":
		driver, err := sqlite.NewDriver(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite store: %w", err)
		}
		log.Info("using SQLite storage", "path", cfg.Storage.SQLitePath)
		return driver, nil
	case Postgres:
		if cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL store: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// Stream is the event stream between the plan service and the projector.
type Stream struct {
	Publisher eventstream.Publisher

	// Subscriber is nil unless consumption was requested.
	Subscriber eventstream.Subscriber

	Topics eventstream.Topics

	closers []func() error
}

// Close closes the publisher and subscriber.
func (s *Stream) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		errs = append(errs, closeFn())
	}
	return errors.Join(errs...)
}

// NewStream connects to the configured broker. With the memory provider
// publisher and subscriber are one broker, so events only reach a projector
// in the same process; a process that publishes without consuming drops
// them instead.
func NewStream(cfg *config.Config, m *metrics.Metrics, log *slog.Logger, publish, consume bool) (*Stream, error) {
	backoff, err := cfg.Broker.BackoffDuration()
	if err != nil {
		return nil, err
	}
	retry := eventstream.RetryPolicy{MaxAttempts: cfg.Broker.MaxAttempts, Backoff: backoff}
	stream := &Stream{Topics: eventstream.DefaultTopics().WithPrefix(cfg.Broker.TopicPrefix)}

	switch cfg.Broker.Provider {
	case Memory, "":
		if !consume {
			log.Warn("in-memory broker without a projector in this process; change events are dropped")
			stream.Publisher = nop.NewPublisher()
			return stream, nil
		}
		if !publish {
			return nil, errors.New("a standalone projector needs a shared broker; set broker.provider to kafka")
		}
		broker := eventsmem.NewBroker(&eventsmem.Config{Retry: retry, Metrics: m, Logger: log})
		stream.Publisher = broker
		stream.Subscriber = broker
		stream.closers = append(stream.closers, broker.Close)
		return stream, nil

	case Kafka:
		kcfg := &kafka.Config{
			Brokers: cfg.Broker.Brokers,
			GroupID: cfg.Broker.GroupID,
			Retry:   retry,
			Metrics: m,
			Logger:  log,
		}
		if publish {
			pub, err := kafka.NewPublisher(kcfg)
			if err != nil {
				return nil, err
			}
			stream.Publisher = pub
			stream.closers = append(stream.closers, pub.Close)
		}
		if consume {
			sub, err := kafka.NewSubscriber(kcfg)
			if err != nil {
				_ = stream.Close()
				return nil, err
			}
			stream.Subscriber = sub
			stream.closers = append(stream.closers, sub.Close)
		}
		log.Info("using Kafka broker", "brokers", cfg.Broker.Brokers, "group_id", cfg.Broker.GroupID)
		return stream, nil
	}
	return nil, fmt.Errorf("unknown broker provider %q", cfg.Broker.Provider)
}

// NewIndex opens and bootstraps the configured search index.
func NewIndex(ctx context.Context, cfg *config.Config, log *slog.Logger) (searchindex.Index, error) {
	index, err := openIndex(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := index.Bootstrap(ctx); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("bootstrapping search index: %w", err)
	}
	return index, nil
}

func openIndex(ctx context.Context, cfg *config.Config, log *slog.Logger) (searchindex.Index, error) {
	switch cfg.Search.Provider {
	case Memory:
		log.Info("using in-memory search index")
		return indexmem.NewIndex(), nil

	case SQL, "":
		drv, err := openSQLIndexDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		log.Info("using SQL search index", "dialect", drv.Dialect())
		return sqlindex.NewIndex(drv), nil

	case Qdrant:
		host, port, err := splitHostPort(cfg.Search.Target)
		if err != nil {
			return nil, err
		}
		log.Info("using Qdrant search index", "host", host, "port", port, "collection", cfg.Search.Collection)
		return qdrant.NewIndex(&qdrant.Config{
			Host:       host,
			Port:       port,
			APIKey:     os.Getenv("PLANS_QDRANT_API_KEY"),
			Collection: cfg.Search.Collection,
			Logger:     log,
		})
	}
	return nil, fmt.Errorf("unknown search provider %q", cfg.Search.Provider)
}

// openSQLIndexDB opens a separate handle for the SQL index. An explicit
// search.target names a SQLite file; otherwise the store's database is used.
func openSQLIndexDB(ctx context.Context, cfg *config.Config) (*entsql.Driver, error) {
	if cfg.Search.Target == "" && cfg.Storage.Driver == Postgres {
		db, err := postgres.OpenDB(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return entsql.OpenDB(dialect.Postgres, db), nil
	}

	path := cfg.Search.Target
	if path == "" && cfg.Storage.Driver != Memory {
		path = cfg.Storage.SQLitePath
	}
	if path == "" {
		path = ":memory:"
	}
	db, err := sqlite.OpenDB(path)
	if err != nil {
		return nil, err
	}
	return entsql.OpenDB(dialect.SQLite, db), nil
}

func splitHostPort(target string) (string, int, error) {
	if target == "" {
		return "", 0, errors.New("search.target is required for the qdrant provider (host:port)")
	}
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, fmt.Errorf("invalid search.target %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid search.target port %q: %w", portStr, err)
	}
	return host, port, nil
}

// NewVerifier returns nil when auth is disabled.
func NewVerifier(cfg *config.Config) (*auth.Verifier, error) {
	if !cfg.Auth.Enabled {
		return nil, nil
	}

	ac := auth.Config{
		Issuers:    cfg.Auth.Issuers,
		HMACSecret: []byte(cfg.Auth.HMACSecret),
	}
	if len(ac.HMACSecret) == 0 {
		ac.HMACSecret = nil
	}
	if cfg.Auth.RSAPublicKeyPath != "" {
		key, err := auth.LoadRSAPublicKey(cfg.Auth.RSAPublicKeyPath)
		if err != nil {
			return nil, err
		}
		ac.RSAPublicKey = key
	}
	return auth.NewVerifier(ac)
}

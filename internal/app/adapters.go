package app

import (
	"context"
	"fmt"

	"github.com/fyeo/eventmatcher/internal/adapters/amqp"
	"github.com/fyeo/eventmatcher/internal/adapters/bbolt"
	fsw "github.com/fyeo/eventmatcher/internal/adapters/fsnotify"
	"github.com/fyeo/eventmatcher/internal/adapters/mongo"
	"github.com/fyeo/eventmatcher/internal/adapters/s3"
	"github.com/fyeo/eventmatcher/internal/adapters/sqlite"
	"github.com/fyeo/eventmatcher/internal/config"
	"github.com/fyeo/eventmatcher/internal/ports"
	"go.uber.org/zap"
)

// NamedSink is an EventSink labelled for logs and metrics.
type NamedSink struct {
	Name string
	Sink ports.EventSink
}

// Deps are the collaborators the App drives. New builds them from config;
// tests inject fakes.
type Deps struct {
	Assets    ports.AssetSource
	Snapshots ports.SnapshotStore // nil disables snapshots
	Sinks     []NamedSink
	Watcher   ports.Watcher // nil disables the inbox

	// Closers run in reverse order on Stop.
	Closers []func() error
}

// openDeps connects every adapter the config selects. On error, whatever was
// already opened is closed.
func openDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger) (deps Deps, err error) {
	defer func() {
		if err != nil {
			closeAll(deps.Closers, logger)
			deps = Deps{}
		}
	}()

	var (
		sqliteStore *sqlite.Store
		mongoStore  *mongo.Store
	)
	openSQLite := func() (*sqlite.Store, error) {
		if sqliteStore != nil {
			return sqliteStore, nil
		}
		st, err := sqlite.NewStore(cfg.Assets.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		sqliteStore = st
		deps.Closers = append(deps.Closers, st.Close)
		return st, nil
	}
	openMongo := func() (*mongo.Store, error) {
		if mongoStore != nil {
			return mongoStore, nil
		}
		collection := ""
		if cfg.Events.Backend == "mongo" {
			collection = cfg.Events.MongoCollection
		}
		st, err := mongo.Connect(ctx, mongo.Config{
			URI:             cfg.Assets.MongoURI,
			Database:        cfg.Assets.MongoDatabase,
			AssetCollection: cfg.Assets.MongoCollection,
			EventCollection: collection,
		})
		if err != nil {
			return nil, err
		}
		mongoStore = st
		deps.Closers = append(deps.Closers, func() error { return st.Close(context.Background()) })
		return st, nil
	}

	switch cfg.Assets.Backend {
	case "mongo":
		st, err := openMongo()
		if err != nil {
			return deps, err
		}
		deps.Assets = st
	default:
		st, err := openSQLite()
		if err != nil {
			return deps, err
		}
		deps.Assets = st
	}

	switch cfg.Index.Snapshot.Backend {
	case "s3":
		st, err := s3.NewStore(ctx, s3.Config{
			Bucket: cfg.Index.Snapshot.Bucket,
			Prefix: cfg.Index.Snapshot.Prefix,
			Region: cfg.Index.Snapshot.Region,
		})
		if err != nil {
			return deps, err
		}
		deps.Snapshots = st
	case "bbolt":
		st, err := bbolt.NewStore(cfg.Index.Snapshot.Path)
		if err != nil {
			return deps, fmt.Errorf("open snapshot store: %w", err)
		}
		deps.Snapshots = st
		deps.Closers = append(deps.Closers, st.Close)
	}

	switch cfg.Events.Backend {
	case "sqlite":
		st, err := openSQLite()
		if err != nil {
			return deps, err
		}
		deps.Sinks = append(deps.Sinks, NamedSink{Name: "sqlite", Sink: st})
	case "mongo":
		st, err := openMongo()
		if err != nil {
			return deps, err
		}
		deps.Sinks = append(deps.Sinks, NamedSink{Name: "mongo", Sink: st})
	}

	if cfg.Events.AMQPURL != "" {
		pub, err := amqp.Dial(cfg.Events.AMQPURL, cfg.Events.AMQPQueue, logger)
		if err != nil {
			return deps, err
		}
		deps.Sinks = append(deps.Sinks, NamedSink{Name: "amqp", Sink: pub})
		deps.Closers = append(deps.Closers, pub.Close)
	}

	if cfg.Inbox.Directory != "" {
		w, err := fsw.NewWatcher(0, logger)
		if err != nil {
			return deps, err
		}
		deps.Watcher = w
		deps.Closers = append(deps.Closers, w.Stop)
	}

	return deps, nil
}

func closeAll(closers []func() error, logger *zap.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

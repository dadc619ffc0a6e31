// Package app wires together all adapters and domain logic.
// It provides lifecycle management for the matcher daemon: create, start, stop.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fyeo/eventmatcher/internal/adapters/metrics"
	"github.com/fyeo/eventmatcher/internal/adapters/socket"
	"github.com/fyeo/eventmatcher/internal/adapters/web"
	"github.com/fyeo/eventmatcher/internal/config"
	"github.com/fyeo/eventmatcher/internal/domain/match"
	applog "github.com/fyeo/eventmatcher/internal/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// connectTimeout bounds dialing the asset catalog, snapshot store and queue.
const connectTimeout = 30 * time.Second

// App is the top-level container wiring all components together.
type App struct {
	Config  *config.Config
	Paths   *Paths
	Builder *match.Builder
	Metrics *metrics.Metrics

	Server    *socket.Server
	WebServer *web.Server

	deps   Deps
	logger *zap.Logger
	cron   *cron.Cron
	now    func() time.Time

	rebuildMu sync.Mutex     // one rebuild at a time
	inbox     errgroup.Group // bounded pool for inbox documents
	inboxQ    *inboxQueue
	started   time.Time
	serving   bool // socket bound; runtime files are ours to clean
	stopOnce  sync.Once
}

// New creates an App with every adapter the config selects. Does not load
// indexes or start services.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	logger = applog.OrNop(logger)
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	deps, err := openDeps(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a, err := NewWithDeps(cfg, deps, logger)
	if err != nil {
		closeAll(deps.Closers, logger)
		return nil, err
	}
	return a, nil
}

// NewWithDeps creates an App around already constructed collaborators.
func NewWithDeps(cfg *config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	if deps.Assets == nil {
		return nil, errors.New("asset source required")
	}
	logger = applog.OrNop(logger)

	m := metrics.New()
	builder, err := match.NewBuilder(match.Options{
		Radius:             cfg.Matcher.ContextRadius,
		Scorer:             match.NewScorer(cfg.Matcher.Multipliers, cfg.Matcher.DefaultMultiplier),
		CacheSize:          cfg.Matcher.ThreatActorCacheSize,
		SocialMediaSites:   cfg.Matcher.SocialMediaSites,
		Logger:             logger.Named("match"),
		OnThreatActorError: func(error) { m.ThreatActorErrors.Inc() },
	})
	if err != nil {
		return nil, fmt.Errorf("create builder: %w", err)
	}

	a := &App{
		Config:  cfg,
		Paths:   NewPaths(cfg.DataDir),
		Builder: builder,
		Metrics: m,
		deps:    deps,
		logger:  logger,
		now:     time.Now,
	}

	workers := cfg.Inbox.Workers
	if workers <= 0 {
		workers = 1
	}
	a.inbox.SetLimit(workers)

	a.Server = socket.NewServer(a, a.Paths.Socket, logger)
	a.WebServer = web.NewServer(a, m.Handler(), logger)
	return a, nil
}

// Start loads the indexes, then brings up the socket server, the HTTP API,
// the inbox watcher and the rebuild schedule. Index loading is the only
// fatal step besides the socket; the rest degrade with a warning.
func (a *App) Start(ctx context.Context) error {
	a.started = a.now()
	if err := a.Paths.EnsureDirs(); err != nil {
		return fmt.Errorf("create data dirs: %w", err)
	}

	if err := a.LoadIndexes(ctx); err != nil {
		return fmt.Errorf("load indexes: %w", err)
	}

	if err := a.Server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	a.serving = true

	if a.Config.Server.Port != 0 {
		if err := a.WebServer.Start(a.Config.Server.Host, a.Config.Server.Port); err != nil {
			a.logger.Warn("http api unavailable", zap.Error(err))
		}
	}

	if err := a.startInbox(); err != nil {
		a.logger.Warn("inbox unavailable", zap.Error(err))
	}

	if err := a.startSchedule(); err != nil {
		a.logger.Warn("rebuild schedule unavailable", zap.Error(err))
	}

	if err := os.WriteFile(a.Paths.PIDFile, fmt.Appendf(nil, "%d", os.Getpid()), 0644); err != nil {
		a.logger.Warn("write pid file", zap.Error(err))
	}

	a.logger.Info("matcher started",
		zap.String("socket", a.Server.Addr()),
		zap.String("http", a.WebServer.Addr()),
		zap.Int("sinks", len(a.deps.Sinks)))
	return nil
}

// Stop shuts services down in reverse order and closes every adapter.
// Idempotent.
func (a *App) Stop() error {
	a.stopOnce.Do(func() {
		if a.cron != nil {
			<-a.cron.Stop().Done()
		}
		if a.deps.Watcher != nil {
			a.deps.Watcher.Stop()
		}
		a.stopInbox()
		_ = a.inbox.Wait()
		a.WebServer.Stop()
		a.Server.Stop()
		closeAll(a.deps.Closers, a.logger)
		if a.serving {
			a.Paths.CleanEphemeral()
		}
		a.logger.Info("matcher stopped")
	})
	return nil
}

// ShutdownCh is closed when a client asks the daemon to exit.
func (a *App) ShutdownCh() <-chan struct{} {
	return a.Server.ShutdownCh()
}

func (a *App) startSchedule() error {
	spec := a.Config.Index.RebuildSchedule
	if spec == "" || spec == "off" {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := a.rebuild(ctx, triggerSchedule); err != nil {
			a.logger.Error("scheduled rebuild failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("parse rebuild schedule %q: %w", spec, err)
	}
	c.Start()
	a.cron = c
	return nil
}

// Health implements socket.AppQueries.
func (a *App) Health() socket.HealthResult {
	assets, threatActors := a.Builder.Indexes()
	res := socket.HealthResult{
		Status:              "loading",
		Ready:               a.Builder.Ready(),
		AssetKeywords:       assets.KeywordCount(),
		ThreatActorKeywords: threatActors.KeywordCount(),
		SkippedKeywords:     assets.Skipped() + threatActors.Skipped(),
	}
	if res.Ready {
		res.Status = "ok"
		res.IndexBuiltAt = assets.BuiltAt().UTC().Format(time.RFC3339)
	}
	if !a.started.IsZero() {
		res.Uptime = a.now().Sub(a.started).Round(time.Second).String()
	}
	return res
}

// Match implements socket.AppQueries.
func (a *App) Match(ctx context.Context, params socket.MatchParams) (socket.MatchResult, error) {
	start := time.Now()
	events, written, err := a.process(ctx, params.Document, !params.DryRun)
	if err != nil {
		return socket.MatchResult{}, err
	}
	if events == nil {
		events = []match.MatchEvent{}
	}
	return socket.MatchResult{
		Events:  events,
		Count:   len(events),
		Written: written,
		Elapsed: time.Since(start).String(),
	}, nil
}

// Reindex implements socket.AppQueries.
func (a *App) Reindex(ctx context.Context) (socket.ReindexResult, error) {
	res, err := a.RebuildIndexes(ctx)
	if err != nil {
		return socket.ReindexResult{}, err
	}
	return socket.ReindexResult{
		Assets:              res.Assets,
		ThreatActors:        res.ThreatActors,
		AssetKeywords:       res.AssetKeywords,
		ThreatActorKeywords: res.ThreatActorKeywords,
		Skipped:             res.Skipped,
		ElapsedMs:           res.Took.Milliseconds(),
	}, nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyeo/eventmatcher/internal/adapters/ahocorasick"
	"github.com/fyeo/eventmatcher/internal/domain/keyword"
	"github.com/fyeo/eventmatcher/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Index names used in logs and metrics.
const (
	indexAssets       = "asset"
	indexThreatActors = "threat_actor"
)

// Rebuild triggers, recorded on the rebuild counter.
const (
	triggerStartup  = "startup"
	triggerMissing  = "missing"
	triggerStale    = "stale"
	triggerError    = "error"
	triggerSchedule = "schedule"
	triggerManual   = "manual"
)

// RebuildResult summarizes one rebuild of both indexes.
type RebuildResult struct {
	Assets              int
	ThreatActors        int
	AssetKeywords       int
	ThreatActorKeywords int
	Skipped             int
	Took                time.Duration
}

// LoadIndexes publishes indexes at startup: from snapshots when both are
// present and younger than index.max_age, otherwise by a synchronous rebuild
// from the asset catalog.
func (a *App) LoadIndexes(ctx context.Context) error {
	assets, threatActors, trigger := a.loadSnapshots(ctx)
	if trigger == "" {
		a.publish(assets, threatActors, 0)
		a.logger.Info("indexes loaded from snapshot",
			zap.Int("asset_keywords", assets.KeywordCount()),
			zap.Int("threat_actor_keywords", threatActors.KeywordCount()),
			zap.Time("built_at", assets.BuiltAt()))
		return nil
	}

	_, err := a.rebuild(ctx, trigger)
	return err
}

// loadSnapshots returns both snapshot indexes, or the rebuild trigger when
// either cannot be used.
func (a *App) loadSnapshots(ctx context.Context) (assets, threatActors *keyword.Index, trigger string) {
	if a.deps.Snapshots == nil {
		return nil, nil, triggerStartup
	}
	keys := a.Config.Index.Snapshot
	if assets, trigger = a.loadSnapshot(ctx, keys.AssetKey); trigger != "" {
		return nil, nil, trigger
	}
	if threatActors, trigger = a.loadSnapshot(ctx, keys.ThreatActorKey); trigger != "" {
		return nil, nil, trigger
	}
	return assets, threatActors, ""
}

func (a *App) loadSnapshot(ctx context.Context, key string) (*keyword.Index, string) {
	snap, savedAt, err := a.deps.Snapshots.Load(ctx, key)
	switch {
	case errors.Is(err, ports.ErrSnapshotNotFound):
		a.logger.Info("index snapshot missing", zap.String("key", key))
		return nil, triggerMissing
	case err != nil:
		a.logger.Warn("index snapshot unreadable", zap.String("key", key), zap.Error(err))
		return nil, triggerError
	}
	if age := a.now().Sub(savedAt); age > a.Config.Index.MaxAge {
		a.logger.Info("index snapshot stale",
			zap.String("key", key),
			zap.Duration("age", age.Round(time.Second)),
			zap.Duration("max_age", a.Config.Index.MaxAge))
		return nil, triggerStale
	}
	return keyword.Restore(snap, ahocorasick.Factory, a.logger), ""
}

// RebuildIndexes builds both indexes from the asset catalog in parallel,
// publishes them together and saves snapshots. A failed rebuild leaves the
// published indexes untouched. Snapshot save failures are logged only.
func (a *App) RebuildIndexes(ctx context.Context) (RebuildResult, error) {
	return a.rebuild(ctx, triggerManual)
}

func (a *App) rebuild(ctx context.Context, trigger string) (RebuildResult, error) {
	a.rebuildMu.Lock()
	defer a.rebuildMu.Unlock()

	start := time.Now()
	var (
		res                  RebuildResult
		assets, threatActors *keyword.Index
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		idx, n, err := a.buildIndex(gctx, ports.AssetFilter{Monitored: true})
		if err != nil {
			return fmt.Errorf("build %s index: %w", indexAssets, err)
		}
		assets, res.Assets = idx, n
		return nil
	})
	g.Go(func() error {
		idx, n, err := a.buildIndex(gctx, ports.AssetFilter{ThreatActor: true})
		if err != nil {
			return fmt.Errorf("build %s index: %w", indexThreatActors, err)
		}
		threatActors, res.ThreatActors = idx, n
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger.Error("index rebuild failed", zap.String("trigger", trigger), zap.Error(err))
		return RebuildResult{}, err
	}

	res.Took = time.Since(start)
	res.AssetKeywords = assets.KeywordCount()
	res.ThreatActorKeywords = threatActors.KeywordCount()
	res.Skipped = assets.Skipped() + threatActors.Skipped()

	a.publish(assets, threatActors, res.Took)
	a.Metrics.IndexRebuilds.WithLabelValues(trigger).Inc()
	a.logger.Info("indexes rebuilt",
		zap.String("trigger", trigger),
		zap.Int("assets", res.Assets),
		zap.Int("threat_actors", res.ThreatActors),
		zap.Int("asset_keywords", res.AssetKeywords),
		zap.Int("threat_actor_keywords", res.ThreatActorKeywords),
		zap.Int("skipped", res.Skipped),
		zap.Duration("took", res.Took))

	a.saveSnapshots(ctx, assets, threatActors)
	return res, nil
}

// buildIndex lists the assets selected by filter, projects them into keyword
// records and compiles the index.
func (a *App) buildIndex(ctx context.Context, filter ports.AssetFilter) (*keyword.Index, int, error) {
	list, err := a.deps.Assets.ListAssets(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	fallback := a.Config.Matcher.DefaultRequiredScore
	for i := range list {
		if list[i].RequiredScore == nil {
			score := fallback
			list[i].RequiredScore = &score
		}
	}
	return keyword.Build(keyword.ProjectAll(list), ahocorasick.Factory, a.logger), len(list), nil
}

func (a *App) publish(assets, threatActors *keyword.Index, took time.Duration) {
	a.Builder.SetIndexes(assets, threatActors)
	a.Metrics.RecordIndex(indexAssets, assets.KeywordCount(), assets.BuiltAt(), took)
	a.Metrics.RecordIndex(indexThreatActors, threatActors.KeywordCount(), threatActors.BuiltAt(), took)
}

func (a *App) saveSnapshots(ctx context.Context, assets, threatActors *keyword.Index) {
	if a.deps.Snapshots == nil {
		return
	}
	keys := a.Config.Index.Snapshot
	for key, idx := range map[string]*keyword.Index{
		keys.AssetKey:       assets,
		keys.ThreatActorKey: threatActors,
	} {
		if err := a.deps.Snapshots.Save(ctx, key, idx.Snapshot()); err != nil {
			a.logger.Warn("save index snapshot failed", zap.String("key", key), zap.Error(err))
		}
	}
}

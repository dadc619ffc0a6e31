package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyeo/eventmatcher/internal/domain/match"
	"github.com/fyeo/eventmatcher/internal/ports"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Document outcomes recorded on the documents counter.
const (
	outcomeMatched   = "matched"
	outcomeUnmatched = "unmatched"
	outcomeError     = "error"
)

// Sink write statuses.
const (
	sinkInserted  = "inserted"
	sinkDuplicate = "duplicate"
	sinkError     = "error"
)

// ProcessDocument matches doc and writes every resulting event to all sinks.
// Events are returned even when a sink write fails; the error then joins every
// failed write.
func (a *App) ProcessDocument(ctx context.Context, doc ports.Document) ([]match.MatchEvent, error) {
	events, _, err := a.process(ctx, doc, true)
	return events, err
}

// ProcessDocuments runs ProcessDocument over docs with at most inbox.workers
// documents in flight. Results line up with docs. The first error is returned
// after every document has been attempted.
func (a *App) ProcessDocuments(ctx context.Context, docs []ports.Document) ([][]match.MatchEvent, error) {
	results := make([][]match.MatchEvent, len(docs))

	var g errgroup.Group
	g.SetLimit(max(a.Config.Inbox.Workers, 1))
	for i, doc := range docs {
		g.Go(func() error {
			events, err := a.ProcessDocument(ctx, doc)
			results[i] = events
			if err != nil {
				return fmt.Errorf("document %d (%s): %w", i, doc.URL, err)
			}
			return nil
		})
	}
	return results, g.Wait()
}

// process matches one document and, when write is set, fans each event out to
// every sink. written counts events at least one sink inserted.
func (a *App) process(ctx context.Context, doc ports.Document, write bool) (events []match.MatchEvent, written int, err error) {
	start := time.Now()
	events, err = a.Builder.MatchAll(ctx, doc)
	if err != nil {
		a.Metrics.ObserveDocument(outcomeError, time.Since(start))
		return nil, 0, err
	}

	outcome := outcomeUnmatched
	if len(events) > 0 {
		outcome = outcomeMatched
	}
	a.Metrics.ObserveDocument(outcome, time.Since(start))
	for i := range events {
		a.Metrics.RecordEvent(string(events[i].SourceNetwork))
	}

	if !write || len(a.deps.Sinks) == 0 {
		return events, 0, nil
	}

	var errs []error
	for i := range events {
		inserted, err := a.store(ctx, &events[i])
		if err != nil {
			errs = append(errs, err)
		}
		if inserted {
			written++
		}
	}
	return events, written, errors.Join(errs...)
}

// store writes ev to every sink. One sink failing does not skip the others.
func (a *App) store(ctx context.Context, ev *match.MatchEvent) (inserted bool, err error) {
	stored, err := ev.Stored()
	if err != nil {
		return false, err
	}

	var errs []error
	for _, s := range a.deps.Sinks {
		ok, err := s.Sink.WriteEvent(ctx, stored)
		switch {
		case err != nil:
			a.Metrics.RecordSinkWrite(s.Name, sinkError)
			a.logger.Error("event write failed",
				zap.String("sink", s.Name),
				zap.String("event_id", ev.ID),
				zap.String("asset_id", ev.AssetID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		case ok:
			inserted = true
			a.Metrics.RecordSinkWrite(s.Name, sinkInserted)
		default:
			a.Metrics.RecordSinkWrite(s.Name, sinkDuplicate)
			a.logger.Debug("duplicate event",
				zap.String("sink", s.Name),
				zap.String("hash", ev.Hash))
		}
	}
	return inserted, errors.Join(errs...)
}

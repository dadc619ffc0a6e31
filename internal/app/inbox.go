package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fyeo/eventmatcher/internal/ports"
	"go.uber.org/zap"
)

// inboxTimeout bounds matching and writing one inbox document.
const inboxTimeout = 5 * time.Minute

// startInbox watches the inbox directory. Each complete *.json document is
// matched on the bounded inbox pool, then moved to processed/ or failed/.
func (a *App) startInbox() error {
	dir := a.Config.Inbox.Directory
	if a.deps.Watcher == nil || dir == "" {
		return nil
	}
	processed, failed := inboxDirs(dir)
	for _, d := range []string{dir, processed, failed} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
	}

	q := newInboxQueue()
	go q.run(func(path string) {
		a.inbox.Go(func() error {
			a.handleInboxFile(path)
			return nil
		})
	})
	if err := a.deps.Watcher.Watch(dir, q.push); err != nil {
		q.close()
		return err
	}
	a.inboxQ = q
	a.logger.Info("watching inbox", zap.String("dir", dir), zap.Int("workers", a.Config.Inbox.Workers))
	return nil
}

// handleInboxFile processes one inbox document and files it away.
func (a *App) handleInboxFile(path string) {
	ctx, cancel := context.WithTimeout(context.Background(), inboxTimeout)
	defer cancel()

	log := a.logger.With(zap.String("file", filepath.Base(path)))
	events, err := a.processFile(ctx, path)
	if errors.Is(err, os.ErrNotExist) {
		// Picked up by another worker or removed by the producer.
		return
	}

	processed, failed := inboxDirs(a.Config.Inbox.Directory)
	dest := processed
	if err != nil {
		dest = failed
		log.Error("inbox document failed", zap.Error(err))
	} else {
		log.Info("inbox document processed", zap.Int("events", events))
	}

	if err := os.Rename(path, filepath.Join(dest, filepath.Base(path))); err != nil {
		log.Warn("move inbox document", zap.String("dest", dest), zap.Error(err))
	}
}

func (a *App) processFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var doc ports.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("decode document: %w", err)
	}
	if doc.Text == "" {
		return 0, errors.New("document has no text")
	}
	events, err := a.ProcessDocument(ctx, doc)
	return len(events), err
}

// stopInbox stops dispatching inbox files. Files still queued stay in the
// inbox directory.
func (a *App) stopInbox() {
	if a.inboxQ == nil {
		return
	}
	if n := a.inboxQ.close(); n > 0 {
		a.logger.Info("inbox files left unprocessed", zap.Int("files", n))
	}
}

// inboxQueue hands watcher events to the worker pool. push never blocks, so a
// busy pool cannot stall event delivery from the watcher.
type inboxQueue struct {
	mu      sync.Mutex
	pending []string
	ready   chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newInboxQueue() *inboxQueue {
	return &inboxQueue{
		ready: make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (q *inboxQueue) push(path string) {
	q.mu.Lock()
	q.pending = append(q.pending, path)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// run passes queued paths to dispatch, in arrival order, until close.
func (q *inboxQueue) run(dispatch func(path string)) {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			return
		case <-q.ready:
		}
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()
		for _, path := range batch {
			dispatch(path)
		}
	}
}

// close stops run, waits for it to return and reports how many paths were
// never dispatched.
func (q *inboxQueue) close() int {
	q.once.Do(func() { close(q.stop) })
	<-q.done
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

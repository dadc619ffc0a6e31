// Package fsnotify implements the ports.Watcher interface using github.com/fsnotify/fsnotify.
// It watches an inbox directory for extracted-document JSON files, filters out
// temporary and hidden files, and waits for a file to go quiet before reporting
// it (uploaders usually write a document in several chunks).
package fsnotify

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultQuiet is how long a file must stay unchanged before it is reported.
const DefaultQuiet = 100 * time.Millisecond

// Suffixes uploaders use for files still being written.
var ignoreSuffixes = []string{
	".tmp",
	".part",
	".partial",
	".swp",
	"~",
}

// Watcher implements ports.Watcher using fsnotify.
type Watcher struct {
	fw     *fsnotify.Watcher
	quiet  time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	pending  map[string]*time.Timer
	inflight sync.WaitGroup
	stopped  bool
	done     chan struct{}
}

// NewWatcher creates a new inbox watcher. quiet <= 0 selects DefaultQuiet.
func NewWatcher(quiet time.Duration, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		fw:      fw,
		quiet:   quiet,
		logger:  logger.Named("inbox"),
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}, nil
}

// Watch starts monitoring dir (not recursively; subdirectories hold
// processed and failed documents). Documents already in dir are reported
// too, after the same quiet period.
func (w *Watcher) Watch(dir string, onReady func(path string)) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := w.fw.Add(absDir); err != nil {
		return fmt.Errorf("watch %s: %w", absDir, err)
	}

	backlog, err := existingDocuments(absDir)
	if err != nil {
		return err
	}
	for _, path := range backlog {
		w.schedule(path, onReady)
	}

	go func() {
		for {
			select {
			case event, ok := <-w.fw.Events:
				if !ok {
					return
				}
				if !isDocument(event.Name) {
					continue
				}
				switch {
				case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
					w.schedule(event.Name, onReady)
				case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					w.cancel(event.Name)
				}

			case err, ok := <-w.fw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.Error(err))

			case <-w.done:
				return
			}
		}
	}()

	return nil
}

// schedule (re)arms the quiet timer for path.
func (w *Watcher) schedule(path string, onReady func(string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Reset(w.quiet)
		return
	}
	var t *time.Timer
	t = time.AfterFunc(w.quiet, func() {
		w.mu.Lock()
		// A timer reset while its callback was waiting for the lock fires
		// twice; only the first firing owns the entry.
		if w.stopped || w.pending[path] != t {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.inflight.Add(1)
		w.mu.Unlock()

		defer w.inflight.Done()
		onReady(path)
	})
	w.pending[path] = t
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// Stop ends monitoring and waits for running callbacks to return.
// Safe to call multiple times; must not be called from onReady.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	close(w.done)
	w.mu.Unlock()

	err := w.fw.Close()
	w.inflight.Wait()
	return err
}

func existingDocuments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if isDocument(path) {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// isDocument reports whether path names a finished document file.
func isDocument(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	for _, suffix := range ignoreSuffixes {
		if strings.HasSuffix(base, suffix) {
			return false
		}
	}
	return strings.EqualFold(filepath.Ext(base), ".json")
}

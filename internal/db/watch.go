package db

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watcher polls the store for writes made by other processes and hands them
// to a handler, in revision order. Writes stamped with the store's own origin
// are skipped because the writer already notified its listeners.
type Watcher struct {
	store    *Store
	logger   *zap.Logger
	interval time.Duration
	handler  func(Entry)

	mu   sync.Mutex
	last int64

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

func NewWatcher(store *Store, logger *zap.Logger, interval time.Duration, handler func(Entry)) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Watcher{
		store:    store,
		logger:   logger,
		interval: interval,
		handler:  handler,
		stop:     make(chan struct{}),
	}
}

// Start records the current revision, so history is not replayed, and begins
// polling in the background.
func (w *Watcher) Start(ctx context.Context) error {
	latest, err := w.store.LatestRevision(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.last = latest
	w.mu.Unlock()

	w.logger.Debug("starting storage watcher", zap.Duration("interval", w.interval), zap.Int64("revision", latest))
	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stop)
	})
	w.wg.Wait()
	w.logger.Debug("storage watcher stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("storage watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) Poll(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, err := w.store.Changes(ctx, w.last)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		w.last = entry.Revision
		if entry.Origin == w.store.Origin() {
			continue
		}
		w.logger.Debug("storage changed elsewhere",
			zap.String("key", entry.Key),
			zap.Int64("revision", entry.Revision),
			zap.Bool("removed", entry.Value == nil),
		)
		if w.handler != nil {
			w.handler(entry)
		}
	}
	return nil
}

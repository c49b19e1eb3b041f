package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	appLog "notifsync/internal/log"
)

// DefaultWatchInterval is how often the watcher polls the durable file.
const DefaultWatchInterval = 30 * time.Second

// Watcher polls the store's durable file and reloads the store when the
// file was modified by someone else. A reload is a full replacement; an
// external edit always wins over memory.
//
// Ticks that arrive while a reload is still running are skipped.
type Watcher struct {
	store    *Store
	interval time.Duration
	cron     *cron.Cron

	reloads atomic.Int64
}

// NewWatcher creates a watcher for s. Intervals below one second are
// rounded up to one second by the scheduler.
func NewWatcher(s *Store, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	logger := appLog.CronLogger{}
	return &Watcher{
		store:    s,
		interval: interval,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Start begins polling in the background.
func (w *Watcher) Start() {
	w.cron.Schedule(cron.Every(w.interval), cron.FuncJob(w.Check))
	w.cron.Start()
	appLog.Info("file watcher started", "path", w.store.Path(), "interval", w.interval.String())
}

// Stop halts polling and waits for an in-flight reload to finish.
func (w *Watcher) Stop() {
	<-w.cron.Stop().Done()
	appLog.Info("file watcher stopped", "path", w.store.Path())
}

// Run starts the watcher and blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	w.Start()
	<-ctx.Done()
	w.Stop()
}

// Check performs a single poll, reloading the store when the file changed.
func (w *Watcher) Check() {
	reloaded, err := w.store.ReloadIfChanged()
	if err != nil {
		appLog.Error("events reload failed", err, "path", w.store.Path())
		return
	}
	if reloaded {
		w.reloads.Add(1)
	}
}

// Reloads returns how many reloads the watcher has performed.
func (w *Watcher) Reloads() int64 {
	return w.reloads.Load()
}

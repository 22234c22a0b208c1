package core

// scheduler.go reloads the dataset when its source file changes on disk.
//
// The scheduler polls the modification time of the current dataset's source,
// or of the default file when nothing is loaded yet. A failed reload is
// logged and audited like any other; the scheduler keeps running.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/trackstats/internal/audit"
)

// watchState remembers the last modification time seen per path.
type watchState struct {
	path    string
	modTime time.Time
}

// StartReloadScheduler polls for source changes every interval until ctx
// is cancelled. A non-positive interval returns immediately.
func (s *Service) StartReloadScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	slog.Info("reload scheduler started", "interval", interval.String())

	state := s.initialWatchState()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reload scheduler stopped")
			return
		case <-ticker.C:
			s.checkSource(ctx, &state)
		}
	}
}

// watchedPath is the file the scheduler should track right now.
func (s *Service) watchedPath() string {
	if ds, ok := s.registry.Current(); ok {
		return ds.Source
	}
	p, err := s.ResolvePath(s.defaultFile)
	if err != nil {
		return ""
	}
	return p
}

// initialWatchState records the current source's mtime so the first tick
// does not reload an unchanged file.
func (s *Service) initialWatchState() watchState {
	st := watchState{path: s.watchedPath()}
	if _, ok := s.registry.Current(); ok {
		if mt, ok := sourceModTime(st.path); ok {
			st.modTime = mt
		}
	}
	return st
}

// checkSource reloads when the watched file's mtime differs from the last
// one seen. It reports whether a reload was attempted.
func (s *Service) checkSource(ctx context.Context, st *watchState) bool {
	path := s.watchedPath()
	if path == "" {
		return false
	}
	if path != st.path {
		// The dataset was replaced from another file; start tracking it.
		st.path = path
		st.modTime, _ = sourceModTime(path)
		return false
	}

	mt, ok := sourceModTime(path)
	if !ok || mt.Equal(st.modTime) {
		return false
	}
	st.modTime = mt

	slog.Debug("source changed", "path", path, "mod_time", mt)
	if _, err := s.Reload(ctx, ReloadRequest{Path: path, Trigger: audit.TriggerScheduler}); err != nil {
		return true
	}
	// The source may have been replaced again while loading.
	st.path = s.watchedPath()
	return true
}

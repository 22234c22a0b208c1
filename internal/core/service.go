package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/trackstats/internal/audit"
	"github.com/JonMunkholm/trackstats/internal/metrics"
)

// Default source paths, relative to the base directory.
const (
	DefaultSourceFile = "data/Spotify_Songs_2024.csv"
	DefaultUpdateFile = "data/Spotify_Songs_2024_new.csv"
)

// DefaultReloadTimeout bounds a single load.
const DefaultReloadTimeout = 2 * time.Minute

// auditTimeout bounds writing one audit entry after a reload finishes.
const auditTimeout = 5 * time.Second

// ServiceConfig holds the settings for NewService. Zero values select
// defaults; a nil Audit keeps history in memory.
type ServiceConfig struct {
	BaseDir     string
	DefaultFile string
	UpdateFile  string

	Loader LoaderConfig

	MaxConcurrentReloads int
	ReloadWait           time.Duration
	ReloadTimeout        time.Duration

	Audit   audit.Store
	Metrics *metrics.Metrics
}

// Service ties the loader, registry and engine together and records every
// reload attempt.
type Service struct {
	loader   *Loader
	registry *Registry
	engine   *Engine
	limiter  *ReloadLimiter
	audit    audit.Store
	metrics  *metrics.Metrics

	baseDir       string
	defaultFile   string
	updateFile    string
	reloadTimeout time.Duration

	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

// NewService creates a Service. The base directory is made absolute so
// path confinement does not depend on the working directory later.
func NewService(cfg ServiceConfig) (*Service, error) {
	base := cfg.BaseDir
	if base == "" {
		base = "."
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	store := cfg.Audit
	if store == nil {
		store = audit.NewMemoryStore(0)
	}

	s := &Service{
		loader:        NewLoader(cfg.Loader),
		registry:      NewRegistry(),
		limiter:       NewReloadLimiter(cfg.MaxConcurrentReloads, cfg.ReloadWait),
		audit:         store,
		metrics:       cfg.Metrics,
		baseDir:       filepath.Clean(base),
		defaultFile:   cmp.Or(cfg.DefaultFile, DefaultSourceFile),
		updateFile:    cmp.Or(cfg.UpdateFile, DefaultUpdateFile),
		reloadTimeout: cfg.ReloadTimeout,
		subscribers:   make(map[chan Event]struct{}),
	}
	if s.reloadTimeout <= 0 {
		s.reloadTimeout = DefaultReloadTimeout
	}
	s.engine = NewEngine(s.registry)
	return s, nil
}

// Engine returns the aggregation engine over the service's registry.
func (s *Service) Engine() *Engine { return s.engine }

// Current returns the dataset being served, if any.
func (s *Service) Current() (*Dataset, bool) { return s.registry.Current() }

// BaseDir returns the absolute directory sources are resolved against.
func (s *Service) BaseDir() string { return s.baseDir }

// UpdateFile returns the path reloaded when a request names none.
func (s *Service) UpdateFile() string { return s.updateFile }

// ResolvePath joins a requested path onto the base directory. Absolute
// paths are accepted only when they already lie inside it.
func (s *Service) ResolvePath(requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return "", fmt.Errorf("%w: empty file path", ErrInvalidRequest)
	}
	if strings.ContainsRune(requested, 0) {
		return "", fmt.Errorf("%w: file path contains NUL", ErrInvalidRequest)
	}

	p := requested
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.baseDir, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(s.baseDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q is outside the data directory", ErrInvalidRequest, requested)
	}
	return p, nil
}

// ReloadRequest describes one reload. An empty Path selects the update file.
type ReloadRequest struct {
	Path    string
	Trigger audit.Trigger
}

// LoadInitial loads the default source at startup.
func (s *Service) LoadInitial(ctx context.Context) (*Dataset, error) {
	return s.Reload(ctx, ReloadRequest{Path: s.defaultFile, Trigger: audit.TriggerStartup})
}

// Reload loads a source and, on success, replaces the current dataset.
// A failed load leaves the current dataset in place. Every attempt is
// audited and subscribers are told about the outcome.
func (s *Service) Reload(ctx context.Context, req ReloadRequest) (*Dataset, error) {
	start := time.Now()
	if req.Path == "" {
		req.Path = s.updateFile
	}
	if req.Trigger == "" {
		req.Trigger = audit.TriggerAPI
	}

	entry := audit.Entry{
		Trigger:       req.Trigger,
		RequestedPath: req.Path,
		IPAddress:     GetIPAddressFromContext(ctx),
		UserAgent:     GetUserAgentFromContext(ctx),
	}

	resolved, err := s.ResolvePath(req.Path)
	if err != nil {
		s.finish(ctx, entry, nil, err, start)
		return nil, err
	}
	entry.ResolvedPath = resolved

	if err := s.limiter.Acquire(ctx); err != nil {
		s.finish(ctx, entry, nil, err, start)
		return nil, err
	}
	defer func() {
		s.limiter.Release()
		s.setActiveGauge()
	}()
	s.setActiveGauge()

	loadCtx, cancel := context.WithTimeout(ctx, s.reloadTimeout)
	defer cancel()

	ds, err := s.loader.Load(loadCtx, resolved)
	if err != nil {
		s.finish(ctx, entry, nil, err, start)
		return nil, err
	}

	s.registry.Replace(ds)
	s.finish(ctx, entry, ds, nil, start)
	return ds, nil
}

// finish logs, audits, measures and publishes a completed reload attempt.
func (s *Service) finish(ctx context.Context, entry audit.Entry, ds *Dataset, loadErr error, start time.Time) {
	elapsed := time.Since(start)
	entry.DurationMS = elapsed.Milliseconds()

	result := metrics.ResultSuccess
	if loadErr != nil {
		result = metrics.ResultFailure
		msg := MapError(loadErr)
		entry.Outcome = audit.OutcomeFailure
		entry.ErrorCode = msg.Code
		entry.ErrorMessage = loadErr.Error()
		var le *LoadError
		if errors.As(loadErr, &le) {
			entry.ErrorKind = le.Kind.String()
		}

		slog.Warn("reload failed",
			"trigger", entry.Trigger,
			"path", entry.RequestedPath,
			"code", msg.Code,
			"error", loadErr,
			"duration_ms", entry.DurationMS,
		)
		s.publish(Event{
			Type:    EventReloadFailed,
			Path:    entry.RequestedPath,
			Code:    msg.Code,
			Message: msg.Message,
			At:      time.Now().UTC(),
		})
	} else {
		entry.Outcome = audit.OutcomeSuccess
		entry.DatasetID = ds.ID
		entry.RowsKept = ds.Len()
		entry.RowsRemoved = ds.Removed.Total()

		slog.Info("dataset replaced",
			"trigger", entry.Trigger,
			"dataset_id", ds.ID,
			"source", ds.Source,
			"rows", ds.Len(),
			"removed", ds.Removed.Total(),
			"duration_ms", entry.DurationMS,
		)
		if s.metrics != nil {
			s.metrics.SetDataset(ds.Len(), ds.Removed.Charset, ds.Removed.Blacklist, ds.LoadedAt)
		}
		s.publish(Event{
			Type:      EventDatasetReplaced,
			DatasetID: ds.ID,
			Path:      ds.Source,
			Rows:      ds.Len(),
			Removed:   ds.Removed.Total(),
			At:        ds.LoadedAt,
		})
	}

	if s.metrics != nil {
		s.metrics.ObserveLoad(string(entry.Trigger), result, elapsed)
	}

	// The audit write outlives a cancelled request so failures are still recorded.
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := s.audit.Record(actx, entry); err != nil {
		slog.Error("record reload audit entry", "error", err)
	}
}

func (s *Service) setActiveGauge() {
	if s.metrics != nil {
		s.metrics.ReloadsActive.Set(float64(s.limiter.ActiveCount()))
	}
}

// RecentReloads returns audited reload attempts, newest first.
func (s *Service) RecentReloads(ctx context.Context, limit int) ([]audit.Entry, error) {
	entries, err := s.audit.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent reloads: %w", err)
	}
	return entries, nil
}

// LimiterStatus reports reload slot usage.
func (s *Service) LimiterStatus() ReloadLimiterStatus { return s.limiter.Status() }

// WaitForReloads blocks until running reloads finish or ctx is done.
// Used during graceful shutdown.
func (s *Service) WaitForReloads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// sourceModTime stats a source file. Missing files report ok=false.
func sourceModTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

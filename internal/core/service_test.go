package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JonMunkholm/trackstats/internal/audit"
	"github.com/JonMunkholm/trackstats/internal/metrics"
)

// newTestService creates a service rooted at a temp dir holding a copy of
// the tracks fixture as tracks.csv.
func newTestService(t *testing.T, cfg ServiceConfig) (*Service, string) {
	t.Helper()

	dir := t.TempDir()
	data, err := os.ReadFile(fixtureTracks)
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tracks.csv"), data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg.BaseDir = dir
	if cfg.DefaultFile == "" {
		cfg.DefaultFile = "tracks.csv"
	}
	if cfg.UpdateFile == "" {
		cfg.UpdateFile = "tracks.csv"
	}
	s, err := NewService(cfg)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return s, dir
}

func recentEntries(t *testing.T, s *Service) []audit.Entry {
	t.Helper()
	entries, err := s.RecentReloads(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentReloads() error = %v", err)
	}
	return entries
}

func TestService_ResolvePath(t *testing.T) {
	s, dir := newTestService(t, ServiceConfig{})
	base := s.BaseDir()
	if base != filepath.Clean(dir) {
		t.Fatalf("BaseDir() = %q, want %q", base, dir)
	}

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"relative", "tracks.csv", filepath.Join(base, "tracks.csv"), false},
		{"nested", "data/x.csv", filepath.Join(base, "data", "x.csv"), false},
		{"dot segments inside", "data/../tracks.csv", filepath.Join(base, "tracks.csv"), false},
		{"absolute inside", filepath.Join(base, "tracks.csv"), filepath.Join(base, "tracks.csv"), false},
		{"base itself", ".", base, false},
		{"parent", "../secret.csv", "", true},
		{"escaping dot segments", "data/../../secret.csv", "", true},
		{"absolute outside", filepath.Join(filepath.Dir(base), "other.csv"), "", true},
		{"empty", "   ", "", true},
		{"nul", "tracks\x00.csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ResolvePath(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("ResolvePath(%q) error = %v, want ErrInvalidRequest", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolvePath(%q) error = %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("ResolvePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestService_LoadInitial(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s, dir := newTestService(t, ServiceConfig{Metrics: m})

	if _, ok := s.Current(); ok {
		t.Fatal("Current() should be empty before the first load")
	}
	if _, err := s.Engine().TracksView(); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("TracksView() before load error = %v, want ErrDataUnavailable", err)
	}

	ds, err := s.LoadInitial(context.Background())
	if err != nil {
		t.Fatalf("LoadInitial() error = %v", err)
	}
	if ds.Len() != 7 {
		t.Errorf("Len() = %d, want 7", ds.Len())
	}
	if want := filepath.Join(dir, "tracks.csv"); ds.Source != want {
		t.Errorf("Source = %q, want %q", ds.Source, want)
	}

	cur, ok := s.Current()
	if !ok || cur != ds {
		t.Fatal("Current() should return the loaded dataset")
	}

	entries := recentEntries(t, s)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.Trigger != audit.TriggerStartup || e.Outcome != audit.OutcomeSuccess {
		t.Errorf("entry trigger/outcome = %s/%s", e.Trigger, e.Outcome)
	}
	if e.DatasetID != ds.ID || e.RowsKept != 7 || e.RowsRemoved != 3 {
		t.Errorf("entry = %+v", e)
	}

	if got := testutil.ToFloat64(m.DatasetRows); got != 7 {
		t.Errorf("dataset_rows = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.LoadsTotal.WithLabelValues("startup", metrics.ResultSuccess)); got != 1 {
		t.Errorf("loads_total{startup,success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ReloadsActive); got != 0 {
		t.Errorf("reloads_active = %v, want 0 after load", got)
	}
}

func TestService_FailedReloadKeepsDataset(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s, _ := newTestService(t, ServiceConfig{Metrics: m})
	ctx := context.Background()

	first, err := s.LoadInitial(ctx)
	if err != nil {
		t.Fatalf("LoadInitial() error = %v", err)
	}

	_, err = s.Reload(ctx, ReloadRequest{Path: "missing.csv", Trigger: audit.TriggerAPI})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Reload(missing) error = %v, want ErrNotFound", err)
	}

	cur, ok := s.Current()
	if !ok || cur.ID != first.ID {
		t.Fatal("a failed reload must leave the current dataset in place")
	}

	entries := recentEntries(t, s)
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	e := entries[0]
	if e.Outcome != audit.OutcomeFailure {
		t.Errorf("Outcome = %s, want failure", e.Outcome)
	}
	if e.ErrorKind != "not_found" || e.ErrorCode != "LOAD001" {
		t.Errorf("ErrorKind/ErrorCode = %q/%q", e.ErrorKind, e.ErrorCode)
	}
	if e.ResolvedPath == "" || e.ErrorMessage == "" {
		t.Errorf("entry missing resolved path or message: %+v", e)
	}

	if got := testutil.ToFloat64(m.LoadsTotal.WithLabelValues("api", metrics.ResultFailure)); got != 1 {
		t.Errorf("loads_total{api,failure} = %v, want 1", got)
	}
}

func TestService_ReloadRejectsEscapingPath(t *testing.T) {
	s, _ := newTestService(t, ServiceConfig{})

	_, err := s.Reload(context.Background(), ReloadRequest{Path: "../../etc/passwd"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Reload() error = %v, want ErrInvalidRequest", err)
	}
	if MapError(err).Code != "REQ001" {
		t.Errorf("MapError code = %s, want REQ001", MapError(err).Code)
	}

	entries := recentEntries(t, s)
	if len(entries) != 1 || entries[0].ResolvedPath != "" || entries[0].Trigger != audit.TriggerAPI {
		t.Errorf("entries = %+v", entries)
	}
}

func TestService_ReloadDefaultsToUpdateFile(t *testing.T) {
	s, dir := newTestService(t, ServiceConfig{UpdateFile: "next.csv"})

	data, err := os.ReadFile(filepath.Join(dir, "tracks.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "next.csv"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	ds, err := s.Reload(context.Background(), ReloadRequest{})
	if err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if filepath.Base(ds.Source) != "next.csv" {
		t.Errorf("Source = %q, want next.csv", ds.Source)
	}
	if s.UpdateFile() != "next.csv" {
		t.Errorf("UpdateFile() = %q", s.UpdateFile())
	}
}

func TestService_ReloadBusy(t *testing.T) {
	s, _ := newTestService(t, ServiceConfig{
		MaxConcurrentReloads: 1,
		ReloadWait:           20 * time.Millisecond,
	})

	if err := s.limiter.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.limiter.Release()

	_, err := s.Reload(context.Background(), ReloadRequest{Path: "tracks.csv"})
	if !errors.Is(err, ErrTooManyReloads) {
		t.Fatalf("Reload() error = %v, want ErrTooManyReloads", err)
	}
	if _, ok := s.Current(); ok {
		t.Error("a rejected reload must not publish a dataset")
	}
	if got := MapError(err).Code; got != "RLD001" {
		t.Errorf("MapError code = %s, want RLD001", got)
	}
	if st := s.LimiterStatus(); st.Active != 1 || st.MaxConcurrent != 1 {
		t.Errorf("LimiterStatus() = %+v", st)
	}
}

func TestService_ReloadRecordsClient(t *testing.T) {
	s, _ := newTestService(t, ServiceConfig{})

	ctx := ContextWithIPAddress(context.Background(), "203.0.113.9")
	ctx = ContextWithUserAgent(ctx, "curl/8.0")
	if _, err := s.Reload(ctx, ReloadRequest{Path: "tracks.csv"}); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	e := recentEntries(t, s)[0]
	if e.IPAddress != "203.0.113.9" || e.UserAgent != "curl/8.0" {
		t.Errorf("IPAddress/UserAgent = %q/%q", e.IPAddress, e.UserAgent)
	}
}

func TestService_CancelledRequestStillAudited(t *testing.T) {
	s, _ := newTestService(t, ServiceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Reload(ctx, ReloadRequest{Path: "tracks.csv"}); err == nil {
		t.Fatal("Reload() with a cancelled context should fail")
	}
	if _, ok := s.Current(); ok {
		t.Error("a cancelled reload must not publish a dataset")
	}
	if entries := recentEntries(t, s); len(entries) != 1 || entries[0].Outcome != audit.OutcomeFailure {
		t.Errorf("entries = %+v", entries)
	}
}

type failingStore struct{}

func (failingStore) Record(context.Context, audit.Entry) error {
	return errors.New("database unavailable")
}

func (failingStore) Recent(context.Context, int) ([]audit.Entry, error) {
	return nil, errors.New("database unavailable")
}

func TestService_AuditFailureDoesNotFailReload(t *testing.T) {
	s, _ := newTestService(t, ServiceConfig{Audit: failingStore{}})

	if _, err := s.LoadInitial(context.Background()); err != nil {
		t.Fatalf("LoadInitial() error = %v", err)
	}
	if _, ok := s.Current(); !ok {
		t.Fatal("dataset should be published even when auditing fails")
	}
}

func TestService_Subscribe(t *testing.T) {
	s, _ := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	events, unsubscribe := s.Subscribe()
	if s.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", s.SubscriberCount())
	}

	ds, err := s.LoadInitial(ctx)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		if ev.Type != EventDatasetReplaced || ev.DatasetID != ds.ID || ev.Rows != 7 || ev.Removed != 3 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	_, _ = s.Reload(ctx, ReloadRequest{Path: "missing.csv"})
	select {
	case ev := <-events:
		if ev.Type != EventReloadFailed || ev.Code != "LOAD001" || ev.Message == "" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no failure event received")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-events; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	if s.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", s.SubscriberCount())
	}
}

func TestService_SlowSubscriberDoesNotBlock(t *testing.T) {
	s, _ := newTestService(t, ServiceConfig{})
	_, unsubscribe := s.Subscribe()
	defer unsubscribe()

	for i := 0; i < eventBuffer+3; i++ {
		s.publish(Event{Type: EventDatasetReplaced})
	}
}

func TestService_WaitForReloads(t *testing.T) {
	s, _ := newTestService(t, ServiceConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.WaitForReloads(ctx); err != nil {
		t.Fatalf("WaitForReloads() idle error = %v", err)
	}

	if err := s.limiter.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	short, cancelShort := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancelShort()
	if err := s.WaitForReloads(short); err == nil {
		t.Error("WaitForReloads() should time out while a reload holds a slot")
	}
	s.limiter.Release()
}

package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/trackstats/internal/audit"
)

func touch(t *testing.T, path string, at time.Time) {
	t.Helper()
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestScheduler_ReloadsOnChange(t *testing.T) {
	s, dir := newTestService(t, ServiceConfig{})
	ctx := context.Background()
	path := filepath.Join(dir, "tracks.csv")

	first, err := s.LoadInitial(ctx)
	if err != nil {
		t.Fatal(err)
	}

	st := s.initialWatchState()
	if st.path != path {
		t.Fatalf("watch path = %q, want %q", st.path, path)
	}
	if s.checkSource(ctx, &st) {
		t.Fatal("unchanged source should not reload")
	}

	touch(t, path, time.Now().Add(time.Hour))
	if !s.checkSource(ctx, &st) {
		t.Fatal("modified source should reload")
	}

	cur, _ := s.Current()
	if cur.ID == first.ID {
		t.Error("dataset should have been replaced")
	}
	if e := recentEntries(t, s)[0]; e.Trigger != audit.TriggerScheduler || e.Outcome != audit.OutcomeSuccess {
		t.Errorf("latest entry = %+v", e)
	}

	if s.checkSource(ctx, &st) {
		t.Error("second check without a change should not reload")
	}
}

func TestScheduler_LoadsDefaultWhenEmpty(t *testing.T) {
	s, dir := newTestService(t, ServiceConfig{DefaultFile: "later.csv"})
	ctx := context.Background()

	st := s.initialWatchState()
	if s.checkSource(ctx, &st) {
		t.Fatal("missing default file should not reload")
	}

	data, err := os.ReadFile(filepath.Join(dir, "tracks.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "later.csv"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	if !s.checkSource(ctx, &st) {
		t.Fatal("default file appearing should trigger a load")
	}
	if _, ok := s.Current(); !ok {
		t.Fatal("dataset should be loaded")
	}
}

func TestScheduler_FollowsReplacedSource(t *testing.T) {
	s, dir := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	if _, err := s.LoadInitial(ctx); err != nil {
		t.Fatal(err)
	}
	st := s.initialWatchState()

	data, err := os.ReadFile(filepath.Join(dir, "tracks.csv"))
	if err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(dir, "other.csv")
	if err := os.WriteFile(other, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Reload(ctx, ReloadRequest{Path: "other.csv"}); err != nil {
		t.Fatal(err)
	}

	if s.checkSource(ctx, &st) {
		t.Error("switching the watched file should not reload by itself")
	}
	if st.path != other {
		t.Errorf("watch path = %q, want %q", st.path, other)
	}
}

func TestStartReloadScheduler_Stops(t *testing.T) {
	s, _ := newTestService(t, ServiceConfig{})

	// Disabled interval returns immediately.
	s.StartReloadScheduler(context.Background(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.StartReloadScheduler(ctx, 10*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

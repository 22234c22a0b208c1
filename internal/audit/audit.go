// Package audit records the history of dataset reload attempts.
//
// Every reload, successful or not, produces one Entry. Entries are kept in
// PostgreSQL when a database is configured and in a bounded in-memory ring
// otherwise. Recording is best effort: callers log a failed Record and carry on.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultLimit is the number of entries returned when Recent is called with limit <= 0.
const DefaultLimit = 50

// MaxLimit caps the number of entries returned by Recent.
const MaxLimit = 500

// Trigger identifies what started a reload.
type Trigger string

const (
	TriggerStartup   Trigger = "startup"
	TriggerAPI       Trigger = "api"
	TriggerScheduler Trigger = "scheduler"
)

// Outcome is the result of a reload attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Entry is one reload attempt.
type Entry struct {
	ID            string    `json:"id"`
	Trigger       Trigger   `json:"trigger"`
	Outcome       Outcome   `json:"outcome"`
	RequestedPath string    `json:"requested_path"`
	ResolvedPath  string    `json:"resolved_path,omitempty"`
	DatasetID     string    `json:"dataset_id,omitempty"`
	RowsKept      int       `json:"rows_kept"`
	RowsRemoved   int       `json:"rows_removed"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store persists reload entries.
type Store interface {
	// Record saves an entry. An empty ID or zero CreatedAt is filled in.
	Record(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// prepare fills in the ID and timestamp of a new entry.
func prepare(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e
}

// clampLimit applies DefaultLimit and MaxLimit.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

package audit

// postgres.go stores reload entries in the reload_audit table.
//
// The table is created by EnsureSchema at startup; there is no separate
// migration step because the schema is a single append-only table.

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS reload_audit (
	id             UUID PRIMARY KEY,
	trigger        TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	requested_path TEXT NOT NULL,
	resolved_path  TEXT,
	dataset_id     TEXT,
	rows_kept      INTEGER NOT NULL DEFAULT 0,
	rows_removed   INTEGER NOT NULL DEFAULT 0,
	error_kind     TEXT,
	error_code     TEXT,
	error_message  TEXT,
	duration_ms    BIGINT NOT NULL DEFAULT 0,
	ip_address     INET,
	user_agent     TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS reload_audit_created_at_idx ON reload_audit (created_at DESC);
`

const insertSQL = `INSERT INTO reload_audit (
	id, trigger, outcome, requested_path, resolved_path, dataset_id,
	rows_kept, rows_removed, error_kind, error_code, error_message,
	duration_ms, ip_address, user_agent, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

const recentSQL = `SELECT id, trigger, outcome, requested_path, resolved_path, dataset_id,
	rows_kept, rows_removed, error_kind, error_code, error_message,
	duration_ms, ip_address, user_agent, created_at
	FROM reload_audit ORDER BY created_at DESC LIMIT $1`

// DBTX is the subset of *pgxpool.Pool used by PostgresStore.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a store on db, usually a *pgxpool.Pool.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the reload_audit table and index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create reload_audit schema: %w", err)
	}
	return nil
}

// Record implements Store.
func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	e = prepare(e)

	_, err := s.db.Exec(ctx, insertSQL,
		toPgUUID(e.ID),
		string(e.Trigger),
		string(e.Outcome),
		e.RequestedPath,
		toPgText(e.ResolvedPath),
		toPgText(e.DatasetID),
		int32(e.RowsKept),
		int32(e.RowsRemoved),
		toPgText(e.ErrorKind),
		toPgText(e.ErrorCode),
		toPgText(e.ErrorMessage),
		e.DurationMS,
		parseIP(e.IPAddress),
		toPgText(e.UserAgent),
		pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("insert reload audit entry: %w", err)
	}
	return nil
}

// Recent implements Store.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.Query(ctx, recentSQL, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query reload audit: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// scanEntry scans one reload_audit row.
func scanEntry(row pgx.Row) (Entry, error) {
	var (
		id           pgtype.UUID
		trigger      string
		outcome      string
		requested    string
		resolved     pgtype.Text
		datasetID    pgtype.Text
		rowsKept     int32
		rowsRemoved  int32
		errorKind    pgtype.Text
		errorCode    pgtype.Text
		errorMessage pgtype.Text
		durationMS   int64
		ipAddress    *netip.Addr
		userAgent    pgtype.Text
		createdAt    pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &trigger, &outcome, &requested, &resolved, &datasetID,
		&rowsKept, &rowsRemoved, &errorKind, &errorCode, &errorMessage,
		&durationMS, &ipAddress, &userAgent, &createdAt,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("scan reload audit row: %w", err)
	}

	e := Entry{
		ID:            pgUUIDToString(id),
		Trigger:       Trigger(trigger),
		Outcome:       Outcome(outcome),
		RequestedPath: requested,
		ResolvedPath:  resolved.String,
		DatasetID:     datasetID.String,
		RowsKept:      int(rowsKept),
		RowsRemoved:   int(rowsRemoved),
		ErrorKind:     errorKind.String,
		ErrorCode:     errorCode.String,
		ErrorMessage:  errorMessage.String,
		DurationMS:    durationMS,
		UserAgent:     userAgent.String,
		CreatedAt:     createdAt.Time,
	}
	if ipAddress != nil {
		e.IPAddress = ipAddress.String()
	}
	return e, nil
}

// ----------------------------------------------------------------------------
// Pool
// ----------------------------------------------------------------------------

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPool connects to PostgreSQL and verifies the connection.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	poolConfig.MinConns = int32(cfg.MinConns)
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// ----------------------------------------------------------------------------
// Type conversion helpers
// ----------------------------------------------------------------------------

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func pgUUIDToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

// parseIP strips a port if present. Unparseable addresses are stored as NULL.
func parseIP(s string) *netip.Addr {
	if s == "" {
		return nil
	}
	host := s
	if h, _, err := net.SplitHostPort(s); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	return &addr
}

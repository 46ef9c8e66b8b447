// Package postgres stores committed records and the commit audit trail in
// PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/JonMunkholm/RosterImport/internal/config"
	"github.com/JonMunkholm/RosterImport/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the subset of pgxpool.Pool, pgx.Conn and pgx.Tx the store uses.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS import_records (
	entity_type TEXT        NOT NULL,
	record_id   TEXT        NOT NULL,
	payload     JSONB       NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (entity_type, record_id)
);

CREATE TABLE IF NOT EXISTS import_audit (
	id           UUID        PRIMARY KEY,
	action       TEXT        NOT NULL,
	session_id   TEXT        NOT NULL,
	file_name    TEXT        NOT NULL,
	ip_address   INET,
	user_agent   TEXT,
	success      BOOLEAN     NOT NULL,
	imported     INTEGER     NOT NULL,
	failed       INTEGER     NOT NULL,
	skipped      INTEGER     NOT NULL,
	entities     JSONB       NOT NULL,
	commit_order TEXT[]      NOT NULL,
	reason       TEXT,
	duration_ms  BIGINT      NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_import_audit_created_at ON import_audit (created_at DESC);
`

// Store implements core.Persister and core.AuditSink.
type Store struct {
	db DBTX
}

// New returns a store using db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewPool parses cfg.URL, applies the pool limits and verifies the
// connection.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

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

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, entity core.EntityType, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM import_records WHERE entity_type = $1 AND record_id = $2)`,
		string(entity), id,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("exists %s %s: %w", entity, id, err)
	}
	return ok, nil
}

func (s *Store) Insert(ctx context.Context, rec core.Record) error {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("insert %s %s: encode payload: %w", rec.EntityType, rec.ID, err)
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO import_records (entity_type, record_id, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (entity_type, record_id) DO NOTHING`,
		string(rec.EntityType), rec.ID, payload,
	)
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", rec.EntityType, rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("insert %s %s: %w", rec.EntityType, rec.ID, core.ErrRecordExists)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, rec core.Record) error {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("update %s %s: encode payload: %w", rec.EntityType, rec.ID, err)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE import_records SET payload = $3, updated_at = now()
		WHERE entity_type = $1 AND record_id = $2`,
		string(rec.EntityType), rec.ID, payload,
	)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", rec.EntityType, rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s %s: %w", rec.EntityType, rec.ID, core.ErrRecordNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, entity core.EntityType, id string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM import_records WHERE entity_type = $1 AND record_id = $2`,
		string(entity), id,
	)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", entity, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s %s: %w", entity, id, core.ErrRecordNotFound)
	}
	return nil
}

// Get loads one record.
func (s *Store) Get(ctx context.Context, entity core.EntityType, id string) (core.Record, error) {
	var payload []byte
	err := s.db.QueryRow(ctx,
		`SELECT payload FROM import_records WHERE entity_type = $1 AND record_id = $2`,
		string(entity), id,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Record{}, fmt.Errorf("get %s %s: %w", entity, id, core.ErrRecordNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get %s %s: %w", entity, id, err)
	}

	rec := core.Record{EntityType: entity, ID: id}
	if err := json.Unmarshal(payload, &rec.Fields); err != nil {
		return core.Record{}, fmt.Errorf("get %s %s: decode payload: %w", entity, id, err)
	}
	return rec, nil
}

// RecordImport writes one commit audit row.
func (s *Store) RecordImport(ctx context.Context, e core.AuditEntry) error {
	entities, err := json.Marshal(e.Entities)
	if err != nil {
		return fmt.Errorf("record import audit: %w", err)
	}
	order := make([]string, len(e.CommitOrder))
	for i, t := range e.CommitOrder {
		order[i] = string(t)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO import_audit (
			id, action, session_id, file_name, ip_address, user_agent,
			success, imported, failed, skipped, entities, commit_order,
			reason, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		e.ID, string(e.Action), e.SessionID, e.FileName, parseIP(e.IPAddress), pgText(e.UserAgent),
		e.Success, e.Imported, e.Failed, e.Skipped, entities, order,
		pgText(e.Reason), e.DurationMs, pgtype.Timestamptz{Time: e.CreatedAt, Valid: true},
	)
	if err != nil {
		return fmt.Errorf("record import audit: %w", err)
	}
	return nil
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

func pgText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

var (
	_ core.Persister = (*Store)(nil)
	_ core.AuditSink = (*Store)(nil)
)

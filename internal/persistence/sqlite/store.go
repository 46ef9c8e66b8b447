// Package sqlite stores committed records in a local SQLite file using the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/RosterImport/internal/core"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS import_records (
	entity_type TEXT NOT NULL,
	record_id   TEXT NOT NULL,
	payload     TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (entity_type, record_id)
);

CREATE TABLE IF NOT EXISTS import_audit (
	id           TEXT PRIMARY KEY,
	action       TEXT NOT NULL,
	session_id   TEXT NOT NULL,
	file_name    TEXT NOT NULL,
	ip_address   TEXT,
	user_agent   TEXT,
	success      INTEGER NOT NULL,
	imported     INTEGER NOT NULL,
	failed       INTEGER NOT NULL,
	skipped      INTEGER NOT NULL,
	entities     TEXT NOT NULL,
	commit_order TEXT NOT NULL,
	reason       TEXT,
	duration_ms  INTEGER NOT NULL,
	created_at   TEXT NOT NULL
);
`

// Store implements core.Persister and core.AuditSink.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database file at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Exists(ctx context.Context, entity core.EntityType, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM import_records WHERE entity_type = ? AND record_id = ?`,
		string(entity), id,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("exists %s %s: %w", entity, id, err)
	}
	return n > 0, nil
}

func (s *Store) Insert(ctx context.Context, rec core.Record) error {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("insert %s %s: encode payload: %w", rec.EntityType, rec.ID, err)
	}
	ts := s.timestamp()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO import_records (entity_type, record_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (entity_type, record_id) DO NOTHING`,
		string(rec.EntityType), rec.ID, string(payload), ts, ts,
	)
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", rec.EntityType, rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("insert %s %s: %w", rec.EntityType, rec.ID, core.ErrRecordExists)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, rec core.Record) error {
	payload, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("update %s %s: encode payload: %w", rec.EntityType, rec.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_records SET payload = ?, updated_at = ?
		WHERE entity_type = ? AND record_id = ?`,
		string(payload), s.timestamp(), string(rec.EntityType), rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update %s %s: %w", rec.EntityType, rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s %s: %w", rec.EntityType, rec.ID, core.ErrRecordNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, entity core.EntityType, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM import_records WHERE entity_type = ? AND record_id = ?`,
		string(entity), id,
	)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", entity, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete %s %s: %w", entity, id, core.ErrRecordNotFound)
	}
	return nil
}

// Get loads one record.
func (s *Store) Get(ctx context.Context, entity core.EntityType, id string) (core.Record, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM import_records WHERE entity_type = ? AND record_id = ?`,
		string(entity), id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("get %s %s: %w", entity, id, core.ErrRecordNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get %s %s: %w", entity, id, err)
	}

	rec := core.Record{EntityType: entity, ID: id}
	if err := json.Unmarshal([]byte(payload), &rec.Fields); err != nil {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_audit (
			id, action, session_id, file_name, ip_address, user_agent,
			success, imported, failed, skipped, entities, commit_order,
			reason, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.SessionID, e.FileName, nullString(e.IPAddress), nullString(e.UserAgent),
		e.Success, e.Imported, e.Failed, e.Skipped, string(entities), strings.Join(order, ","),
		nullString(e.Reason), e.DurationMs, e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record import audit: %w", err)
	}
	return nil
}

// AuditCount returns the number of audit rows for a session.
func (s *Store) AuditCount(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM import_audit WHERE session_id = ?`, sessionID,
	).Scan(&n)
	return n, err
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var (
	_ core.Persister = (*Store)(nil)
	_ core.AuditSink = (*Store)(nil)
)

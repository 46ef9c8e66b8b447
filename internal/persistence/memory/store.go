// Package memory provides an in-process record store. It backs the memory
// store driver and the tests of packages that need a real Persister.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/JonMunkholm/RosterImport/internal/core"
)

// Store keeps records and audit entries in maps guarded by a mutex.
type Store struct {
	mu      sync.RWMutex
	records map[core.EntityType]map[string]core.Record
	audit   []core.AuditEntry
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[core.EntityType]map[string]core.Record)}
}

func (s *Store) Exists(ctx context.Context, entity core.EntityType, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[entity][id]
	return ok, nil
}

func (s *Store) Insert(ctx context.Context, rec core.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.records[rec.EntityType]
	if byID == nil {
		byID = make(map[string]core.Record)
		s.records[rec.EntityType] = byID
	}
	if _, ok := byID[rec.ID]; ok {
		return fmt.Errorf("insert %s %s: %w", rec.EntityType, rec.ID, core.ErrRecordExists)
	}
	byID[rec.ID] = copyRecord(rec)
	return nil
}

func (s *Store) Update(ctx context.Context, rec core.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.EntityType][rec.ID]; !ok {
		return fmt.Errorf("update %s %s: %w", rec.EntityType, rec.ID, core.ErrRecordNotFound)
	}
	s.records[rec.EntityType][rec.ID] = copyRecord(rec)
	return nil
}

func (s *Store) Delete(ctx context.Context, entity core.EntityType, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[entity][id]; !ok {
		return fmt.Errorf("delete %s %s: %w", entity, id, core.ErrRecordNotFound)
	}
	delete(s.records[entity], id)
	return nil
}

// Get returns a copy of one record.
func (s *Store) Get(entity core.EntityType, id string) (core.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[entity][id]
	if !ok {
		return core.Record{}, false
	}
	return copyRecord(rec), true
}

// IDs returns the sorted ids stored for an entity type.
func (s *Store) IDs(entity core.EntityType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records[entity]))
	for id := range s.records[entity] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of records of an entity type.
func (s *Store) Count(entity core.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[entity])
}

// RecordImport appends an audit entry.
func (s *Store) RecordImport(ctx context.Context, entry core.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

// AuditEntries returns the recorded audit entries, oldest first.
func (s *Store) AuditEntries() []core.AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.AuditEntry(nil), s.audit...)
}

func copyRecord(rec core.Record) core.Record {
	rec.Fields = maps.Clone(rec.Fields)
	return rec
}

var (
	_ core.Persister = (*Store)(nil)
	_ core.AuditSink = (*Store)(nil)
)

package core

// session_store.go holds import sessions between requests.
//
// Each session sits behind its own mutex, so mutations of one session are
// serialized while different sessions never contend beyond the short map
// lock. Callers always receive deep copies; the stored session is only
// touched inside Update.
//
// Expiry is lazy: an expired session is removed when it is next accessed,
// and Create sweeps all expired sessions before checking capacity.

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSessionTTL is used when the store is created without a TTL.
const DefaultSessionTTL = 30 * time.Minute

// SessionStore keeps import sessions keyed by session id.
type SessionStore interface {
	// Create stores a new session and sets its expiry.
	Create(ctx context.Context, s *Session) error
	// Get returns a snapshot of the session.
	Get(ctx context.Context, id string) (*Session, error)
	// Update applies fn to the session atomically. If fn returns an error
	// the stored session is unchanged. Returns a snapshot of the result.
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	// Delete removes the session.
	Delete(ctx context.Context, id string) error
	// Len returns the number of stored sessions, expired ones included
	// until they are swept.
	Len() int
}

type sessionEntry struct {
	mu      sync.Mutex
	session *Session
	expires atomic.Int64 // unix nanos
	deleted atomic.Bool
}

// MemorySessionStore is an in-process SessionStore with TTL expiry.
type MemorySessionStore struct {
	mu          sync.RWMutex
	sessions    map[string]*sessionEntry
	ttl         time.Duration
	maxSessions int
	now         func() time.Time
}

// MemoryStoreOption configures a MemorySessionStore.
type MemoryStoreOption func(*MemorySessionStore)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemorySessionStore) { s.now = now }
}

// WithMaxSessions bounds the number of live sessions. Zero means unbounded.
func WithMaxSessions(n int) MemoryStoreOption {
	return func(s *MemorySessionStore) { s.maxSessions = n }
}

// NewMemorySessionStore creates a store whose sessions expire ttl after
// their last mutation.
func NewMemorySessionStore(ttl time.Duration, opts ...MemoryStoreOption) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	s := &MemorySessionStore{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemorySessionStore) Create(ctx context.Context, sess *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := s.now()

	stored := sess.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	stored.ExpiresAt = now.Add(s.ttl)

	e := &sessionEntry{session: stored}
	e.expires.Store(stored.ExpiresAt.UnixNano())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked(now)
	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		return ErrSessionLimit
	}
	s.sessions[stored.SessionID] = e

	sess.CreatedAt = stored.CreatedAt
	sess.UpdatedAt = stored.UpdatedAt
	sess.ExpiresAt = stored.ExpiresAt
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted.Load() {
		return nil, ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

func (s *MemorySessionStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted.Load() {
		return nil, ErrSessionNotFound
	}

	work := e.session.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}

	now := s.now()
	work.UpdatedAt = now
	work.ExpiresAt = now.Add(s.ttl)
	e.session = work
	e.expires.Store(work.ExpiresAt.UnixNano())

	return work.Clone(), nil
}

// Delete removes a session without waiting for in-flight updates. An update
// running on a deleted session finishes on its own copy and is dropped.
func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok || s.expired(e, s.now()) {
		if ok {
			s.removeLocked(id, e)
		}
		return ErrSessionNotFound
	}
	s.removeLocked(id, e)
	return nil
}

func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep removes every expired session and returns how many were removed.
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now())
}

// entry looks up a live entry, removing it if it has expired.
func (s *MemorySessionStore) entry(id string) (*sessionEntry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.expired(e, s.now()) {
		s.mu.Lock()
		if cur, ok := s.sessions[id]; ok && cur == e {
			s.removeLocked(id, e)
		}
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return e, nil
}

func (s *MemorySessionStore) expired(e *sessionEntry, now time.Time) bool {
	return now.UnixNano() >= e.expires.Load()
}

func (s *MemorySessionStore) removeLocked(id string, e *sessionEntry) {
	e.deleted.Store(true)
	delete(s.sessions, id)
}

func (s *MemorySessionStore) sweepLocked(now time.Time) int {
	n := 0
	for id, e := range s.sessions {
		if s.expired(e, now) {
			s.removeLocked(id, e)
			n++
		}
	}
	return n
}

var _ SessionStore = (*MemorySessionStore)(nil)

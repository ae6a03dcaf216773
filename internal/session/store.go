package session

import (
	"sync"

	"clipbot/internal/metrics"
)

// entry pairs a session with its own lock so updates for one user never
// contend with updates for another.
type entry struct {
	mu sync.Mutex
	s  Session
}

// Store holds one session per user. Sessions are created on first
// access and live until cleared or the process exits; there is no
// expiry, so an abandoned flow stays resident by design.
type Store struct {
	mu      sync.RWMutex
	entries map[int64]*entry
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{entries: make(map[int64]*entry)}
}

// lookup returns the user's entry, creating a fresh None-state session
// on first access.
func (st *Store) lookup(userID int64) *entry {
	st.mu.RLock()
	e, ok := st.entries[userID]
	st.mu.RUnlock()
	if ok {
		return e
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if e, ok = st.entries[userID]; ok {
		return e
	}
	e = &entry{s: Session{UserID: userID, Watermark: DefaultWatermarkSettings()}}
	st.entries[userID] = e
	metrics.ActiveSessions.Inc()
	return e
}

// Get returns a snapshot of the user's session.
func (st *Store) Get(userID int64) Session {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s
}

// Update applies mutator to the user's session under its per-user lock.
func (st *Store) Update(userID int64, mutator func(*Session)) {
	e := st.lookup(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	mutator(&e.s)
}

// Clear removes the user's session entirely. The next access creates a
// fresh one with default watermark settings.
func (st *Store) Clear(userID int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.entries[userID]; ok {
		delete(st.entries, userID)
		metrics.ActiveSessions.Dec()
	}
}

package entry

import (
	"sync"
	"time"

	"github.com/erazemk/labcodes/internal/model"
)

// Pending is the partially collected entry of one user.
type Pending struct {
	State     State
	Fields    model.NewLabCode
	StartedAt time.Time
	UpdatedAt time.Time
}

// Sessions holds the pending entries of all users, keyed by user id. A zero
// TTL keeps entries until they are completed or cancelled.
type Sessions struct {
	mu      sync.Mutex
	pending map[int64]Pending
	ttl     time.Duration
	now     func() time.Time
}

// NewSessions returns an empty session store.
func NewSessions(ttl time.Duration) *Sessions {
	return &Sessions{
		pending: make(map[int64]Pending),
		ttl:     ttl,
		now:     time.Now,
	}
}

// lookupStatus is the outcome of a session lookup.
type lookupStatus int

const (
	lookupMissing lookupStatus = iota
	lookupFound
	lookupExpired
)

func (s *Sessions) expired(p Pending, now time.Time) bool {
	return s.ttl > 0 && now.Sub(p.UpdatedAt) > s.ttl
}

// lookup returns the user's pending entry. Expired entries are removed.
func (s *Sessions) lookup(user int64) (Pending, lookupStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[user]
	if !ok {
		return Pending{}, lookupMissing
	}
	if s.expired(p, s.now()) {
		delete(s.pending, user)
		return Pending{}, lookupExpired
	}
	return p, lookupFound
}

// Get returns the user's live pending entry.
func (s *Sessions) Get(user int64) (Pending, bool) {
	p, status := s.lookup(user)
	return p, status == lookupFound
}

// put stores p for user, stamping UpdatedAt, and reports whether a live entry
// was replaced.
func (s *Sessions) put(user int64, p Pending) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	old, existed := s.pending[user]
	replaced := existed && !s.expired(old, now)

	p.UpdatedAt = now
	if p.StartedAt.IsZero() {
		p.StartedAt = now
	}
	s.pending[user] = p
	return replaced
}

// Delete discards the user's pending entry and reports whether a live one
// existed.
func (s *Sessions) Delete(user int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[user]
	if !ok {
		return false
	}
	delete(s.pending, user)
	return !s.expired(p, s.now())
}

// Sweep removes expired entries and returns how many were removed.
func (s *Sessions) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for user, p := range s.pending {
		if s.expired(p, now) {
			delete(s.pending, user)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included until the
// next sweep.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

package session

import (
	"sync"
	"time"

	"github.com/closemarketing/go-checkout-links/pkg/ports"
)

// Store is an in-memory session slot keyed by the visitor's session cookie.
// Entries expire after ttl so abandoned visits don't accumulate. It is one
// of two attribution channels; the signed cookie survives a restart of this
// process, this slot does not.
type Store struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry
}

type entry struct {
	linkID  int64
	expires time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{ttl: ttl, m: make(map[string]entry)}
}

func (s *Store) SetLinkID(sessionID string, linkID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune()
	s.m[sessionID] = entry{linkID: linkID, expires: time.Now().Add(s.ttl)}
}

func (s *Store) LinkID(sessionID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[sessionID]
	if !ok || time.Now().After(e.expires) {
		return 0
	}
	return e.linkID
}

func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, sessionID)
}

// prune drops expired entries; called under the write lock on every set,
// which is infrequent enough (one set per link visit) to keep this simple.
func (s *Store) prune() {
	now := time.Now()
	for k, e := range s.m {
		if now.After(e.expires) {
			delete(s.m, k)
		}
	}
}

var _ ports.SessionStore = (*Store)(nil)

package session

import (
	"log/slog"
	"sync"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single conversation exchange half. The JSON field names match
// the chat widget's wire format.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"content"`
}

// Store keeps per-session conversation history keyed by an opaque session id.
// Implementations must be safe for concurrent use; the in-memory store below
// is the default, the interface leaves room for an external cache.
type Store interface {
	// GetOrCreate returns a snapshot of the session's history, creating the
	// session if the id is unseen. Repeated calls never reset history.
	GetOrCreate(id string) []Turn

	// Append adds a turn to an existing session and refreshes its activity
	// stamp. Appending to an unknown id is a logged no-op: appends must
	// follow a prior GetOrCreate.
	Append(id string, role Role, text string)

	// Sweep removes every session idle longer than maxIdle and returns the
	// number removed.
	Sweep(maxIdle time.Duration) int
}

type memorySession struct {
	mu           sync.Mutex
	turns        []Turn
	lastActivity time.Time
}

// MemoryStore is the in-process Store implementation. The map lock is held
// only for lookup/insert/delete; per-session locks guard history so a sweep
// never blocks appends on unrelated sessions.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	logger   *slog.Logger
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// GetOrCreate returns the session's history snapshot, creating it if needed.
func (s *MemoryStore) GetOrCreate(id string) []Turn {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &memorySession{lastActivity: s.now()}
		s.sessions[id] = sess
	}
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastActivity = s.now()
	history := make([]Turn, len(sess.turns))
	copy(history, sess.turns)
	return history
}

// Append records a turn on an existing session.
func (s *MemoryStore) Append(id string, role Role, text string) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		s.logger.Warn("append to unknown session ignored", "session_id", id)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.turns = append(sess.turns, Turn{Role: role, Text: text})
	sess.lastActivity = s.now()
}

// Sweep deletes sessions idle longer than maxIdle. The map lock is never
// held while waiting on a session lock, so a sweep cannot stall appends on
// unrelated sessions; a session whose lock is contended is in use and
// therefore not idle.
func (s *MemoryStore) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.RLock()
	candidates := make(map[string]*memorySession, len(s.sessions))
	for id, sess := range s.sessions {
		candidates[id] = sess
	}
	s.mu.RUnlock()

	removed := 0
	for id, sess := range candidates {
		if !sess.mu.TryLock() {
			continue
		}
		expired := sess.lastActivity.Before(cutoff)
		sess.mu.Unlock()
		if !expired {
			continue
		}

		s.mu.Lock()
		// Re-check under the write lock: the session may have been touched
		// or replaced since the snapshot.
		if cur, ok := s.sessions[id]; ok && cur == sess && sess.mu.TryLock() {
			if sess.lastActivity.Before(cutoff) {
				delete(s.sessions, id)
				removed++
			}
			sess.mu.Unlock()
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports the number of live sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

package location

import (
	"sync"
	"time"
)

// RetrySessions keeps one RetryManager per device session so the retry budget
// survives across HTTP requests.
type RetrySessions struct {
	mu       sync.Mutex
	sessions map[string]*retrySession
	idleTTL  time.Duration
	factory  func() *RetryManager
	now      func() time.Time
}

type retrySession struct {
	manager  *RetryManager
	lastUsed time.Time
}

// NewRetrySessions creates a session table that forgets sessions idle for idleTTL
func NewRetrySessions(idleTTL time.Duration) *RetrySessions {
	return &RetrySessions{
		sessions: make(map[string]*retrySession),
		idleTTL:  idleTTL,
		factory:  NewRetryManager,
		now:      time.Now,
	}
}

// WithFactory replaces how new managers are built
func (s *RetrySessions) WithFactory(factory func() *RetryManager) *RetrySessions {
	s.factory = factory
	return s
}

// Get returns the manager for sessionID, creating it if needed
func (s *RetrySessions) Get(sessionID string) *RetryManager {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.evictLocked(now)

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &retrySession{manager: s.factory()}
		s.sessions[sessionID] = sess
	}
	sess.lastUsed = now
	return sess.manager
}

// Reset drops a session's retry state, typically after a successful detection
func (s *RetrySessions) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len is the number of live sessions
func (s *RetrySessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *RetrySessions) evictLocked(now time.Time) {
	if s.idleTTL <= 0 {
		return
	}
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUsed) > s.idleTTL {
			delete(s.sessions, id)
		}
	}
}

package services

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"document-chat-platform/internal/logger"
	"document-chat-platform/models"
)

// SessionManager owns the in-memory session registry. Sessions hold
// all state for one user interaction; nothing is persisted. A janitor
// job evicts sessions idle past the TTL.
type SessionManager struct {
	mu        sync.RWMutex
	sessions  map[string]*models.Session
	ttl       time.Duration
	scheduler *gocron.Scheduler
}

// NewSessionManager creates a session manager with the given idle TTL
func NewSessionManager(ttl time.Duration) *SessionManager {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	return &SessionManager{
		sessions:  make(map[string]*models.Session),
		ttl:       ttl,
		scheduler: s,
	}
}

// Create constructs a fresh session owning the document and registers
// it. A new upload always yields a new session; the previous one is
// left to expire rather than mutated.
func (m *SessionManager) Create(doc *models.Document) *models.Session {
	sess := models.NewSession(doc)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	logger.Info("Session created", "session_id", sess.ID, "filename", doc.Filename, "pages", doc.PageCount())
	return sess
}

// Get returns the session with the given ID
func (m *SessionManager) Get(id string) (*models.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Delete discards a session and everything it owns
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of live sessions
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartJanitor schedules periodic eviction of idle sessions
func (m *SessionManager) StartJanitor() error {
	_, err := m.scheduler.Every(5).Minutes().Tag("session-janitor").Do(m.evictExpired)
	if err != nil {
		return err
	}
	m.scheduler.StartAsync()
	logger.Info("Session janitor started", "ttl", m.ttl.String())
	return nil
}

// Stop stops the janitor scheduler
func (m *SessionManager) Stop() {
	m.scheduler.Stop()
}

func (m *SessionManager) evictExpired() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sess := range m.sessions {
		if sess.LastActive().Before(cutoff) {
			delete(m.sessions, id)
			logger.Info("Session expired", "session_id", id)
		}
	}
}

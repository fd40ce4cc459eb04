package telemetry

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"bahr/analytics/models"
	"bahr/analytics/utils"
)

const (
	DefaultSessionTimeout = 30 * time.Minute
	DefaultRetentionCap   = 100
)

// SessionManager owns the process-wide current session.
//
// The current session is cached in memory on first use and kept for the
// life of the process. Every access checks expiry, so a session that
// outlives the timeout is replaced by a fresh one on the next call. A new
// process starts with an empty cache and rehydrates from the store.
//
// The cached session never leaves the manager; callers get snapshots.
type SessionManager struct {
	store        SessionStore
	timeout      time.Duration
	retentionCap int
	now          func() time.Time
	newID        func() string
	debug        bool

	mu      sync.Mutex
	current *models.Session
}

// ManagerOption customises a SessionManager.
type ManagerOption func(*SessionManager)

// WithTimeout sets the session lifetime.
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *SessionManager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithRetentionCap sets how many of the most recent events are kept.
func WithRetentionCap(n int) ManagerOption {
	return func(m *SessionManager) {
		if n > 0 {
			m.retentionCap = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *SessionManager) { m.now = now }
}

// WithIDGenerator replaces the session id generator.
func WithIDGenerator(gen func() string) ManagerOption {
	return func(m *SessionManager) { m.newID = gen }
}

// WithDebug logs storage failures.
func WithDebug(debug bool) ManagerOption {
	return func(m *SessionManager) { m.debug = debug }
}

func NewSessionManager(store SessionStore, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		store:        store,
		timeout:      DefaultSessionTimeout,
		retentionCap: DefaultRetentionCap,
		now:          time.Now,
		newID:        utils.GenerateSessionID,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreateSession returns a snapshot of the current session, minting and
// persisting a new one when none is stored or the stored one has expired.
// Later records do not show up in the returned value.
func (m *SessionManager) GetOrCreateSession(ctx context.Context) *models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentLocked(ctx).Clone()
}

// Persist saves session, logging but otherwise ignoring failures.
func (m *SessionManager) Persist(ctx context.Context, session *models.Session) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, session.Clone()); err != nil {
		m.logf("Failed to save analytics session: %v", err)
	}
}

func (m *SessionManager) currentLocked(ctx context.Context) *models.Session {
	now := m.now()
	if m.current != nil && !m.current.Expired(now, m.timeout) {
		return m.current
	}

	if stored := m.loadLocked(ctx); stored != nil && !stored.Expired(now, m.timeout) {
		m.current = stored
		return m.current
	}

	m.current = &models.Session{
		SessionID: m.newID(),
		StartTime: now,
		PageViews: 0,
		Events:    []models.Event{},
	}
	m.Persist(ctx, m.current)
	return m.current
}

func (m *SessionManager) loadLocked(ctx context.Context) *models.Session {
	if m.store == nil {
		return nil
	}
	stored, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			m.logf("Failed to retrieve analytics session: %v", err)
		}
		return nil
	}
	if stored == nil || stored.SessionID == "" || stored.StartTime.IsZero() {
		m.logf("Discarding malformed analytics session")
		return nil
	}
	if stored.Events == nil {
		stored.Events = []models.Event{}
	}
	// A previous run may have used a larger cap.
	stored.Trim(m.retentionCap)
	return stored
}

func (m *SessionManager) logf(format string, args ...any) {
	if m.debug {
		log.Printf("[telemetry] "+format, args...)
	}
}

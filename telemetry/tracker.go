package telemetry

import (
	"context"

	"bahr/analytics/models"
)

// Tracker records interactions against the current session. Record,
// RecordPageView and SessionStats are the whole surface other components use.
//
// All session mutation happens under the manager's lock, so events are
// appended in the order calls acquire it and the stored document is always
// written whole.
type Tracker struct {
	manager   *SessionManager
	forwarder Forwarder
}

// NewTracker wires a tracker; a nil forwarder disables forwarding.
func NewTracker(manager *SessionManager, forwarder Forwarder) *Tracker {
	if forwarder == nil {
		forwarder = NopForwarder{}
	}
	return &Tracker{manager: manager, forwarder: forwarder}
}

// Record appends an event named name to the current session, persists the
// session and hands the event to the forwarder.
func (t *Tracker) Record(ctx context.Context, name models.EventName, properties models.Properties) {
	m := t.manager
	m.mu.Lock()
	session := m.currentLocked(ctx)
	event := t.appendLocked(ctx, session, name, properties)
	m.mu.Unlock()

	t.forwarder.Forward(event)
}

// RecordPageView bumps the page view counter and records a page_view event.
func (t *Tracker) RecordPageView(ctx context.Context, path string) {
	m := t.manager
	m.mu.Lock()
	session := m.currentLocked(ctx)
	session.PageViews++
	m.Persist(ctx, session)
	event := t.appendLocked(ctx, session, models.EventPageView, models.Properties{"path": path})
	m.mu.Unlock()

	t.forwarder.Forward(event)
}

// SessionStats summarises the current session.
func (t *Tracker) SessionStats(ctx context.Context) models.SessionStats {
	m := t.manager
	m.mu.Lock()
	defer m.mu.Unlock()
	return ComputeStats(m.currentLocked(ctx), m.now())
}

func (t *Tracker) appendLocked(ctx context.Context, session *models.Session, name models.EventName, properties models.Properties) models.Event {
	event := models.Event{
		Name:       name,
		Timestamp:  t.manager.now(),
		SessionID:  session.SessionID,
		Properties: properties.Clone(),
	}
	session.Events = append(session.Events, event)
	session.Trim(t.manager.retentionCap)
	t.manager.Persist(ctx, session)
	return event
}

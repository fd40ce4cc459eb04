package models

import "time"

// Session groups one visitor's interactions for a bounded lifetime.
type Session struct {
	SessionID string    `json:"sessionId"`
	StartTime time.Time `json:"startTime"`
	PageViews int       `json:"pageViews"`
	Events    []Event   `json:"events"`
}

// Expired reports whether the session has reached the given age at now.
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.StartTime) >= timeout
}

// Trim keeps only the most recent limit events, preserving order.
func (s *Session) Trim(limit int) {
	if limit <= 0 || len(s.Events) <= limit {
		return
	}
	kept := make([]Event, limit)
	copy(kept, s.Events[len(s.Events)-limit:])
	s.Events = kept
}

// Clone returns a deep enough copy for persistence: the event slice is
// duplicated; events themselves are immutable.
func (s *Session) Clone() *Session {
	out := *s
	out.Events = make([]Event, len(s.Events))
	copy(out.Events, s.Events)
	return &out
}

// SessionStats is derived from a Session on demand and never persisted.
type SessionStats struct {
	SessionID   string            `json:"sessionId"`
	Duration    time.Duration     `json:"-"`
	DurationMs  int64             `json:"durationMs"`
	PageViews   int               `json:"pageViews"`
	TotalEvents int               `json:"totalEvents"`
	Submitted   int               `json:"submitted"`
	Succeeded   int               `json:"succeeded"`
	Failed      int               `json:"failed"`
	SuccessRate float64           `json:"successRate"`
	EventCounts map[EventName]int `json:"eventCounts"`
}

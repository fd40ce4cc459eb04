// analytics/models/event.go
package models

import (
	"encoding/json"
	"time"
)

// EventName identifies one kind of tracked interaction.
type EventName string

const (
	EventPageView       EventName = "page_view"
	EventAnalyzeSubmit  EventName = "analyze_submit"
	EventAnalyzeSuccess EventName = "analyze_success"
	EventAnalyzeError   EventName = "analyze_error"
	EventExampleClick   EventName = "example_click"
	EventRetryClick     EventName = "retry_click"
	EventResetClick     EventName = "reset_click"
	EventAPICall        EventName = "api_call"
	EventAPIError       EventName = "api_error"
)

// EventNames lists every accepted event kind.
var EventNames = []EventName{
	EventPageView,
	EventAnalyzeSubmit,
	EventAnalyzeSuccess,
	EventAnalyzeError,
	EventExampleClick,
	EventRetryClick,
	EventResetClick,
	EventAPICall,
	EventAPIError,
}

// Valid reports whether n is one of the known event kinds.
func (n EventName) Valid() bool {
	for _, known := range EventNames {
		if n == known {
			return true
		}
	}
	return false
}

// Properties carries optional event metadata. Values are strings, numbers or booleans.
type Properties map[string]any

// Clone returns a shallow copy; values are primitives so this detaches the map.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Event is a single recorded interaction.
type Event struct {
	Name       EventName  `json:"name" binding:"required"`
	Timestamp  time.Time  `json:"timestamp" binding:"required"`
	SessionID  string     `json:"sessionId" binding:"required,max=100"`
	UserID     string     `json:"userId,omitempty" binding:"max=100"`
	Properties Properties `json:"properties,omitempty"`
}

// CollectedEvent is an Event as stored by the collector, enriched with request metadata.
type CollectedEvent struct {
	EventID    string          `json:"id"`
	Name       string          `json:"event_name"`
	SessionID  string          `json:"session_id"`
	UserID     string          `json:"user_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Properties json.RawMessage `json:"properties,omitempty"`
	IPAddress  string          `json:"ip_address,omitempty"`
	UserAgent  string          `json:"user_agent,omitempty"`
	Referrer   string          `json:"referrer,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type NameCount struct {
	Name  string `json:"name"`
	Count uint64 `json:"count"`
}

type TopPathResult struct {
	Path  string `json:"path"`
	Count uint64 `json:"count"`
}

// StatsSummary is the collector-wide usage report.
type StatsSummary struct {
	Days           int              `json:"days"`
	TotalSessions  uint64           `json:"total_sessions"`
	TotalEvents    uint64           `json:"total_events"`
	TotalAnalyses  uint64           `json:"total_analyses"`
	SuccessRate    float64          `json:"success_rate"`
	TopEvents      []NameCount      `json:"top_events"`
	RecentActivity []CollectedEvent `json:"recent_activity"`
}

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventNameValid(t *testing.T) {
	for _, name := range EventNames {
		assert.True(t, name.Valid(), name)
	}
	assert.False(t, EventName("purchase").Valid())
	assert.False(t, EventName("").Valid())
}

func TestSessionTrim(t *testing.T) {
	s := &Session{}
	for i := range 5 {
		s.Events = append(s.Events, Event{Properties: Properties{"n": i}})
	}

	s.Trim(10)
	assert.Len(t, s.Events, 5)

	s.Trim(2)
	require.Len(t, s.Events, 2)
	assert.Equal(t, 3, s.Events[0].Properties["n"])
	assert.Equal(t, 4, s.Events[1].Properties["n"])

	s.Trim(0)
	assert.Len(t, s.Events, 2)
}

func TestSessionExpired(t *testing.T) {
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	s := &Session{StartTime: start}

	assert.False(t, s.Expired(start.Add(29*time.Minute), 30*time.Minute))
	assert.True(t, s.Expired(start.Add(30*time.Minute), 30*time.Minute))
	assert.True(t, s.Expired(start.Add(time.Hour), 30*time.Minute))
}

func TestSessionCloneDetachesEvents(t *testing.T) {
	s := &Session{SessionID: "a", Events: []Event{{Name: EventPageView}}}

	c := s.Clone()
	c.Events = append(c.Events, Event{Name: EventAPICall})
	c.Events[0].Name = EventResetClick
	c.PageViews = 3

	assert.Len(t, s.Events, 1)
	assert.Equal(t, EventPageView, s.Events[0].Name)
	assert.Zero(t, s.PageViews)
}

func TestPropertiesClone(t *testing.T) {
	var nilProps Properties
	assert.Nil(t, nilProps.Clone())

	p := Properties{"path": "/"}
	c := p.Clone()
	c["path"] = "/changed"
	assert.Equal(t, "/", p["path"])
}

func TestSessionDocumentShape(t *testing.T) {
	start := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	s := &Session{
		SessionID: "abc",
		StartTime: start,
		PageViews: 1,
		Events: []Event{{
			Name:       EventPageView,
			Timestamp:  start,
			SessionID:  "abc",
			Properties: Properties{"path": "/analyze"},
		}},
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"sessionId": "abc",
		"startTime": "2025-03-14T09:00:00Z",
		"pageViews": 1,
		"events": [{
			"name": "page_view",
			"timestamp": "2025-03-14T09:00:00Z",
			"sessionId": "abc",
			"properties": {"path": "/analyze"}
		}]
	}`, string(data))
}

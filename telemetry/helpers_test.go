package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"bahr/analytics/models"
)

// fakeStore round-trips sessions through JSON like a real document store.
type fakeStore struct {
	mu      sync.Mutex
	doc     []byte
	loadErr error
	saveErr error
	saves   int
}

func (s *fakeStore) Load(context.Context) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.doc == nil {
		return nil, ErrNoSession
	}
	var session models.Session
	if err := json.Unmarshal(s.doc, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *fakeStore) Save(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	s.doc = data
	return nil
}

func (s *fakeStore) stored() *models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	var session models.Session
	if err := json.Unmarshal(s.doc, &session); err != nil {
		panic(err)
	}
	return &session
}

func (s *fakeStore) put(session *models.Session) {
	data, err := json.Marshal(session)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.doc = data
	s.mu.Unlock()
}

var errUnavailable = errors.New("storage unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("session-%d", n)
	}
}

// recordingForwarder captures forwarded events synchronously.
type recordingForwarder struct {
	mu     sync.Mutex
	events []models.Event
}

func (f *recordingForwarder) Forward(event models.Event) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *recordingForwarder) Events() []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Event(nil), f.events...)
}

package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"bahr/analytics/models"
)

// Memory holds the serialized session in process memory. Documents are
// round-tripped through JSON so callers never share state with the store.
type Memory struct {
	mu  sync.Mutex
	doc []byte
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(_ context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return decodeSession(m.doc)
}

func (m *Memory) Save(_ context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	m.mu.Lock()
	m.doc = data
	m.mu.Unlock()
	return nil
}

// SetRaw replaces the stored document verbatim.
func (m *Memory) SetRaw(doc []byte) {
	m.mu.Lock()
	m.doc = append([]byte(nil), doc...)
	m.mu.Unlock()
}

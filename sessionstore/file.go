// Package sessionstore provides durable backings for telemetry.SessionStore.
package sessionstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"bahr/analytics/models"
	"bahr/analytics/telemetry"
)

// File keeps the session as one JSON document on disk. Writes go through a
// temporary file and rename so a crash never leaves a torn document.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Load(_ context.Context) (*models.Session, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, telemetry.ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	return decodeSession(data)
}

func (f *File) Save(_ context.Context, session *models.Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func decodeSession(data []byte) (*models.Session, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, telemetry.ErrNoSession
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("malformed session document: %w", err)
	}
	return &session, nil
}

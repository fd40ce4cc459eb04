// Package telemetry tracks usage of the bahr client: one bounded-lifetime
// session per user, a capped log of interaction events persisted through a
// SessionStore, best-effort forwarding of each event to a remote collector,
// and on-demand session statistics.
//
// Telemetry is advisory. No operation in this package returns an error to
// its caller: storage and delivery failures are absorbed locally.
package telemetry

import (
	"context"
	"errors"

	"bahr/analytics/models"
)

// StorageKey names the single persisted session document.
const StorageKey = "bahr_analytics_session"

// ErrNoSession is returned by SessionStore.Load when nothing is stored.
var ErrNoSession = errors.New("no stored session")

// SessionStore persists the current session as one whole document.
type SessionStore interface {
	// Load returns the stored session, ErrNoSession if there is none, or any
	// other error if storage is unavailable or the document is malformed.
	Load(ctx context.Context) (*models.Session, error)
	// Save replaces the stored document.
	Save(ctx context.Context, session *models.Session) error
}

package utils

import "github.com/google/uuid"

// GenerateSessionID returns an opaque, unique session identifier.
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateEventID returns a unique id for an event stored by the collector.
func GenerateEventID() string {
	return uuid.NewString()
}

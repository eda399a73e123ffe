package common

import "github.com/google/uuid"

// NewInstanceID returns a fresh random identifier for one running process's
// attachment to a data directory. It has no on-disk meaning; it exists so
// that log lines from concurrent or successive processes touching the same
// data directory can be told apart.
func NewInstanceID() uuid.UUID {
	return uuid.New()
}

// ParseInstanceID parses a previously printed instance id, e.g. from a log
// line a caller is trying to correlate against.
func ParseInstanceID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

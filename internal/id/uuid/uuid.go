// Package uuid generates walk run IDs.
package uuid

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 run IDs.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// StartedAt recovers the creation time embedded in a UUIDv7 run ID.
func StartedAt(runID string) (time.Time, error) {
	id, err := uuid.Parse(runID)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run id: %w", err)
	}
	if id.Version() != 7 {
		return time.Time{}, fmt.Errorf("run id %s is version %d, not 7", runID, id.Version())
	}
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), nil
}

// Package progress defines the events emitted while links are routed and handled.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRouted         Stage = "ROUTED"
	StageSkipped        Stage = "SKIPPED"
	StageDropped        Stage = "DROPPED"
	StageHandlerStarted Stage = "HANDLER_STARTED"
	StageHandlerFailed  Stage = "HANDLER_FAILED"
	StageDirectFile     Stage = "DIRECT_FILE"
	StageDelegated      Stage = "DELEGATED"
	StageUnsupported    Stage = "UNSUPPORTED"
	StageMediaQueued    Stage = "MEDIA_QUEUED"
	StageDrained        Stage = "DRAINED"
)

// Event captures a single routing or handling milestone.
type Event struct {
	// RunID identifies the mapper run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Domain is the routing key or handler family the event concerns.
	Domain string
	// URL should not contain credentials.
	URL  string
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageSkipped, StageDropped, StageDirectFile, StageDelegated, StageUnsupported, StageDrained:
	case StageRouted, StageHandlerStarted, StageHandlerFailed, StageMediaQueued:
		if e.Domain == "" {
			return fmt.Errorf("%s requires domain", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

package mind

import (
	"context"
	"time"
)

type EventType string

const (
	EventDecision      EventType = "decision"
	EventConsolidation EventType = "consolidation"
	EventFailure       EventType = "failure"
)

// Event reports something that happened to a mind.
type Event struct {
	Type      EventType      `json:"type"`
	MindID    string         `json:"mind_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher delivers events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Persister stores mind snapshots across restarts.
type Persister interface {
	SaveMind(ctx context.Context, s Snapshot) error
	DeleteMind(ctx context.Context, id string) error
	ListMinds(ctx context.Context) ([]Snapshot, error)
}

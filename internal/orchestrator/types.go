package orchestrator

import (
	"context"
	"time"

	"github.com/nidhogg/nuka-mind/internal/cognitive"
	"github.com/nidhogg/nuka-mind/internal/mind"
)

// RequestStatus is the outcome of a scheduled decision request.
type RequestStatus string

const (
	RequestDone   RequestStatus = "done"
	RequestFailed RequestStatus = "failed"
)

// Request asks one mind to decide on its next action.
type Request struct {
	ID               string                      `json:"id,omitempty"`
	MindID           string                      `json:"mind_id"`
	Observation      cognitive.Observation       `json:"observation"`
	AvailableActions []cognitive.AvailableAction `json:"available_actions,omitempty"`
}

// Result is the outcome of a Request.
type Result struct {
	RequestID string         `json:"request_id"`
	MindID    string         `json:"mind_id"`
	Status    RequestStatus  `json:"status"`
	Decision  *mind.Decision `json:"decision,omitempty"`
	Error     string         `json:"error,omitempty"`
	Err       error          `json:"-"`
	Duration  time.Duration  `json:"duration"`
}

// Decider runs decision cycles.
type Decider interface {
	Decide(ctx context.Context, id string, obs cognitive.Observation, actions []cognitive.AvailableAction) (*mind.Decision, error)
}

// Consolidator is the part of the registry the sweeper needs.
type Consolidator interface {
	List() []mind.Info
	Consolidate(ctx context.Context, id string) (*mind.ConsolidationReport, error)
}

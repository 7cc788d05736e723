package cognitive

import (
	"time"

	"github.com/nidhogg/nuka-mind/internal/memory"
)

// State is threaded through every stage of one decision cycle.
type State struct {
	MindID           string
	Observation      Observation
	AvailableActions []AvailableAction
	Traits           []string
	WorkingMemory    WorkingMemory

	// Conversation history per interaction id, accumulated across cycles.
	Conversations map[string][]ConversationMessage

	Queries     []string
	Retrieved   []memory.Scored
	NewMemories []memory.Candidate
	Action      *Action

	Timings map[string]time.Duration
	Tokens  map[string]int
}

// NewState starts a cycle. Working memory and conversations carry over from
// the mind; everything else starts empty.
func NewState(mindID string, obs Observation, actions []AvailableAction, traits []string, wm WorkingMemory) *State {
	return &State{
		MindID:           mindID,
		Observation:      obs,
		AvailableActions: actions,
		Traits:           traits,
		WorkingMemory:    wm.Clone(),
		Conversations:    make(map[string][]ConversationMessage),
		Timings:          make(map[string]time.Duration),
		Tokens:           make(map[string]int),
	}
}

func (s *State) recordTiming(stage string, d time.Duration) {
	if s.Timings == nil {
		s.Timings = make(map[string]time.Duration)
	}
	s.Timings[stage] = d
}

func (s *State) addTokens(stage string, n int) {
	if s.Tokens == nil {
		s.Tokens = make(map[string]int)
	}
	s.Tokens[stage] += n
}

// TimingsMS reports stage timings in milliseconds.
func (s *State) TimingsMS() map[string]int64 {
	out := make(map[string]int64, len(s.Timings))
	for k, v := range s.Timings {
		out[k] = v.Milliseconds()
	}
	return out
}

func (s *State) instrumentation() (map[string]time.Duration, map[string]int) {
	timings := make(map[string]time.Duration, len(s.Timings))
	for k, v := range s.Timings {
		timings[k] = v
	}
	tokens := make(map[string]int, len(s.Tokens))
	for k, v := range s.Tokens {
		tokens[k] = v
	}
	return timings, tokens
}

// Snapshot is the read-only view of a cycle that validators see.
type Snapshot struct {
	MindID           string
	Observation      Observation
	AvailableActions []AvailableAction
	Traits           []string
	WorkingMemory    WorkingMemory
}

func (s *State) Snapshot() Snapshot {
	return Snapshot{
		MindID:           s.MindID,
		Observation:      s.Observation,
		AvailableActions: append([]AvailableAction(nil), s.AvailableActions...),
		Traits:           append([]string(nil), s.Traits...),
		WorkingMemory:    s.WorkingMemory.Clone(),
	}
}

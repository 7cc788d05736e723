package mind

import (
	"sync"
	"time"

	"github.com/nidhogg/nuka-mind/internal/cognitive"
	"github.com/nidhogg/nuka-mind/internal/memory"
)

// Status represents what a mind is doing right now.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusDeciding      Status = "deciding"
	StatusConsolidating Status = "consolidating"
)

// Spec describes a mind to create.
type Spec struct {
	ID              string                  `json:"id" yaml:"id"`
	Name            string                  `json:"name" yaml:"name"`
	ProviderID      string                  `json:"provider_id,omitempty" yaml:"provider_id"`
	Traits          []string                `json:"personality_traits" yaml:"traits"`
	WorkingMemory   cognitive.WorkingMemory `json:"working_memory" yaml:"working_memory"`
	InitialMemories []string                `json:"initial_memories,omitempty" yaml:"initial_memories"`
}

// Info is the public view of a mind.
type Info struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ProviderID string    `json:"provider_id,omitempty"`
	Traits     []string  `json:"personality_traits"`
	Status     Status    `json:"status"`
	Buffered   int       `json:"buffered_memories"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Snapshot is the persisted state of a mind. Long-term memories live in the
// memory backend, not here.
type Snapshot struct {
	ID            string                                     `json:"id"`
	Name          string                                     `json:"name"`
	ProviderID    string                                     `json:"provider_id,omitempty"`
	Traits        []string                                   `json:"personality_traits"`
	WorkingMemory cognitive.WorkingMemory                    `json:"working_memory"`
	Buffer        []memory.Candidate                         `json:"buffer"`
	Conversations map[string][]cognitive.ConversationMessage `json:"conversations,omitempty"`
	CreatedAt     time.Time                                  `json:"created_at"`
	UpdatedAt     time.Time                                  `json:"updated_at"`
}

// Decision is the result of one decision cycle.
type Decision struct {
	MindID      string             `json:"mind_id"`
	Action      cognitive.Action   `json:"action"`
	Queries     []string           `json:"queries"`
	Retrieved   []memory.Scored    `json:"retrieved_memories"`
	NewMemories []memory.Candidate `json:"new_memories"`
	Timings     map[string]int64   `json:"timings_ms"`
	Tokens      map[string]int     `json:"tokens"`
}

// ConsolidationReport is the result of consolidating one mind.
type ConsolidationReport struct {
	MindID    string          `json:"mind_id"`
	Persisted []memory.Memory `json:"persisted"`
	Remaining int             `json:"remaining"`
	ElapsedMS int64           `json:"elapsed_ms"`
}

// Mind is one autonomous character with its own memory namespace.
type Mind struct {
	id         string
	name       string
	providerID string
	traits     []string
	createdAt  time.Time

	store         *memory.Store
	pipeline      *cognitive.Pipeline
	consolidation *cognitive.Consolidation
	buffer        *cognitive.Buffer

	// cycleMu serializes decision cycles; working memory is read by the
	// first stage and replaced after the last.
	cycleMu sync.Mutex

	mu            sync.RWMutex
	status        Status
	workingMemory cognitive.WorkingMemory
	conversations map[string][]cognitive.ConversationMessage
	convMarks     map[string]int64
	updatedAt     time.Time
}

func (m *Mind) info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Info{
		ID:         m.id,
		Name:       m.name,
		ProviderID: m.providerID,
		Traits:     append([]string(nil), m.traits...),
		Status:     m.status,
		Buffered:   m.buffer.Len(),
		CreatedAt:  m.createdAt,
		UpdatedAt:  m.updatedAt,
	}
}

func (m *Mind) snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		ID:            m.id,
		Name:          m.name,
		ProviderID:    m.providerID,
		Traits:        append([]string(nil), m.traits...),
		WorkingMemory: m.workingMemory.Clone(),
		Buffer:        m.buffer.Snapshot(),
		Conversations: copyConversations(m.conversations),
		CreatedAt:     m.createdAt,
		UpdatedAt:     m.updatedAt,
	}
}

func (m *Mind) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.updatedAt = time.Now()
	m.mu.Unlock()
}

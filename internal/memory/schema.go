package memory

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Location is a 2-D grid position in the simulation.
type Location struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

func (l Location) String() string {
	return fmt.Sprintf("(%d, %d)", l.X, l.Y)
}

// Memory is a persisted long-term memory. Content and Timestamp never change
// once the memory has been consolidated.
type Memory struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Timestamp  int64     `json:"timestamp"` // simulation time
	Location   *Location `json:"location,omitempty"`
	Importance float64   `json:"importance"`
	Embedding  []float32 `json:"-"`
}

// String renders the memory for prompts: [id | T:ts | L:(x, y)] content.
func (m Memory) String() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(m.ID)
	fmt.Fprintf(&b, " | T:%d", m.Timestamp)
	if m.Location != nil {
		b.WriteString(" | L:")
		b.WriteString(m.Location.String())
	}
	b.WriteString("] ")
	b.WriteString(m.Content)
	return b.String()
}

// Candidate is a memory formed during a decision cycle and buffered until
// consolidation.
type Candidate struct {
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	FormedAt   int64     `json:"formed_at"`
	Location   *Location `json:"location,omitempty"`
}

// Scored is a search hit with its relevance and combined score.
type Scored struct {
	Memory
	Relevance float64 `json:"relevance"`
	Score     float64 `json:"score"`
}

// NewID returns a fresh memory identifier.
func NewID() string {
	return "memory_" + uuid.New().String()
}

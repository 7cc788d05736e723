package cognitive

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nidhogg/nuka-mind/internal/prompt"
	"go.uber.org/zap"
)

const StageMemoryQuery = "memory_query"

var memoryQueryPrompt = prompt.MustLoad("memory_query", "working_memory", "observation", "max_queries")

// MemoryQueryOutput holds the search phrases for one cycle.
type MemoryQueryOutput struct {
	Queries []string `json:"queries"`
}

// MemoryQueryStage asks the model for diverse phrases to search memory with.
type MemoryQueryStage struct {
	llm *LLMStage[MemoryQueryOutput]
}

func NewMemoryQueryStage(chat Chatter, cfg StageConfig, maxQueries int, logger *zap.Logger) (*MemoryQueryStage, error) {
	if maxQueries <= 0 {
		return nil, fmt.Errorf("%w: max queries must be positive", ErrConfig)
	}
	vars := func(s *State) map[string]string {
		return map[string]string{
			"working_memory": s.WorkingMemory.String(),
			"observation":    s.Observation.String(),
			"max_queries":    strconv.Itoa(maxQueries),
		}
	}
	validate := func(out *MemoryQueryOutput, _ Snapshot) []Violation {
		return validateQueries(out, maxQueries)
	}
	llm, err := NewLLMStage[MemoryQueryOutput](StageMemoryQuery, chat, memoryQueryPrompt, vars, validate, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &MemoryQueryStage{llm: llm}, nil
}

func (m *MemoryQueryStage) Name() string { return StageMemoryQuery }

func (m *MemoryQueryStage) Process(ctx context.Context, s *State) error {
	out, err := m.llm.Run(ctx, s)
	if err != nil {
		return err
	}
	s.Queries = out.Queries
	return nil
}

func validateQueries(out *MemoryQueryOutput, max int) []Violation {
	var vs []Violation
	if len(out.Queries) == 0 {
		vs = append(vs, Violation{Field: "queries", Message: "at least one query is required"})
	}
	if len(out.Queries) > max {
		vs = append(vs, Violation{Field: "queries", Message: fmt.Sprintf("at most %d queries are allowed, got %d", max, len(out.Queries))})
	}
	for i, q := range out.Queries {
		if strings.TrimSpace(q) == "" {
			vs = append(vs, Violation{Field: fmt.Sprintf("queries[%d]", i), Message: "query must not be empty"})
		}
	}
	return vs
}

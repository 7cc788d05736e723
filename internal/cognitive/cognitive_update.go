package cognitive

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/prompt"
	"go.uber.org/zap"
)

const StageCognitiveUpdate = "cognitive_update"

var cognitiveUpdatePrompt = prompt.MustLoad("cognitive_update",
	"personality_traits", "working_memory", "retrieved_memories", "recent_events",
	"observation", "min_importance", "max_importance")

// NewMemory is a memory the model wants to form this cycle.
type NewMemory struct {
	Content    string  `json:"content"`
	Importance float64 `json:"importance"`
}

type CognitiveUpdateOutput struct {
	WorkingMemory WorkingMemory `json:"working_memory"`
	NewMemories   []NewMemory   `json:"new_memories"`
}

// CognitiveUpdateStage replaces working memory and buffers any memories the
// model chose to form. Forming none is the common case.
type CognitiveUpdateStage struct {
	llm *LLMStage[CognitiveUpdateOutput]
}

func NewCognitiveUpdateStage(chat Chatter, cfg StageConfig, scoring memory.Scoring, logger *zap.Logger) (*CognitiveUpdateStage, error) {
	vars := func(s *State) map[string]string {
		return map[string]string{
			"personality_traits": formatTraits(s.Traits),
			"working_memory":     s.WorkingMemory.String(),
			"retrieved_memories": formatMemories(s.Retrieved),
			"recent_events":      formatRecentEvents(s),
			"observation":        s.Observation.String(),
			"min_importance":     strconv.FormatFloat(scoring.MinImportance, 'f', -1, 64),
			"max_importance":     strconv.FormatFloat(scoring.MaxImportance, 'f', -1, 64),
		}
	}
	validate := func(out *CognitiveUpdateOutput, _ Snapshot) []Violation {
		var vs []Violation
		for i, m := range out.NewMemories {
			field := fmt.Sprintf("new_memories[%d]", i)
			if strings.TrimSpace(m.Content) == "" {
				vs = append(vs, Violation{Field: field + ".content", Message: "content must not be empty"})
			}
			if !scoring.InRange(m.Importance) {
				vs = append(vs, Violation{
					Field:   field + ".importance",
					Message: fmt.Sprintf("importance %v is outside %v-%v", m.Importance, scoring.MinImportance, scoring.MaxImportance),
				})
			}
		}
		return vs
	}
	llm, err := NewLLMStage[CognitiveUpdateOutput](StageCognitiveUpdate, chat, cognitiveUpdatePrompt, vars, validate, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &CognitiveUpdateStage{llm: llm}, nil
}

func (c *CognitiveUpdateStage) Name() string { return StageCognitiveUpdate }

func (c *CognitiveUpdateStage) Process(ctx context.Context, s *State) error {
	out, err := c.llm.Run(ctx, s)
	if err != nil {
		return err
	}

	s.WorkingMemory = out.WorkingMemory
	loc := s.Observation.Location()
	for _, m := range out.NewMemories {
		s.NewMemories = append(s.NewMemories, memory.Candidate{
			Content:    strings.TrimSpace(m.Content),
			Importance: m.Importance,
			FormedAt:   s.Observation.SimulationTime,
			Location:   loc,
		})
	}
	return nil
}

func formatTraits(traits []string) string {
	if len(traits) == 0 {
		return "No particular traits."
	}
	return strings.Join(traits, ", ")
}

func formatMemories(list []memory.Scored) string {
	if len(list) == 0 {
		return "No relevant memories."
	}
	lines := make([]string, len(list))
	for i, m := range list {
		lines[i] = m.Memory.String()
	}
	return strings.Join(lines, "\n")
}

// formatRecentEvents lists working-memory events followed by the latest
// messages of each conversation the mind has been part of.
func formatRecentEvents(s *State) string {
	var lines []string
	for _, e := range s.WorkingMemory.RecentEvents {
		lines = append(lines, "- "+e)
	}
	for _, id := range sortedKeys(s.Conversations) {
		msgs := s.Conversations[id]
		if len(msgs) == 0 {
			continue
		}
		lines = append(lines, "Conversation "+id+":")
		for _, m := range msgs {
			speaker := m.SpeakerName
			if m.SpeakerID == s.Observation.EntityID {
				speaker = "[YOU] " + speaker
			}
			lines = append(lines, "  "+speaker+": "+m.Message)
		}
	}
	if len(lines) == 0 {
		return "Nothing notable."
	}
	return strings.Join(lines, "\n")
}

package cognitive

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/nidhogg/nuka-mind/internal/embedding"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/provider"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type reply struct {
	content string
	tokens  int
	err     error
	block   bool // wait for the request context to end
}

// scriptedChat answers requests with replies in order, repeating the last
// one once the script runs out.
type scriptedChat struct {
	mu       sync.Mutex
	replies  []reply
	requests []*provider.ChatRequest
}

func script(replies ...reply) *scriptedChat { return &scriptedChat{replies: replies} }

func (c *scriptedChat) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	c.mu.Lock()
	i := len(c.requests)
	c.requests = append(c.requests, req)
	r := c.replies[len(c.replies)-1]
	if i < len(c.replies) {
		r = c.replies[i]
	}
	c.mu.Unlock()

	if r.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &provider.ChatResponse{Content: r.content, Usage: provider.Usage{TotalTokens: r.tokens}}, nil
}

func (c *scriptedChat) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

func (c *scriptedChat) request(i int) *provider.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[i]
}

// stageChat dispatches on the prompt so one fake can serve a whole pipeline.
type stageChat struct {
	byMarker map[string]*scriptedChat
}

func (c *stageChat) Chat(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	first := req.Messages[0].Content
	for marker, chat := range c.byMarker {
		if strings.Contains(first, marker) {
			return chat.Chat(ctx, req)
		}
	}
	panic("no scripted chat for prompt: " + first[:40])
}

const (
	markerQuery  = "search their long-term memory"
	markerUpdate = "inner mental state"
	markerAction = "choose the next action"
)

func newMemoryStore(t *testing.T, emb embedding.Provider) *memory.Store {
	t.Helper()
	backend, err := memory.NewChromemBackend("")
	require.NoError(t, err)
	idx, err := backend.Open(context.Background(), strings.ReplaceAll(t.Name(), "/", "_"), emb.Dimension())
	require.NoError(t, err)
	return memory.NewStore(idx, emb, memory.DefaultScoring(), zap.NewNop())
}

func breadObservation() Observation {
	return Observation{
		EntityID:       "npc_ada",
		SimulationTime: 500,
		Status:         &Status{Position: Position{4, 7}},
		Needs:          map[string]float64{"hunger": 18, "energy": 80},
		Vision: &Vision{VisibleEntities: []Entity{{
			EntityID:     "bread_01",
			DisplayName:  "Bread",
			Position:     Position{5, 7},
			Interactions: map[string]Interaction{"eat": {Description: "Eat the bread", NeedsFilled: []string{"hunger"}}},
		}}},
	}
}

func breadActions() []AvailableAction {
	return []AvailableAction{
		{
			Name:        ActionInteractWith,
			Description: "Bread: Eat the bread",
			Parameters: map[string]string{
				"entity_id":        "Target entity ID (use: bread_01)",
				"interaction_name": "Interaction type (use: eat)",
			},
		},
		{Name: ActionWait, Description: "Wait and observe surroundings"},
	}
}

func breadState() *State {
	return NewState("ada", breadObservation(), breadActions(), []string{"curious"},
		WorkingMemory{ActiveGoals: []string{"eat"}})
}

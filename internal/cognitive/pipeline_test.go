package cognitive

import (
	"context"
	"errors"
	"testing"

	"github.com/nidhogg/nuka-mind/internal/embedding"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const mundaneUpdate = `{
  "working_memory": {
    "situation_assessment": "Standing near some bread, quite hungry.",
    "active_goals": ["eat"],
    "recent_events": ["Noticed bread nearby"],
    "planned_next_steps": ["Eat the bread"],
    "emotional_state": "peckish"
  },
  "new_memories": []
}`

func TestPipeline_FullCycle(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t, embedding.NewHashProvider(128))
	_, err := store.Add(ctx, []memory.Candidate{
		{Content: "The baker gave me warm bread", Importance: 7, FormedAt: 100},
		{Content: "I got lost in the forest", Importance: 4, FormedAt: 200},
	})
	require.NoError(t, err)

	chat := &stageChat{byMarker: map[string]*scriptedChat{
		markerQuery:  script(reply{content: `{"queries": ["warm bread", "bread from the baker", "hunger"]}`, tokens: 12}),
		markerUpdate: script(reply{content: mundaneUpdate, tokens: 40}),
		markerAction: script(reply{content: `{"action": "interact_with", "parameters": {"entity_id": "bread_01", "interaction_name": "eat"}}`, tokens: 25}),
	}}

	p, err := Build(chat, store, DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{StageMemoryQuery, StageMemoryRetrieval, StageCognitiveUpdate, StageActionSelection}, p.Stages())

	s := NewState("ada", breadObservation(), nil, []string{"curious"}, WorkingMemory{ActiveGoals: []string{"eat"}})
	require.NoError(t, p.Run(ctx, s))

	assert.Equal(t, []string{"warm bread", "bread from the baker", "hunger"}, s.Queries)
	require.NotEmpty(t, s.Retrieved)
	assert.LessOrEqual(t, len(s.Retrieved), 5)
	assert.Equal(t, "The baker gave me warm bread", s.Retrieved[0].Content)
	seen := map[string]bool{}
	for _, m := range s.Retrieved {
		assert.False(t, seen[m.ID], "duplicate memory %s", m.ID)
		seen[m.ID] = true
	}

	assert.Equal(t, "peckish", s.WorkingMemory.EmotionalState)
	assert.Empty(t, s.NewMemories, "a mundane cycle forms no memories")
	require.NotNil(t, s.Action)
	assert.Equal(t, "bread_01", s.Action.Parameters["entity_id"])
	assert.NotEmpty(t, s.AvailableActions, "actions derived from the observation")

	for _, name := range p.Stages() {
		assert.Contains(t, s.Timings, name)
	}
	assert.Equal(t, 12, s.Tokens[StageMemoryQuery])
	assert.Equal(t, 40, s.Tokens[StageCognitiveUpdate])
	assert.Equal(t, 25, s.Tokens[StageActionSelection])
	assert.NotContains(t, s.Tokens, StageMemoryRetrieval)

	prompt := chat.byMarker[markerUpdate].request(0).Messages[0].Content
	assert.Contains(t, prompt, "| T:100] The baker gave me warm bread")
}

func TestPipeline_FormsCandidates(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t, embedding.NewHashProvider(64))
	update := `{"working_memory": {"situation_assessment": "Bob insulted me", "emotional_state": "angry"},
		"new_memories": [{"content": "Bob called me lazy in front of everyone", "importance": 8}]}`
	chat := &stageChat{byMarker: map[string]*scriptedChat{
		markerQuery:  script(reply{content: `{"queries": ["Bob"]}`}),
		markerUpdate: script(reply{content: update}),
		markerAction: script(reply{content: `{"action": "wait"}`}),
	}}
	p, err := Build(chat, store, DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	s := NewState("ada", breadObservation(), breadActions(), nil, WorkingMemory{})
	require.NoError(t, p.Run(ctx, s))

	require.Len(t, s.NewMemories, 1)
	c := s.NewMemories[0]
	assert.Equal(t, 8.0, c.Importance)
	assert.Equal(t, int64(500), c.FormedAt)
	assert.Equal(t, &memory.Location{X: 4, Y: 7}, c.Location)
	assert.Empty(t, s.Retrieved, "empty store retrieves nothing")

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "candidates are buffered, not persisted")
}

func TestPipeline_ImportanceOutOfRangeIsRetried(t *testing.T) {
	store := newMemoryStore(t, embedding.NewHashProvider(32))
	update := script(
		reply{content: `{"working_memory": {}, "new_memories": [{"content": "x", "importance": 42}]}`, tokens: 3},
		reply{content: `{"working_memory": {}, "new_memories": [{"content": "x", "importance": 9}]}`, tokens: 3},
	)
	chat := &stageChat{byMarker: map[string]*scriptedChat{
		markerQuery:  script(reply{content: `{"queries": ["x"]}`}),
		markerUpdate: update,
		markerAction: script(reply{content: `{"action": "wait"}`}),
	}}
	p, err := Build(chat, store, DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	s := NewState("ada", breadObservation(), breadActions(), nil, WorkingMemory{})
	require.NoError(t, p.Run(context.Background(), s))
	assert.Equal(t, 2, update.calls())
	assert.Equal(t, 6, s.Tokens[StageCognitiveUpdate])
}

func TestPipeline_StageErrorCarriesPartialState(t *testing.T) {
	store := newMemoryStore(t, embedding.NewHashProvider(32))
	chat := &stageChat{byMarker: map[string]*scriptedChat{
		markerQuery:  script(reply{content: `{"queries": ["bread"]}`, tokens: 9}),
		markerUpdate: script(reply{content: mundaneUpdate, tokens: 30}),
		markerAction: script(reply{content: `{"action": "teleport"}`, tokens: 4}),
	}}
	p, err := Build(chat, store, DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	s := NewState("ada", breadObservation(), breadActions(), nil, WorkingMemory{})
	err = p.Run(context.Background(), s)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageActionSelection, se.Stage)
	assert.Equal(t, 3, se.Attempts)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, 9, se.Tokens[StageMemoryQuery])
	assert.Equal(t, 12, se.Tokens[StageActionSelection])
	assert.Contains(t, se.Timings, StageActionSelection)
	assert.Contains(t, se.Timings, StageMemoryRetrieval)
	assert.Nil(t, s.Action)
}

type failingSearcher struct {
	failFor map[string]bool
	inner   Searcher
}

func (f failingSearcher) Search(ctx context.Context, q string, k int, now int64) ([]memory.Scored, error) {
	if f.failFor[q] {
		return nil, errors.New("index shard unavailable")
	}
	return f.inner.Search(ctx, q, k, now)
}

func TestMemoryRetrieval_DegradesOnFailedQuery(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t, embedding.NewHashProvider(64))
	_, err := store.Add(ctx, []memory.Candidate{{Content: "bread at the market", Importance: 5, FormedAt: 1}})
	require.NoError(t, err)

	st := NewMemoryRetrievalStage(failingSearcher{failFor: map[string]bool{"broken": true}, inner: store}, 2, 5, zap.NewNop())
	s := breadState()
	s.Queries = []string{"broken", "bread market"}

	require.NoError(t, Measure(ctx, st, s))
	require.Len(t, s.Retrieved, 1)
	assert.Equal(t, "bread at the market", s.Retrieved[0].Content)

	s.Queries = []string{"broken"}
	require.NoError(t, Measure(ctx, st, s))
	assert.Empty(t, s.Retrieved)
}

func TestMemoryRetrieval_CapsAndDedups(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t, embedding.NewHashProvider(64))
	var cands []memory.Candidate
	for _, c := range []string{"bread one", "bread two", "bread three", "bread four"} {
		cands = append(cands, memory.Candidate{Content: c, Importance: 5, FormedAt: 10})
	}
	_, err := store.Add(ctx, cands)
	require.NoError(t, err)

	st := NewMemoryRetrievalStage(store, 3, 3, zap.NewNop())
	s := breadState()
	s.Queries = []string{"bread", "bread one", "bread two"}
	require.NoError(t, st.Process(ctx, s))

	assert.Len(t, s.Retrieved, 3)
	ids := map[string]bool{}
	for _, m := range s.Retrieved {
		assert.False(t, ids[m.ID])
		ids[m.ID] = true
	}
}

func TestMemoryQuery_Validation(t *testing.T) {
	assert.NotEmpty(t, validateQueries(&MemoryQueryOutput{}, 5))
	assert.NotEmpty(t, validateQueries(&MemoryQueryOutput{Queries: []string{"a", " "}}, 5))
	assert.NotEmpty(t, validateQueries(&MemoryQueryOutput{Queries: []string{"a", "b", "c"}}, 2))
	assert.Empty(t, validateQueries(&MemoryQueryOutput{Queries: []string{"a", "b"}}, 5))
}

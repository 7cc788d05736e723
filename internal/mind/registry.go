package mind

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/nuka-mind/internal/cognitive"
	"github.com/nidhogg/nuka-mind/internal/config"
	"github.com/nidhogg/nuka-mind/internal/embedding"
	"github.com/nidhogg/nuka-mind/internal/memory"
	"github.com/nidhogg/nuka-mind/internal/provider"
	"go.uber.org/zap"
)

var (
	// ErrMindNotFound is returned when a mind ID doesn't exist.
	ErrMindNotFound = errors.New("mind not found")
	ErrMindExists   = errors.New("mind already exists")
)

// ChatFactory returns the language model a mind's stages talk to.
type ChatFactory func(mindID string) cognitive.Chatter

// RouterChat routes every mind through r, honouring per-mind bindings.
func RouterChat(r *provider.Router) ChatFactory {
	return func(mindID string) cognitive.Chatter { return r.For(mindID) }
}

// Options configures a Registry. Router, Persister and Publisher are optional.
type Options struct {
	Backend           memory.Backend
	Embedder          embedding.Provider
	Chat              ChatFactory
	Router            *provider.Router
	Pipeline          cognitive.Config
	SeedImportance    float64
	ConversationLimit int
	Persister         Persister
	Publisher         Publisher
	Logger            *zap.Logger
}

// PipelineConfig converts the config file's pipeline section.
func PipelineConfig(c config.PipelineConfig, scoring memory.Scoring) cognitive.Config {
	stage := func(s config.StageConfig) cognitive.StageConfig {
		return cognitive.StageConfig{
			Model:       s.Model,
			MaxRetries:  s.MaxRetries,
			Timeout:     s.Timeout.Duration,
			Temperature: s.Temperature,
			MaxTokens:   s.MaxTokens,
		}
	}
	return cognitive.Config{
		MemoryQuery:      stage(c.MemoryQuery),
		CognitiveUpdate:  stage(c.CognitiveUpdate),
		ActionSelection:  stage(c.ActionSelection),
		MaxQueries:       c.MaxQueries,
		MemoriesPerQuery: c.MemoriesPerQuery,
		MaxRetrieved:     c.MaxRetrieved,
		Scoring:          scoring,
	}
}

// Registry owns every mind and runs their cycles.
type Registry struct {
	minds map[string]*Mind
	mu    sync.RWMutex
	opts  Options

	logger *zap.Logger
}

func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Chat == nil && opts.Router != nil {
		opts.Chat = RouterChat(opts.Router)
	}
	if opts.Pipeline.Scoring.Validate() != nil {
		opts.Pipeline.Scoring = memory.DefaultScoring()
	}
	if opts.SeedImportance == 0 {
		opts.SeedImportance = 5
	}
	return &Registry{
		minds:  make(map[string]*Mind),
		opts:   opts,
		logger: opts.Logger,
	}
}

// Create registers a new mind, seeding its working memory and initial
// memories.
func (r *Registry) Create(ctx context.Context, spec Spec) (*Info, error) {
	if spec.ID == "" {
		spec.ID = uuid.New().String()
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}

	r.mu.Lock()
	if _, ok := r.minds[spec.ID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrMindExists, spec.ID)
	}
	// Reserve the id while the index is opened.
	r.minds[spec.ID] = nil
	r.mu.Unlock()

	now := time.Now()
	m, err := r.build(ctx, Snapshot{
		ID:            spec.ID,
		Name:          spec.Name,
		ProviderID:    spec.ProviderID,
		Traits:        spec.Traits,
		WorkingMemory: spec.WorkingMemory,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err == nil && len(spec.InitialMemories) > 0 {
		err = r.seed(ctx, m, spec.InitialMemories)
		if err != nil {
			_ = m.store.Drop(ctx)
		}
	}
	if err != nil {
		r.mu.Lock()
		delete(r.minds, spec.ID)
		r.mu.Unlock()
		return nil, err
	}

	r.mu.Lock()
	r.minds[spec.ID] = m
	r.mu.Unlock()

	if spec.ProviderID != "" && r.opts.Router != nil {
		r.opts.Router.Bind(spec.ID, spec.ProviderID)
	}
	r.persist(ctx, m)

	r.logger.Info("created mind",
		zap.String("mind", spec.ID),
		zap.String("name", spec.Name),
		zap.Int("initial_memories", len(spec.InitialMemories)))
	info := m.info()
	return &info, nil
}

func (r *Registry) build(ctx context.Context, s Snapshot) (*Mind, error) {
	if r.opts.Backend == nil || r.opts.Embedder == nil || r.opts.Chat == nil {
		return nil, errors.New("registry needs a memory backend, an embedder and a model")
	}
	idx, err := r.opts.Backend.Open(ctx, s.ID, r.opts.Embedder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("open memory for %s: %w", s.ID, err)
	}
	logger := r.logger.With(zap.String("mind", s.ID))
	store := memory.NewStore(idx, r.opts.Embedder, r.opts.Pipeline.Scoring, logger)
	pipeline, err := cognitive.Build(r.opts.Chat(s.ID), store, r.opts.Pipeline, logger)
	if err != nil {
		return nil, err
	}

	conversations := s.Conversations
	if conversations == nil {
		conversations = make(map[string][]cognitive.ConversationMessage)
	}
	return &Mind{
		id:            s.ID,
		name:          s.Name,
		providerID:    s.ProviderID,
		traits:        append([]string(nil), s.Traits...),
		createdAt:     s.CreatedAt,
		store:         store,
		pipeline:      pipeline,
		consolidation: cognitive.NewConsolidation(store, logger),
		buffer:        cognitive.NewBuffer(s.Buffer...),
		status:        StatusIdle,
		workingMemory: s.WorkingMemory.Clone(),
		conversations: conversations,
		convMarks:     latestTimestamps(conversations),
		updatedAt:     s.UpdatedAt,
	}, nil
}

func (r *Registry) seed(ctx context.Context, m *Mind, contents []string) error {
	candidates := make([]memory.Candidate, 0, len(contents))
	for _, c := range contents {
		if strings.TrimSpace(c) == "" {
			continue
		}
		candidates = append(candidates, memory.Candidate{Content: c, Importance: r.opts.SeedImportance})
	}
	if _, err := m.store.Add(ctx, candidates); err != nil {
		return fmt.Errorf("seed memories for %s: %w", m.id, err)
	}
	return nil
}

func (r *Registry) get(id string) (*Mind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.minds[id]
	if !ok || m == nil {
		return nil, fmt.Errorf("%w: %s", ErrMindNotFound, id)
	}
	return m, nil
}

// Get returns a mind's public view.
func (r *Registry) Get(id string) (*Info, error) {
	m, err := r.get(id)
	if err != nil {
		return nil, err
	}
	info := m.info()
	return &info, nil
}

// List returns all minds sorted by id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.minds))
	for _, m := range r.minds {
		if m != nil {
			out = append(out, m.info())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// WorkingMemory returns a copy of a mind's working memory.
func (r *Registry) WorkingMemory(id string) (*cognitive.WorkingMemory, error) {
	m, err := r.get(id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	wm := m.workingMemory.Clone()
	m.mu.RUnlock()
	return &wm, nil
}

// Buffer returns the memory candidates awaiting consolidation.
func (r *Registry) Buffer(id string) ([]memory.Candidate, error) {
	m, err := r.get(id)
	if err != nil {
		return nil, err
	}
	return m.buffer.Snapshot(), nil
}

// BufferSize returns how many candidates a mind has buffered.
func (r *Registry) BufferSize(id string) (int, error) {
	m, err := r.get(id)
	if err != nil {
		return 0, err
	}
	return m.buffer.Len(), nil
}

// Decide runs one decision cycle. Cycles for the same mind never overlap;
// each starts from the working memory the previous one left behind.
func (r *Registry) Decide(ctx context.Context, id string, obs cognitive.Observation, actions []cognitive.AvailableAction) (*Decision, error) {
	m, err := r.get(id)
	if err != nil {
		return nil, err
	}

	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()
	if cur, err := r.get(id); err != nil || cur != m {
		return nil, fmt.Errorf("%w: %s", ErrMindNotFound, id)
	}

	m.setStatus(StatusDeciding)
	defer m.setStatus(StatusIdle)

	m.mu.RLock()
	conversations, marks := mergeConversations(m.conversations, m.convMarks, obs.Conversations, r.opts.ConversationLimit)
	state := cognitive.NewState(id, obs, actions, m.traits, m.workingMemory)
	m.mu.RUnlock()
	state.Conversations = copyConversations(conversations)

	start := time.Now()
	if err := m.pipeline.Run(ctx, state); err != nil {
		r.publish(ctx, Event{Type: EventFailure, MindID: id, Data: failureData(err)})
		return nil, err
	}
	if state.Action == nil {
		return nil, fmt.Errorf("mind %s: cycle finished without an action", id)
	}

	m.mu.Lock()
	m.workingMemory = state.WorkingMemory
	m.conversations = conversations
	m.convMarks = marks
	m.updatedAt = time.Now()
	m.mu.Unlock()
	m.buffer.Append(state.NewMemories...)
	r.persist(ctx, m)

	d := &Decision{
		MindID:      id,
		Action:      *state.Action,
		Queries:     state.Queries,
		Retrieved:   state.Retrieved,
		NewMemories: state.NewMemories,
		Timings:     state.TimingsMS(),
		Tokens:      state.Tokens,
	}

	total := 0
	for _, n := range d.Tokens {
		total += n
	}
	r.logger.Info("decision made",
		zap.String("mind", id),
		zap.String("action", d.Action.String()),
		zap.Int("retrieved", len(d.Retrieved)),
		zap.Int("new_memories", len(d.NewMemories)),
		zap.Int("tokens", total),
		zap.Duration("elapsed", time.Since(start)))
	r.publish(ctx, Event{Type: EventDecision, MindID: id, Data: map[string]any{
		"action":       d.Action,
		"new_memories": len(d.NewMemories),
		"tokens":       total,
		"timings_ms":   d.Timings,
	}})
	return d, nil
}

// Consolidate moves a mind's buffered candidates into long-term memory. On
// failure the buffer is left exactly as it was.
func (r *Registry) Consolidate(ctx context.Context, id string) (*ConsolidationReport, error) {
	m, err := r.get(id)
	if err != nil {
		return nil, err
	}

	res, err := m.consolidation.Run(ctx, m.buffer)
	if err != nil {
		r.publish(ctx, Event{Type: EventFailure, MindID: id, Data: failureData(err)})
		return nil, err
	}
	if len(res.Persisted) > 0 {
		r.persist(ctx, m)
	}

	report := &ConsolidationReport{
		MindID:    id,
		Persisted: res.Persisted,
		Remaining: m.buffer.Len(),
		ElapsedMS: res.Elapsed.Milliseconds(),
	}
	r.publish(ctx, Event{Type: EventConsolidation, MindID: id, Data: map[string]any{
		"persisted": len(report.Persisted),
		"remaining": report.Remaining,
	}})
	return report, nil
}

// Remove waits for any running cycle, then deletes the mind, its memory
// namespace and its persisted snapshot.
func (r *Registry) Remove(ctx context.Context, id string) error {
	m, err := r.get(id)
	if err != nil {
		return err
	}
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	r.mu.Lock()
	delete(r.minds, id)
	r.mu.Unlock()

	if r.opts.Router != nil {
		r.opts.Router.Unbind(id)
	}
	if err := m.store.Drop(ctx); err != nil {
		r.logger.Warn("drop memory namespace failed", zap.String("mind", id), zap.Error(err))
	}
	if r.opts.Persister != nil {
		if err := r.opts.Persister.DeleteMind(ctx, id); err != nil {
			return fmt.Errorf("delete mind %s: %w", id, err)
		}
	}
	r.logger.Info("removed mind", zap.String("mind", id))
	return nil
}

// Restore rebuilds minds from persisted snapshots. Minds already registered
// are left alone.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	if r.opts.Persister == nil {
		return 0, nil
	}
	snaps, err := r.opts.Persister.ListMinds(ctx)
	if err != nil {
		return 0, fmt.Errorf("list minds: %w", err)
	}

	restored := 0
	for _, s := range snaps {
		r.mu.RLock()
		_, exists := r.minds[s.ID]
		r.mu.RUnlock()
		if exists {
			continue
		}
		m, err := r.build(ctx, s)
		if err != nil {
			r.logger.Warn("restore mind failed", zap.String("mind", s.ID), zap.Error(err))
			continue
		}
		r.mu.Lock()
		if _, exists := r.minds[s.ID]; exists {
			r.mu.Unlock()
			continue
		}
		r.minds[s.ID] = m
		r.mu.Unlock()
		if s.ProviderID != "" && r.opts.Router != nil {
			r.opts.Router.Bind(s.ID, s.ProviderID)
		}
		restored++
	}
	r.logger.Info("restored minds", zap.Int("count", restored))
	return restored, nil
}

func (r *Registry) persist(ctx context.Context, m *Mind) {
	if r.opts.Persister == nil {
		return
	}
	if err := r.opts.Persister.SaveMind(ctx, m.snapshot()); err != nil {
		r.logger.Warn("persist mind failed", zap.String("mind", m.id), zap.Error(err))
	}
}

func (r *Registry) publish(ctx context.Context, e Event) {
	if r.opts.Publisher == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if err := r.opts.Publisher.Publish(ctx, e); err != nil {
		r.logger.Warn("publish event failed",
			zap.String("mind", e.MindID), zap.String("type", string(e.Type)), zap.Error(err))
	}
}

func failureData(err error) map[string]any {
	data := map[string]any{"error": err.Error()}
	var se *cognitive.StageError
	if errors.As(err, &se) {
		data["stage"] = se.Stage
		data["attempts"] = se.Attempts
		data["tokens"] = se.Tokens
	}
	return data
}

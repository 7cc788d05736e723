package cognitive

import (
	"context"
	"errors"
	"time"

	"github.com/nidhogg/nuka-mind/internal/memory"
	"go.uber.org/zap"
)

// Config tunes the decision cycle.
type Config struct {
	MemoryQuery      StageConfig
	CognitiveUpdate  StageConfig
	ActionSelection  StageConfig
	MaxQueries       int
	MemoriesPerQuery int
	MaxRetrieved     int
	Scoring          memory.Scoring
}

func DefaultConfig() Config {
	return Config{
		MemoryQuery:      StageConfig{MaxRetries: 1, Timeout: 30 * time.Second, Temperature: 0.7},
		CognitiveUpdate:  StageConfig{MaxRetries: 1, Timeout: 60 * time.Second, Temperature: 0.7},
		ActionSelection:  StageConfig{MaxRetries: 2, Timeout: 30 * time.Second, Temperature: 0.4},
		MaxQueries:       5,
		MemoriesPerQuery: 2,
		MaxRetrieved:     5,
		Scoring:          memory.DefaultScoring(),
	}
}

// Pipeline runs its stages in order over one State. Each stage sees the
// previous stage's output, so there is no concurrency within a cycle.
type Pipeline struct {
	stages []Stage
	logger *zap.Logger
}

func NewPipeline(logger *zap.Logger, stages ...Stage) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{stages: stages, logger: logger}
}

// Build assembles the four-stage decision cycle for one mind.
func Build(chat Chatter, store Searcher, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	query, err := NewMemoryQueryStage(chat, cfg.MemoryQuery, cfg.MaxQueries, logger)
	if err != nil {
		return nil, err
	}
	update, err := NewCognitiveUpdateStage(chat, cfg.CognitiveUpdate, cfg.Scoring, logger)
	if err != nil {
		return nil, err
	}
	action, err := NewActionSelectionStage(chat, cfg.ActionSelection, logger)
	if err != nil {
		return nil, err
	}
	retrieval := NewMemoryRetrievalStage(store, cfg.MemoriesPerQuery, cfg.MaxRetrieved, logger)
	return NewPipeline(logger, query, retrieval, update, action), nil
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, st := range p.stages {
		names[i] = st.Name()
	}
	return names
}

// Run executes one decision cycle. A failing stage ends the cycle with a
// *StageError carrying the instrumentation gathered so far.
func (p *Pipeline) Run(ctx context.Context, s *State) error {
	if len(s.AvailableActions) == 0 {
		s.AvailableActions = DeriveActions(s.Observation)
	}

	for _, st := range p.stages {
		if err := Measure(ctx, st, s); err != nil {
			var se *StageError
			if !errors.As(err, &se) {
				se = &StageError{Stage: st.Name(), Attempts: 1, Err: err}
			}
			se.Timings, se.Tokens = s.instrumentation()
			p.logger.Error("stage failed",
				zap.String("mind", s.MindID),
				zap.String("stage", se.Stage),
				zap.Int("attempts", se.Attempts),
				zap.Duration("elapsed", s.Timings[st.Name()]),
				zap.Error(se.Err))
			return se
		}
		p.logger.Debug("stage complete",
			zap.String("mind", s.MindID),
			zap.String("stage", st.Name()),
			zap.Duration("elapsed", s.Timings[st.Name()]),
			zap.Int("tokens", s.Tokens[st.Name()]))
	}
	return nil
}

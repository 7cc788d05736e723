package cognitive

import (
	"context"

	"github.com/nidhogg/nuka-mind/internal/memory"
	"go.uber.org/zap"
)

const StageMemoryRetrieval = "memory_retrieval"

// Searcher is the memory store as retrieval sees it.
type Searcher interface {
	Search(ctx context.Context, query string, k int, now int64) ([]memory.Scored, error)
}

// MemoryRetrievalStage runs each query against the store and merges the
// results. A failing query only reduces what is retrieved.
type MemoryRetrievalStage struct {
	store    Searcher
	perQuery int
	maxTotal int
	logger   *zap.Logger
}

func NewMemoryRetrievalStage(store Searcher, perQuery, maxTotal int, logger *zap.Logger) *MemoryRetrievalStage {
	if perQuery <= 0 {
		perQuery = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryRetrievalStage{store: store, perQuery: perQuery, maxTotal: maxTotal, logger: logger}
}

func (m *MemoryRetrievalStage) Name() string { return StageMemoryRetrieval }

func (m *MemoryRetrievalStage) Process(ctx context.Context, s *State) error {
	lists := make([][]memory.Scored, 0, len(s.Queries))
	for _, q := range s.Queries {
		results, err := m.store.Search(ctx, q, m.perQuery, s.Observation.SimulationTime)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("memory query failed",
				zap.String("mind", s.MindID), zap.String("query", q), zap.Error(err))
			continue
		}
		lists = append(lists, results)
	}

	merged := memory.Merge(lists...)
	if m.maxTotal > 0 && len(merged) > m.maxTotal {
		merged = merged[:m.maxTotal]
	}
	s.Retrieved = merged

	m.logger.Debug("memories retrieved",
		zap.String("mind", s.MindID), zap.Int("queries", len(s.Queries)), zap.Int("retrieved", len(merged)))
	return nil
}

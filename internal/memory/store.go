package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nidhogg/nuka-mind/internal/embedding"
	"go.uber.org/zap"
)

// ErrEmbedding marks failures of the embedding service.
var ErrEmbedding = errors.New("embedding failed")

// Store is one agent's scored long-term memory. Searches run concurrently
// under a read lock; Add is the only writer.
type Store struct {
	index    Index
	embedder embedding.Provider
	scoring  Scoring
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewStore wraps an opened index.
func NewStore(index Index, embedder embedding.Provider, scoring Scoring, logger *zap.Logger) *Store {
	if scoring.Overfetch < 1 {
		scoring.Overfetch = 1
	}
	return &Store{
		index:    index,
		embedder: embedder,
		scoring:  scoring,
		logger:   logger,
	}
}

// Scoring returns the store's scoring constants.
func (s *Store) Scoring() Scoring { return s.scoring }

// Search returns up to k memories for query, ranked by combined score at
// simulation time now. No two results share an ID.
func (s *Store) Search(ctx context.Context, query string, k int, now int64) ([]Scored, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vec, err := embedding.EmbedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %v", ErrEmbedding, query, err)
	}

	s.mu.RLock()
	hits, err := s.index.Query(ctx, vec, k*s.scoring.Overfetch)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]Scored, 0, len(hits))
	for _, h := range hits {
		results = append(results, Scored{
			Memory:    h.Memory,
			Relevance: h.Similarity,
			Score:     s.scoring.Score(h.Similarity, h.Memory, now),
		})
	}
	results = Merge(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Add embeds every candidate, then inserts them in one all-or-nothing write.
// If any embedding fails nothing is written.
func (s *Store) Add(ctx context.Context, candidates []Candidate) ([]Memory, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	memories := make([]Memory, 0, len(candidates))
	for i, c := range candidates {
		vec, err := embedding.EmbedOne(ctx, s.embedder, c.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: candidate %d: %v", ErrEmbedding, i, err)
		}
		memories = append(memories, Memory{
			ID:         NewID(),
			Content:    c.Content,
			Timestamp:  c.FormedAt,
			Location:   c.Location,
			Importance: c.Importance,
			Embedding:  vec,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Insert(ctx, memories); err != nil {
		return nil, fmt.Errorf("insert memories: %w", err)
	}
	s.logger.Debug("memories persisted", zap.Int("count", len(memories)))
	return memories, nil
}

// Count returns the number of persisted memories.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Count(ctx)
}

// Drop deletes the agent's namespace.
func (s *Store) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Drop(ctx)
}

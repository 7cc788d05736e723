package cognitive

import (
	"context"
	"sync"
	"time"

	"github.com/nidhogg/nuka-mind/internal/memory"
	"go.uber.org/zap"
)

const StageConsolidation = "consolidation"

// Buffer holds a mind's memory candidates until they are consolidated.
type Buffer struct {
	mu    sync.Mutex
	items []memory.Candidate

	flush sync.Mutex // one consolidation at a time
}

func NewBuffer(items ...memory.Candidate) *Buffer {
	return &Buffer{items: append([]memory.Candidate(nil), items...)}
}

func (b *Buffer) Append(items ...memory.Candidate) {
	b.mu.Lock()
	b.items = append(b.items, items...)
	b.mu.Unlock()
}

// Snapshot returns a copy of the buffered candidates.
func (b *Buffer) Snapshot() []memory.Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]memory.Candidate(nil), b.items...)
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// drain removes the first n candidates. Anything appended after a snapshot
// of length n was taken stays buffered.
func (b *Buffer) drain(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.items) {
		n = len(b.items)
	}
	b.items = append([]memory.Candidate(nil), b.items[n:]...)
}

// Adder persists candidates all-or-nothing.
type Adder interface {
	Add(ctx context.Context, candidates []memory.Candidate) ([]memory.Memory, error)
}

// ConsolidationResult reports one consolidation run.
type ConsolidationResult struct {
	Persisted []memory.Memory
	Elapsed   time.Duration
}

// Consolidation moves buffered candidates into the memory store. The buffer
// is drained only after every candidate has been written.
type Consolidation struct {
	store  Adder
	logger *zap.Logger
}

func NewConsolidation(store Adder, logger *zap.Logger) *Consolidation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consolidation{store: store, logger: logger}
}

func (c *Consolidation) Run(ctx context.Context, buf *Buffer) (*ConsolidationResult, error) {
	buf.flush.Lock()
	defer buf.flush.Unlock()

	start := time.Now()
	pending := buf.Snapshot()
	if len(pending) == 0 {
		return &ConsolidationResult{Elapsed: time.Since(start)}, nil
	}

	persisted, err := c.store.Add(ctx, pending)
	if err != nil {
		c.logger.Error("consolidation failed, buffer kept",
			zap.Int("pending", len(pending)), zap.Error(err))
		return nil, &StageError{Stage: StageConsolidation, Attempts: 1, Err: err}
	}
	buf.drain(len(pending))

	res := &ConsolidationResult{Persisted: persisted, Elapsed: time.Since(start)}
	c.logger.Info("memories consolidated",
		zap.Int("count", len(persisted)), zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

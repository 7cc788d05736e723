package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically consolidates minds whose buffers have grown past a
// threshold.
type Sweeper struct {
	target    Consolidator
	interval  time.Duration
	threshold int
	timeout   time.Duration
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	logger    *zap.Logger
}

// NewSweeper creates a sweeper. A threshold below 1 is treated as 1.
func NewSweeper(target Consolidator, interval time.Duration, threshold int, logger *zap.Logger) *Sweeper {
	if threshold < 1 {
		threshold = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		target:    target,
		interval:  interval,
		threshold: threshold,
		timeout:   2 * time.Minute,
		logger:    logger,
	}
}

// Start runs the sweep loop in the background. It is a no-op when the
// interval is not positive or the loop is already running.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.interval <= 0 || s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}(s.done)

	s.logger.Info("consolidation sweeper started",
		zap.Duration("interval", s.interval),
		zap.Int("threshold", s.threshold))
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sweep consolidates every mind at or above the threshold and returns how
// many memories were persisted.
func (s *Sweeper) Sweep(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	persisted := 0
	for _, info := range s.target.List() {
		if info.Buffered < s.threshold {
			continue
		}
		report, err := s.target.Consolidate(ctx, info.ID)
		if err != nil {
			s.logger.Warn("sweep consolidation failed",
				zap.String("mind", info.ID),
				zap.Error(err))
			continue
		}
		persisted += len(report.Persisted)
		s.logger.Debug("sweep consolidated mind",
			zap.String("mind", info.ID),
			zap.Int("persisted", len(report.Persisted)))
	}
	return persisted
}

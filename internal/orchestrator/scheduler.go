package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scheduler runs decision requests for many minds in parallel. Requests for
// the same mind still run one at a time because the registry serializes
// cycles per mind.
type Scheduler struct {
	decider Decider
	mu      sync.RWMutex
	running map[*Request]struct{}
	pool    chan struct{} // semaphore-based pool
	logger  *zap.Logger
}

// NewScheduler creates a scheduler with a bounded goroutine pool.
func NewScheduler(decider Decider, poolSize int, logger *zap.Logger) *Scheduler {
	if poolSize <= 0 {
		poolSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		decider: decider,
		running: make(map[*Request]struct{}),
		pool:    make(chan struct{}, poolSize),
		logger:  logger,
	}
}

// Dispatch executes requests in parallel, returning results via channel.
// The channel is closed once every request has finished.
func (s *Scheduler) Dispatch(ctx context.Context, reqs []Request) <-chan *Result {
	results := make(chan *Result, len(reqs))
	go func() {
		s.run(ctx, reqs, func(_ int, r *Result) { results <- r })
		close(results)
	}()
	return results
}

// DecideAll dispatches requests and returns the results in request order.
// Results are matched by position, so request IDs need not be unique.
func (s *Scheduler) DecideAll(ctx context.Context, reqs []Request) []*Result {
	out := make([]*Result, len(reqs))
	s.run(ctx, reqs, func(i int, r *Result) { out[i] = r })
	return out
}

// run executes every request on the pool and reports each result with the
// request's index. It returns when all requests have finished.
func (s *Scheduler) run(ctx context.Context, reqs []Request, report func(int, *Result)) {
	var wg sync.WaitGroup
	for i := range reqs {
		req := reqs[i]
		if req.ID == "" {
			req.ID = uuid.New().String()
		}

		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			select {
			case s.pool <- struct{}{}: // acquire slot
			case <-ctx.Done():
				report(i, failed(req, ctx.Err(), 0))
				return
			}
			defer func() { <-s.pool }() // release slot

			report(i, s.execute(ctx, &req))
		}(i, req)
	}
	wg.Wait()
}

func (s *Scheduler) execute(ctx context.Context, req *Request) *Result {
	start := time.Now()

	s.mu.Lock()
	s.running[req] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, req)
		s.mu.Unlock()
	}()

	s.logger.Debug("executing decision request",
		zap.String("request", req.ID),
		zap.String("mind", req.MindID))

	d, err := s.decider.Decide(ctx, req.MindID, req.Observation, req.AvailableActions)
	if err != nil {
		s.logger.Warn("decision request failed",
			zap.String("request", req.ID),
			zap.String("mind", req.MindID),
			zap.Error(err))
		return failed(*req, err, time.Since(start))
	}

	return &Result{
		RequestID: req.ID,
		MindID:    req.MindID,
		Status:    RequestDone,
		Decision:  d,
		Duration:  time.Since(start),
	}
}

func failed(req Request, err error, elapsed time.Duration) *Result {
	return &Result{
		RequestID: req.ID,
		MindID:    req.MindID,
		Status:    RequestFailed,
		Error:     err.Error(),
		Err:       err,
		Duration:  elapsed,
	}
}

// Running returns the mind IDs with a request currently executing.
func (s *Scheduler) Running() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.running))
	for r := range s.running {
		ids = append(ids, r.MindID)
	}
	sort.Strings(ids)
	return ids
}

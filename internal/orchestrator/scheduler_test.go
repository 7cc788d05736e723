package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nidhogg/nuka-mind/internal/cognitive"
	"github.com/nidhogg/nuka-mind/internal/mind"
	"go.uber.org/zap"
)

type fakeDecider struct {
	delay  time.Duration
	fail   map[string]error
	active int32
	peak   int32
	mu     sync.Mutex
	calls  []string
}

func (f *fakeDecider) Decide(ctx context.Context, id string, obs cognitive.Observation, actions []cognitive.AvailableAction) (*mind.Decision, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := f.fail[id]; err != nil {
		return nil, err
	}
	return &mind.Decision{MindID: id, Action: cognitive.Action{Name: cognitive.ActionWait}}, nil
}

func TestScheduler_DecideAllKeepsOrder(t *testing.T) {
	d := &fakeDecider{delay: 10 * time.Millisecond, fail: map[string]error{"b": errors.New("boom")}}
	s := NewScheduler(d, 2, zap.NewNop())

	results := s.DecideAll(context.Background(), []Request{
		{MindID: "a"}, {MindID: "b"}, {MindID: "c"},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"a", "b", "c"} {
		if results[i] == nil || results[i].MindID != want {
			t.Fatalf("result %d: expected mind %s, got %+v", i, want, results[i])
		}
		if results[i].RequestID == "" {
			t.Errorf("result %d has no request id", i)
		}
	}
	if results[0].Status != RequestDone || results[0].Decision == nil {
		t.Errorf("expected a done, got %+v", results[0])
	}
	if results[1].Status != RequestFailed || results[1].Error != "boom" || results[1].Err == nil {
		t.Errorf("expected b failed, got %+v", results[1])
	}
	if results[2].Decision.Action.Name != cognitive.ActionWait {
		t.Errorf("unexpected action for c: %+v", results[2].Decision)
	}
}

func TestScheduler_PoolBoundsConcurrency(t *testing.T) {
	d := &fakeDecider{delay: 20 * time.Millisecond}
	s := NewScheduler(d, 2, zap.NewNop())

	reqs := make([]Request, 6)
	for i := range reqs {
		reqs[i] = Request{MindID: string(rune('a' + i))}
	}
	count := 0
	for r := range s.Dispatch(context.Background(), reqs) {
		if r.Status != RequestDone {
			t.Errorf("unexpected failure: %+v", r)
		}
		count++
	}
	if count != 6 {
		t.Fatalf("expected 6 results, got %d", count)
	}
	if peak := atomic.LoadInt32(&d.peak); peak > 2 {
		t.Errorf("pool of 2 allowed %d concurrent cycles", peak)
	}
	if len(s.Running()) != 0 {
		t.Errorf("expected nothing running, got %v", s.Running())
	}
}

func TestScheduler_CancelledContext(t *testing.T) {
	d := &fakeDecider{delay: time.Second}
	s := NewScheduler(d, 1, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results := s.DecideAll(ctx, []Request{{MindID: "a"}, {MindID: "b"}})
	for _, r := range results {
		if r.Status != RequestFailed {
			t.Errorf("expected failure after cancel, got %+v", r)
		}
		if !errors.Is(r.Err, context.DeadlineExceeded) {
			t.Errorf("expected deadline error, got %v", r.Err)
		}
	}
}

func TestScheduler_KeepsCallerIDs(t *testing.T) {
	s := NewScheduler(&fakeDecider{}, 0, nil)
	results := s.DecideAll(context.Background(), []Request{{ID: "req-1", MindID: "a"}})
	if results[0].RequestID != "req-1" {
		t.Errorf("expected caller id to be kept, got %q", results[0].RequestID)
	}
}

func TestScheduler_DuplicateIDsKeepEveryResult(t *testing.T) {
	d := &fakeDecider{delay: 5 * time.Millisecond}
	s := NewScheduler(d, 2, zap.NewNop())

	results := s.DecideAll(context.Background(), []Request{
		{ID: "r", MindID: "a"}, {ID: "r", MindID: "b"},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for i, want := range []string{"a", "b"} {
		if results[i] == nil || results[i].MindID != want || results[i].Decision.MindID != want {
			t.Errorf("result %d: expected mind %s, got %+v", i, want, results[i])
		}
		if results[i].RequestID != "r" {
			t.Errorf("result %d: expected request id r, got %q", i, results[i].RequestID)
		}
	}
}

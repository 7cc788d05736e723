package cognitive

import (
	"context"
	"fmt"
	"time"
)

// Stage is one named unit of work over a cycle's State.
type Stage interface {
	Name() string
	Process(ctx context.Context, s *State) error
}

// Measure runs stage and records its elapsed time in s, whether the stage
// succeeds, fails or panics.
func Measure(ctx context.Context, stage Stage, s *State) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name(), r)
		}
		s.recordTiming(stage.Name(), time.Since(start))
	}()
	return stage.Process(ctx, s)
}

type stageFunc struct {
	name string
	fn   func(ctx context.Context, s *State) error
}

func (f stageFunc) Name() string                                { return f.name }
func (f stageFunc) Process(ctx context.Context, s *State) error { return f.fn(ctx, s) }

// StageFunc adapts a function to a Stage.
func StageFunc(name string, fn func(ctx context.Context, s *State) error) Stage {
	return stageFunc{name: name, fn: fn}
}

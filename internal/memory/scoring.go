package memory

import (
	"fmt"
	"math"
)

// Scoring holds the constants of the combined retrieval score
//
//	score = max(0, relevance) * importanceWeight(importance) * recencyWeight(age)
//
// Relevance is cosine similarity. Negative similarities clamp to zero so a
// decaying recency weight can never lift an older memory above a newer one.
type Scoring struct {
	MinImportance   float64 `json:"min_importance"`
	MaxImportance   float64 `json:"max_importance"`
	ImportanceFloor float64 `json:"importance_floor"` // weight at MinImportance
	HalfLifeTicks   float64 `json:"half_life_ticks"`
	Overfetch       int     `json:"overfetch"`
}

// DefaultScoring returns the defaults: importance 1..10, half weight at the
// bottom of the range, recency halving every simulated day.
func DefaultScoring() Scoring {
	return Scoring{
		MinImportance:   1,
		MaxImportance:   10,
		ImportanceFloor: 0.5,
		HalfLifeTicks:   1440,
		Overfetch:       3,
	}
}

// Validate checks that the constants describe a usable scoring function.
func (s Scoring) Validate() error {
	if s.MaxImportance <= s.MinImportance {
		return fmt.Errorf("scoring: importance range [%v, %v] is empty", s.MinImportance, s.MaxImportance)
	}
	if s.ImportanceFloor < 0 || s.ImportanceFloor > 1 {
		return fmt.Errorf("scoring: importance floor %v outside [0,1]", s.ImportanceFloor)
	}
	if s.HalfLifeTicks <= 0 {
		return fmt.Errorf("scoring: half life must be positive")
	}
	return nil
}

// InRange reports whether importance lies within the configured range.
func (s Scoring) InRange(importance float64) bool {
	return importance >= s.MinImportance && importance <= s.MaxImportance
}

// ImportanceWeight maps importance linearly onto [ImportanceFloor, 1].
func (s Scoring) ImportanceWeight(importance float64) float64 {
	span := s.MaxImportance - s.MinImportance
	if span <= 0 {
		return 1
	}
	norm := (importance - s.MinImportance) / span
	norm = math.Max(0, math.Min(1, norm))
	return s.ImportanceFloor + (1-s.ImportanceFloor)*norm
}

// RecencyWeight is 2^(-age/halfLife); memories from the future count as new.
func (s Scoring) RecencyWeight(age int64) float64 {
	if age <= 0 || s.HalfLifeTicks <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/s.HalfLifeTicks)
}

// Score combines relevance, importance and recency for a memory seen at now.
func (s Scoring) Score(relevance float64, m Memory, now int64) float64 {
	if relevance < 0 {
		relevance = 0
	}
	return relevance * s.ImportanceWeight(m.Importance) * s.RecencyWeight(now-m.Timestamp)
}

package cognitive

import (
	"fmt"
	"strings"
)

// WorkingMemory is a mind's situational summary, carried across cycles and
// replaced wholesale by each cognitive update. Extra holds fields the model
// adds beyond the known ones.
type WorkingMemory struct {
	SituationAssessment string         `json:"situation_assessment" yaml:"situation_assessment"`
	ActiveGoals         []string       `json:"active_goals" yaml:"active_goals"`
	RecentEvents        []string       `json:"recent_events" yaml:"recent_events"`
	PlannedSteps        []string       `json:"planned_next_steps" yaml:"planned_next_steps"`
	EmotionalState      string         `json:"emotional_state" yaml:"emotional_state"`
	Extra               map[string]any `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Clone returns a deep copy of the well-known fields and a shallow copy of Extra.
func (w WorkingMemory) Clone() WorkingMemory {
	out := w
	out.ActiveGoals = append([]string(nil), w.ActiveGoals...)
	out.RecentEvents = append([]string(nil), w.RecentEvents...)
	out.PlannedSteps = append([]string(nil), w.PlannedSteps...)
	if w.Extra != nil {
		out.Extra = make(map[string]any, len(w.Extra))
		for k, v := range w.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func (w WorkingMemory) String() string {
	var b strings.Builder
	field := func(name, value string) {
		if value == "" {
			value = "(none)"
		}
		fmt.Fprintf(&b, "%s: %s\n", name, value)
	}
	list := func(name string, items []string) {
		if len(items) == 0 {
			fmt.Fprintf(&b, "%s: (none)\n", name)
			return
		}
		fmt.Fprintf(&b, "%s:\n", name)
		for _, it := range items {
			fmt.Fprintf(&b, "  - %s\n", it)
		}
	}

	field("Situation", w.SituationAssessment)
	list("Active goals", w.ActiveGoals)
	list("Recent events", w.RecentEvents)
	list("Planned next steps", w.PlannedSteps)
	field("Emotional state", w.EmotionalState)
	for _, k := range sortedKeys(w.Extra) {
		fmt.Fprintf(&b, "%s: %v\n", k, w.Extra[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

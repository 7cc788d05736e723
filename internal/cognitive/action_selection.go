package cognitive

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/nidhogg/nuka-mind/internal/prompt"
	"go.uber.org/zap"
)

const StageActionSelection = "action_selection"

var actionSelectionPrompt = prompt.MustLoad("action_selection",
	"personality_traits", "working_memory", "recent_events", "observation", "available_actions")

// ActionSelectionStage chooses the cycle's action. Choices that are not
// possible in the current observation are rejected and retried.
type ActionSelectionStage struct {
	llm *LLMStage[Action]
}

func NewActionSelectionStage(chat Chatter, cfg StageConfig, logger *zap.Logger) (*ActionSelectionStage, error) {
	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("%w: %s needs at least one retry", ErrConfig, StageActionSelection)
	}
	vars := func(s *State) map[string]string {
		return map[string]string{
			"personality_traits": formatTraits(s.Traits),
			"working_memory":     s.WorkingMemory.String(),
			"recent_events":      formatRecentEvents(s),
			"observation":        s.Observation.String(),
			"available_actions":  formatActions(s.AvailableActions),
		}
	}
	llm, err := NewLLMStage[Action](StageActionSelection, chat, actionSelectionPrompt, vars, ValidateAction, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &ActionSelectionStage{llm: llm}, nil
}

func (a *ActionSelectionStage) Name() string { return StageActionSelection }

func (a *ActionSelectionStage) Process(ctx context.Context, s *State) error {
	out, err := a.llm.Run(ctx, s)
	if err != nil {
		return err
	}
	s.Action = out
	return nil
}

func formatActions(actions []AvailableAction) string {
	if len(actions) == 0 {
		return "No actions available."
	}
	lines := make([]string, len(actions))
	for i, a := range actions {
		lines[i] = "- " + a.String()
	}
	return strings.Join(lines, "\n")
}

// ValidateAction checks that a is one of the available actions, carries its
// required parameters and is possible in the observed situation.
func ValidateAction(a *Action, snap Snapshot) []Violation {
	if a.Name == "" {
		return []Violation{{Field: "action", Message: "action name is required"}}
	}

	var offered []AvailableAction
	names := map[string]bool{}
	for _, av := range snap.AvailableActions {
		names[av.Name] = true
		if av.Name == a.Name {
			offered = append(offered, av)
		}
	}
	if len(offered) == 0 {
		return []Violation{{
			Field:   "action",
			Message: fmt.Sprintf("unknown action %q; available: %s", a.Name, strings.Join(sortedKeys(names), ", ")),
		}}
	}

	// Any offering of the same name may satisfy the required parameters;
	// interact_with, for instance, is offered once per entity interaction.
	var vs []Violation
	for _, p := range offered[0].Required() {
		if _, ok := a.Parameters[p]; !ok {
			vs = append(vs, Violation{Field: "parameters." + p, Message: "required parameter is missing"})
		}
	}
	if len(vs) > 0 {
		return vs
	}

	obs := snap.Observation
	switch a.Name {
	case ActionMoveTo:
		if _, ok := gridPair(a.Parameters["destination"]); !ok {
			vs = append(vs, Violation{Field: "parameters.destination", Message: "destination must be an [x, y] pair of integers"})
		}
		vs = append(vs, movementViolations(obs)...)

	case ActionMoveDirection, ActionWander:
		vs = append(vs, movementViolations(obs)...)

	case ActionInteractWith:
		vs = append(vs, interactViolations(a, obs)...)

	case ActionRespondToInteractionBid:
		vs = append(vs, bidViolations(a, obs)...)

	case ActionActInInteraction:
		cur := obs.CurrentInteraction()
		if cur == nil {
			vs = append(vs, Violation{Field: "action", Message: "not currently in an interaction"})
		} else if cur.IsConversation() {
			if msg, _ := a.Parameters["message"].(string); strings.TrimSpace(msg) == "" {
				vs = append(vs, Violation{Field: "parameters.message", Message: "a message is required in a conversation"})
			}
		}

	case ActionCancelInteraction:
		if obs.CurrentInteraction() == nil {
			vs = append(vs, Violation{Field: "action", Message: "not currently in an interaction"})
		}
	}
	return vs
}

func movementViolations(obs Observation) []Violation {
	if obs.MovementLocked() {
		return []Violation{{Field: "action", Message: "movement is locked"}}
	}
	return nil
}

func interactViolations(a *Action, obs Observation) []Violation {
	id, _ := a.Parameters["entity_id"].(string)
	entity, ok := obs.Entity(id)
	if !ok {
		return []Violation{{
			Field:   "parameters.entity_id",
			Message: fmt.Sprintf("entity %q is not visible; visible entities: %s", id, joinOrNone(obs.VisibleIDs())),
		}}
	}
	name, _ := a.Parameters["interaction_name"].(string)
	if _, ok := entity.Interactions[name]; !ok {
		return []Violation{{
			Field: "parameters.interaction_name",
			Message: fmt.Sprintf("%s does not offer %q; available interactions: %s",
				id, name, joinOrNone(sortedKeys(entity.Interactions))),
		}}
	}
	return nil
}

func bidViolations(a *Action, obs Observation) []Violation {
	var vs []Violation
	id, _ := a.Parameters["bid_id"].(string)
	if _, ok := obs.Bid(id); !ok {
		pending := make([]string, 0, len(obs.PendingBids))
		for _, b := range obs.PendingBids {
			pending = append(pending, b.BidID)
		}
		vs = append(vs, Violation{
			Field:   "parameters.bid_id",
			Message: fmt.Sprintf("bid %q is not pending; pending bids: %s", id, joinOrNone(pending)),
		})
	}
	accept, ok := a.Parameters["accept"].(bool)
	if !ok {
		return append(vs, Violation{Field: "parameters.accept", Message: "accept must be true or false"})
	}
	if !accept {
		if reason, _ := a.Parameters["reason"].(string); strings.TrimSpace(reason) == "" {
			vs = append(vs, Violation{Field: "parameters.reason", Message: "a reason is required when rejecting"})
		}
	}
	return vs
}

// gridPair accepts a decoded JSON [x, y] array of integral numbers.
func gridPair(v any) (Position, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return Position{}, false
	}
	var p Position
	for i, e := range arr {
		f, ok := e.(float64)
		if !ok || f != math.Trunc(f) {
			return Position{}, false
		}
		p[i] = int(f)
	}
	return p, true
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

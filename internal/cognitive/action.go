package cognitive

import (
	"fmt"
	"strings"
)

// Action names understood by the simulation.
const (
	ActionMoveTo                  = "move_to"
	ActionMoveDirection           = "move_direction"
	ActionInteractWith            = "interact_with"
	ActionWander                  = "wander"
	ActionWait                    = "wait"
	ActionContinue                = "continue"
	ActionCancelInteraction       = "cancel_interaction"
	ActionActInInteraction        = "act_in_interaction"
	ActionRespondToInteractionBid = "respond_to_interaction_bid"
)

// Action is the decision a cycle produces.
type Action struct {
	Name       string         `json:"action"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (a Action) String() string {
	if len(a.Parameters) == 0 {
		return a.Name + "(no parameters)"
	}
	params := make([]string, 0, len(a.Parameters))
	for _, k := range sortedKeys(a.Parameters) {
		params = append(params, fmt.Sprintf("%s=%v", k, a.Parameters[k]))
	}
	return a.Name + "(" + strings.Join(params, ", ") + ")"
}

// AvailableAction describes an action the mind may choose, with its
// parameters mapped to descriptions.
type AvailableAction struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

func (a AvailableAction) String() string {
	if len(a.Parameters) == 0 {
		return a.Name + ": " + a.Description
	}
	params := make([]string, 0, len(a.Parameters))
	for _, k := range sortedKeys(a.Parameters) {
		params = append(params, k+": "+a.Parameters[k])
	}
	return fmt.Sprintf("%s: %s (params: %s)", a.Name, a.Description, strings.Join(params, ", "))
}

// Required lists parameters whose description does not mark them optional.
func (a AvailableAction) Required() []string {
	var out []string
	for _, k := range sortedKeys(a.Parameters) {
		if !strings.HasPrefix(strings.TrimSpace(a.Parameters[k]), "Optional") {
			out = append(out, k)
		}
	}
	return out
}

// DeriveActions builds the action menu implied by an observation.
func DeriveActions(obs Observation) []AvailableAction {
	var actions []AvailableAction

	for _, b := range obs.PendingBids {
		actions = append(actions, AvailableAction{
			Name:        ActionRespondToInteractionBid,
			Description: fmt.Sprintf("Respond to %s bid %s from %s", b.InteractionName, b.BidID, b.BidderName),
			Parameters: map[string]string{
				"bid_id": b.BidID,
				"accept": "Boolean - true to accept the bid, false to reject it",
				"reason": "Optional string - reason for the answer (required when rejecting)",
			},
		})
	}

	if !obs.MovementLocked() {
		actions = append(actions,
			AvailableAction{
				Name:        ActionMoveTo,
				Description: "Move to a specific grid position",
				Parameters:  map[string]string{"destination": "Grid coordinates as [x, y]"},
			},
			AvailableAction{Name: ActionWander, Description: "Wander around aimlessly"},
			AvailableAction{Name: ActionWait, Description: "Wait and observe surroundings"},
		)
	}
	actions = append(actions, AvailableAction{Name: ActionContinue, Description: "Continue what you are currently doing"})

	if cur := obs.CurrentInteraction(); cur != nil {
		params := map[string]string{}
		if cur.IsConversation() {
			params["message"] = "The message to send in the conversation"
		}
		actions = append(actions,
			AvailableAction{
				Name:        ActionActInInteraction,
				Description: "Participate in the current " + cur.InteractionName,
				Parameters:  params,
			},
			AvailableAction{Name: ActionCancelInteraction, Description: "Cancel the current interaction"},
		)
	}

	if obs.Vision != nil {
		for _, e := range obs.Vision.VisibleEntities {
			for _, name := range sortedKeys(e.Interactions) {
				in := e.Interactions[name]
				desc := in.Description
				if desc == "" {
					desc = "Interact with " + e.DisplayName
				}
				if fx := in.effects("; "); fx != "" {
					desc += " (" + fx + ")"
				}
				actions = append(actions, AvailableAction{
					Name:        ActionInteractWith,
					Description: e.DisplayName + ": " + desc,
					Parameters: map[string]string{
						"entity_id":        "Target entity ID (use: " + e.EntityID + ")",
						"interaction_name": "Interaction type (use: " + name + ")",
					},
				})
			}
		}
	}

	return actions
}

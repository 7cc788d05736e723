package cognitive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nidhogg/nuka-mind/internal/memory"
)

// Position is a grid coordinate encoded as a JSON [x, y] pair.
type Position [2]int

func (p Position) String() string { return fmt.Sprintf("(%d, %d)", p[0], p[1]) }

// Location converts p for memory records.
func (p Position) Location() *memory.Location {
	return &memory.Location{X: p[0], Y: p[1]}
}

// Observation is what a mind perceives at one point in simulation time.
type Observation struct {
	EntityID       string             `json:"entity_id"`
	SimulationTime int64              `json:"current_simulation_time"`
	Status         *Status            `json:"status,omitempty"`
	Needs          map[string]float64 `json:"needs,omitempty"`
	Vision         *Vision            `json:"vision,omitempty"`
	Conversations  []Conversation     `json:"conversations,omitempty"`
	PendingBids    []InteractionBid   `json:"pending_bids,omitempty"`
}

type Status struct {
	Position           Position        `json:"position"`
	MovementLocked     bool            `json:"movement_locked"`
	CurrentInteraction *InteractionRef `json:"current_interaction,omitempty"`
	ControllerState    map[string]any  `json:"controller_state,omitempty"`
}

// InteractionRef identifies the interaction a mind is currently part of.
type InteractionRef struct {
	InteractionID   string `json:"interaction_id"`
	InteractionName string `json:"interaction_name"`
}

// IsConversation reports whether the interaction carries messages.
func (r *InteractionRef) IsConversation() bool {
	return r != nil && r.InteractionName == InteractionConversation
}

const InteractionConversation = "conversation"

type Vision struct {
	VisibleEntities []Entity `json:"visible_entities"`
}

type Entity struct {
	EntityID     string                 `json:"entity_id"`
	DisplayName  string                 `json:"display_name"`
	Position     Position               `json:"position"`
	Interactions map[string]Interaction `json:"interactions,omitempty"`
}

type Interaction struct {
	Description  string   `json:"description,omitempty"`
	NeedsFilled  []string `json:"needs_filled,omitempty"`
	NeedsDrained []string `json:"needs_drained,omitempty"`
}

func (i Interaction) effects(sep string) string {
	var parts []string
	if len(i.NeedsFilled) > 0 {
		parts = append(parts, "fills: "+strings.Join(i.NeedsFilled, ", "))
	}
	if len(i.NeedsDrained) > 0 {
		parts = append(parts, "drains: "+strings.Join(i.NeedsDrained, ", "))
	}
	return strings.Join(parts, sep)
}

type Conversation struct {
	InteractionID   string                `json:"interaction_id"`
	InteractionName string                `json:"interaction_name"`
	Participants    []string              `json:"participants,omitempty"`
	History         []ConversationMessage `json:"conversation_history"`
}

type ConversationMessage struct {
	SpeakerID   string `json:"speaker_id"`
	SpeakerName string `json:"speaker_name"`
	Message     string `json:"message"`
	Timestamp   *int64 `json:"timestamp,omitempty"`
}

// InteractionBid is another entity's pending request to start an interaction.
type InteractionBid struct {
	BidID           string `json:"bid_id"`
	BidderID        string `json:"bidder_id"`
	BidderName      string `json:"bidder_name"`
	InteractionName string `json:"interaction_name"`
}

// Entity returns the visible entity with the given id.
func (o *Observation) Entity(id string) (Entity, bool) {
	if o.Vision == nil {
		return Entity{}, false
	}
	for _, e := range o.Vision.VisibleEntities {
		if e.EntityID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// Bid returns the pending bid with the given id.
func (o *Observation) Bid(id string) (InteractionBid, bool) {
	for _, b := range o.PendingBids {
		if b.BidID == id {
			return b, true
		}
	}
	return InteractionBid{}, false
}

func (o *Observation) MovementLocked() bool {
	return o.Status != nil && o.Status.MovementLocked
}

func (o *Observation) CurrentInteraction() *InteractionRef {
	if o.Status == nil {
		return nil
	}
	return o.Status.CurrentInteraction
}

// Location is the observer's position, or nil when unknown.
func (o *Observation) Location() *memory.Location {
	if o.Status == nil {
		return nil
	}
	return o.Status.Position.Location()
}

func (o *Observation) VisibleIDs() []string {
	if o.Vision == nil {
		return nil
	}
	ids := make([]string, 0, len(o.Vision.VisibleEntities))
	for _, e := range o.Vision.VisibleEntities {
		ids = append(ids, e.EntityID)
	}
	return ids
}

func needLabel(v float64) string {
	switch {
	case v >= 70:
		return "satisfied"
	case v >= 30:
		return "declining"
	default:
		return "critical"
	}
}

// String renders the observation as prompt text.
func (o Observation) String() string {
	var parts []string

	if s := o.Status; s != nil {
		parts = append(parts, "Position: "+s.Position.String())
		parts = append(parts, fmt.Sprintf("Movement locked: %t", s.MovementLocked))
		if s.CurrentInteraction != nil {
			parts = append(parts, fmt.Sprintf("Current interaction: %s (ID: %s)",
				s.CurrentInteraction.InteractionName, s.CurrentInteraction.InteractionID))
		}
		if name, ok := s.ControllerState["state_name"].(string); ok && name != "" {
			parts = append(parts, "Controller state: "+name)
		}
	}

	if len(o.Needs) > 0 {
		names := sortedKeys(o.Needs)
		needs := make([]string, 0, len(names))
		for _, k := range names {
			v := o.Needs[k]
			needs = append(needs, fmt.Sprintf("%s: %.0f%% (%s)", k, v, needLabel(v)))
		}
		parts = append(parts, "Needs: "+strings.Join(needs, ", "))
	}

	if o.Vision != nil && len(o.Vision.VisibleEntities) > 0 {
		var b strings.Builder
		b.WriteString("Visible entities:")
		for _, e := range o.Vision.VisibleEntities {
			fmt.Fprintf(&b, "\n  - %s (ID: %s, Position: %s)", e.DisplayName, e.EntityID, e.Position)
			if len(e.Interactions) == 0 {
				continue
			}
			var lines []string
			for _, name := range sortedKeys(e.Interactions) {
				in := e.Interactions[name]
				desc := in.Description
				if desc == "" {
					desc = name
				}
				line := name + ": " + desc
				if fx := in.effects("; "); fx != "" {
					line += " [" + fx + "]"
				}
				lines = append(lines, line)
			}
			b.WriteString("\n    Interactions: " + strings.Join(lines, "; "))
		}
		parts = append(parts, b.String())
	}

	for _, c := range o.Conversations {
		if len(c.History) == 0 {
			continue
		}
		lines := make([]string, 0, len(c.History))
		for _, m := range c.History {
			if m.SpeakerID == o.EntityID {
				lines = append(lines, fmt.Sprintf("[YOU] %s: %s", m.SpeakerName, m.Message))
			} else {
				lines = append(lines, fmt.Sprintf("%s: %s", m.SpeakerName, m.Message))
			}
		}
		parts = append(parts, "Conversation:\n"+strings.Join(lines, "\n"))
	}

	if len(o.PendingBids) > 0 {
		lines := make([]string, 0, len(o.PendingBids))
		for _, b := range o.PendingBids {
			lines = append(lines, fmt.Sprintf("  - %s wants to start %s (bid: %s)", b.BidderName, b.InteractionName, b.BidID))
		}
		parts = append(parts, "Pending interaction bids:\n"+strings.Join(lines, "\n"))
	}

	if len(parts) == 0 {
		return "No observations"
	}
	return strings.Join(parts, "\n\n")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

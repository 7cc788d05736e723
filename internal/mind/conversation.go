package mind

import (
	"github.com/nidhogg/nuka-mind/internal/cognitive"
)

// mergeConversations folds the conversations seen in one observation into the
// running history and returns the new history with its per-interaction
// high-water timestamps. A timestamped message at or below the interaction's
// high-water mark has been recorded before, even if the limit trimmed it away
// since. Messages without a timestamp are always appended. Only the latest
// limit messages per interaction are kept.
func mergeConversations(history map[string][]cognitive.ConversationMessage, latest map[string]int64, seen []cognitive.Conversation, limit int) (map[string][]cognitive.ConversationMessage, map[string]int64) {
	out := copyConversations(history)
	marks := make(map[string]int64, len(latest))
	for k, v := range latest {
		marks[k] = v
	}

	for _, c := range seen {
		mark, hasMark := marks[c.InteractionID]
		for _, m := range c.History {
			if m.Timestamp != nil {
				if hasMark && *m.Timestamp <= mark {
					continue
				}
				mark, hasMark = *m.Timestamp, true
			}
			out[c.InteractionID] = append(out[c.InteractionID], m)
		}
		if hasMark {
			marks[c.InteractionID] = mark
		}
		if limit > 0 && len(out[c.InteractionID]) > limit {
			msgs := out[c.InteractionID]
			out[c.InteractionID] = append([]cognitive.ConversationMessage(nil), msgs[len(msgs)-limit:]...)
		}
	}
	return out, marks
}

// latestTimestamps rebuilds high-water marks from a stored history.
func latestTimestamps(history map[string][]cognitive.ConversationMessage) map[string]int64 {
	marks := make(map[string]int64, len(history))
	for id, msgs := range history {
		for _, m := range msgs {
			if m.Timestamp == nil {
				continue
			}
			if cur, ok := marks[id]; !ok || *m.Timestamp > cur {
				marks[id] = *m.Timestamp
			}
		}
	}
	return marks
}

func copyConversations(in map[string][]cognitive.ConversationMessage) map[string][]cognitive.ConversationMessage {
	out := make(map[string][]cognitive.ConversationMessage, len(in))
	for k, v := range in {
		out[k] = append([]cognitive.ConversationMessage(nil), v...)
	}
	return out
}

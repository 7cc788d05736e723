package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nidhogg/nuka-mind/internal/mind"
)

// Publish appends an event to the mind's history.
func (s *Store) Publish(ctx context.Context, e mind.Event) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO mind_events (mind_id, type, data, created_at)
		VALUES ($1, $2, $3, $4)`,
		e.MindID, string(e.Type), data, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Events returns the most recent events for a mind, oldest first.
func (s *Store) Events(ctx context.Context, mindID string, limit int) ([]mind.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT type, data, created_at FROM (
			SELECT type, data, created_at
			FROM mind_events
			WHERE mind_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent ORDER BY created_at ASC`, mindID, limit)
	if err != nil {
		return nil, fmt.Errorf("get events: %w", err)
	}
	defer rows.Close()

	var events []mind.Event
	for rows.Next() {
		e := mind.Event{MindID: mindID}
		var typ string
		var data []byte
		if err := rows.Scan(&typ, &data, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = mind.EventType(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

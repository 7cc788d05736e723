package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nidhogg/nuka-mind/internal/mind"
)

// SaveMind upserts a mind snapshot.
func (s *Store) SaveMind(ctx context.Context, m mind.Snapshot) error {
	traits, err := json.Marshal(m.Traits)
	if err != nil {
		return fmt.Errorf("marshal traits: %w", err)
	}
	wm, err := json.Marshal(m.WorkingMemory)
	if err != nil {
		return fmt.Errorf("marshal working memory: %w", err)
	}
	buffer, err := json.Marshal(m.Buffer)
	if err != nil {
		return fmt.Errorf("marshal buffer: %w", err)
	}
	convs, err := json.Marshal(m.Conversations)
	if err != nil {
		return fmt.Errorf("marshal conversations: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO minds (id, name, provider_id, traits, working_memory, buffer, conversations, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			provider_id = EXCLUDED.provider_id,
			traits = EXCLUDED.traits,
			working_memory = EXCLUDED.working_memory,
			buffer = EXCLUDED.buffer,
			conversations = EXCLUDED.conversations,
			status = 'active',
			updated_at = EXCLUDED.updated_at`,
		m.ID, m.Name, m.ProviderID, traits, wm, buffer, convs, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save mind %s: %w", m.ID, err)
	}
	return nil
}

// GetMind retrieves a single mind snapshot by ID.
func (s *Store) GetMind(ctx context.Context, id string) (*mind.Snapshot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, COALESCE(provider_id,''), traits, working_memory, buffer, conversations, created_at, updated_at
		FROM minds WHERE id = $1 AND status != 'deleted'`, id)
	m, err := scanMind(row)
	if err != nil {
		return nil, fmt.Errorf("get mind %s: %w", id, err)
	}
	return m, nil
}

// ListMinds returns all non-deleted minds.
func (s *Store) ListMinds(ctx context.Context) ([]mind.Snapshot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, COALESCE(provider_id,''), traits, working_memory, buffer, conversations, created_at, updated_at
		FROM minds WHERE status != 'deleted'
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list minds: %w", err)
	}
	defer rows.Close()

	var out []mind.Snapshot
	for rows.Next() {
		m, err := scanMind(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mind: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// DeleteMind soft-deletes a mind by setting status to 'deleted'.
func (s *Store) DeleteMind(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE minds SET status = 'deleted', updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete mind %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMind(row scanner) (*mind.Snapshot, error) {
	var m mind.Snapshot
	var traits, wm, buffer, convs []byte
	if err := row.Scan(&m.ID, &m.Name, &m.ProviderID, &traits, &wm, &buffer, &convs, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(traits, &m.Traits); err != nil {
		return nil, fmt.Errorf("decode traits: %w", err)
	}
	if err := json.Unmarshal(wm, &m.WorkingMemory); err != nil {
		return nil, fmt.Errorf("decode working memory: %w", err)
	}
	if err := json.Unmarshal(buffer, &m.Buffer); err != nil {
		return nil, fmt.Errorf("decode buffer: %w", err)
	}
	if err := json.Unmarshal(convs, &m.Conversations); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return &m, nil
}

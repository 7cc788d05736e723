package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nidhogg/nuka-mind/internal/vectorstore"
)

// pointNamespace derives stable qdrant point UUIDs from memory IDs.
var pointNamespace = uuid.MustParse("6f1c2a4e-3b7d-4c1e-9a55-2d8e0f7b9c11")

// QdrantBackend stores each agent's memories in its own qdrant collection.
type QdrantBackend struct {
	client *vectorstore.Client
}

func NewQdrantBackend(client *vectorstore.Client) *QdrantBackend {
	return &QdrantBackend{client: client}
}

func (b *QdrantBackend) Name() string { return "qdrant" }

func (b *QdrantBackend) Open(ctx context.Context, namespace string, dimension int) (Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("qdrant: dimension must be known to create a collection")
	}
	name := "mind_" + namespace
	if err := b.client.EnsureCollection(ctx, name, uint64(dimension)); err != nil {
		return nil, err
	}
	return &qdrantIndex{client: b.client, collection: name}, nil
}

func (b *QdrantBackend) Close(ctx context.Context) error { return b.client.Close() }

type qdrantIndex struct {
	client     *vectorstore.Client
	collection string
}

func pointID(memoryID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(memoryID)).String()
}

func (i *qdrantIndex) Insert(ctx context.Context, memories []Memory) error {
	points := make([]vectorstore.Point, len(memories))
	ids := make([]string, len(memories))
	for n, m := range memories {
		payload := map[string]interface{}{
			"memory_id":  m.ID,
			"content":    m.Content,
			"timestamp":  m.Timestamp,
			"importance": m.Importance,
		}
		if m.Location != nil {
			payload["x"] = m.Location.X
			payload["y"] = m.Location.Y
		}
		ids[n] = pointID(m.ID)
		points[n] = vectorstore.Point{ID: ids[n], Vector: m.Embedding, Payload: payload}
	}
	if err := i.client.UpsertBatch(ctx, i.collection, points); err != nil {
		if delErr := i.client.Delete(context.Background(), i.collection, ids); delErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, delErr)
		}
		return err
	}
	return nil
}

func (i *qdrantIndex) Query(ctx context.Context, vector []float32, n int) ([]Hit, error) {
	if n <= 0 {
		return nil, nil
	}
	results, err := i.client.Search(ctx, i.collection, vector, uint64(n))
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		m, err := memoryFromPayload(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode point %s: %w", r.ID, err)
		}
		hits = append(hits, Hit{Memory: m, Similarity: float64(r.Score)})
	}
	return hits, nil
}

func (i *qdrantIndex) Count(ctx context.Context) (int, error) {
	n, err := i.client.Count(ctx, i.collection)
	return int(n), err
}

func (i *qdrantIndex) Drop(ctx context.Context) error {
	return i.client.DropCollection(ctx, i.collection)
}

func memoryFromPayload(p map[string]interface{}) (Memory, error) {
	var m Memory
	var ok bool
	if m.ID, ok = p["memory_id"].(string); !ok {
		return m, fmt.Errorf("missing memory_id")
	}
	m.Content, _ = p["content"].(string)
	m.Timestamp, _ = p["timestamp"].(int64)
	switch v := p["importance"].(type) {
	case float64:
		m.Importance = v
	case int64:
		m.Importance = float64(v)
	}
	x, hasX := p["x"].(int64)
	y, hasY := p["y"].(int64)
	if hasX && hasY {
		m.Location = &Location{X: int(x), Y: int(y)}
	}
	return m, nil
}

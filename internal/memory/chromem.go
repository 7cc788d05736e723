package memory

import (
	"context"
	"fmt"
	"runtime"

	chromem "github.com/philippgille/chromem-go"
)

// ChromemBackend keeps every agent's memories in an embedded chromem-go
// database, one collection per agent.
type ChromemBackend struct {
	db *chromem.DB
}

// NewChromemBackend opens an in-memory database, or a persistent one when
// path is set.
func NewChromemBackend(path string) (*ChromemBackend, error) {
	if path == "" {
		return &ChromemBackend{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db %s: %w", path, err)
	}
	return &ChromemBackend{db: db}, nil
}

func (b *ChromemBackend) Name() string { return "chromem" }

func (b *ChromemBackend) Open(ctx context.Context, namespace string, dimension int) (Index, error) {
	name := "mind_" + namespace
	col, err := b.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}
	return &chromemIndex{db: b.db, name: name, col: col}, nil
}

func (b *ChromemBackend) Close(ctx context.Context) error { return nil }

type chromemIndex struct {
	db   *chromem.DB
	name string
	col  *chromem.Collection
}

func (i *chromemIndex) Insert(ctx context.Context, memories []Memory) error {
	docs := make([]chromem.Document, len(memories))
	ids := make([]string, len(memories))
	for n, m := range memories {
		if len(m.Embedding) == 0 {
			return fmt.Errorf("memory %s has no embedding", m.ID)
		}
		docs[n] = chromem.Document{
			ID:        m.ID,
			Content:   m.Content,
			Embedding: m.Embedding,
			Metadata:  metadata(m),
		}
		ids[n] = m.ID
	}
	if err := i.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		// AddDocuments is concurrent; undo whatever landed.
		if delErr := i.col.Delete(context.Background(), nil, nil, ids...); delErr != nil {
			return fmt.Errorf("add documents: %w (rollback: %v)", err, delErr)
		}
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (i *chromemIndex) Query(ctx context.Context, vector []float32, n int) ([]Hit, error) {
	// chromem-go rejects nResults larger than the collection.
	if c := i.col.Count(); n > c {
		n = c
	}
	if n <= 0 {
		return nil, nil
	}
	results, err := i.col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		m, err := fromMetadata(r.Metadata, r.Content)
		if err != nil {
			return nil, fmt.Errorf("decode document %s: %w", r.ID, err)
		}
		m.Embedding = r.Embedding
		hits = append(hits, Hit{Memory: m, Similarity: float64(r.Similarity)})
	}
	return hits, nil
}

func (i *chromemIndex) Count(ctx context.Context) (int, error) {
	return i.col.Count(), nil
}

func (i *chromemIndex) Drop(ctx context.Context) error {
	if err := i.db.DeleteCollection(i.name); err != nil {
		return fmt.Errorf("delete collection %s: %w", i.name, err)
	}
	return nil
}

package memory

import (
	"context"
	"fmt"
	"strconv"
)

// Hit is a nearest-neighbour result with cosine similarity in [-1, 1].
type Hit struct {
	Memory     Memory
	Similarity float64
}

// Index is one agent's namespace inside a vector database.
type Index interface {
	// Insert adds all memories or none of them.
	Insert(ctx context.Context, memories []Memory) error
	// Query returns up to n nearest memories. An empty index yields no hits.
	Query(ctx context.Context, vector []float32, n int) ([]Hit, error)
	Count(ctx context.Context) (int, error)
	// Drop removes the namespace and everything in it.
	Drop(ctx context.Context) error
}

// Backend opens per-agent indexes in a shared vector database.
type Backend interface {
	Name() string
	Open(ctx context.Context, namespace string, dimension int) (Index, error)
	Close(ctx context.Context) error
}

// metadata is the flat string form used by backends without typed payloads.
func metadata(m Memory) map[string]string {
	md := map[string]string{
		"memory_id":  m.ID,
		"timestamp":  strconv.FormatInt(m.Timestamp, 10),
		"importance": strconv.FormatFloat(m.Importance, 'f', -1, 64),
	}
	if m.Location != nil {
		md["x"] = strconv.Itoa(m.Location.X)
		md["y"] = strconv.Itoa(m.Location.Y)
	}
	return md
}

func fromMetadata(md map[string]string, content string) (Memory, error) {
	m := Memory{ID: md["memory_id"], Content: content}
	if m.ID == "" {
		return m, fmt.Errorf("missing memory_id")
	}
	var err error
	if m.Timestamp, err = strconv.ParseInt(md["timestamp"], 10, 64); err != nil {
		return m, fmt.Errorf("timestamp: %w", err)
	}
	if m.Importance, err = strconv.ParseFloat(md["importance"], 64); err != nil {
		return m, fmt.Errorf("importance: %w", err)
	}
	if xs, ok := md["x"]; ok {
		x, errX := strconv.Atoi(xs)
		y, errY := strconv.Atoi(md["y"])
		if errX != nil || errY != nil {
			return m, fmt.Errorf("location: bad coordinates %q,%q", xs, md["y"])
		}
		m.Location = &Location{X: x, Y: y}
	}
	return m, nil
}

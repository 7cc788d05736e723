package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestAPIProviderEmbed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  "test-model",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 1, "embedding": []float32{0.4, 0.5, 0.6}},
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewAPIProvider(Config{Endpoint: srv.URL, Model: "test-model"})

	vectors, err := p.Embed(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vectors))
	}
	if vectors[0][0] != 0.1 {
		t.Errorf("vectors not in input order: %v", vectors)
	}
	if p.Dimension() != 3 {
		t.Errorf("got dimension %d, want 3", p.Dimension())
	}
}

func TestAPIProviderEmbed_Empty(t *testing.T) {
	p := NewAPIProvider(Config{Endpoint: "http://unused", Model: "test-model", Dimension: 128})

	vectors, err := p.Embed(context.Background(), []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
	if d := p.Dimension(); d != 128 {
		t.Errorf("got dimension %d, want configured default 128", d)
	}
}

func TestLocalProviderEmbed(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req localRequest
		json.NewDecoder(r.Body).Decode(&req)
		if calls.Add(1) == 2 {
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(localResponse{Embedding: []float32{1, 0}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewLocalProvider(Config{Endpoint: srv.URL, Model: "nomic"})
	vecs, err := p.Embed(context.Background(), []string{"a"})
	if err != nil || len(vecs) != 1 {
		t.Fatalf("first embed: %v %v", vecs, err)
	}
	if _, err := p.Embed(context.Background(), []string{"b", "c"}); err == nil {
		t.Fatal("expected failure when one text fails")
	}
}

func TestHashProvider_DeterministicAndNormalized(t *testing.T) {
	p := NewHashProvider(64)
	a, _ := p.Embed(context.Background(), []string{"fresh bread on the table"})
	b, _ := p.Embed(context.Background(), []string{"fresh bread on the table"})
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("hash embedding is not deterministic")
		}
	}
	var norm float64
	for _, v := range a[0] {
		norm += float64(v * v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("got norm %v, want 1", norm)
	}
}

func TestHashProvider_SharedWordsAreCloser(t *testing.T) {
	p := NewHashProvider(256)
	vecs, _ := p.Embed(context.Background(), []string{"eat bread", "bread is tasty", "river stones"})
	near := dot(vecs[0], vecs[1])
	far := dot(vecs[0], vecs[2])
	if near <= far {
		t.Errorf("expected shared-word text closer: near=%v far=%v", near, far)
	}
}

type countingProvider struct {
	inner Provider
	texts int
	fail  bool
}

func (c *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.fail {
		return nil, errors.New("down")
	}
	c.texts += len(texts)
	return c.inner.Embed(ctx, texts)
}
func (c *countingProvider) Dimension() int { return c.inner.Dimension() }

func TestCachedProvider_ForwardsOnlyMisses(t *testing.T) {
	inner := &countingProvider{inner: NewHashProvider(32)}
	c, err := NewCachedProvider(inner, 100)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Embed(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("embed: %v", err)
	}
	vecs, err := c.Embed(ctx, []string{"b", "c"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 32 || len(vecs[1]) != 32 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
	if inner.texts != 3 {
		t.Errorf("inner embedded %d texts, want 3", inner.texts)
	}

	inner.fail = true
	if _, err := c.Embed(ctx, []string{"d"}); err == nil {
		t.Error("expected inner failure to surface")
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(Config{Provider: "word2vec"}); err == nil {
		t.Fatal("expected error")
	}
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"
)

// APIProvider implements Provider using an OpenAI-compatible embeddings API.
type APIProvider struct {
	client    *openai.Client
	model     string
	dimension int
	observed  atomic.Int64
}

// NewAPIProvider creates a new APIProvider from the given Config.
func NewAPIProvider(cfg Config) *APIProvider {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		oc.BaseURL = cfg.Endpoint
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.AdaEmbeddingV2)
	}
	return &APIProvider{
		client:    openai.NewClientWithConfig(oc),
		model:     model,
		dimension: cfg.Dimension,
	}
}

// Embed sends texts in one request and returns embeddings in input order.
func (p *APIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	embeddings := make([][]float32, len(data))
	for i, d := range data {
		embeddings[i] = d.Embedding
	}

	if n := len(embeddings[0]); n > 0 {
		p.observed.CompareAndSwap(0, int64(n))
	}
	return embeddings, nil
}

// Dimension returns the dimension seen in the first response, or the
// configured default before any call.
func (p *APIProvider) Dimension() int {
	if d := p.observed.Load(); d > 0 {
		return int(d)
	}
	return p.dimension
}

package embedding

import (
	"context"
	"fmt"
)

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api", "local" or "hash"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
	CacheSize int64  `json:"cache_size"`
}

// New builds the configured provider, wrapped in a cache when CacheSize > 0.
func New(cfg Config) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case "api":
		p = NewAPIProvider(cfg)
	case "local":
		p = NewLocalProvider(cfg)
	case "", "hash":
		p = NewHashProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		return NewCachedProvider(p, cfg.CacheSize)
	}
	return p, nil
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding: provider returned %d vectors for 1 input", len(vecs))
	}
	return vecs[0], nil
}

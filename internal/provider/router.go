package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrNoProvider is returned when nothing is registered for a route.
var ErrNoProvider = errors.New("no provider available")

// Router manages multiple LLM providers and routes requests per mind.
type Router struct {
	providers map[string]Provider
	bindings  map[string]string   // mindID -> providerID
	fallbacks map[string][]string // mindID -> fallback provider chain
	defaults  string
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a provider to the router. The first one becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// Bind associates a mind with a specific provider.
func (r *Router) Bind(mindID, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[mindID] = providerID
}

// Unbind removes any binding and fallback chain for a mind.
func (r *Router) Unbind(mindID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bindings, mindID)
	delete(r.fallbacks, mindID)
}

// SetFallbacks configures fallback providers for a mind.
func (r *Router) SetFallbacks(mindID string, providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[mindID] = providerIDs
}

// Route sends a chat request through the mind's provider, then its fallbacks.
func (r *Router) Route(ctx context.Context, mindID string, req *ChatRequest) (*ChatResponse, error) {
	r.mu.RLock()
	primary := r.getProvider(mindID)
	var chain []Provider
	for _, id := range r.fallbacks[mindID] {
		if p, ok := r.providers[id]; ok {
			chain = append(chain, p)
		}
	}
	r.mu.RUnlock()

	if primary == nil {
		return nil, fmt.Errorf("%w for mind %s", ErrNoProvider, mindID)
	}

	resp, err := primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	r.logger.Warn("primary provider failed, trying fallbacks",
		zap.String("mind", mindID), zap.Error(err))

	for _, fb := range chain {
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		r.logger.Warn("fallback provider failed", zap.String("provider", fb.ID()), zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}

	return nil, fmt.Errorf("all providers failed for mind %s: %w", mindID, err)
}

// For returns a client that routes every request for mindID.
func (r *Router) For(mindID string) *Bound {
	return &Bound{router: r, mindID: mindID}
}

// Bound routes every request for a fixed mind.
type Bound struct {
	router *Router
	mindID string
}

func (b *Bound) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return b.router.Route(ctx, b.mindID, req)
}

func (r *Router) getProvider(mindID string) Provider {
	if pid, ok := r.bindings[mindID]; ok {
		if p, ok := r.providers[pid]; ok {
			return p
		}
	}
	if p, ok := r.providers[r.defaults]; ok {
		return p
	}
	return nil
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ListProviders returns all registered providers.
func (r *Router) ListProviders() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	return result
}

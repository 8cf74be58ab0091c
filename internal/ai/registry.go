package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Backends holds connection settings for every built-in classifier backend.
type Backends struct {
	OllamaBaseURL string

	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterSiteURL string
	OpenRouterAppName string

	ArkBaseURL string
	ArkRegion  string
	ArkAPIKey  string
}

// NewDefaultRegistry registers "ollama", "openrouter" and "ark".
func NewDefaultRegistry(b Backends) *Registry {
	reg := NewRegistry()

	reg.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewOllamaProvider(b.OllamaBaseURL, strings.TrimSpace(model)), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (Provider, error) {
		_ = ctx
		return NewOpenRouterProvider(b.OpenRouterBaseURL, b.OpenRouterAPIKey, model, b.OpenRouterSiteURL, b.OpenRouterAppName), nil
	})
	reg.Register("ark", func(ctx context.Context, model string) (Provider, error) {
		return NewArkProvider(ctx, ArkConfig{
			BaseURL: b.ArkBaseURL,
			Region:  b.ArkRegion,
			APIKey:  b.ArkAPIKey,
			Model:   model,
		})
	})
	return reg
}

package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

type registration struct {
	factory      ProviderFactory
	defaultModel string
}

// Registry maps provider names (openai, ollama, anthropic, gemini) to factories and the
// model used when none is configured.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

func (r *Registry) Register(name, defaultModel string, f ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[normalizeName(name)] = registration{factory: f, defaultModel: defaultModel}
}

// Get builds the named provider. An empty model falls back to the registered default.
func (r *Registry) Get(ctx context.Context, name, model string) (Provider, error) {
	r.mu.RLock()
	e, ok := r.entries[normalizeName(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider %q (have %s)", normalizeName(name), strings.Join(r.Names(), ", "))
	}
	if m := strings.TrimSpace(model); m != "" {
		return e.factory(ctx, m)
	}
	if e.defaultModel == "" {
		return nil, fmt.Errorf("ai provider %s: no model configured", normalizeName(name))
	}
	return e.factory(ctx, e.defaultModel)
}

// Names lists registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for n := range r.entries {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func normalizeName(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

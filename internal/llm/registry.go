package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lectern/backend/internal/config"
	app_errors "lectern/backend/internal/errors"
)

// ProviderStatus is the listing entry returned to the UI's periodic poll.
type ProviderStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      Kind   `json:"type"`
	Available bool   `json:"available"`
}

type availabilityEntry struct {
	available bool
	checkedAt time.Time
}

// Registry holds the configured provider adapters, tracks which one is
// current, and caches availability probes with a fixed TTL so the UI's
// polling does not hammer backends. All mutation goes through the mutex;
// adapters themselves are immutable once built.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	byID     map[string]Provider
	current  string
	ttl      time.Duration
	cache    map[string]availabilityEntry
	now      func() time.Time
}

// NewRegistry builds the full provider set from configuration. Cloud
// adapters are registered even without a credential so the listing can
// show them as unavailable rather than hiding them.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		byID:  make(map[string]Provider),
		cache: make(map[string]availabilityEntry),
		ttl:   cfg.AvailabilityTTL(),
		now:   time.Now,
	}
	r.rebuild(cfg)
	return r
}

// rebuild registers adapters from the current credentials. Caller holds
// no lock; rebuild takes it.
func (r *Registry) rebuild(cfg *config.Config) {
	providers := []Provider{
		NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel),
		NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel),
		NewAnthropicProvider(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.AnthropicModel),
		NewGeminiProvider(cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = r.order[:0]
	for k := range r.byID {
		delete(r.byID, k)
	}
	for k := range r.cache {
		delete(r.cache, k)
	}
	for _, p := range providers {
		r.byID[p.ID()] = p
		r.order = append(r.order, p.ID())
	}
	if _, ok := r.byID[r.current]; !ok {
		r.current = cfg.DefaultProvider
	}
	if _, ok := r.byID[r.current]; !ok && len(r.order) > 0 {
		r.current = r.order[0]
	}
}

// Register adds or replaces a provider under its own id. Registration
// order is preserved for listings.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[p.ID()]; !exists {
		r.order = append(r.order, p.ID())
	}
	r.byID[p.ID()] = p
	delete(r.cache, p.ID())
}

// Refresh re-reads credentials and rebuilds all adapters. Called after an
// API key is added or removed; every cached availability entry is dropped
// because the credentials backing them may have changed.
func (r *Registry) Refresh(cfg *config.Config) {
	r.rebuild(cfg)
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", app_errors.ErrProviderNotFound, id)
	}
	return p, nil
}

// Current returns the currently selected provider.
func (r *Registry) Current() (Provider, error) {
	r.mu.RLock()
	id := r.current
	r.mu.RUnlock()
	return r.Get(id)
}

// SetCurrent selects the provider used when a request names none.
// Returns false if id is unknown.
func (r *Registry) SetCurrent(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	r.current = id
	return true
}

// All returns the providers in registration order.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Resolve picks the provider for a completion: the named one, or the
// current one when id is empty. It fails before any network attempt when
// the provider is unknown or its availability probe reports it down.
func (r *Registry) Resolve(ctx context.Context, id string) (Provider, error) {
	var p Provider
	var err error
	if id == "" {
		p, err = r.Current()
	} else {
		p, err = r.Get(id)
	}
	if err != nil {
		return nil, err
	}
	if !r.availability(ctx, p) {
		return nil, fmt.Errorf("%w: %q", app_errors.ErrProviderNotAvailable, p.ID())
	}
	return p, nil
}

// ListWithAvailability reports each provider's live availability, served
// from the per-id cache while entries are fresh.
func (r *Registry) ListWithAvailability(ctx context.Context) []ProviderStatus {
	providers := r.All()
	out := make([]ProviderStatus, 0, len(providers))
	for _, p := range providers {
		out = append(out, ProviderStatus{
			ID:        p.ID(),
			Name:      p.Name(),
			Type:      p.Kind(),
			Available: r.availability(ctx, p),
		})
	}
	return out
}

// Invalidate drops one provider's cached availability, forcing the next
// query to probe again. Called when that provider's credential changes.
func (r *Registry) Invalidate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, id)
}

// availability answers from the cache when fresh, probing otherwise.
func (r *Registry) availability(ctx context.Context, p Provider) bool {
	r.mu.RLock()
	entry, ok := r.cache[p.ID()]
	fresh := ok && r.now().Sub(entry.checkedAt) < r.ttl
	r.mu.RUnlock()
	if fresh {
		return entry.available
	}

	available := p.Available(ctx)

	r.mu.Lock()
	r.cache[p.ID()] = availabilityEntry{available: available, checkedAt: r.now()}
	r.mu.Unlock()
	return available
}

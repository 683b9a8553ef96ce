// Package registry holds the configured provider adapters, keyed by
// provider id.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lexgate/dispatch/internal/domain"
)

// Registry implements the domain.AdapterRegistry interface.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.ProviderID]domain.Adapter
}

// NewRegistry creates a new adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		mu:       sync.RWMutex{},
		adapters: make(map[domain.ProviderID]domain.Adapter),
	}
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter domain.Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}

	provider := adapter.Provider()
	if provider == "" {
		return errors.New("adapter provider cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[provider]; exists {
		return fmt.Errorf("adapter for provider %s already registered", provider)
	}

	r.adapters[provider] = adapter
	return nil
}

// Get retrieves the adapter for a provider.
func (r *Registry) Get(provider domain.ProviderID) (domain.Adapter, error) {
	if provider == "" {
		return nil, errors.New("provider cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, exists := r.adapters[provider]
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrAdapterNotRegistered, provider)
	}

	return adapter, nil
}

// List returns the providers with a registered adapter.
func (r *Registry) List() []domain.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]domain.ProviderID, 0, len(r.adapters))
	for provider := range r.adapters {
		providers = append(providers, provider)
	}

	return providers
}

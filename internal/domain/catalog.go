package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Temperature the reasoning-model API variants accept. Anything else is
// rejected upstream.
const reasoningTemperature = 1.0

// InMemoryCatalog stores model descriptors in memory.
type InMemoryCatalog struct {
	mu     sync.RWMutex
	models map[string]ModelDescriptor
}

// NewInMemoryCatalog creates a new in-memory model catalog.
func NewInMemoryCatalog() *InMemoryCatalog {
	return &InMemoryCatalog{
		mu:     sync.RWMutex{},
		models: make(map[string]ModelDescriptor),
	}
}

// Register adds a descriptor to the catalog. Model ids are unique across
// the whole catalog regardless of provider. Capability fields for
// reasoning-model variants are derived here, once, from the id prefix.
func (c *InMemoryCatalog) Register(_ context.Context, desc ModelDescriptor) error {
	if desc.ID == "" {
		return errors.New("model id cannot be empty")
	}
	if desc.Provider == "" {
		return errors.New("model provider cannot be empty")
	}

	applyCapabilities(&desc)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.models[desc.ID]; exists {
		return fmt.Errorf("model %s already registered", desc.ID)
	}

	c.models[desc.ID] = desc
	return nil
}

// Resolve returns the descriptor for a model id. Disabled models resolve
// too; the dispatcher rejects them separately so cost recomputation for
// historical calls keeps working.
func (c *InMemoryCatalog) Resolve(_ context.Context, modelID string) (*ModelDescriptor, error) {
	if modelID == "" {
		return nil, fmt.Errorf("%w: empty model id", ErrModelNotFound)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	desc, exists := c.models[modelID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
	}

	return &desc, nil
}

// List returns all registered descriptors.
func (c *InMemoryCatalog) List(_ context.Context) []*ModelDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	descs := make([]*ModelDescriptor, 0, len(c.models))
	for id := range c.models {
		desc := c.models[id]
		descs = append(descs, &desc)
	}
	return descs
}

// applyCapabilities resolves id-prefix quirks into explicit capability
// fields so adapters branch on flags instead of string matching per call.
func applyCapabilities(desc *ModelDescriptor) {
	if desc.Provider != ProviderOpenAI {
		return
	}
	if strings.HasPrefix(desc.ID, "o3-") || strings.HasPrefix(desc.ID, "o4-") {
		desc.UsesCompletionTokensField = true
		desc.HasFixedTemperature = true
		desc.FixedTemperature = reasoningTemperature
	}
}

// Seed registers the reference model set. Prices are USD per million tokens.
func Seed(ctx context.Context, catalog Catalog) error {
	descriptors := []ModelDescriptor{
		{
			ID: "gpt-4o", Provider: ProviderOpenAI, DisplayName: "GPT-4o",
			MaxOutputTokens: 16384, ContextWindow: 128000,
			PriceInputPerMillion: 2.5, PriceOutputPerMillion: 10.0, Enabled: true,
		},
		{
			ID: "gpt-4o-mini", Provider: ProviderOpenAI, DisplayName: "GPT-4o mini",
			MaxOutputTokens: 16384, ContextWindow: 128000,
			PriceInputPerMillion: 0.15, PriceOutputPerMillion: 0.6, Enabled: true,
		},
		{
			ID: "o3-mini", Provider: ProviderOpenAI, DisplayName: "o3-mini",
			MaxOutputTokens: 65536, ContextWindow: 200000,
			PriceInputPerMillion: 1.1, PriceOutputPerMillion: 4.4, Enabled: true,
		},
		{
			ID: "o4-mini", Provider: ProviderOpenAI, DisplayName: "o4-mini",
			MaxOutputTokens: 100000, ContextWindow: 200000,
			PriceInputPerMillion: 1.1, PriceOutputPerMillion: 4.4, Enabled: true,
		},
		{
			ID: "claude-3-5-sonnet-20241022", Provider: ProviderAnthropic, DisplayName: "Claude 3.5 Sonnet",
			MaxOutputTokens: 8192, ContextWindow: 200000,
			PriceInputPerMillion: 3.0, PriceOutputPerMillion: 15.0, Enabled: true,
		},
		{
			ID: "claude-3-5-haiku-20241022", Provider: ProviderAnthropic, DisplayName: "Claude 3.5 Haiku",
			MaxOutputTokens: 8192, ContextWindow: 200000,
			PriceInputPerMillion: 0.8, PriceOutputPerMillion: 4.0, Enabled: true,
		},
		{
			ID: "gemini-2.0-flash", Provider: ProviderGoogle, DisplayName: "Gemini 2.0 Flash",
			MaxOutputTokens: 8192, ContextWindow: 1048576,
			PriceInputPerMillion: 0.1, PriceOutputPerMillion: 0.4, Enabled: true,
		},
		{
			ID: "gemini-1.5-pro", Provider: ProviderGoogle, DisplayName: "Gemini 1.5 Pro",
			MaxOutputTokens: 8192, ContextWindow: 2097152,
			PriceInputPerMillion: 1.25, PriceOutputPerMillion: 5.0, Enabled: true,
		},
	}

	for _, desc := range descriptors {
		if err := catalog.Register(ctx, desc); err != nil {
			return fmt.Errorf("failed to seed model %s: %w", desc.ID, err)
		}
	}
	return nil
}

package domain

import "context"

// Catalog resolves model ids to descriptors. Resolve returns disabled
// descriptors too, so historical cost figures stay recomputable; callers
// that only want callable models must check Enabled themselves.
type Catalog interface {
	// Resolve returns the descriptor for the given id, or ErrModelNotFound.
	Resolve(ctx context.Context, modelID string) (*ModelDescriptor, error)

	// Register adds a descriptor to the catalog.
	Register(ctx context.Context, desc ModelDescriptor) error

	// List returns all registered descriptors.
	List(ctx context.Context) []*ModelDescriptor
}

// TokenEstimator approximates token counts for text. Implementations must
// never fail: any tokenizer problem degrades to a character heuristic.
// A nil descriptor selects the default tokenizer family.
type TokenEstimator interface {
	Estimate(text string, model *ModelDescriptor) int
}

// CostCalculator prices token usage against a model's configured rates.
type CostCalculator interface {
	// FromAPIUsage prices a provider-reported usage record. Authoritative
	// whenever the adapter surfaced usage metadata.
	FromAPIUsage(ctx context.Context, usage UsageRecord, model *ModelDescriptor) CostBreakdown

	// FromEstimate re-estimates both sides from raw text and prices the
	// result. The exclusive path when the provider failed or omitted usage.
	FromEstimate(ctx context.Context, prompt, response string, model *ModelDescriptor) (UsageRecord, CostBreakdown)
}

// Adapter translates the dispatcher's uniform call shape into one
// provider's native contract.
//
// Invoke and InvokeStream return the same shape. On error the returned
// Invocation may still carry partially accumulated text (streams cut off by
// timeout or transport closure); callers must not discard it.
type Adapter interface {
	// Provider returns the upstream this adapter speaks to.
	Provider() ProviderID

	// ShouldStream reports whether this provider's policy selects the
	// streaming path for the given shaped request.
	ShouldStream(params *InvokeParams) bool

	// Invoke performs a single blocking call.
	Invoke(ctx context.Context, params *InvokeParams) (*Invocation, error)

	// InvokeStream performs a streaming call, folding the event sequence
	// into one Invocation in delivery order.
	InvokeStream(ctx context.Context, params *InvokeParams) (*Invocation, error)
}

// AdapterRegistry holds the configured provider adapters.
type AdapterRegistry interface {
	// Register adds an adapter.
	Register(adapter Adapter) error

	// Get retrieves the adapter for a provider, or ErrAdapterNotRegistered.
	Get(provider ProviderID) (Adapter, error)

	// List returns the providers with a registered adapter.
	List() []ProviderID
}

// InstructionStore supplies the optional per-model system instruction.
// Lookup failures degrade to absent; they never fail a generation.
type InstructionStore interface {
	Lookup(ctx context.Context, modelID string) (string, bool)
}

// EventPublisher receives debug/audit events (the fully-shaped outgoing
// request, the raw upstream outcome). Publishing must never affect control
// flow; implementations swallow their own errors.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}

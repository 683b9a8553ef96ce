package domain

// ProviderID identifies an upstream text-generation provider.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGoogle    ProviderID = "google"
	ProviderEcho      ProviderID = "echo"
)

// UsageSource tells whether token counts came from the provider or were
// estimated locally. A single UsageRecord is never a blend of the two.
type UsageSource string

const (
	UsageAPIReported UsageSource = "api"
	UsageEstimated   UsageSource = "estimated"
)

// CurrencyUSD is the base currency for all cost figures.
const CurrencyUSD = "USD"

// ModelDescriptor describes one callable model in the catalog.
// Prices are USD per million tokens. Capability fields are derived once at
// registration time so adapters never re-parse model id strings per call.
type ModelDescriptor struct {
	ID                    string     `json:"id"`
	Provider              ProviderID `json:"provider"`
	DisplayName           string     `json:"display_name"`
	MaxOutputTokens       int        `json:"max_output_tokens"`
	ContextWindow         int        `json:"context_window"`
	PriceInputPerMillion  float64    `json:"price_input_per_million"`
	PriceOutputPerMillion float64    `json:"price_output_per_million"`
	Enabled               bool       `json:"enabled"`

	// Reasoning-model variants take the output limit under a different
	// request field and only accept one temperature value.
	UsesCompletionTokensField bool    `json:"uses_completion_tokens_field,omitempty"`
	HasFixedTemperature       bool    `json:"has_fixed_temperature,omitempty"`
	FixedTemperature          float64 `json:"fixed_temperature,omitempty"`
}

// UsageRecord is the token accounting for one call.
type UsageRecord struct {
	InputTokens         int         `json:"input_tokens"`
	OutputTokens        int         `json:"output_tokens"`
	CacheCreationTokens int         `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int         `json:"cache_read_tokens,omitempty"`
	Source              UsageSource `json:"source"`
}

// TotalTokens returns input plus output tokens.
func (u UsageRecord) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// CostBreakdown is a monetary cost derived from a UsageRecord and the
// pricing of the model it ran against.
type CostBreakdown struct {
	InputCost          float64 `json:"input_cost"`
	OutputCost         float64 `json:"output_cost"`
	TotalCost          float64 `json:"total_cost"`
	Currency           string  `json:"currency"`
	PricedAgainstModel string  `json:"priced_against_model"`
}

// DisplayCost is a CostBreakdown formatted for user-facing output.
type DisplayCost struct {
	TotalCostUSD  string `json:"total_cost_usd"`
	InputCostUSD  string `json:"input_cost_usd"`
	OutputCostUSD string `json:"output_cost_usd"`
}

// GenerationResult is the dispatcher's uniform output envelope. It is
// produced exactly once per call and never mutated after return. On failure
// Text carries a human-readable error message (or whatever partial output
// was accumulated), and Usage is still populated from at least the request
// side so accounting is never silently dropped.
type GenerationResult struct {
	Text         string        `json:"text"`
	Usage        UsageRecord   `json:"usage"`
	Cost         CostBreakdown `json:"cost"`
	Success      bool          `json:"success"`
	ErrorDetail  string        `json:"error_detail,omitempty"`
	ProviderUsed ProviderID    `json:"provider_used,omitempty"`
	ModelUsed    string        `json:"model_used"`
}

// InvokeParams is the fully-shaped request handed to a provider adapter.
// The system instruction travels here as an explicit parameter, never as
// shared state on the dispatcher.
type InvokeParams struct {
	Model             *ModelDescriptor
	Prompt            string
	SystemInstruction string
	MaxTokens         int
}

// Invocation is what every adapter returns, streaming or not: the generated
// (or accumulated) text plus the provider-reported usage when the upstream
// supplied one. Usage is nil when the provider omitted it; the dispatcher
// then falls back to estimation.
type Invocation struct {
	Text  string
	Usage *UsageRecord
}

package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lexgate/dispatch/internal/observability"
)

const (
	// DefaultMaxTokens is the caller-side sentinel meaning "use the model's
	// configured output limit".
	DefaultMaxTokens = 2000

	// Defaulted Gemini calls get a smaller budget; the model spends part of
	// it on internal reasoning before emitting text.
	geminiDefaultedMaxTokens = 500

	promptPreviewLimit = 200
)

// Dispatcher routes generation requests to provider adapters and normalizes
// every outcome, success or failure, into one GenerationResult.
//
// Each Generate call is an independent pass through
// resolve -> shape -> invoke -> account; no mutable state is shared between
// calls, so a single Dispatcher is safe for any degree of concurrency.
type Dispatcher struct {
	catalog       Catalog
	adapters      AdapterRegistry
	estimator     TokenEstimator
	costs         CostCalculator
	instructions  InstructionStore
	events        EventPublisher
	invokeTimeout time.Duration
}

// NewDispatcher creates a new dispatcher (DI constructor).
func NewDispatcher(
	catalog Catalog,
	adapters AdapterRegistry,
	estimator TokenEstimator,
	costs CostCalculator,
	instructions InstructionStore,
) *Dispatcher {
	return &Dispatcher{
		catalog:      catalog,
		adapters:     adapters,
		estimator:    estimator,
		costs:        costs,
		instructions: instructions,
	}
}

// WithEventPublisher attaches an optional debug/audit publisher receiving
// the shaped outgoing request and the raw upstream outcome. It never
// affects control flow.
func (d *Dispatcher) WithEventPublisher(events EventPublisher) *Dispatcher {
	d.events = events
	return d
}

// WithInvokeTimeout bounds the whole invoking phase, stream consumption
// included. Zero means no dispatcher-level bound.
func (d *Dispatcher) WithInvokeTimeout(timeout time.Duration) *Dispatcher {
	d.invokeTimeout = timeout
	return d
}

// Generate is the sole public entry point. It never returns an error:
// unknown models, disabled models, upstream failures and timeouts are all
// encoded in the returned envelope, and request tokens are accounted even
// on total failure.
func (d *Dispatcher) Generate(ctx context.Context, prompt, modelID string, maxTokens int) *GenerationResult {
	logger := observability.FromContext(ctx)

	// Resolving.
	model, err := d.catalog.Resolve(ctx, modelID)
	if err != nil {
		logger.Warn("model resolution failed",
			observability.String("model", modelID),
			observability.Error(err))
		return d.configFailure(prompt, modelID, nil,
			fmt.Sprintf("model %q is not configured: %v", modelID, err))
	}
	if !model.Enabled {
		logger.Warn("model is disabled",
			observability.String("model", modelID))
		return d.configFailure(prompt, modelID, model,
			fmt.Sprintf("model %q is disabled: %v", modelID, ErrModelDisabled))
	}

	// Shaping.
	params := &InvokeParams{
		Model:     model,
		Prompt:    prompt,
		MaxTokens: d.effectiveMaxTokens(maxTokens, model),
	}
	if d.instructions != nil {
		if instruction, ok := d.instructions.Lookup(ctx, modelID); ok {
			params.SystemInstruction = instruction
		}
	}

	adapter, err := d.adapters.Get(model.Provider)
	if err != nil {
		logger.Warn("provider has no adapter",
			observability.String("provider", string(model.Provider)),
			observability.Error(err))
		return d.offlineFallback(ctx, params, model, err)
	}

	d.publish(ctx, "generation.request", map[string]interface{}{
		"model":           model.ID,
		"provider":        string(model.Provider),
		"max_tokens":      params.MaxTokens,
		"prompt":          params.Prompt,
		"has_instruction": params.SystemInstruction != "",
	})

	// Invoking. One timeout bounds the call including stream consumption.
	ictx := ctx
	if d.invokeTimeout > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, d.invokeTimeout)
		defer cancel()
	}

	streamed := adapter.ShouldStream(params)
	var inv *Invocation
	var callErr error
	if streamed {
		inv, callErr = adapter.InvokeStream(ictx, params)
	} else {
		inv, callErr = adapter.Invoke(ictx, params)
	}
	if inv == nil {
		inv = &Invocation{}
	}

	d.publish(ctx, "generation.outcome", map[string]interface{}{
		"model":        model.ID,
		"provider":     string(model.Provider),
		"streamed":     streamed,
		"raw_text":     inv.Text,
		"has_usage":    inv.Usage != nil,
		"provider_err": errString(callErr),
	})

	// Accounting.
	return d.account(ctx, params, model, inv, callErr, streamed)
}

// account turns an adapter outcome into the final envelope, preferring
// provider-reported usage and fully re-estimating both sides otherwise.
func (d *Dispatcher) account(
	ctx context.Context,
	params *InvokeParams,
	model *ModelDescriptor,
	inv *Invocation,
	callErr error,
	streamed bool,
) *GenerationResult {
	logger := observability.FromContext(ctx)

	result := &GenerationResult{
		ProviderUsed: model.Provider,
		ModelUsed:    model.ID,
	}

	switch {
	case callErr != nil:
		result.Success = false
		result.ErrorDetail = fmt.Sprintf("%s API error: %v", model.Provider, callErr)
		result.Text = inv.Text
		if result.Text == "" {
			result.Text = fmt.Sprintf("Error calling %s API: %v", model.Provider, callErr)
		}
		result.Usage, result.Cost = d.costs.FromEstimate(ctx, params.Prompt, result.Text, model)
		logger.Error("provider call failed",
			observability.String("provider", string(model.Provider)),
			observability.Error(callErr))

	case inv.Usage != nil:
		result.Success = true
		result.Text = inv.Text
		usage := *inv.Usage
		usage.Source = UsageAPIReported
		result.Usage = usage
		result.Cost = d.costs.FromAPIUsage(ctx, usage, model)

	default:
		// Provider succeeded but reported no usage. For a streamed call
		// this means the terminal usage event never arrived.
		result.Success = true
		result.Text = inv.Text
		result.Usage, result.Cost = d.costs.FromEstimate(ctx, params.Prompt, inv.Text, model)
		if streamed {
			logger.Warn("stream ended without usage metadata, estimated instead",
				observability.String("model", model.ID),
				observability.Error(ErrStreamTruncated))
		}
	}

	return result
}

// configFailure builds the envelope for requests rejected before any
// upstream call. Cost is zero, but request tokens are still estimated so
// partial accounting is never dropped.
func (d *Dispatcher) configFailure(prompt, modelID string, model *ModelDescriptor, detail string) *GenerationResult {
	result := &GenerationResult{
		Text:        "Error: " + detail,
		Success:     false,
		ErrorDetail: detail,
		ModelUsed:   modelID,
		Usage: UsageRecord{
			InputTokens: d.estimator.Estimate(prompt, model),
			Source:      UsageEstimated,
		},
		Cost: CostBreakdown{
			Currency:           CurrencyUSD,
			PricedAgainstModel: modelID,
		},
	}
	if model != nil {
		result.ProviderUsed = model.Provider
	}
	return result
}

// offlineFallback produces a clearly marked simulated draft when the
// resolved provider has no configured adapter, priced via the estimate path.
func (d *Dispatcher) offlineFallback(
	ctx context.Context,
	params *InvokeParams,
	model *ModelDescriptor,
	cause error,
) *GenerationResult {
	text := simulatedDraft(params.Prompt)
	usage, cost := d.costs.FromEstimate(ctx, params.Prompt, text, model)

	return &GenerationResult{
		Text:         text,
		Usage:        usage,
		Cost:         cost,
		Success:      false,
		ErrorDetail:  fmt.Sprintf("provider %s is not configured for model %s: %v", model.Provider, model.ID, cause),
		ProviderUsed: model.Provider,
		ModelUsed:    model.ID,
	}
}

// effectiveMaxTokens merges the caller's budget with the model's configured
// limit. The sentinel (or a non-positive value) selects the model default.
func (d *Dispatcher) effectiveMaxTokens(requested int, model *ModelDescriptor) int {
	if requested == DefaultMaxTokens || requested <= 0 {
		if model.Provider == ProviderGoogle {
			return geminiDefaultedMaxTokens
		}
		if model.MaxOutputTokens > 0 {
			return model.MaxOutputTokens
		}
		return DefaultMaxTokens
	}
	if model.MaxOutputTokens > 0 && requested > model.MaxOutputTokens {
		return model.MaxOutputTokens
	}
	return requested
}

func (d *Dispatcher) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if d.events == nil {
		return
	}
	d.events.Publish(ctx, eventType, data)
}

func simulatedDraft(prompt string) string {
	preview := prompt
	if len(preview) > promptPreviewLimit {
		preview = preview[:promptPreviewLimit] + "..."
	}

	var builder strings.Builder
	builder.WriteString("DRAFT\n\n")
	builder.WriteString("[Simulated draft generated from the supplied prompt]\n\n")
	builder.WriteString(preview)
	builder.WriteString("\n\n[Simulated content - configure a provider API key for real generation]")
	return builder.String()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

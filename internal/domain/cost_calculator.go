package domain

import (
	"context"
	"fmt"

	"github.com/lexgate/dispatch/internal/observability"
)

const tokensPerMillion = 1_000_000.0

// StandardCostCalculator prices token usage against per-million-token rates.
type StandardCostCalculator struct {
	estimator TokenEstimator
}

// NewStandardCostCalculator creates a new cost calculator.
func NewStandardCostCalculator(estimator TokenEstimator) *StandardCostCalculator {
	return &StandardCostCalculator{
		estimator: estimator,
	}
}

// FromAPIUsage prices a provider-reported usage record. Cache token fields
// are carried through for accounting but do not affect price.
func (c *StandardCostCalculator) FromAPIUsage(
	ctx context.Context,
	usage UsageRecord,
	model *ModelDescriptor,
) CostBreakdown {
	return c.breakdown(ctx, usage, model)
}

// FromEstimate re-estimates both token counts from raw text and prices the
// result. Used when the provider failed outright or omitted usage metadata;
// never mixed with partial API values.
func (c *StandardCostCalculator) FromEstimate(
	ctx context.Context,
	prompt, response string,
	model *ModelDescriptor,
) (UsageRecord, CostBreakdown) {
	usage := UsageRecord{
		InputTokens:  c.estimator.Estimate(prompt, model),
		OutputTokens: c.estimator.Estimate(response, model),
		Source:       UsageEstimated,
	}
	return usage, c.breakdown(ctx, usage, model)
}

func (c *StandardCostCalculator) breakdown(
	ctx context.Context,
	usage UsageRecord,
	model *ModelDescriptor,
) CostBreakdown {
	breakdown := CostBreakdown{Currency: CurrencyUSD}
	if model == nil {
		return breakdown
	}
	breakdown.PricedAgainstModel = model.ID

	if model.PriceInputPerMillion == 0 && model.PriceOutputPerMillion == 0 {
		// Unpriced model: zero cost is a valid outcome, not a failure.
		logger := observability.FromContext(ctx)
		logger.Debug("model has no configured pricing",
			observability.String("model", model.ID))
		return breakdown
	}

	breakdown.InputCost = nonNegative(float64(usage.InputTokens) / tokensPerMillion * model.PriceInputPerMillion)
	breakdown.OutputCost = nonNegative(float64(usage.OutputTokens) / tokensPerMillion * model.PriceOutputPerMillion)
	breakdown.TotalCost = breakdown.InputCost + breakdown.OutputCost
	return breakdown
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Display formats the breakdown to six decimal places for user-facing output.
func (b CostBreakdown) Display() DisplayCost {
	return DisplayCost{
		TotalCostUSD:  fmt.Sprintf("$%.6f", b.TotalCost),
		InputCostUSD:  fmt.Sprintf("$%.6f", b.InputCost),
		OutputCostUSD: fmt.Sprintf("$%.6f", b.OutputCost),
	}
}

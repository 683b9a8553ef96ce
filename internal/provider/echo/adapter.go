// Package echo provides a testing adapter that echoes back its input. It
// implements the domain.Adapter interface without external calls, giving
// deterministic outcomes for development and tests.
package echo

import (
	"context"
	"errors"
	"strings"

	"github.com/lexgate/dispatch/internal/domain"
	"github.com/lexgate/dispatch/internal/observability"
)

// ModelID is the single model the echo adapter serves.
const ModelID = "echo-1"

// Adapter implements the domain.Adapter interface for echo testing.
type Adapter struct{}

// NewAdapter creates a new echo adapter. No configuration is required as
// this adapter operates entirely in-memory.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Provider returns the provider identifier.
func (a *Adapter) Provider() domain.ProviderID {
	return domain.ProviderEcho
}

// ShouldStream reports false; echo has nothing to stream.
func (a *Adapter) ShouldStream(_ *domain.InvokeParams) bool {
	return false
}

// Invoke echoes the shaped request back, with deterministic word-count
// usage reported as if it came from an upstream.
func (a *Adapter) Invoke(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error) {
	if params == nil {
		return nil, errors.New("params cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	text := buildEchoText(params)
	words := countWords(text)

	return &domain.Invocation{
		Text: text,
		Usage: &domain.UsageRecord{
			InputTokens:  countWords(params.Prompt),
			OutputTokens: words,
			Source:       domain.UsageAPIReported,
		},
	}, nil
}

// InvokeStream behaves exactly like Invoke; the fold is trivial.
func (a *Adapter) InvokeStream(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error) {
	return a.Invoke(ctx, params)
}

func buildEchoText(params *domain.InvokeParams) string {
	var builder strings.Builder
	if params.SystemInstruction != "" {
		builder.WriteString("[system]: ")
		builder.WriteString(params.SystemInstruction)
		builder.WriteString("\n")
	}
	builder.WriteString("[user]: ")
	builder.WriteString(params.Prompt)
	return builder.String()
}

func countWords(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text))
}

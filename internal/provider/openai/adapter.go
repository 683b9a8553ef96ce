// Package openai adapts the dispatcher's uniform call shape to the OpenAI
// chat completions API using the official SDK. Reasoning-model variants
// need the output limit under a different request field and a fixed
// temperature; both quirks are driven by capability flags resolved at
// catalog load, never by re-parsing model ids here.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lexgate/dispatch/internal/domain"
	"github.com/lexgate/dispatch/internal/observability"
)

// Adapter implements domain.Adapter for OpenAI.
type Adapter struct {
	client openai.Client
}

// NewAdapter creates a new OpenAI adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}

	if config.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(config.MaxRetries))
	}

	return &Adapter{
		client: openai.NewClient(opts...),
	}, nil
}

// Provider returns the provider identifier.
func (a *Adapter) Provider() domain.ProviderID {
	return domain.ProviderOpenAI
}

// ShouldStream reports false; OpenAI calls are always blocking.
func (a *Adapter) ShouldStream(_ *domain.InvokeParams) bool {
	return false
}

// Invoke performs a single blocking chat completion call.
func (a *Adapter) Invoke(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error) {
	if params == nil {
		return nil, errors.New("params cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API",
		observability.String("model", params.Model.ID))

	resp, err := a.client.Chat.Completions.New(ctx, a.shape(params))
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	return &domain.Invocation{
		Text: text,
		Usage: &domain.UsageRecord{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			Source:       domain.UsageAPIReported,
		},
	}, nil
}

// InvokeStream folds the SDK's event stream into one Invocation. Usage
// arrives on the final chunk when the API is asked to include it; if the
// stream ends without it, Usage stays nil and partial text is returned
// alongside any error.
func (a *Adapter) InvokeStream(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error) {
	if params == nil {
		return nil, errors.New("params cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI streaming API",
		observability.String("model", params.Model.ID))

	sdkParams := a.shape(params)
	sdkParams.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := a.client.Chat.Completions.NewStreaming(ctx, sdkParams)

	inv := &domain.Invocation{}
	var acc []byte
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			acc = append(acc, chunk.Choices[0].Delta.Content...)
		}
		if chunk.Usage.TotalTokens > 0 {
			inv.Usage = &domain.UsageRecord{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
				Source:       domain.UsageAPIReported,
			}
		}
	}
	inv.Text = string(acc)

	if err := stream.Err(); err != nil && !errors.Is(err, io.EOF) {
		return inv, fmt.Errorf("openai stream failed: %w", err)
	}

	return inv, nil
}

// shape converts the uniform request into SDK parameters. The system
// instruction becomes a leading system-role message; reasoning variants
// get MaxCompletionTokens and their fixed temperature.
func (a *Adapter) shape(params *domain.InvokeParams) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if params.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(params.SystemInstruction))
	}
	messages = append(messages, openai.UserMessage(params.Prompt))

	sdkParams := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(params.Model.ID),
		Messages: messages,
	}

	if params.Model.UsesCompletionTokensField {
		sdkParams.MaxCompletionTokens = openai.Int(int64(params.MaxTokens))
	} else {
		sdkParams.MaxTokens = openai.Int(int64(params.MaxTokens))
	}

	if params.Model.HasFixedTemperature {
		sdkParams.Temperature = openai.Float(params.Model.FixedTemperature)
	}

	return sdkParams
}

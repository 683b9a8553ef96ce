// Package anthropic adapts the dispatcher's uniform call shape to the
// Anthropic messages API. The system instruction is a dedicated top-level
// parameter, not a message, and long prompts always stream: that is policy
// for this provider, not a workaround.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lexgate/dispatch/internal/domain"
	"github.com/lexgate/dispatch/internal/observability"
)

const (
	apiVersion = "2023-06-01"

	// Low fixed temperature suited to formal/legal drafting.
	draftingTemperature = 0.3
)

// Adapter implements domain.Adapter for Anthropic.
type Adapter struct {
	apiKey          string
	baseURL         string
	streamThreshold int
	httpClient      *http.Client
}

// NewAdapter creates a new Anthropic adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	threshold := config.StreamThreshold
	if threshold <= 0 {
		threshold = 1000
	}

	return &Adapter{
		apiKey:          config.APIKey,
		baseURL:         config.BaseURL,
		streamThreshold: threshold,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}, nil
}

// Provider returns the provider identifier.
func (a *Adapter) Provider() domain.ProviderID {
	return domain.ProviderAnthropic
}

// ShouldStream selects the streaming path for prompts longer than the
// configured threshold. Short prompts use a single blocking call.
func (a *Adapter) ShouldStream(params *domain.InvokeParams) bool {
	return len(params.Prompt) > a.streamThreshold
}

// Request/response structures for the messages API.
type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string         `json:"id"`
	Content []contentBlock `json:"content"`
	Model   string         `json:"model"`
	Usage   usagePayload   `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type usagePayload struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

func (u usagePayload) toRecord() *domain.UsageRecord {
	return &domain.UsageRecord{
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheCreationTokens: u.CacheCreationInputTokens,
		CacheReadTokens:     u.CacheReadInputTokens,
		Source:              domain.UsageAPIReported,
	}
}

// Stream event payloads. Usage only completes on the terminal
// message_delta/message_stop events, never per content chunk.
type streamEvent struct {
	Type    string        `json:"type"`
	Delta   streamDelta   `json:"delta"`
	Usage   *usagePayload `json:"usage"`
	Message *struct {
		Usage usagePayload `json:"usage"`
	} `json:"message"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type streamDelta struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Invoke performs a single blocking call to the messages API.
func (a *Adapter) Invoke(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error) {
	if params == nil {
		return nil, errors.New("params cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic API",
		observability.String("model", params.Model.ID))

	resp, err := a.post(ctx, a.shape(params, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed messagesResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&parsed); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode anthropic response: %w", decodeErr)
	}

	text := ""
	if len(parsed.Content) > 0 {
		text = parsed.Content[0].Text
	}

	return &domain.Invocation{
		Text:  text,
		Usage: parsed.Usage.toRecord(),
	}, nil
}

// InvokeStream folds the SSE event sequence into one Invocation. Text
// deltas are appended strictly in delivery order; usage resolves only when
// the terminal event arrives. A stream that closes without it returns the
// accumulated text with nil usage so the caller can estimate instead.
func (a *Adapter) InvokeStream(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error) {
	if params == nil {
		return nil, errors.New("params cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Anthropic streaming API",
		observability.String("model", params.Model.ID),
		observability.Int("prompt_chars", len(params.Prompt)))

	resp, err := a.post(ctx, a.shape(params, true))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(body))
	}

	var builder strings.Builder
	var inputTokens int
	var cacheCreation, cacheRead int
	var outputTokens int
	sawTerminalUsage := false

	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			inv := a.accumulated(&builder, inputTokens, outputTokens, cacheCreation, cacheRead, sawTerminalUsage)
			if errors.Is(readErr, io.EOF) {
				return inv, nil
			}
			// Timeout or transport closure mid-stream: keep partial text.
			return inv, fmt.Errorf("anthropic stream read failed: %w", readErr)
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event streamEvent
		if unmarshalErr := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); unmarshalErr != nil {
			continue
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				inputTokens = event.Message.Usage.InputTokens
				cacheCreation = event.Message.Usage.CacheCreationInputTokens
				cacheRead = event.Message.Usage.CacheReadInputTokens
			}
		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				builder.WriteString(event.Delta.Text)
			}
		case "message_delta":
			if event.Usage != nil {
				outputTokens = event.Usage.OutputTokens
				sawTerminalUsage = true
			}
		case "message_stop":
			return a.accumulated(&builder, inputTokens, outputTokens, cacheCreation, cacheRead, sawTerminalUsage), nil
		case "error":
			inv := a.accumulated(&builder, inputTokens, outputTokens, cacheCreation, cacheRead, sawTerminalUsage)
			if event.Error != nil {
				return inv, fmt.Errorf("anthropic stream error: %s", event.Error.Message)
			}
			return inv, errors.New("anthropic stream error")
		}
	}
}

func (a *Adapter) accumulated(
	builder *strings.Builder,
	inputTokens, outputTokens, cacheCreation, cacheRead int,
	sawTerminalUsage bool,
) *domain.Invocation {
	inv := &domain.Invocation{Text: builder.String()}
	if sawTerminalUsage {
		inv.Usage = &domain.UsageRecord{
			InputTokens:         inputTokens,
			OutputTokens:        outputTokens,
			CacheCreationTokens: cacheCreation,
			CacheReadTokens:     cacheRead,
			Source:              domain.UsageAPIReported,
		}
	}
	return inv
}

func (a *Adapter) shape(params *domain.InvokeParams, stream bool) messagesRequest {
	return messagesRequest{
		Model:     params.Model.ID,
		MaxTokens: params.MaxTokens,
		System:    params.SystemInstruction,
		Messages: []chatMessage{
			{Role: "user", Content: params.Prompt},
		},
		Temperature: draftingTemperature,
		Stream:      stream,
	}
}

func (a *Adapter) post(ctx context.Context, req messagesRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		a.baseURL+"/messages",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	return resp, nil
}

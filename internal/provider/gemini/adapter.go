// Package gemini adapts the dispatcher's uniform call shape to the Google
// generative language API. The system instruction is a structured request
// field; if the API surface rejects it, the adapter degrades to prepending
// the instruction to the prompt instead of failing the call. Usage counts
// can arrive as non-integer types from the wire and are coerced
// defensively.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lexgate/dispatch/internal/domain"
	"github.com/lexgate/dispatch/internal/observability"
)

const draftingTemperature = 0.3

// Adapter implements domain.Adapter for Google Gemini.
type Adapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAdapter creates a new Gemini adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, errors.New("Google API key is required")
	}

	return &Adapter{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}, nil
}

// Provider returns the provider identifier.
func (a *Adapter) Provider() domain.ProviderID {
	return domain.ProviderGoogle
}

// ShouldStream reports false; Gemini calls are always blocking.
func (a *Adapter) ShouldStream(_ *domain.InvokeParams) bool {
	return false
}

// tokenCount decodes whatever the wire delivers for a usage field into a
// non-negative int. Non-numeric values become zero instead of a type error.
type tokenCount int

func (t *tokenCount) UnmarshalJSON(data []byte) error {
	*t = 0

	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		return nil
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return nil
	}

	*t = tokenCount(value)
	return nil
}

// Request/response structures for the generateContent API.
type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata"`
}

type usageMetadata struct {
	PromptTokenCount        tokenCount `json:"promptTokenCount"`
	CandidatesTokenCount    tokenCount `json:"candidatesTokenCount"`
	TotalTokenCount         tokenCount `json:"totalTokenCount"`
	CachedContentTokenCount tokenCount `json:"cachedContentTokenCount"`
}

func (u *usageMetadata) toRecord() *domain.UsageRecord {
	if u == nil {
		return nil
	}
	if u.PromptTokenCount == 0 && u.CandidatesTokenCount == 0 {
		// No real metadata arrived; let the caller estimate instead.
		return nil
	}
	return &domain.UsageRecord{
		InputTokens:     int(u.PromptTokenCount),
		OutputTokens:    int(u.CandidatesTokenCount),
		CacheReadTokens: int(u.CachedContentTokenCount),
		Source:          domain.UsageAPIReported,
	}
}

// Invoke performs a single blocking generateContent call. A rejection of
// the structured system-instruction field triggers one retry with the
// instruction folded into the prompt text.
func (a *Adapter) Invoke(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error) {
	if params == nil {
		return nil, errors.New("params cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Gemini API",
		observability.String("model", params.Model.ID))

	inv, err := a.generate(ctx, params.Model.ID, a.shape(params, true))
	if err != nil && params.SystemInstruction != "" && rejectsSystemInstruction(err) {
		logger.Warn("Gemini rejected systemInstruction field, prepending to prompt",
			observability.Error(err))
		inv, err = a.generate(ctx, params.Model.ID, a.shape(params, false))
	}
	return inv, err
}

// InvokeStream folds the SSE chunk sequence of streamGenerateContent into
// one Invocation, taking usage from the last chunk that carries it.
func (a *Adapter) InvokeStream(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error) {
	if params == nil {
		return nil, errors.New("params cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling Gemini streaming API",
		observability.String("model", params.Model.ID))

	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?key=%s&alt=sse",
		a.baseURL, params.Model.ID, a.apiKey)

	resp, err := a.post(ctx, url, a.shape(params, true))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini API returned status %d: %s", resp.StatusCode, string(body))
	}

	var builder strings.Builder
	var usage *domain.UsageRecord

	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			inv := &domain.Invocation{Text: builder.String(), Usage: usage}
			if errors.Is(readErr, io.EOF) {
				return inv, nil
			}
			return inv, fmt.Errorf("gemini stream read failed: %w", readErr)
		}

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var chunk generateResponse
		if unmarshalErr := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); unmarshalErr != nil {
			continue
		}
		if len(chunk.Candidates) > 0 && len(chunk.Candidates[0].Content.Parts) > 0 {
			builder.WriteString(chunk.Candidates[0].Content.Parts[0].Text)
		}
		if record := chunk.UsageMetadata.toRecord(); record != nil {
			usage = record
		}
	}
}

func (a *Adapter) generate(ctx context.Context, modelID string, req generateRequest) (*domain.Invocation, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", a.baseURL, modelID, a.apiKey)

	resp, err := a.post(ctx, url, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed generateResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&parsed); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", decodeErr)
	}

	text := ""
	if len(parsed.Candidates) > 0 && len(parsed.Candidates[0].Content.Parts) > 0 {
		text = parsed.Candidates[0].Content.Parts[0].Text
	}

	return &domain.Invocation{
		Text:  text,
		Usage: parsed.UsageMetadata.toRecord(),
	}, nil
}

func (a *Adapter) shape(params *domain.InvokeParams, structuredInstruction bool) generateRequest {
	prompt := params.Prompt
	req := generateRequest{
		GenerationConfig: &generationConfig{
			MaxOutputTokens: params.MaxTokens,
			Temperature:     draftingTemperature,
		},
	}

	if params.SystemInstruction != "" {
		if structuredInstruction {
			req.SystemInstruction = &content{
				Parts: []part{{Text: params.SystemInstruction}},
			}
		} else {
			prompt = params.SystemInstruction + "\n\n" + prompt
		}
	}

	req.Contents = []content{
		{Role: "user", Parts: []part{{Text: prompt}}},
	}
	return req
}

func (a *Adapter) post(ctx context.Context, url string, req generateRequest) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal gemini request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	return resp, nil
}

// rejectsSystemInstruction detects an API surface that does not know the
// structured instruction field.
func rejectsSystemInstruction(err error) bool {
	msg := err.Error()
	if !strings.Contains(msg, "status 400") {
		return false
	}
	return strings.Contains(msg, "systemInstruction") ||
		strings.Contains(msg, "system_instruction") ||
		strings.Contains(msg, "Unknown name")
}

package domain_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexgate/dispatch/internal/domain"
)

// mockAdapter is a configurable domain.Adapter for testing.
type mockAdapter struct {
	provider     domain.ProviderID
	shouldStream bool

	invokeFunc func(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error)
	streamFunc func(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error)

	mu          sync.Mutex
	lastParams  *domain.InvokeParams
	invokeCalls int
	streamCalls int
}

func (m *mockAdapter) Provider() domain.ProviderID {
	return m.provider
}

func (m *mockAdapter) ShouldStream(_ *domain.InvokeParams) bool {
	return m.shouldStream
}

func (m *mockAdapter) Invoke(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error) {
	m.mu.Lock()
	m.lastParams = params
	m.invokeCalls++
	m.mu.Unlock()
	if m.invokeFunc != nil {
		return m.invokeFunc(ctx, params)
	}
	return &domain.Invocation{Text: "stubbed response"}, nil
}

func (m *mockAdapter) InvokeStream(ctx context.Context, params *domain.InvokeParams) (*domain.Invocation, error) {
	m.mu.Lock()
	m.lastParams = params
	m.streamCalls++
	m.mu.Unlock()
	if m.streamFunc != nil {
		return m.streamFunc(ctx, params)
	}
	return &domain.Invocation{Text: "stubbed streamed response"}, nil
}

// mockRegistry is a minimal domain.AdapterRegistry for testing.
type mockRegistry struct {
	adapters map[domain.ProviderID]domain.Adapter
}

func newMockRegistry(adapters ...domain.Adapter) *mockRegistry {
	m := &mockRegistry{adapters: make(map[domain.ProviderID]domain.Adapter)}
	for _, a := range adapters {
		m.adapters[a.Provider()] = a
	}
	return m
}

func (m *mockRegistry) Register(adapter domain.Adapter) error {
	m.adapters[adapter.Provider()] = adapter
	return nil
}

func (m *mockRegistry) Get(provider domain.ProviderID) (domain.Adapter, error) {
	adapter, ok := m.adapters[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAdapterNotRegistered, provider)
	}
	return adapter, nil
}

func (m *mockRegistry) List() []domain.ProviderID {
	providers := make([]domain.ProviderID, 0, len(m.adapters))
	for p := range m.adapters {
		providers = append(providers, p)
	}
	return providers
}

// mapInstructions is a fixed instruction store.
type mapInstructions map[string]string

func (m mapInstructions) Lookup(_ context.Context, modelID string) (string, bool) {
	instruction, ok := m[modelID]
	return instruction, ok
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingPublisher) Publish(_ context.Context, eventType string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func seededCatalog(t *testing.T) domain.Catalog {
	t.Helper()
	catalog := domain.NewInMemoryCatalog()
	require.NoError(t, domain.Seed(context.Background(), catalog))
	return catalog
}

func newDispatcher(t *testing.T, adapters ...domain.Adapter) (*domain.Dispatcher, *mockRegistry) {
	t.Helper()
	registry := newMockRegistry(adapters...)
	estimator := charEstimator{}
	dispatcher := domain.NewDispatcher(
		seededCatalog(t),
		registry,
		estimator,
		domain.NewStandardCostCalculator(estimator),
		mapInstructions{},
	)
	return dispatcher, registry
}

func TestDispatcher_Generate_UnknownModel(t *testing.T) {
	dispatcher, _ := newDispatcher(t)

	result := dispatcher.Generate(context.Background(), "anything", "nonexistent-model-id", 2000)

	require.False(t, result.Success)
	require.Contains(t, result.ErrorDetail, "nonexistent-model-id")
	require.Equal(t, "nonexistent-model-id", result.ModelUsed)

	// Request tokens are still accounted on total failure.
	require.Equal(t, len("anything")/4, result.Usage.InputTokens)
	require.Equal(t, domain.UsageEstimated, result.Usage.Source)
	require.Zero(t, result.Cost.TotalCost)
}

func TestDispatcher_Generate_DisabledModel(t *testing.T) {
	catalog := domain.NewInMemoryCatalog()
	require.NoError(t, catalog.Register(context.Background(), domain.ModelDescriptor{
		ID:       "retired-model",
		Provider: domain.ProviderOpenAI,
		Enabled:  false,
	}))

	estimator := charEstimator{}
	dispatcher := domain.NewDispatcher(
		catalog,
		newMockRegistry(),
		estimator,
		domain.NewStandardCostCalculator(estimator),
		mapInstructions{},
	)

	result := dispatcher.Generate(context.Background(), "draft this", "retired-model", 2000)

	require.False(t, result.Success)
	require.Contains(t, result.ErrorDetail, "disabled")
	require.Equal(t, len("draft this")/4, result.Usage.InputTokens)
	require.Zero(t, result.Cost.TotalCost)
}

func TestDispatcher_Generate_PrefersAPIReportedUsage(t *testing.T) {
	adapter := &mockAdapter{
		provider: domain.ProviderAnthropic,
		invokeFunc: func(_ context.Context, _ *domain.InvokeParams) (*domain.Invocation, error) {
			return &domain.Invocation{
				Text: "Minuta da decisão",
				Usage: &domain.UsageRecord{
					InputTokens:         10,
					OutputTokens:        20,
					CacheCreationTokens: 7,
					CacheReadTokens:     3,
				},
			}, nil
		},
	}
	dispatcher, _ := newDispatcher(t, adapter)

	result := dispatcher.Generate(context.Background(), "Decida o caso X", "claude-3-5-sonnet-20241022", 2000)

	require.True(t, result.Success)
	require.Empty(t, result.ErrorDetail)
	require.Equal(t, domain.UsageAPIReported, result.Usage.Source)
	require.Equal(t, 10, result.Usage.InputTokens)
	require.Equal(t, 20, result.Usage.OutputTokens)

	// Cache fields thread through untouched and unpriced.
	require.Equal(t, 7, result.Usage.CacheCreationTokens)
	require.Equal(t, 3, result.Usage.CacheReadTokens)

	require.InDelta(t, 0.00003, result.Cost.InputCost, 1e-9)
	require.InDelta(t, 0.0003, result.Cost.OutputCost, 1e-9)
	require.InDelta(t, 0.00033, result.Cost.TotalCost, 1e-9)
	require.Equal(t, domain.ProviderAnthropic, result.ProviderUsed)
}

func TestDispatcher_Generate_EstimatesWhenUsageAbsent(t *testing.T) {
	adapter := &mockAdapter{
		provider: domain.ProviderAnthropic,
		invokeFunc: func(_ context.Context, _ *domain.InvokeParams) (*domain.Invocation, error) {
			return &domain.Invocation{Text: "streamed text without terminal usage"}, nil
		},
	}
	dispatcher, _ := newDispatcher(t, adapter)

	result := dispatcher.Generate(context.Background(), "Decida o caso X", "claude-3-5-sonnet-20241022", 2000)

	require.True(t, result.Success)
	require.Equal(t, domain.UsageEstimated, result.Usage.Source)
	require.Equal(t, len("Decida o caso X")/4, result.Usage.InputTokens)
	require.Equal(t, len("streamed text without terminal usage")/4, result.Usage.OutputTokens)
}

func TestDispatcher_Generate_ProviderError(t *testing.T) {
	adapter := &mockAdapter{
		provider: domain.ProviderAnthropic,
		invokeFunc: func(_ context.Context, _ *domain.InvokeParams) (*domain.Invocation, error) {
			return nil, errors.New("401 authentication error")
		},
	}
	dispatcher, _ := newDispatcher(t, adapter)

	result := dispatcher.Generate(context.Background(), "Decida o caso X", "claude-3-5-sonnet-20241022", 2000)

	require.False(t, result.Success)
	require.Contains(t, result.ErrorDetail, "anthropic")
	require.Contains(t, result.ErrorDetail, "401 authentication error")
	require.NotEmpty(t, result.Text)

	// Estimate path over prompt + failure text.
	require.Equal(t, domain.UsageEstimated, result.Usage.Source)
	require.Equal(t, len("Decida o caso X")/4, result.Usage.InputTokens)
	require.Positive(t, result.Usage.OutputTokens)
}

func TestDispatcher_Generate_KeepsPartialTextOnError(t *testing.T) {
	adapter := &mockAdapter{
		provider:     domain.ProviderAnthropic,
		shouldStream: true,
		streamFunc: func(_ context.Context, _ *domain.InvokeParams) (*domain.Invocation, error) {
			return &domain.Invocation{Text: "partial draft cut off by timeout"}, context.DeadlineExceeded
		},
	}
	dispatcher, _ := newDispatcher(t, adapter)

	result := dispatcher.Generate(context.Background(), "Decida o caso X", "claude-3-5-sonnet-20241022", 2000)

	require.False(t, result.Success)
	require.Equal(t, "partial draft cut off by timeout", result.Text)
	require.Contains(t, result.ErrorDetail, "deadline")
	require.Equal(t, domain.UsageEstimated, result.Usage.Source)
}

func TestDispatcher_Generate_StreamSelection(t *testing.T) {
	tests := []struct {
		name         string
		shouldStream bool
	}{
		{name: "policy selects streaming", shouldStream: true},
		{name: "policy selects blocking", shouldStream: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := &mockAdapter{
				provider:     domain.ProviderAnthropic,
				shouldStream: tt.shouldStream,
			}
			dispatcher, _ := newDispatcher(t, adapter)

			result := dispatcher.Generate(context.Background(), "Decida o caso X", "claude-3-5-sonnet-20241022", 2000)
			require.True(t, result.Success)

			if tt.shouldStream {
				require.Equal(t, 1, adapter.streamCalls)
				require.Zero(t, adapter.invokeCalls)
			} else {
				require.Equal(t, 1, adapter.invokeCalls)
				require.Zero(t, adapter.streamCalls)
			}
		})
	}
}

func TestDispatcher_Generate_MaxTokensShaping(t *testing.T) {
	tests := []struct {
		name      string
		modelID   string
		requested int
		expected  int
	}{
		{
			name:      "sentinel selects model default",
			modelID:   "claude-3-5-sonnet-20241022",
			requested: domain.DefaultMaxTokens,
			expected:  8192,
		},
		{
			name:      "sentinel on Gemini gets the reasoning floor",
			modelID:   "gemini-2.0-flash",
			requested: domain.DefaultMaxTokens,
			expected:  500,
		},
		{
			name:      "explicit budget passes through",
			modelID:   "claude-3-5-sonnet-20241022",
			requested: 1234,
			expected:  1234,
		},
		{
			name:      "oversized budget clamps to the model limit",
			modelID:   "claude-3-5-sonnet-20241022",
			requested: 50000,
			expected:  8192,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anthropicAdapter := &mockAdapter{provider: domain.ProviderAnthropic}
			googleAdapter := &mockAdapter{provider: domain.ProviderGoogle}
			dispatcher, _ := newDispatcher(t, anthropicAdapter, googleAdapter)

			result := dispatcher.Generate(context.Background(), "Decida o caso X", tt.modelID, tt.requested)
			require.True(t, result.Success)

			var params *domain.InvokeParams
			if anthropicAdapter.lastParams != nil {
				params = anthropicAdapter.lastParams
			} else {
				params = googleAdapter.lastParams
			}
			require.NotNil(t, params)
			require.Equal(t, tt.expected, params.MaxTokens)
		})
	}
}

func TestDispatcher_Generate_SystemInstructionIsThreaded(t *testing.T) {
	adapter := &mockAdapter{provider: domain.ProviderAnthropic}
	registry := newMockRegistry(adapter)
	estimator := charEstimator{}
	dispatcher := domain.NewDispatcher(
		seededCatalog(t),
		registry,
		estimator,
		domain.NewStandardCostCalculator(estimator),
		mapInstructions{"claude-3-5-sonnet-20241022": "Redija de forma objetiva."},
	)

	result := dispatcher.Generate(context.Background(), "Decida o caso X", "claude-3-5-sonnet-20241022", 2000)

	require.True(t, result.Success)
	require.NotNil(t, adapter.lastParams)
	require.Equal(t, "Redija de forma objetiva.", adapter.lastParams.SystemInstruction)
}

func TestDispatcher_Generate_OfflineFallback(t *testing.T) {
	// No adapter registered for anthropic.
	dispatcher, _ := newDispatcher(t)

	result := dispatcher.Generate(context.Background(), "Decida o caso X", "claude-3-5-sonnet-20241022", 2000)

	require.False(t, result.Success)
	require.Contains(t, result.ErrorDetail, "not configured")
	require.Contains(t, result.Text, "Simulated")
	require.Contains(t, result.Text, "Decida o caso X")
	require.Equal(t, domain.UsageEstimated, result.Usage.Source)
	require.Positive(t, result.Usage.InputTokens)
}

func TestDispatcher_Generate_IdempotentAccounting(t *testing.T) {
	adapter := &mockAdapter{
		provider: domain.ProviderAnthropic,
		invokeFunc: func(_ context.Context, _ *domain.InvokeParams) (*domain.Invocation, error) {
			return &domain.Invocation{
				Text:  "deterministic",
				Usage: &domain.UsageRecord{InputTokens: 10, OutputTokens: 20},
			}, nil
		},
	}
	dispatcher, _ := newDispatcher(t, adapter)

	first := dispatcher.Generate(context.Background(), "Decida o caso X", "claude-3-5-sonnet-20241022", 2000)
	second := dispatcher.Generate(context.Background(), "Decida o caso X", "claude-3-5-sonnet-20241022", 2000)

	require.Equal(t, first.Usage, second.Usage)
	require.Equal(t, first.Cost, second.Cost)
}

func TestDispatcher_Generate_PublishesAuditEvents(t *testing.T) {
	adapter := &mockAdapter{provider: domain.ProviderAnthropic}
	registry := newMockRegistry(adapter)
	estimator := charEstimator{}
	publisher := &recordingPublisher{}
	dispatcher := domain.NewDispatcher(
		seededCatalog(t),
		registry,
		estimator,
		domain.NewStandardCostCalculator(estimator),
		mapInstructions{},
	).WithEventPublisher(publisher)

	result := dispatcher.Generate(context.Background(), "Decida o caso X", "claude-3-5-sonnet-20241022", 2000)

	require.True(t, result.Success)
	require.Equal(t, []string{"generation.request", "generation.outcome"}, publisher.events)

	// Same outcome without a publisher attached.
	bare, _ := newDispatcher(t, &mockAdapter{provider: domain.ProviderAnthropic})
	bareResult := bare.Generate(context.Background(), "Decida o caso X", "claude-3-5-sonnet-20241022", 2000)
	require.Equal(t, result.Success, bareResult.Success)
	require.Equal(t, result.Usage, bareResult.Usage)
}

func TestDispatcher_Generate_ConcurrentCalls(t *testing.T) {
	adapter := &mockAdapter{
		provider: domain.ProviderAnthropic,
		invokeFunc: func(_ context.Context, params *domain.InvokeParams) (*domain.Invocation, error) {
			return &domain.Invocation{
				Text:  params.Prompt,
				Usage: &domain.UsageRecord{InputTokens: len(params.Prompt), OutputTokens: len(params.Prompt)},
			}, nil
		},
	}
	dispatcher, _ := newDispatcher(t, adapter)

	const workers = 16
	var wg sync.WaitGroup
	results := make([]*domain.GenerationResult, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prompt := fmt.Sprintf("prompt-%d", i)
			results[i] = dispatcher.Generate(context.Background(), prompt, "claude-3-5-sonnet-20241022", 2000)
		}(i)
	}
	wg.Wait()

	for i, result := range results {
		require.True(t, result.Success)
		require.Equal(t, fmt.Sprintf("prompt-%d", i), result.Text)
		require.Equal(t, len(result.Text), result.Usage.InputTokens)
	}
}

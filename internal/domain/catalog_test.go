package domain_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lexgate/dispatch/internal/domain"
)

func TestInMemoryCatalog_RegisterAndResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("register and resolve", func(t *testing.T) {
		catalog := domain.NewInMemoryCatalog()

		err := catalog.Register(ctx, *sonnetDescriptor())
		require.NoError(t, err)

		desc, err := catalog.Resolve(ctx, "claude-3-5-sonnet-20241022")
		require.NoError(t, err)
		require.Equal(t, domain.ProviderAnthropic, desc.Provider)
		require.InDelta(t, 3.0, desc.PriceInputPerMillion, 1e-9)
		require.InDelta(t, 15.0, desc.PriceOutputPerMillion, 1e-9)
	})

	t.Run("unknown id returns ErrModelNotFound", func(t *testing.T) {
		catalog := domain.NewInMemoryCatalog()

		_, err := catalog.Resolve(ctx, "nonexistent-model-id")
		require.ErrorIs(t, err, domain.ErrModelNotFound)
		require.Contains(t, err.Error(), "nonexistent-model-id")
	})

	t.Run("duplicate id is rejected", func(t *testing.T) {
		catalog := domain.NewInMemoryCatalog()

		require.NoError(t, catalog.Register(ctx, *sonnetDescriptor()))
		err := catalog.Register(ctx, *sonnetDescriptor())
		require.Error(t, err)
		require.Contains(t, err.Error(), "already registered")
	})

	t.Run("empty id is rejected", func(t *testing.T) {
		catalog := domain.NewInMemoryCatalog()

		err := catalog.Register(ctx, domain.ModelDescriptor{Provider: domain.ProviderOpenAI})
		require.Error(t, err)
	})

	t.Run("disabled models still resolve", func(t *testing.T) {
		catalog := domain.NewInMemoryCatalog()
		desc := *sonnetDescriptor()
		desc.Enabled = false

		require.NoError(t, catalog.Register(ctx, desc))

		resolved, err := catalog.Resolve(ctx, desc.ID)
		require.NoError(t, err)
		require.False(t, resolved.Enabled)
	})
}

func TestInMemoryCatalog_CapabilityDerivation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		id            string
		provider      domain.ProviderID
		wantReasoning bool
	}{
		{
			name:          "o3 prefix is a reasoning variant",
			id:            "o3-mini",
			provider:      domain.ProviderOpenAI,
			wantReasoning: true,
		},
		{
			name:          "o4 prefix is a reasoning variant",
			id:            "o4-mini",
			provider:      domain.ProviderOpenAI,
			wantReasoning: true,
		},
		{
			name:          "ordinary model keeps the standard field",
			id:            "gpt-4o",
			provider:      domain.ProviderOpenAI,
			wantReasoning: false,
		},
		{
			name:          "prefix on another provider is not special",
			id:            "o3-lookalike",
			provider:      domain.ProviderGoogle,
			wantReasoning: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := domain.NewInMemoryCatalog()
			err := catalog.Register(ctx, domain.ModelDescriptor{
				ID:       tt.id,
				Provider: tt.provider,
				Enabled:  true,
			})
			require.NoError(t, err)

			desc, err := catalog.Resolve(ctx, tt.id)
			require.NoError(t, err)
			require.Equal(t, tt.wantReasoning, desc.UsesCompletionTokensField)
			require.Equal(t, tt.wantReasoning, desc.HasFixedTemperature)
			if tt.wantReasoning {
				require.InDelta(t, 1.0, desc.FixedTemperature, 1e-9)
			}
		})
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	catalog := domain.NewInMemoryCatalog()

	err := domain.Seed(ctx, catalog)
	require.NoError(t, err)

	require.NotEmpty(t, catalog.List(ctx))

	for _, id := range []string{"gpt-4o", "o3-mini", "claude-3-5-sonnet-20241022", "gemini-2.0-flash"} {
		desc, resolveErr := catalog.Resolve(ctx, id)
		require.NoError(t, resolveErr, id)
		require.True(t, desc.Enabled, id)
	}

	t.Run("seeding twice fails on duplicates", func(t *testing.T) {
		require.Error(t, domain.Seed(ctx, catalog))
	})
}

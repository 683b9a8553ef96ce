// Command lexgate runs one generation through the dispatcher: model id as
// the first argument, optional max-tokens as the second, prompt on stdin,
// the result envelope as JSON on stdout. The surrounding web application
// wires the same container in-process; this binary is the standalone shell
// around the library.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/lexgate/dispatch/internal/config"
	"github.com/lexgate/dispatch/internal/domain"
	"github.com/lexgate/dispatch/internal/instruction"
	"github.com/lexgate/dispatch/internal/observability"
	"github.com/lexgate/dispatch/internal/provider/anthropic"
	"github.com/lexgate/dispatch/internal/provider/echo"
	"github.com/lexgate/dispatch/internal/provider/gemini"
	"github.com/lexgate/dispatch/internal/provider/openai"
	"github.com/lexgate/dispatch/internal/provider/registry"
	"github.com/lexgate/dispatch/internal/tokenizer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: lexgate <model-id> [max-tokens] < prompt.txt")
		os.Exit(2)
	}

	modelID := os.Args[1]
	maxTokens := domain.DefaultMaxTokens
	if len(os.Args) > 2 {
		parsed, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid max-tokens %q: %v", os.Args[2], err)
		}
		maxTokens = parsed
	}

	prompt, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("failed to read prompt from stdin: %v", err)
	}

	container := buildContainer()

	err = container.Invoke(func(dispatcher *domain.Dispatcher) error {
		ctx := observability.WithRequestID(context.Background(), observability.GenerateRequestID())
		ctx = observability.WithModel(ctx, modelID)

		result := dispatcher.Generate(ctx, string(prompt), modelID, maxTokens)

		output := struct {
			*domain.GenerationResult
			DisplayCost domain.DisplayCost `json:"display_cost"`
		}{result, result.Cost.Display()}

		encoded, marshalErr := json.MarshalIndent(output, "", "  ")
		if marshalErr != nil {
			return fmt.Errorf("failed to encode result: %w", marshalErr)
		}
		fmt.Println(string(encoded))
		return nil
	})
	if err != nil {
		log.Fatalf("generation failed to run: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}

	// Catalog with the reference model set
	if err := container.Provide(func() (domain.Catalog, error) {
		ctx := context.Background()
		catalog := domain.NewInMemoryCatalog()
		if err := domain.Seed(ctx, catalog); err != nil {
			return nil, err
		}
		// Free local model for smoke-testing the wiring.
		if err := catalog.Register(ctx, domain.ModelDescriptor{
			ID:          echo.ModelID,
			Provider:    domain.ProviderEcho,
			DisplayName: "Echo",
			Enabled:     true,
		}); err != nil {
			return nil, err
		}
		return catalog, nil
	}); err != nil {
		log.Fatalf("Failed to provide catalog: %v", err)
	}

	// Adapter registry
	if err := container.Provide(func() domain.AdapterRegistry {
		return registry.NewRegistry()
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// Token estimation and cost calculation
	if err := container.Provide(func() domain.TokenEstimator {
		return tokenizer.New()
	}); err != nil {
		log.Fatalf("Failed to provide estimator: %v", err)
	}
	if err := container.Provide(func(estimator domain.TokenEstimator) domain.CostCalculator {
		return domain.NewStandardCostCalculator(estimator)
	}); err != nil {
		log.Fatalf("Failed to provide cost calculator: %v", err)
	}

	// Instruction store: Redis when configured, in-memory otherwise.
	if err := container.Provide(func(cfg *config.RedisConfig) domain.InstructionStore {
		if cfg.Addr == "" {
			return instruction.NewStatic()
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		return instruction.NewRedis(client)
	}); err != nil {
		log.Fatalf("Failed to provide instruction store: %v", err)
	}

	// Provider adapters, each optional on its API key.
	if err := container.Invoke(registerAdapters); err != nil {
		log.Fatalf("Failed to register adapters: %v", err)
	}

	// Dispatcher
	if err := container.Provide(func(
		catalog domain.Catalog,
		adapters domain.AdapterRegistry,
		estimator domain.TokenEstimator,
		costs domain.CostCalculator,
		instructions domain.InstructionStore,
		cfg *config.DispatchConfig,
		logger *zap.Logger,
	) *domain.Dispatcher {
		return domain.NewDispatcher(catalog, adapters, estimator, costs, instructions).
			WithEventPublisher(observability.NewEventBus(logger)).
			WithInvokeTimeout(time.Duration(cfg.InvokeTimeout) * time.Second)
	}); err != nil {
		log.Fatalf("Failed to provide dispatcher: %v", err)
	}

	return container
}

// registerAdapters wires every adapter whose API key is configured. A
// missing key just skips that provider; the dispatcher falls back to a
// simulated draft for its models.
func registerAdapters(
	reg domain.AdapterRegistry,
	openaiCfg *openai.Config,
	anthropicCfg *anthropic.Config,
	geminiCfg *gemini.Config,
) error {
	if openaiCfg.APIKey != "" {
		adapter, err := openai.NewAdapter(*openaiCfg)
		if err != nil {
			return fmt.Errorf("failed to build OpenAI adapter: %w", err)
		}
		if err := reg.Register(adapter); err != nil {
			return fmt.Errorf("failed to register OpenAI adapter: %w", err)
		}
	}

	if anthropicCfg.APIKey != "" {
		adapter, err := anthropic.NewAdapter(*anthropicCfg)
		if err != nil {
			return fmt.Errorf("failed to build Anthropic adapter: %w", err)
		}
		if err := reg.Register(adapter); err != nil {
			return fmt.Errorf("failed to register Anthropic adapter: %w", err)
		}
	}

	if geminiCfg.APIKey != "" {
		adapter, err := gemini.NewAdapter(*geminiCfg)
		if err != nil {
			return fmt.Errorf("failed to build Gemini adapter: %w", err)
		}
		if err := reg.Register(adapter); err != nil {
			return fmt.Errorf("failed to register Gemini adapter: %w", err)
		}
	}

	return reg.Register(echo.NewAdapter())
}

package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/lexgate/dispatch/internal/provider/anthropic"
	"github.com/lexgate/dispatch/internal/provider/gemini"
	"github.com/lexgate/dispatch/internal/provider/openai"
)

// Config represents the dispatcher configuration.
type Config struct {
	Dispatch  DispatchConfig
	Redis     RedisConfig
	OpenAI    openai.Config
	Anthropic anthropic.Config
	Gemini    gemini.Config
}

// DispatchConfig contains dispatcher-level settings.
type DispatchConfig struct {
	// InvokeTimeout bounds the whole invoking phase in seconds, stream
	// consumption included. Zero disables the dispatcher-level bound.
	InvokeTimeout int `env:"DISPATCH_INVOKE_TIMEOUT" envDefault:"600"`
}

// RedisConfig contains the optional Redis instruction store settings.
// An empty Addr keeps instructions in memory.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB"       envDefault:"0"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out

	Dispatch  *DispatchConfig
	Redis     *RedisConfig
	OpenAI    *openai.Config
	Anthropic *anthropic.Config
	Gemini    *gemini.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Dispatch:  &cfg.Dispatch,
		Redis:     &cfg.Redis,
		OpenAI:    &cfg.OpenAI,
		Anthropic: &cfg.Anthropic,
		Gemini:    &cfg.Gemini,
	}
}

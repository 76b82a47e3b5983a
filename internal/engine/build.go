package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/cinesense/internal/config"
)

// breakerOpenTimeout is how long an open breaker waits before letting a
// trial request through.
const breakerOpenTimeout = 30 * time.Second

// Settings selects and configures the text generation backends.
type Settings struct {
	Enabled          bool   `json:"enabled"`
	Provider         string `json:"provider" validate:"required,oneof=ollama openrouter"`
	FallbackProvider string `json:"fallback_provider,omitempty" validate:"omitempty,oneof=ollama openrouter"`
	OllamaHost       string `json:"ollama_host" validate:"omitempty,url"`
	OllamaModel      string `json:"ollama_model"`
	OpenRouterModel  string `json:"openrouter_model,omitempty"`

	OpenRouterAPIKey string `json:"-"`
	BreakerFailures  int    `json:"-"`
}

// SettingsFromConfig derives backend settings from the loaded configuration.
func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		Enabled:          cfg.AI.Enabled,
		Provider:         cfg.AI.Provider,
		FallbackProvider: cfg.AI.FallbackProvider,
		OllamaHost:       cfg.Ollama.BaseURL,
		OllamaModel:      cfg.Ollama.Model,
		OpenRouterModel:  cfg.OpenRouter.Model,
		OpenRouterAPIKey: cfg.OpenRouter.APIKey,
		BreakerFailures:  cfg.AI.BreakerFailures,
	}
}

// Build assembles the generator chain for s: the primary provider, then the
// fallback provider if different, each instrumented and behind its own
// circuit breaker. It returns nil, nil when generation is disabled.
func Build(s Settings, logger *slog.Logger) (Generator, error) {
	if !s.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	providers := []string{s.Provider}
	if s.FallbackProvider != "" && s.FallbackProvider != s.Provider {
		providers = append(providers, s.FallbackProvider)
	}

	chain := &Fallback{Logger: logger}
	for _, p := range providers {
		gen, err := newBackend(p, s)
		if err != nil {
			return nil, err
		}
		gen = NewBreaker(p, Instrument(p, gen), uint32(max(s.BreakerFailures, 1)), breakerOpenTimeout)
		chain.Backends = append(chain.Backends, Named{Name: p, Gen: gen})
	}
	return chain, nil
}

func newBackend(provider string, s Settings) (Generator, error) {
	switch provider {
	case "ollama":
		if s.OllamaHost == "" || s.OllamaModel == "" {
			return nil, fmt.Errorf("ollama: host and model are required")
		}
		return NewOllamaGenerator(s.OllamaHost, s.OllamaModel), nil
	case "openrouter":
		if s.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter: api key is required (set CINESENSE_OPENROUTER_API_KEY)")
		}
		return NewOpenRouterGenerator(s.OpenRouterAPIKey, s.OpenRouterModel), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", provider)
	}
}

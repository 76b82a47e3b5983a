package engine

import (
	"context"

	"github.com/kalambet/cinesense/internal/openrouter"
)

// OpenRouterGenerator generates text through the OpenRouter API.
type OpenRouterGenerator struct {
	client *openrouter.Client
	model  string
}

func NewOpenRouterGenerator(apiKey, model string) *OpenRouterGenerator {
	return &OpenRouterGenerator{client: openrouter.NewClient(apiKey), model: model}
}

// NewOpenRouterGeneratorWithClient is NewOpenRouterGenerator with a
// preconfigured client (for testing).
func NewOpenRouterGeneratorWithClient(c *openrouter.Client, model string) *OpenRouterGenerator {
	return &OpenRouterGenerator{client: c, model: model}
}

func (g *OpenRouterGenerator) Generate(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	return g.client.Complete(ctx, g.model, prompt, expectJSON)
}

func (g *OpenRouterGenerator) Name() string { return "openrouter" }

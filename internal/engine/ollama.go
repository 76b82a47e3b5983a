package engine

import (
	"context"
	"io"

	"github.com/kalambet/cinesense/internal/ollama"
)

// OllamaGenerator generates text with a model served by Ollama.
type OllamaGenerator struct {
	client *ollama.Client
	model  string
}

// NewOllamaGenerator creates an OllamaGenerator backed by an Ollama server at baseURL.
func NewOllamaGenerator(baseURL, model string) *OllamaGenerator {
	return &OllamaGenerator{client: ollama.New(baseURL), model: model}
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, expectJSON bool) (string, error) {
	return g.client.Generate(ctx, g.model, prompt, expectJSON)
}

func (g *OllamaGenerator) Name() string { return "ollama" }

// EnsureReady verifies the server is up and the model is pulled and warm.
func (g *OllamaGenerator) EnsureReady(ctx context.Context, w io.Writer) error {
	return ollama.EnsureReady(ctx, g.client, g.model, w)
}

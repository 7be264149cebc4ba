// Package embedders provides embedder types for the `embedders` config
// section.
package embedders

import (
	"context"
	"fmt"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
	lcembeddings "github.com/tmc/langchaingo/embeddings"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

// OllamaConfig configures the `ollama` embedder type.
type OllamaConfig struct {
	ModelName string `json:"model_name"`
	BaseURL   string `json:"base_url,omitempty"`
}

// OllamaEmbedder embeds text with a local Ollama embedding model.
type OllamaEmbedder struct {
	embedder *lcembeddings.EmbedderImpl
}

func init() {
	aiq.Register_Embedder("ollama", func(settings map[string]any) (aiq.Embedder, error) {
		var cfg OllamaConfig
		if err := config.Decode(settings, &cfg); err != nil {
			return nil, err
		}
		return NewOllama(cfg)
	})
}

// NewOllama creates an Ollama-backed embedder.
func NewOllama(cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("ollama embedder requires model_name")
	}
	opts := []lcollama.Option{lcollama.WithModel(cfg.ModelName)}
	if cfg.BaseURL != "" {
		opts = append(opts, lcollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := lcollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama embedding client: %w", err)
	}
	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &OllamaEmbedder{embedder: embedder}, nil
}

func (e *OllamaEmbedder) Embed_Documents(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	return vectors, nil
}

func (e *OllamaEmbedder) Embed_Query(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vector, nil
}

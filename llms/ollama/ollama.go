package ollama

import (
	"context"
	"fmt"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
	"github.com/aiqtoolkit/aiq/llms"
	lcllms "github.com/tmc/langchaingo/llms"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

// Config for the `ollama` llm type.
type Config struct {
	ModelName   string  `json:"model_name"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// Ollama_Model talks to a local Ollama server through langchaingo.
type Ollama_Model struct {
	client *lcollama.LLM
	cfg    Config
}

func init() {
	aiq.Register_LLM("ollama", func(settings map[string]any) (llms.Model, error) {
		var cfg Config
		if err := config.Decode(settings, &cfg); err != nil {
			return nil, err
		}
		return New(cfg)
	})
}

// New creates an Ollama model client.
func New(cfg Config) (*Ollama_Model, error) {
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("ollama llm requires model_name")
	}
	opts := []lcollama.Option{lcollama.WithModel(cfg.ModelName)}
	if cfg.BaseURL != "" {
		opts = append(opts, lcollama.WithServerURL(cfg.BaseURL))
	}
	client, err := lcollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return &Ollama_Model{client: client, cfg: cfg}, nil
}

func (m *Ollama_Model) callOptions() []lcllms.CallOption {
	var opts []lcllms.CallOption
	if m.cfg.Temperature > 0 {
		opts = append(opts, lcllms.WithTemperature(m.cfg.Temperature))
	}
	return opts
}

func (m *Ollama_Model) Model_Request(ctx context.Context, request llms.Model_Request, tools []llms.ToolDeclaration) (llms.Model_Response, error) {
	return llms.GenerateLangchain(ctx, m.client, request, tools, m.callOptions()...)
}

func (m *Ollama_Model) Stream_Model_Request(ctx context.Context, request llms.Model_Request, tools []llms.ToolDeclaration) (<-chan llms.Model_Response, <-chan error) {
	return llms.StreamLangchain(ctx, m.client, request, tools, m.callOptions()...)
}

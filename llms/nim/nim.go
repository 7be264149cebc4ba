// Package nim provides the `nim` llm type for NVIDIA NIM endpoints. NIM
// serves an OpenAI-compatible chat completions API, so the client is the
// langchaingo openai client pointed at the NIM base URL.
package nim

import (
	"context"
	"fmt"
	"os"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
	"github.com/aiqtoolkit/aiq/llms"
	lcllms "github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

const defaultBaseURL = "https://integrate.api.nvidia.com/v1"

// Config for the `nim` llm type.
type Config struct {
	ModelName   string  `json:"model_name"`
	BaseURL     string  `json:"base_url,omitempty"`
	APIKey      string  `json:"api_key,omitempty"` // falls back to NVIDIA_API_KEY
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// NIM_Model is an OpenAI-protocol client against a NIM endpoint.
type NIM_Model struct {
	client *lcopenai.LLM
	cfg    Config
}

func init() {
	aiq.Register_LLM("nim", func(settings map[string]any) (llms.Model, error) {
		var cfg Config
		if err := config.Decode(settings, &cfg); err != nil {
			return nil, err
		}
		return New(cfg)
	})
}

// New creates a NIM model client.
func New(cfg Config) (*NIM_Model, error) {
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("nim llm requires model_name")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("NVIDIA_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("nim llm requires api_key or NVIDIA_API_KEY")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client, err := lcopenai.New(
		lcopenai.WithModel(cfg.ModelName),
		lcopenai.WithBaseURL(baseURL),
		lcopenai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create nim client: %w", err)
	}
	return &NIM_Model{client: client, cfg: cfg}, nil
}

func (m *NIM_Model) callOptions() []lcllms.CallOption {
	var opts []lcllms.CallOption
	if m.cfg.Temperature > 0 {
		opts = append(opts, lcllms.WithTemperature(m.cfg.Temperature))
	}
	if m.cfg.MaxTokens > 0 {
		opts = append(opts, lcllms.WithMaxTokens(m.cfg.MaxTokens))
	}
	return opts
}

func (m *NIM_Model) Model_Request(ctx context.Context, request llms.Model_Request, tools []llms.ToolDeclaration) (llms.Model_Response, error) {
	return llms.GenerateLangchain(ctx, m.client, request, tools, m.callOptions()...)
}

func (m *NIM_Model) Stream_Model_Request(ctx context.Context, request llms.Model_Request, tools []llms.ToolDeclaration) (<-chan llms.Model_Response, <-chan error) {
	return llms.StreamLangchain(ctx, m.client, request, tools, m.callOptions()...)
}

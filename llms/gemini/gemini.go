package gemini

import (
	"context"
	"fmt"
	"os"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
	"github.com/aiqtoolkit/aiq/llms"
	"google.golang.org/genai"
)

// Config for the `gemini` llm type.
type Config struct {
	ModelName string `json:"model_name"`
	APIKey    string `json:"api_key,omitempty"` // falls back to GEMINI_API_KEY
}

// Gemini_Model talks to the Gemini API through the official genai SDK.
type Gemini_Model struct {
	client *genai.Client
	cfg    Config
}

func init() {
	aiq.Register_LLM("gemini", func(settings map[string]any) (llms.Model, error) {
		var cfg Config
		if err := config.Decode(settings, &cfg); err != nil {
			return nil, err
		}
		return New(context.Background(), cfg)
	})
}

// New creates a Gemini model client.
func New(ctx context.Context, cfg Config) (*Gemini_Model, error) {
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("gemini llm requires model_name")
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini llm requires api_key or GEMINI_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini_Model{client: client, cfg: cfg}, nil
}

func (m *Gemini_Model) buildRequest(request llms.Model_Request, tools []llms.ToolDeclaration) ([]*genai.Content, *genai.GenerateContentConfig) {
	var contents []*genai.Content
	for _, msg := range request.Messages {
		switch {
		case msg.FunctionCall != nil:
			contents = append(contents, &genai.Content{
				Role: "model",
				Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{
					ID:   msg.FunctionCall.ID,
					Name: msg.FunctionCall.Name,
					Args: msg.FunctionCall.Args,
				}}},
			})
		case msg.FunctionResponse != nil:
			contents = append(contents, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       msg.FunctionResponse.ID,
					Name:     msg.FunctionResponse.Name,
					Response: map[string]any{"result": msg.FunctionResponse.Output},
				}}},
			})
		case msg.Role == llms.RoleModel:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: msg.Text}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: msg.Text}}})
		}
	}

	genCfg := &genai.GenerateContentConfig{}
	if request.System != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: request.System}}}
	}
	if len(tools) > 0 {
		var decls []*genai.FunctionDeclaration
		for _, tool := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toGenaiSchema(tool.Parameters),
			})
		}
		genCfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return contents, genCfg
}

func convertResponse(resp *genai.GenerateContentResponse) (llms.Model_Response, error) {
	var out llms.Model_Response
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out, fmt.Errorf("gemini returned no candidates")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			out.Parts = append(out.Parts, llms.Part{FunctionCall: &llms.FunctionCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			}})
			continue
		}
		if part.Text != "" {
			out.Parts = append(out.Parts, llms.TextPart(part.Text))
		}
	}
	return out, nil
}

func (m *Gemini_Model) Model_Request(ctx context.Context, request llms.Model_Request, tools []llms.ToolDeclaration) (llms.Model_Response, error) {
	contents, genCfg := m.buildRequest(request, tools)
	resp, err := m.client.Models.GenerateContent(ctx, m.cfg.ModelName, contents, genCfg)
	if err != nil {
		return llms.Model_Response{}, fmt.Errorf("gemini request failed: %w", err)
	}
	return convertResponse(resp)
}

func (m *Gemini_Model) Stream_Model_Request(ctx context.Context, request llms.Model_Request, tools []llms.ToolDeclaration) (<-chan llms.Model_Response, <-chan error) {
	respChan := make(chan llms.Model_Response)
	errChan := make(chan error, 1)

	go func() {
		defer close(respChan)
		defer close(errChan)

		contents, genCfg := m.buildRequest(request, tools)
		for resp, err := range m.client.Models.GenerateContentStream(ctx, m.cfg.ModelName, contents, genCfg) {
			if err != nil {
				errChan <- fmt.Errorf("gemini stream failed: %w", err)
				return
			}
			chunk, err := convertResponse(resp)
			if err != nil {
				continue // empty interim chunk
			}
			select {
			case respChan <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return respChan, errChan
}

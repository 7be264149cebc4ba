package llms

import (
	"context"
	"encoding/json"
	"fmt"

	lcllms "github.com/tmc/langchaingo/llms"
)

// The ollama and nim providers both ride on langchaingo model clients; the
// conversion between our request/response shapes and langchaingo's lives
// here so the providers stay thin.

// ToLangchainMessages converts a request into langchaingo message contents.
func ToLangchainMessages(request Model_Request) []lcllms.MessageContent {
	var messages []lcllms.MessageContent
	if request.System != "" {
		messages = append(messages, lcllms.TextParts(lcllms.ChatMessageTypeSystem, request.System))
	}

	for _, msg := range request.Messages {
		switch {
		case msg.FunctionCall != nil:
			argsJSON, _ := json.Marshal(msg.FunctionCall.Args)
			messages = append(messages, lcllms.MessageContent{
				Role: lcllms.ChatMessageTypeAI,
				Parts: []lcllms.ContentPart{lcllms.ToolCall{
					ID:   msg.FunctionCall.ID,
					Type: "function",
					FunctionCall: &lcllms.FunctionCall{
						Name:      msg.FunctionCall.Name,
						Arguments: string(argsJSON),
					},
				}},
			})
		case msg.FunctionResponse != nil:
			messages = append(messages, lcllms.MessageContent{
				Role: lcllms.ChatMessageTypeTool,
				Parts: []lcllms.ContentPart{lcllms.ToolCallResponse{
					ToolCallID: msg.FunctionResponse.ID,
					Name:       msg.FunctionResponse.Name,
					Content:    msg.FunctionResponse.Output,
				}},
			})
		case msg.Role == RoleModel:
			messages = append(messages, lcllms.TextParts(lcllms.ChatMessageTypeAI, msg.Text))
		default:
			messages = append(messages, lcllms.TextParts(lcllms.ChatMessageTypeHuman, msg.Text))
		}
	}
	return messages
}

// ToLangchainTools converts tool declarations into langchaingo tool specs.
func ToLangchainTools(tools []ToolDeclaration) []lcllms.Tool {
	var out []lcllms.Tool
	for _, tool := range tools {
		out = append(out, lcllms.Tool{
			Type: "function",
			Function: &lcllms.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return out
}

// FromLangchainResponse converts a langchaingo content response into our
// response shape, decoding tool call argument JSON.
func FromLangchainResponse(resp *lcllms.ContentResponse) (Model_Response, error) {
	var response Model_Response
	if resp == nil || len(resp.Choices) == 0 {
		return response, fmt.Errorf("model returned no choices")
	}

	choice := resp.Choices[0]
	if choice.Content != "" {
		response.Parts = append(response.Parts, TextPart(choice.Content))
	}
	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		args := map[string]any{}
		if call.FunctionCall.Arguments != "" {
			if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &args); err != nil {
				return response, fmt.Errorf("failed to decode tool call arguments for '%s': %w", call.FunctionCall.Name, err)
			}
		}
		response.Parts = append(response.Parts, Part{FunctionCall: &FunctionCall{
			ID:   call.ID,
			Name: call.FunctionCall.Name,
			Args: args,
		}})
	}
	return response, nil
}

// GenerateLangchain runs one non-streaming turn against a langchaingo model.
func GenerateLangchain(ctx context.Context, model lcllms.Model, request Model_Request, tools []ToolDeclaration, extra ...lcllms.CallOption) (Model_Response, error) {
	opts := append([]lcllms.CallOption{}, extra...)
	if len(tools) > 0 {
		opts = append(opts, lcllms.WithTools(ToLangchainTools(tools)))
	}
	resp, err := model.GenerateContent(ctx, ToLangchainMessages(request), opts...)
	if err != nil {
		return Model_Response{}, fmt.Errorf("model request failed: %w", err)
	}
	return FromLangchainResponse(resp)
}

// StreamLangchain runs one streaming turn against a langchaingo model. Text
// deltas are forwarded as they arrive; tool calls only materialize in the
// final response, so they are emitted after the stream drains.
func StreamLangchain(ctx context.Context, model lcllms.Model, request Model_Request, tools []ToolDeclaration, extra ...lcllms.CallOption) (<-chan Model_Response, <-chan error) {
	respChan := make(chan Model_Response)
	errChan := make(chan error, 1)

	go func() {
		defer close(respChan)
		defer close(errChan)

		opts := append([]lcllms.CallOption{}, extra...)
		opts = append(opts, lcllms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			select {
			case respChan <- Model_Response{Parts: []Part{TextPart(string(chunk))}}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}))
		if len(tools) > 0 {
			opts = append(opts, lcllms.WithTools(ToLangchainTools(tools)))
		}

		resp, err := model.GenerateContent(ctx, ToLangchainMessages(request), opts...)
		if err != nil {
			errChan <- fmt.Errorf("model stream failed: %w", err)
			return
		}
		final, err := FromLangchainResponse(resp)
		if err != nil {
			errChan <- err
			return
		}
		// Text already went out as deltas; only forward the tool calls.
		var calls []Part
		for _, part := range final.Parts {
			if part.FunctionCall != nil {
				calls = append(calls, part)
			}
		}
		if len(calls) > 0 {
			select {
			case respChan <- Model_Response{Parts: calls}:
			case <-ctx.Done():
			}
		}
	}()

	return respChan, errChan
}

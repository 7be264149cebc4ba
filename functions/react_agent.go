package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
	"github.com/aiqtoolkit/aiq/llms"
)

const defaultMaxIterations = 10

const defaultAgentPrompt = "You are a helpful assistant. Use the provided tools to answer the " +
	"user's question. When you have the final answer, reply with it directly."

// ReactAgentConfig configures the `react_agent` workflow type: an iterative
// tool-calling loop over an LLM.
type ReactAgentConfig struct {
	LLMName       string   `json:"llm_name"`
	ToolNames     []string `json:"tool_names"`
	MaxIterations int      `json:"max_iterations,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
}

func init() {
	aiq.Register_Function("react_agent", buildReactAgent)
}

func buildReactAgent(settings map[string]any, b *aiq.Builder) (*aiq.Function, error) {
	var cfg ReactAgentConfig
	if err := config.Decode(settings, &cfg); err != nil {
		return nil, err
	}
	if cfg.LLMName == "" {
		return nil, fmt.Errorf("react_agent requires llm_name")
	}
	model, err := b.Get_LLM(cfg.LLMName)
	if err != nil {
		return nil, err
	}

	tools := make(map[string]*aiq.Function, len(cfg.ToolNames))
	var declarations []llms.ToolDeclaration
	for _, name := range cfg.ToolNames {
		fn, err := b.Get_Function(name)
		if err != nil {
			return nil, fmt.Errorf("react_agent tool '%s': %w", name, err)
		}
		tools[fn.Name] = fn
		declarations = append(declarations, llms.ToolDeclaration{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  fn.InputSchema,
		})
	}

	agent := &reactAgent{
		model:         model,
		tools:         tools,
		declarations:  declarations,
		maxIterations: cfg.MaxIterations,
		systemPrompt:  cfg.SystemPrompt,
		logger:        log.New(os.Stdout, "[react_agent] ", log.LstdFlags),
	}
	if agent.maxIterations <= 0 {
		agent.maxIterations = defaultMaxIterations
	}
	if agent.systemPrompt == "" {
		agent.systemPrompt = defaultAgentPrompt
	}

	return aiq.From_Fn(
		"react_agent",
		"An agent that reasons over the configured tools to answer a question.",
		agent.run,
	), nil
}

type reactAgent struct {
	model         llms.Model
	tools         map[string]*aiq.Function
	declarations  []llms.ToolDeclaration
	maxIterations int
	systemPrompt  string
	logger        *log.Logger
}

// run is the agentic loop: call the model, execute any requested tools, feed
// the results back, and stop when the model answers with plain text.
func (a *reactAgent) run(ctx context.Context, input string) (string, error) {
	steps := aiq.StepManagerFrom(ctx)

	request := llms.Model_Request{
		System:   a.systemPrompt,
		Messages: []llms.Message{{Role: llms.RoleUser, Text: input}},
	}

	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		uid := steps.Start(aiq.StepLLMStart, "llm", input)
		response, err := a.model.Model_Request(ctx, request, a.declarations)
		if err != nil {
			steps.End(uid, aiq.StepLLMEnd, "llm", "error: "+err.Error())
			return "", fmt.Errorf("agent llm error: %w", err)
		}
		steps.End(uid, aiq.StepLLMEnd, "llm", response.Text())

		calls := response.FunctionCalls()
		if len(calls) == 0 {
			text := response.Text()
			if text == "" {
				return "", fmt.Errorf("agent produced neither text nor tool calls")
			}
			return text, nil
		}

		// Record the model's tool requests, then execute each one.
		for i := range calls {
			call := calls[i]
			request.Messages = append(request.Messages, llms.Message{
				Role:         llms.RoleModel,
				FunctionCall: &call,
			})

			output := a.executeTool(ctx, steps, call)
			request.Messages = append(request.Messages, llms.Message{
				Role: llms.RoleTool,
				FunctionResponse: &llms.FunctionResponse{
					ID:     call.ID,
					Name:   call.Name,
					Output: output,
				},
			})
		}
	}

	return "", fmt.Errorf("agent exceeded %d iterations without a final answer", a.maxIterations)
}

// executeTool runs one requested tool. Failures are reported back to the
// model as the tool output so it can correct itself, matching how tool errors
// flow in the rest of the toolkit.
func (a *reactAgent) executeTool(ctx context.Context, steps *aiq.StepManager, call llms.FunctionCall) string {
	argsJSON, _ := json.Marshal(call.Args)
	uid := steps.Start(aiq.StepToolStart, call.Name, string(argsJSON))

	fn, ok := a.tools[call.Name]
	if !ok {
		msg := fmt.Sprintf("unknown or unavailable tool: %s", call.Name)
		steps.End(uid, aiq.StepToolEnd, call.Name, msg)
		return msg
	}

	output, err := fn.Invoke_Args(ctx, call.Args)
	if err != nil {
		a.logger.Printf("Tool %s failed: %v", call.Name, err)
		output = fmt.Sprintf("error: %v", err)
	}
	steps.End(uid, aiq.StepToolEnd, call.Name, output)
	return output
}

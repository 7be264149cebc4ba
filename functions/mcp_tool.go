package functions

import (
	"context"
	"fmt"
	"log"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
	"github.com/aiqtoolkit/aiq/mcp"
)

// MCPToolConfig configures the `mcp_tool_wrapper` function type: it connects
// to an MCP server and wraps one of its tools as a workflow function.
type MCPToolConfig struct {
	mcp.ClientConfig
	MCPToolName string `json:"mcp_tool_name"`
	// Description overrides the description provided by the MCP server.
	// Should only be used if the server's description is poor or missing.
	Description string `json:"description,omitempty"`
	// ReturnException makes tool call failures come back as the tool output
	// instead of failing the workflow, so the agent can correct itself.
	ReturnException *bool `json:"return_exception,omitempty"`
}

func init() {
	aiq.Register_Function("mcp_tool_wrapper", buildMCPTool)
}

func buildMCPTool(settings map[string]any, b *aiq.Builder) (*aiq.Function, error) {
	cfg := MCPToolConfig{ClientConfig: mcp.ClientConfig{Transport: mcp.TransportSSE}}
	if err := config.Decode(settings, &cfg); err != nil {
		return nil, err
	}
	if cfg.MCPToolName == "" {
		return nil, fmt.Errorf("mcp_tool_wrapper requires mcp_tool_name")
	}
	if err := cfg.ClientConfig.Validate(); err != nil {
		return nil, fmt.Errorf("mcp_tool_wrapper: %w", err)
	}
	returnException := true
	if cfg.ReturnException != nil {
		returnException = *cfg.ReturnException
	}

	client := mcp.NewClient(cfg.ClientConfig)
	tool, err := client.GetTool(context.Background(), cfg.MCPToolName)
	if err != nil {
		client.Close()
		return nil, err
	}
	b.Add_Closer(client)
	log.Printf("Configured to use tool: %s from MCP server at %s", tool.Name, cfg.ClientConfig.Source())

	description := tool.Description
	if cfg.Description != "" {
		description = cfg.Description
	}

	call := func(ctx context.Context, args map[string]any) (string, error) {
		output, err := client.CallTool(ctx, cfg.MCPToolName, args)
		if err != nil {
			if returnException {
				log.Printf("Error calling tool %s: %v", cfg.MCPToolName, err)
				return err.Error(), nil
			}
			return "", err
		}
		return output, nil
	}

	fn := aiq.New_Function_With_Schema(cfg.MCPToolName, description, tool.InputSchema, call)
	return fn, nil
}

// Package mcp provides a client for Model Context Protocol servers so remote
// tools can be wrapped as workflow functions.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Transport types accepted by ClientConfig.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// ClientConfig describes how to reach an MCP server.
type ClientConfig struct {
	Transport string            `json:"transport_type"`
	URL       string            `json:"url,omitempty"`
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Validate enforces the transport/field pairing rules: stdio runs a command
// and must not carry a URL; the HTTP transports need a URL and must not
// carry process fields.
func (c ClientConfig) Validate() error {
	switch c.Transport {
	case TransportStdio:
		if c.URL != "" {
			return fmt.Errorf("url should not be set when using stdio transport type")
		}
		if c.Command == "" {
			return fmt.Errorf("command is required when using stdio transport type")
		}
	case TransportSSE, TransportStreamableHTTP:
		if c.Command != "" || len(c.Args) > 0 || len(c.Env) > 0 {
			return fmt.Errorf("command, args, and env should not be set when using %s transport type", c.Transport)
		}
		if c.URL == "" {
			return fmt.Errorf("url is required when using %s transport type", c.Transport)
		}
	default:
		return fmt.Errorf("invalid transport type: %s", c.Transport)
	}
	return nil
}

// Source is a human-readable description of the server endpoint, for logs.
func (c ClientConfig) Source() string {
	if c.Transport == TransportStdio {
		if len(c.Args) == 0 {
			return c.Command
		}
		return c.Command + " " + strings.Join(c.Args, " ")
	}
	return c.URL
}

// ToolInfo describes one tool exposed by an MCP server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Client connects lazily to an MCP server; the first call establishes the
// session and subsequent calls reuse it.
type Client struct {
	cfg        ClientConfig
	impl       *mcpsdk.Client
	session    *mcpsdk.ClientSession
	once       sync.Once
	connectErr error
}

// NewClient creates a client for the given (already validated) config.
func NewClient(cfg ClientConfig) *Client {
	impl := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "aiq", Version: "dev"}, nil)
	return &Client{cfg: cfg, impl: impl}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.once.Do(func() {
		transport, err := c.buildTransport(ctx)
		if err != nil {
			c.connectErr = fmt.Errorf("failed to build mcp transport: %w", err)
			return
		}
		session, err := c.impl.Connect(ctx, transport, nil)
		if err != nil {
			c.connectErr = fmt.Errorf("failed to connect to mcp server at %s: %w", c.cfg.Source(), err)
			return
		}
		c.session = session
	})
	return c.connectErr
}

func (c *Client) buildTransport(ctx context.Context) (mcpsdk.Transport, error) {
	switch c.cfg.Transport {
	case TransportStdio:
		cmd := exec.CommandContext(ctx, c.cfg.Command, c.cfg.Args...)
		if len(c.cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for key, value := range c.cfg.Env {
				cmd.Env = append(cmd.Env, key+"="+value)
			}
		}
		return &mcpsdk.CommandTransport{Command: cmd}, nil
	case TransportSSE:
		return &mcpsdk.SSEClientTransport{Endpoint: c.cfg.URL}, nil
	case TransportStreamableHTTP:
		return &mcpsdk.StreamableClientTransport{Endpoint: c.cfg.URL}, nil
	default:
		return nil, fmt.Errorf("invalid transport type: %s", c.cfg.Transport)
	}
}

// GetTool looks up a single tool by name on the server.
func (c *Client) GetTool(ctx context.Context, name string) (*ToolInfo, error) {
	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	for i := range tools {
		if tools[i].Name == name {
			return &tools[i], nil
		}
	}
	return nil, fmt.Errorf("tool '%s' not found on mcp server at %s", name, c.cfg.Source())
}

// ListTools fetches all tools exposed by the server.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	var tools []ToolInfo
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("failed to list mcp tools: %w", err)
		}
		info := ToolInfo{Name: tool.Name, Description: tool.Description}
		if tool.InputSchema != nil {
			raw, err := json.Marshal(tool.InputSchema)
			if err == nil {
				var schema map[string]any
				if json.Unmarshal(raw, &schema) == nil {
					info.InputSchema = schema
				}
			}
		}
		tools = append(tools, info)
	}
	return tools, nil
}

// CallTool invokes a tool with the given arguments and returns the
// concatenated text content of the result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return "", err
	}
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("mcp tool '%s' call failed: %w", name, err)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("mcp tool '%s' returned an error: %s", name, sb.String())
	}
	return sb.String(), nil
}

// Close shuts down the session, if one was ever established.
func (c *Client) Close() error {
	if c == nil || c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

package aiq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// SingleFn is the common tool shape: one text input, one text output.
type SingleFn func(ctx context.Context, input string) (string, error)

// ArgsFn is the structured tool shape used by agents that produce typed
// argument maps.
type ArgsFn func(ctx context.Context, args map[string]any) (string, error)

// Function is a named, schema-described callable that a workflow or agent can
// invoke. Every component instantiated from the `functions` config section is
// one of these.
type Function struct {
	Name        string
	Description string
	InputSchema map[string]any

	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
	single      SingleFn
	args        ArgsFn
}

// singleInputSchema is the schema for plain-text tools.
func singleInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input_message": map[string]any{
				"type":        "string",
				"description": "Text input for the tool",
			},
		},
		"required": []any{"input_message"},
	}
}

// From_Fn wraps a plain text-in/text-out function. This is the constructor
// most builtin tools use.
func From_Fn(name, description string, fn SingleFn) *Function {
	return &Function{
		Name:        name,
		Description: description,
		InputSchema: singleInputSchema(),
		single:      fn,
	}
}

// New_Function wraps a structured function whose input schema is generated by
// reflecting over inputType (a struct value, typically a pointer).
func New_Function(name, description string, inputType any, fn ArgsFn) (*Function, error) {
	schema, err := reflectSchema(inputType)
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for function '%s': %w", name, err)
	}
	return &Function{
		Name:        name,
		Description: description,
		InputSchema: schema,
		args:        fn,
	}, nil
}

// New_Function_With_Schema wraps a structured function with an externally
// supplied JSON schema (e.g. one fetched from an MCP server).
func New_Function_With_Schema(name, description string, schema map[string]any, fn ArgsFn) *Function {
	return &Function{
		Name:        name,
		Description: description,
		InputSchema: schema,
		args:        fn,
	}
}

// reflectSchema produces a plain map JSON schema from a Go struct.
func reflectSchema(inputType any) (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(inputType)
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal reflected schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reflected schema: %w", err)
	}
	// The draft marker confuses some schema validators; the structure alone
	// is what tool callers consume.
	delete(out, "$schema")
	return out, nil
}

// Invoke runs the function with a single text input. Structured functions
// receive it under the "input_message" key.
func (f *Function) Invoke(ctx context.Context, input string) (string, error) {
	if f.single != nil {
		return f.single(ctx, input)
	}
	return f.Invoke_Args(ctx, map[string]any{"input_message": input})
}

// Invoke_Args runs the function with a typed argument map, validating the
// arguments against the input schema first.
func (f *Function) Invoke_Args(ctx context.Context, args map[string]any) (string, error) {
	if err := f.Validate_Args(args); err != nil {
		return "", err
	}
	if f.args != nil {
		return f.args(ctx, args)
	}
	// Single-input function called with an args map: unwrap the text.
	input, _ := args["input_message"].(string)
	return f.single(ctx, input)
}

// Validate_Args checks an argument map against the function's input schema.
func (f *Function) Validate_Args(args map[string]any) error {
	if f.InputSchema == nil {
		return nil
	}
	f.compileOnce.Do(func() {
		f.compiled, f.compileErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(f.InputSchema))
	})
	if f.compileErr != nil {
		return fmt.Errorf("invalid input schema for function '%s': %w", f.Name, f.compileErr)
	}

	result, err := f.compiled.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("failed to validate arguments for '%s': %w", f.Name, err)
	}
	if !result.Valid() {
		msg := ""
		for _, desc := range result.Errors() {
			if msg != "" {
				msg += "; "
			}
			msg += desc.String()
		}
		return fmt.Errorf("invalid arguments for '%s': %s", f.Name, msg)
	}
	return nil
}

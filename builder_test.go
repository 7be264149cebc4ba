package aiq

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/aiqtoolkit/aiq/config"
)

// Test component types, registered once for the whole package.
func init() {
	Register_Function("test_echo", func(settings map[string]any, b *Builder) (*Function, error) {
		return From_Fn("test_echo", "echoes input", func(ctx context.Context, input string) (string, error) {
			return input, nil
		}), nil
	})
	Register_Function("test_fail", func(settings map[string]any, b *Builder) (*Function, error) {
		return From_Fn("test_fail", "always fails", func(ctx context.Context, input string) (string, error) {
			return "", fmt.Errorf("deliberate failure")
		}), nil
	})
	Register_Function("test_ref", func(settings map[string]any, b *Builder) (*Function, error) {
		target, _ := settings["target"].(string)
		inner, err := b.Get_Function(target)
		if err != nil {
			return nil, err
		}
		return From_Fn("test_ref", "delegates to another function", func(ctx context.Context, input string) (string, error) {
			return inner.Invoke(ctx, input)
		}), nil
	})
	Register_Retriever("test_retriever", func(settings map[string]any, b *Builder) (Retriever, error) {
		return staticRetriever{}, nil
	})
}

type staticRetriever struct{}

func (staticRetriever) Search(ctx context.Context, query string, topK int) ([]Document, error) {
	return []Document{
		{ID: "1", Text: "Go is a compiled language.", Score: 0.9},
		{ID: "2", Text: "Gophers live in burrows.", Score: 0.5},
	}, nil
}

func TestRegistry_UnknownTypeListsRegistered(t *testing.T) {
	_, err := lookupFunctionBuilder("no_such_type")
	if err == nil {
		t.Fatal("Expected error for unknown function type")
	}
	if !strings.Contains(err.Error(), "test_echo") {
		t.Errorf("Expected error to list registered types, got %v", err)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	Register_Function("test_echo", func(settings map[string]any, b *Builder) (*Function, error) {
		return nil, nil
	})
}

func TestBuilder_BuildsWorkflow(t *testing.T) {
	cfg := &config.Config{
		Workflow: config.Component{Type: "test_echo"},
	}

	workflow, err := NewBuilder(cfg).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer workflow.Close()

	output, steps, err := workflow.Run(context.Background(), "hello", false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if output != "hello" {
		t.Errorf("Expected 'hello', got %q", output)
	}
	if len(steps) != 2 {
		t.Fatalf("Expected 2 steps (start/end), got %d", len(steps))
	}
	if steps[0].EventType != StepWorkflowStart || steps[1].EventType != StepWorkflowEnd {
		t.Errorf("Expected WORKFLOW_START then WORKFLOW_END, got %s and %s", steps[0].EventType, steps[1].EventType)
	}
	if steps[0].UUID != steps[1].UUID {
		t.Error("Expected start and end steps to share a UUID")
	}
}

func TestBuilder_UnknownWorkflowType(t *testing.T) {
	cfg := &config.Config{
		Workflow: config.Component{Type: "nonexistent"},
	}

	if _, err := NewBuilder(cfg).Build(context.Background()); err == nil {
		t.Error("Expected error for unknown workflow type")
	}
}

func TestBuilder_FunctionReferences(t *testing.T) {
	cfg := &config.Config{
		Functions: map[string]config.Component{
			"inner": {Type: "test_echo"},
			"outer": {Type: "test_ref", Settings: map[string]any{"target": "inner"}},
		},
		Workflow: config.Component{Type: "test_ref", Settings: map[string]any{"target": "outer"}},
	}

	workflow, err := NewBuilder(cfg).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer workflow.Close()

	output, _, err := workflow.Run(context.Background(), "pass-through", false)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if output != "pass-through" {
		t.Errorf("Expected 'pass-through', got %q", output)
	}
}

func TestBuilder_CircularReference(t *testing.T) {
	cfg := &config.Config{
		Functions: map[string]config.Component{
			"a": {Type: "test_ref", Settings: map[string]any{"target": "b"}},
			"b": {Type: "test_ref", Settings: map[string]any{"target": "a"}},
		},
		Workflow: config.Component{Type: "test_echo"},
	}

	_, err := NewBuilder(cfg).Build(context.Background())
	if err == nil {
		t.Fatal("Expected error for circular function reference")
	}
	if !strings.Contains(err.Error(), "circular") {
		t.Errorf("Expected circular reference error, got %v", err)
	}
}

func TestBuilder_UnknownFunctionReference(t *testing.T) {
	cfg := &config.Config{
		Workflow: config.Component{Type: "test_ref", Settings: map[string]any{"target": "ghost"}},
	}

	_, err := NewBuilder(cfg).Build(context.Background())
	if err == nil {
		t.Fatal("Expected error for reference to unknown function")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("Expected error to name the missing function, got %v", err)
	}
}

func TestWorkflow_FailurePropagates(t *testing.T) {
	cfg := &config.Config{
		Workflow: config.Component{Type: "test_fail"},
	}

	workflow, err := NewBuilder(cfg).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer workflow.Close()

	_, steps, err := workflow.Run(context.Background(), "x", false)
	if err == nil {
		t.Fatal("Expected workflow failure")
	}
	if len(steps) != 2 {
		t.Fatalf("Expected start and end steps even on failure, got %d", len(steps))
	}
	if !strings.Contains(steps[1].Output, "deliberate failure") {
		t.Errorf("Expected end step to carry the error, got %q", steps[1].Output)
	}
}

func TestWorkflow_KnowledgeBaseAugmentsInput(t *testing.T) {
	cfg := &config.Config{
		General: config.General{KnowledgeBase: "kb"},
		Retrievers: map[string]config.Component{
			"kb": {Type: "test_retriever"},
		},
		Workflow: config.Component{Type: "test_echo"},
	}

	workflow, err := NewBuilder(cfg).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer workflow.Close()
	if !workflow.HasKnowledgeBase() {
		t.Fatal("Expected workflow to report a knowledge base")
	}

	output, steps, err := workflow.Run(context.Background(), "what is Go?", true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(output, "Use the following context to answer the question.") {
		t.Errorf("Expected context prefix in augmented input, got %q", output)
	}
	if !strings.Contains(output, "Go is a compiled language.") {
		t.Errorf("Expected retrieved document in augmented input, got %q", output)
	}
	if !strings.Contains(output, "Question: what is Go?") {
		t.Errorf("Expected original question at the end, got %q", output)
	}

	// KB retrieval emits its own CUSTOM_START/CUSTOM_END pair.
	if len(steps) != 4 {
		t.Errorf("Expected 4 steps with knowledge base, got %d", len(steps))
	}
}

func TestWorkflow_KnowledgeBaseIgnoredWhenUnset(t *testing.T) {
	cfg := &config.Config{
		Workflow: config.Component{Type: "test_echo"},
	}

	workflow, err := NewBuilder(cfg).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer workflow.Close()

	output, _, err := workflow.Run(context.Background(), "plain", true)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if output != "plain" {
		t.Errorf("Expected unaugmented input without a knowledge base, got %q", output)
	}
}

func TestWorkflow_RunStream(t *testing.T) {
	cfg := &config.Config{
		Workflow: config.Component{Type: "test_echo"},
	}

	workflow, err := NewBuilder(cfg).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer workflow.Close()

	stepsChan, resultChan := workflow.Run_Stream(context.Background(), "streamed", false)

	count := 0
	for range stepsChan {
		count++
	}
	result := <-resultChan
	if result.Err != nil {
		t.Fatalf("Stream run failed: %v", result.Err)
	}
	if result.Output != "streamed" {
		t.Errorf("Expected 'streamed', got %q", result.Output)
	}
	if count != 2 {
		t.Errorf("Expected 2 streamed steps, got %d", count)
	}
}

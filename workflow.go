package aiq

import (
	"context"
	"fmt"
	"strings"
)

// defaultKBTopK is how many knowledge-base chunks are prepended when a
// request asks for knowledge-base augmentation.
const defaultKBTopK = 4

// Workflow is a built, runnable workflow: the entry function plus the
// optional knowledge-base retriever.
type Workflow struct {
	entry   *Function
	kb      Retriever
	builder *Builder
}

// Run_Result carries the terminal outcome of a streamed run.
type Run_Result struct {
	Output string
	Err    error
}

// Entry returns the workflow's entry function.
func (w *Workflow) Entry() *Function {
	return w.entry
}

// HasKnowledgeBase reports whether a retriever is wired for
// use_knowledge_base requests.
func (w *Workflow) HasKnowledgeBase() bool {
	return w.kb != nil
}

// Run executes the workflow once and collects the intermediate steps emitted
// along the way.
func (w *Workflow) Run(ctx context.Context, input string, useKnowledgeBase bool) (string, []IntermediateStep, error) {
	manager := NewStepManager()
	defer manager.Close()

	stepsChan, cancel := manager.Subscribe()
	defer cancel()

	collected := make([]IntermediateStep, 0, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for step := range stepsChan {
			collected = append(collected, step)
		}
	}()

	output, err := w.execute(WithStepManager(ctx, manager), manager, input, useKnowledgeBase)

	manager.Close()
	<-done
	return output, collected, err
}

// Run_Stream executes the workflow, emitting intermediate steps as they
// happen. The result channel delivers exactly one value after the step
// channel is closed.
func (w *Workflow) Run_Stream(ctx context.Context, input string, useKnowledgeBase bool) (<-chan IntermediateStep, <-chan Run_Result) {
	manager := NewStepManager()
	stepsChan, _ := manager.Subscribe()
	resultChan := make(chan Run_Result, 1)

	go func() {
		defer close(resultChan)
		output, err := w.execute(WithStepManager(ctx, manager), manager, input, useKnowledgeBase)
		manager.Close()
		resultChan <- Run_Result{Output: output, Err: err}
	}()

	return stepsChan, resultChan
}

func (w *Workflow) execute(ctx context.Context, manager *StepManager, input string, useKnowledgeBase bool) (string, error) {
	augmented, err := w.applyKnowledgeBase(ctx, manager, input, useKnowledgeBase)
	if err != nil {
		return "", err
	}

	uid := manager.Start(StepWorkflowStart, w.entry.Name, input)
	output, err := w.entry.Invoke(ctx, augmented)
	if err != nil {
		manager.End(uid, StepWorkflowEnd, w.entry.Name, "error: "+err.Error())
		return "", fmt.Errorf("workflow '%s' failed: %w", w.entry.Name, err)
	}
	manager.End(uid, StepWorkflowEnd, w.entry.Name, output)
	return output, nil
}

// applyKnowledgeBase prefixes the input with retrieved context when the
// request asks for it and a retriever is configured. Requests that ask for
// the knowledge base when none is wired proceed unaugmented.
func (w *Workflow) applyKnowledgeBase(ctx context.Context, manager *StepManager, input string, useKnowledgeBase bool) (string, error) {
	if !useKnowledgeBase || w.kb == nil {
		return input, nil
	}

	uid := manager.Start(StepCustomStart, "knowledge_base", input)
	docs, err := w.kb.Search(ctx, input, defaultKBTopK)
	if err != nil {
		manager.End(uid, StepCustomEnd, "knowledge_base", "error: "+err.Error())
		return "", fmt.Errorf("knowledge base search failed: %w", err)
	}

	if len(docs) == 0 {
		manager.End(uid, StepCustomEnd, "knowledge_base", "no documents retrieved")
		return input, nil
	}

	var sb strings.Builder
	sb.WriteString("Use the following context to answer the question.\n\nContext:\n")
	for _, doc := range docs {
		sb.WriteString("- ")
		sb.WriteString(doc.Text)
		sb.WriteString("\n")
	}
	sb.WriteString("\nQuestion: ")
	sb.WriteString(input)

	manager.End(uid, StepCustomEnd, "knowledge_base", fmt.Sprintf("retrieved %d documents", len(docs)))
	return sb.String(), nil
}

// Start launches background services of built components (e.g. knowledge
// base indexers). Long-lived callers like serve mode use it; one-shot runs
// may skip it.
func (w *Workflow) Start(ctx context.Context) error {
	if w.builder == nil {
		return nil
	}
	for _, starter := range w.builder.starters {
		if err := starter.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every component the workflow's builder created.
func (w *Workflow) Close() error {
	if w.builder == nil {
		return nil
	}
	return w.builder.Close()
}

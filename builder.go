// Package aiq wires agent workflows together from a YAML config: a registry
// of component types, a builder that instantiates them in dependency order,
// and the workflow runtime with intermediate step streaming.
package aiq

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/aiqtoolkit/aiq/config"
	"github.com/aiqtoolkit/aiq/llms"
)

// Document is one retrieved knowledge-base chunk.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float32        `json:"score,omitempty"`
}

// Retriever searches a knowledge base for chunks relevant to a query.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]Document, error)
}

// Embedder turns text into vectors for retrieval.
type Embedder interface {
	Embed_Documents(ctx context.Context, texts []string) ([][]float32, error)
	Embed_Query(ctx context.Context, text string) ([]float32, error)
}

// Starter is implemented by components that run background services, like a
// knowledge-base indexer watching a directory. Start must return promptly,
// leaving long-running work on goroutines tied to ctx.
type Starter interface {
	Start(ctx context.Context) error
}

// Builder instantiates the components named in a config and resolves
// references between them. Components are built in dependency order: llms,
// embedders, retrievers, functions, then the workflow entry function.
type Builder struct {
	cfg        *config.Config
	llms       map[string]llms.Model
	embedders  map[string]Embedder
	retrievers map[string]Retriever
	functions  map[string]*Function
	closers    []io.Closer
	starters   []Starter
	logger     *log.Logger

	// building tracks in-progress function builds for cycle detection.
	building map[string]bool
}

// NewBuilder creates a builder for the given config.
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{
		cfg:        cfg,
		llms:       make(map[string]llms.Model),
		embedders:  make(map[string]Embedder),
		retrievers: make(map[string]Retriever),
		functions:  make(map[string]*Function),
		building:   make(map[string]bool),
		logger:     log.New(os.Stdout, "[builder] ", log.LstdFlags),
	}
}

// Build instantiates every configured component and returns the workflow.
func (b *Builder) Build(ctx context.Context) (*Workflow, error) {
	for name, comp := range b.cfg.LLMs {
		builder, err := lookupLLMBuilder(comp.Type)
		if err != nil {
			return nil, fmt.Errorf("llm '%s': %w", name, err)
		}
		model, err := builder(comp.Settings)
		if err != nil {
			return nil, fmt.Errorf("failed to build llm '%s': %w", name, err)
		}
		b.llms[name] = model
		b.trackCloser(model)
		b.logger.Printf("Built llm '%s' (type %s)", name, comp.Type)
	}

	for name, comp := range b.cfg.Embedders {
		builder, err := lookupEmbedderBuilder(comp.Type)
		if err != nil {
			return nil, fmt.Errorf("embedder '%s': %w", name, err)
		}
		embedder, err := builder(comp.Settings)
		if err != nil {
			return nil, fmt.Errorf("failed to build embedder '%s': %w", name, err)
		}
		b.embedders[name] = embedder
		b.trackCloser(embedder)
		b.logger.Printf("Built embedder '%s' (type %s)", name, comp.Type)
	}

	for name, comp := range b.cfg.Retrievers {
		builder, err := lookupRetrieverBuilder(comp.Type)
		if err != nil {
			return nil, fmt.Errorf("retriever '%s': %w", name, err)
		}
		retriever, err := builder(comp.Settings, b)
		if err != nil {
			return nil, fmt.Errorf("failed to build retriever '%s': %w", name, err)
		}
		b.retrievers[name] = retriever
		b.trackCloser(retriever)
		b.logger.Printf("Built retriever '%s' (type %s)", name, comp.Type)
	}

	for name := range b.cfg.Functions {
		if _, err := b.Get_Function(name); err != nil {
			return nil, err
		}
	}

	entry, err := b.buildFunction("workflow", b.cfg.Workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to build workflow: %w", err)
	}

	var kb Retriever
	if b.cfg.General.KnowledgeBase != "" {
		kb, err = b.Get_Retriever(b.cfg.General.KnowledgeBase)
		if err != nil {
			return nil, err
		}
	}

	return &Workflow{entry: entry, kb: kb, builder: b}, nil
}

// Get_Function returns a configured function by name, building it on first
// use so functions can reference each other regardless of config order.
func (b *Builder) Get_Function(name string) (*Function, error) {
	if fn, ok := b.functions[name]; ok {
		return fn, nil
	}
	comp, ok := b.cfg.Functions[name]
	if !ok {
		return nil, fmt.Errorf("unknown function: %s", name)
	}
	if b.building[name] {
		return nil, fmt.Errorf("circular function reference involving '%s'", name)
	}
	b.building[name] = true
	defer delete(b.building, name)

	fn, err := b.buildFunction(name, comp)
	if err != nil {
		return nil, err
	}
	b.functions[name] = fn
	b.logger.Printf("Built function '%s' (type %s)", name, comp.Type)
	return fn, nil
}

func (b *Builder) buildFunction(name string, comp config.Component) (*Function, error) {
	builder, err := lookupFunctionBuilder(comp.Type)
	if err != nil {
		return nil, fmt.Errorf("function '%s': %w", name, err)
	}
	fn, err := builder(comp.Settings, b)
	if err != nil {
		return nil, fmt.Errorf("failed to build function '%s': %w", name, err)
	}
	if fn.Name == "" {
		fn.Name = name
	}
	return fn, nil
}

// Get_LLM returns a configured model client by name.
func (b *Builder) Get_LLM(name string) (llms.Model, error) {
	model, ok := b.llms[name]
	if !ok {
		return nil, fmt.Errorf("unknown llm: %s", name)
	}
	return model, nil
}

// Get_Embedder returns a configured embedder by name.
func (b *Builder) Get_Embedder(name string) (Embedder, error) {
	embedder, ok := b.embedders[name]
	if !ok {
		return nil, fmt.Errorf("unknown embedder: %s", name)
	}
	return embedder, nil
}

// Get_Retriever returns a configured retriever by name.
func (b *Builder) Get_Retriever(name string) (Retriever, error) {
	retriever, ok := b.retrievers[name]
	if !ok {
		return nil, fmt.Errorf("unknown retriever: %s", name)
	}
	return retriever, nil
}

// Config exposes the underlying config to component builders.
func (b *Builder) Config() *config.Config {
	return b.cfg
}

// Add_Closer registers a resource for shutdown when the builder closes.
// Function builders that open connections (e.g. MCP clients) use this.
func (b *Builder) Add_Closer(closer io.Closer) {
	b.closers = append(b.closers, closer)
}

func (b *Builder) trackCloser(component any) {
	if closer, ok := component.(io.Closer); ok {
		b.closers = append(b.closers, closer)
	}
	if starter, ok := component.(Starter); ok {
		b.starters = append(b.starters, starter)
	}
}

// Close shuts down every built component that holds resources.
func (b *Builder) Close() error {
	var firstErr error
	for _, closer := range b.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

package aiq

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aiqtoolkit/aiq/llms"
)

// FunctionBuilder constructs a function instance from its config settings.
// The Builder is available for cross-component lookups (other functions,
// llms, retrievers).
type FunctionBuilder func(settings map[string]any, b *Builder) (*Function, error)

// LLMBuilder constructs a model client from its config settings.
type LLMBuilder func(settings map[string]any) (llms.Model, error)

// EmbedderBuilder constructs an embedder from its config settings.
type EmbedderBuilder func(settings map[string]any) (Embedder, error)

// RetrieverBuilder constructs a retriever from its config settings.
type RetrieverBuilder func(settings map[string]any, b *Builder) (Retriever, error)

var (
	registryMu        sync.RWMutex
	functionBuilders  = map[string]FunctionBuilder{}
	llmBuilders       = map[string]LLMBuilder{}
	embedderBuilders  = map[string]EmbedderBuilder{}
	retrieverBuilders = map[string]RetrieverBuilder{}
)

// Register_Function registers a function type. Called from init() in the
// package that provides the type; duplicate registration is a programming
// error and panics.
func Register_Function(typeName string, builder FunctionBuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := functionBuilders[typeName]; exists {
		panic("duplicate function type registration: " + typeName)
	}
	functionBuilders[typeName] = builder
}

// Register_LLM registers an LLM provider type.
func Register_LLM(typeName string, builder LLMBuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := llmBuilders[typeName]; exists {
		panic("duplicate llm type registration: " + typeName)
	}
	llmBuilders[typeName] = builder
}

// Register_Embedder registers an embedder provider type.
func Register_Embedder(typeName string, builder EmbedderBuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := embedderBuilders[typeName]; exists {
		panic("duplicate embedder type registration: " + typeName)
	}
	embedderBuilders[typeName] = builder
}

// Register_Retriever registers a retriever provider type.
func Register_Retriever(typeName string, builder RetrieverBuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := retrieverBuilders[typeName]; exists {
		panic("duplicate retriever type registration: " + typeName)
	}
	retrieverBuilders[typeName] = builder
}

func lookupFunctionBuilder(typeName string) (FunctionBuilder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	builder, ok := functionBuilders[typeName]
	if !ok {
		return nil, unknownTypeError("function", typeName, keysOf(functionBuilders))
	}
	return builder, nil
}

func lookupLLMBuilder(typeName string) (LLMBuilder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	builder, ok := llmBuilders[typeName]
	if !ok {
		return nil, unknownTypeError("llm", typeName, keysOf(llmBuilders))
	}
	return builder, nil
}

func lookupEmbedderBuilder(typeName string) (EmbedderBuilder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	builder, ok := embedderBuilders[typeName]
	if !ok {
		return nil, unknownTypeError("embedder", typeName, keysOf(embedderBuilders))
	}
	return builder, nil
}

func lookupRetrieverBuilder(typeName string) (RetrieverBuilder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	builder, ok := retrieverBuilders[typeName]
	if !ok {
		return nil, unknownTypeError("retriever", typeName, keysOf(retrieverBuilders))
	}
	return builder, nil
}

func keysOf[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func unknownTypeError(kind, typeName string, registered []string) error {
	if len(registered) == 0 {
		return fmt.Errorf("unknown %s type '%s' (no %s types registered; missing import?)", kind, typeName, kind)
	}
	return fmt.Errorf("unknown %s type '%s' (registered: %s)", kind, typeName, strings.Join(registered, ", "))
}

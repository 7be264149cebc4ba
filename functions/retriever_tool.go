package functions

import (
	"context"
	"fmt"
	"strings"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
)

// RetrieverToolConfig configures the `retriever` function type, which exposes
// a configured retriever as a searchable tool.
type RetrieverToolConfig struct {
	RetrieverName string `json:"retriever_name"`
	TopK          int    `json:"top_k,omitempty"`
	Description   string `json:"description,omitempty"`
}

func init() {
	aiq.Register_Function("retriever", buildRetrieverTool)
}

func buildRetrieverTool(settings map[string]any, b *aiq.Builder) (*aiq.Function, error) {
	var cfg RetrieverToolConfig
	if err := config.Decode(settings, &cfg); err != nil {
		return nil, err
	}
	if cfg.RetrieverName == "" {
		return nil, fmt.Errorf("retriever function requires retriever_name")
	}
	retriever, err := b.Get_Retriever(cfg.RetrieverName)
	if err != nil {
		return nil, err
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 4
	}
	description := cfg.Description
	if description == "" {
		description = "Search the knowledge base for documents relevant to a query."
	}

	search := func(ctx context.Context, query string) (string, error) {
		docs, err := retriever.Search(ctx, query, topK)
		if err != nil {
			return "", fmt.Errorf("retriever search failed: %w", err)
		}
		if len(docs) == 0 {
			return "No relevant documents found.", nil
		}
		var sb strings.Builder
		for i, doc := range docs {
			if i > 0 {
				sb.WriteString("\n---\n")
			}
			sb.WriteString(doc.Text)
		}
		return sb.String(), nil
	}

	return aiq.From_Fn("retriever_"+cfg.RetrieverName, description, search), nil
}

// Package retrievers provides retriever types for the `retrievers` config
// section.
package retrievers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
)

// ChromaConfig configures the `chroma` retriever type. When IngestDir is
// set, the retriever also indexes that directory into the collection and
// watches it for changes while serving.
type ChromaConfig struct {
	URL            string `json:"url,omitempty"`
	CollectionName string `json:"collection_name"`
	EmbedderName   string `json:"embedder_name"`
	IngestDir      string `json:"ingest_dir,omitempty"`
	ChunkSize      int    `json:"chunk_size,omitempty"`
	ChunkOverlap   int    `json:"chunk_overlap,omitempty"`
}

// ChromaRetriever searches a ChromaDB collection with embeddings produced by
// a configured embedder.
type ChromaRetriever struct {
	client     chromago.Client
	collection chromago.Collection
	embedder   aiq.Embedder
	indexer    *FileIndexer
}

func init() {
	aiq.Register_Retriever("chroma", func(settings map[string]any, b *aiq.Builder) (aiq.Retriever, error) {
		var cfg ChromaConfig
		if err := config.Decode(settings, &cfg); err != nil {
			return nil, err
		}
		return NewChroma(context.Background(), cfg, b)
	})
}

// NewChroma creates a chroma retriever, creating the collection when it does
// not exist yet.
func NewChroma(ctx context.Context, cfg ChromaConfig, b *aiq.Builder) (*ChromaRetriever, error) {
	if cfg.CollectionName == "" {
		return nil, fmt.Errorf("chroma retriever requires collection_name")
	}
	if cfg.EmbedderName == "" {
		return nil, fmt.Errorf("chroma retriever requires embedder_name")
	}
	embedder, err := b.Get_Embedder(cfg.EmbedderName)
	if err != nil {
		return nil, err
	}

	var clientOpts []chromago.ClientOption
	if cfg.URL != "" {
		clientOpts = append(clientOpts, chromago.WithBaseURL(cfg.URL))
	}
	client, err := chromago.NewHTTPClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		ctx,
		cfg.CollectionName,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("created_by", "aiq"),
			),
		),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get or create collection '%s': %w", cfg.CollectionName, err)
	}

	retriever := &ChromaRetriever{
		client:     client,
		collection: collection,
		embedder:   embedder,
	}
	if cfg.IngestDir != "" {
		retriever.indexer = NewFileIndexer(collection, embedder, cfg.IngestDir, cfg.ChunkSize, cfg.ChunkOverlap)
	}
	return retriever, nil
}

// Search implements aiq.Retriever.
func (r *ChromaRetriever) Search(ctx context.Context, query string, topK int) ([]aiq.Document, error) {
	vector, err := r.embedder.Embed_Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.collection.Query(
		ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(topK),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chroma collection: %w", err)
	}

	var docs []aiq.Document
	idGroups := results.GetIDGroups()
	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	if len(documentGroups) == 0 {
		return docs, nil
	}

	for i, doc := range documentGroups[0] {
		if doc.ContentString() == "" {
			continue
		}
		out := aiq.Document{Text: doc.ContentString()}
		if len(idGroups) > 0 && i < len(idGroups[0]) {
			out.ID = string(idGroups[0][i])
		}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) && metadataGroups[0][i] != nil {
			// DocumentMetadata has no map accessor; round-trip through JSON.
			raw, err := json.Marshal(metadataGroups[0][i])
			if err == nil {
				var meta map[string]any
				if json.Unmarshal(raw, &meta) == nil {
					out.Metadata = meta
				}
			}
		}
		docs = append(docs, out)
	}
	return docs, nil
}

// Start runs the initial directory scan and begins watching for changes.
// No-op when the retriever has no ingest directory configured.
func (r *ChromaRetriever) Start(ctx context.Context) error {
	if r.indexer == nil {
		return nil
	}
	go func() {
		r.indexer.ScanAndIndex(ctx)
		if err := r.indexer.Watch(ctx); err != nil {
			log.Printf("WATCHER ERROR: %v", err)
		}
	}()
	return nil
}

// Close releases the chroma client.
func (r *ChromaRetriever) Close() error {
	return r.client.Close()
}

package retrievers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/aiqtoolkit/aiq"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 100
)

// FileIndexer keeps a directory of documents in sync with a chroma
// collection: scan on startup, watch for changes while running. Files are
// identified by path and skipped when their content hash is unchanged.
type FileIndexer struct {
	collection   chromago.Collection
	embedder     aiq.Embedder
	dir          string
	chunkSize    int
	chunkOverlap int
}

// NewFileIndexer creates an indexer for the given directory.
func NewFileIndexer(collection chromago.Collection, embedder aiq.Embedder, dir string, chunkSize, chunkOverlap int) *FileIndexer {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if chunkOverlap <= 0 {
		chunkOverlap = defaultChunkOverlap
	}
	return &FileIndexer{
		collection:   collection,
		embedder:     embedder,
		dir:          dir,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

func isSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

func fileHash(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

// ScanAndIndex syncs the directory with the collection: new and changed
// files are (re)indexed, deleted files are removed.
func (s *FileIndexer) ScanAndIndex(ctx context.Context) {
	log.Printf("INDEXER: Starting directory scan for: %s", s.dir)

	indexed, err := s.currentIndexState(ctx)
	if err != nil {
		log.Printf("INDEXER ERROR: Could not get current index state: %v", err)
		return
	}

	local := make(map[string]bool)
	err = filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isSupportedFile(path) {
			return nil
		}
		local[path] = true
		hash, err := fileHash(path)
		if err != nil {
			log.Printf("INDEXER WARN: Could not hash file %s: %v", path, err)
			return nil
		}

		if prev, ok := indexed[path]; ok {
			if prev == hash {
				return nil // unchanged
			}
			log.Printf("INDEXER: File has changed: %s. Re-indexing...", path)
			if err := s.deleteByPath(ctx, path); err != nil {
				log.Printf("INDEXER ERROR: Failed to delete old version of %s: %v", path, err)
				return nil
			}
		}
		if err := s.indexFile(ctx, path, hash); err != nil {
			log.Printf("INDEXER ERROR: Failed to process file %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		log.Printf("INDEXER ERROR: Error walking the path %s: %v", s.dir, err)
	}

	for path := range indexed {
		if !local[path] {
			log.Printf("INDEXER: File deleted: %s. Removing from index...", path)
			if err := s.deleteByPath(ctx, path); err != nil {
				log.Printf("INDEXER ERROR: Failed to delete records for %s: %v", path, err)
			}
		}
	}
	log.Println("INDEXER: Directory scan finished.")
}

// Watch blocks watching the directory until ctx is cancelled. Editors often
// write via temp-file-and-rename, so Create and Write are handled the same.
func (s *FileIndexer) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}
	log.Printf("WATCHER: Watching directory: %s", s.dir)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isSupportedFile(event.Name) {
				continue
			}
			switch {
			case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
				hash, err := fileHash(event.Name)
				if err != nil {
					log.Printf("WATCHER WARN: Could not hash file %s: %v", event.Name, err)
					continue
				}
				if err := s.deleteByPath(ctx, event.Name); err != nil {
					log.Printf("WATCHER WARN: Failed to delete old version of %s: %v", event.Name, err)
				}
				if err := s.indexFile(ctx, event.Name, hash); err != nil {
					log.Printf("WATCHER ERROR: Failed to process file %s: %v", event.Name, err)
				}
			case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
				if err := s.deleteByPath(ctx, event.Name); err != nil {
					log.Printf("WATCHER ERROR: Failed to delete records for %s: %v", event.Name, err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("WATCHER ERROR: %v", err)
		}
	}
}

func (s *FileIndexer) indexFile(ctx context.Context, path, hash string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.chunkSize),
		textsplitter.WithChunkOverlap(s.chunkOverlap),
	)
	chunks, err := splitter.SplitText(string(content))
	if err != nil {
		return err
	}
	log.Printf("INDEXER: Split %s into %d chunks.", path, len(chunks))

	vectors, err := s.embedder.Embed_Documents(ctx, chunks)
	if err != nil {
		return fmt.Errorf("could not embed chunks of %s: %w", path, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	for i, chunk := range chunks {
		metadata := chromago.NewDocumentMetadata(
			chromago.NewStringAttribute("source_file", path),
			chromago.NewStringAttribute("file_hash", hash),
			chromago.NewIntAttribute("chunk_num", int64(i)),
		)
		docID := chromago.DocumentID(fmt.Sprintf("%s-chunk%d", uuid.New().String(), i))
		err = s.collection.Add(ctx,
			chromago.WithIDs(docID),
			chromago.WithTexts(chunk),
			chromago.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(vectors[i])),
			chromago.WithMetadatas(metadata),
		)
		if err != nil {
			return fmt.Errorf("failed to add chunk %d of %s: %w", i, path, err)
		}
	}
	return nil
}

// currentIndexState maps indexed file paths to their content hashes.
func (s *FileIndexer) currentIndexState(ctx context.Context) (map[string]string, error) {
	state := make(map[string]string)
	results, err := s.collection.Get(ctx)
	if err != nil {
		return nil, err
	}
	for _, meta := range results.GetMetadatas() {
		if meta == nil {
			continue
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			continue
		}
		var metaMap map[string]any
		if json.Unmarshal(raw, &metaMap) != nil {
			continue
		}
		path, ok := metaMap["source_file"].(string)
		if !ok {
			continue
		}
		hash, ok := metaMap["file_hash"].(string)
		if !ok {
			continue
		}
		if _, exists := state[path]; !exists {
			state[path] = hash
		}
	}
	return state, nil
}

func (s *FileIndexer) deleteByPath(ctx context.Context, path string) error {
	where := chromago.EqString("source_file", path)
	return s.collection.Delete(ctx, chromago.WithWhereDelete(where))
}

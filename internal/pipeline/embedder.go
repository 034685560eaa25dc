package pipeline

import (
	"context"
	"log"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
)

// Embedder computes and persists a vector for every chunk that lacks one.
// Chunks that already carry an embedding are skipped, which makes
// re-invocation after a partial failure cheap and safe.
type Embedder struct {
	Storage    Storage
	Embeddings Embeddings

	// Concurrency caps the in-flight story-level operations (default 64).
	Concurrency int

	Logger *log.Logger
}

// Embed fills in the missing chunk embeddings for the publication at the
// given chunking version. Within one story the chunks are processed in index
// order; a missing vector from the provider is fatal for that story.
func (e *Embedder) Embed(ctx context.Context, publication string, version int) error {
	storyIDs, err := e.Storage.ListStoryIDs(ctx, publication)
	if err != nil {
		return err
	}
	e.logger().Printf("found %d stories", len(storyIDs))

	return forEach(ctx, storyIDs, e.concurrency(), func(ctx context.Context, storyID string) error {
		chunks, err := e.Storage.ListChunks(ctx, publication, storyID, version)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			e.logger().Printf("no chunks found for %q, skipping", storyID)
			return nil
		}
		for _, chunk := range chunks {
			if chunk.Embedding != nil {
				e.logger().Printf("chunk for story %q already has an embedding, skipping", storyID)
				continue
			}
			vector, err := e.Embeddings.CreateEmbedding(ctx, news.Markdown(chunk.Content))
			if err != nil {
				return err
			}
			if err := e.Storage.InsertEmbedding(ctx, chunk.ID, vector); err != nil {
				return err
			}
			e.logger().Printf("done computing an embedding for a chunk for story %q", storyID)
		}
		return nil
	})
}

func (e *Embedder) concurrency() int {
	if e.Concurrency > 0 {
		return e.Concurrency
	}
	return 64
}

func (e *Embedder) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.New(log.Writer(), "[EMBEDDER] ", log.LstdFlags)
}

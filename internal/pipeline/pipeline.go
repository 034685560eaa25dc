// Package pipeline implements the four ingestion and retrieval stages of
// the news corpus: scrape, chunk, embed and answer. Stages are independently
// triggerable and idempotent; they share no state beyond the story store.
package pipeline

import (
	"context"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
)

// Storage is the durable story store the pipeline stages communicate
// through. *store.Store satisfies it; tests substitute fakes.
type Storage interface {
	UpsertStory(ctx context.Context, story news.Story) error
	ListStoryIDs(ctx context.Context, publication string) ([]string, error)
	ListStoryIDsWithoutChunks(ctx context.Context, publication string, version int) ([]string, error)
	FindStoryByID(ctx context.Context, publication, storyID string) (news.Story, error)
	InsertChunk(ctx context.Context, chunk news.Chunk) error
	InsertEmbedding(ctx context.Context, chunkID string, vector []float32) error
	ListChunks(ctx context.Context, publication, storyID string, version int) ([]news.Chunk, error)
	FindChunkByID(ctx context.Context, chunkID string) (news.Chunk, error)
}

// Index ranks chunk identifiers by similarity to a query vector, descending.
type Index interface {
	SearchChunks(ctx context.Context, vector []float32, threshold float64, count int) ([]news.ChunkMatch, error)
}

// Embeddings converts text into a fixed-length vector. Implementations must
// error when no vector is returned.
type Embeddings interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

package pipeline

import (
	"context"
	"log"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
)

// Chunker partitions story content into word-budgeted chunks under a
// segmentation version. A story that already has chunks at the version is
// skipped, so reruns only pick up new stories.
type Chunker struct {
	Storage Storage

	// Concurrency caps the in-flight story-level operations (default 8).
	Concurrency int

	Logger *log.Logger
}

// Chunk segments every not-yet-chunked story of the publication at the
// given version.
func (c *Chunker) Chunk(ctx context.Context, publication string, version, wordsPerChunk int) error {
	storyIDs, err := c.Storage.ListStoryIDsWithoutChunks(ctx, publication, version)
	if err != nil {
		return err
	}
	c.logger().Printf("found %d stories to be chunked", len(storyIDs))

	return forEach(ctx, storyIDs, c.concurrency(), func(ctx context.Context, storyID string) error {
		story, err := c.Storage.FindStoryByID(ctx, publication, storyID)
		if err != nil {
			return err
		}
		chunks := splitContent(story.Content, wordsPerChunk)
		c.logger().Printf("chunked story %q into %d chunks", storyID, len(chunks))
		for index, blocks := range chunks {
			err := c.Storage.InsertChunk(ctx, news.Chunk{
				Publication: publication,
				StoryID:     storyID,
				Version:     version,
				Index:       index,
				Content:     blocks,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// splitContent greedily accumulates blocks into a running chunk, closing it
// as soon as the running word count reaches the budget. Boundaries fall only
// between blocks and the trailing remainder is kept, so concatenating the
// chunks reconstructs the content exactly.
func splitContent(content []news.ContentBlock, wordsPerChunk int) [][]news.ContentBlock {
	var chunks [][]news.ContentBlock
	var current []news.ContentBlock
	for _, block := range content {
		current = append(current, block)
		if news.WordCount(current) >= wordsPerChunk {
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func (c *Chunker) concurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	return 8
}

func (c *Chunker) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.New(log.Writer(), "[CHUNKER] ", log.LstdFlags)
}

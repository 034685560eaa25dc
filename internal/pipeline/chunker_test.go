package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
)

func TestSplitContent(t *testing.T) {
	block := func(words int) news.ContentBlock {
		return news.ContentBlock{Kind: news.BlockText, Text: makeWords(words)}
	}

	tests := []struct {
		name          string
		content       []news.ContentBlock
		wordsPerChunk int
		wantSizes     []int
	}{
		{
			name:          "pairs of blocks reach the budget",
			content:       []news.ContentBlock{block(10), block(10), block(10), block(10)},
			wordsPerChunk: 20,
			wantSizes:     []int{2, 2},
		},
		{
			name:          "trailing remainder kept under budget",
			content:       []news.ContentBlock{block(10), block(10), block(10), block(5)},
			wordsPerChunk: 20,
			wantSizes:     []int{2, 2},
		},
		{
			name:          "short remainder becomes its own chunk",
			content:       []news.ContentBlock{block(20), block(3)},
			wordsPerChunk: 20,
			wantSizes:     []int{1, 1},
		},
		{
			name:          "oversized block closes its chunk alone",
			content:       []news.ContentBlock{block(50), block(50), block(50), block(50)},
			wordsPerChunk: 20,
			wantSizes:     []int{1, 1, 1, 1},
		},
		{
			name:          "everything fits in one chunk",
			content:       []news.ContentBlock{block(3), block(3)},
			wordsPerChunk: 100,
			wantSizes:     []int{2},
		},
		{
			name:          "four blocks of fifty words split into three",
			content:       []news.ContentBlock{block(20), block(20), block(5), block(5)},
			wordsPerChunk: 20,
			wantSizes:     []int{1, 1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := splitContent(tt.content, tt.wordsPerChunk)
			if len(chunks) != len(tt.wantSizes) {
				t.Fatalf("expected %d chunks, got %d", len(tt.wantSizes), len(chunks))
			}
			var flattened []news.ContentBlock
			for i, chunk := range chunks {
				if len(chunk) != tt.wantSizes[i] {
					t.Fatalf("expected chunk %d to have %d blocks, got %d", i, tt.wantSizes[i], len(chunk))
				}
				flattened = append(flattened, chunk...)
			}
			if len(flattened) != len(tt.content) {
				t.Fatalf("expected chunks to cover the content, got %d of %d blocks", len(flattened), len(tt.content))
			}
			for i := range flattened {
				if flattened[i] != tt.content[i] {
					t.Fatalf("expected block %d preserved in order", i)
				}
			}
		})
	}
}

func TestChunkPersistsIndexedChunks(t *testing.T) {
	storage := newFakeStorage()
	storage.addStory(news.Story{
		Publication: "hs",
		StoryID:     "a1",
		Href:        "https://example.com/a1",
		Content: []news.ContentBlock{
			{Kind: news.BlockHeadline, Text: makeWords(10)},
			{Kind: news.BlockText, Text: makeWords(10)},
			{Kind: news.BlockText, Text: makeWords(10)},
		},
		PublishedAt: time.Now(),
	})

	chunker := &Chunker{Storage: storage, Logger: quietLogger()}
	if err := chunker.Chunk(context.Background(), "hs", 2, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks, _ := storage.ListChunks(context.Background(), "hs", "a1", 2)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Fatalf("expected chunk index %d, got %d", i, chunk.Index)
		}
		if chunk.Version != 2 {
			t.Fatalf("expected version 2, got %d", chunk.Version)
		}
		if chunk.Embedding != nil {
			t.Fatalf("expected new chunks without embeddings")
		}
	}
}

func TestChunkSkipsAlreadyChunkedStories(t *testing.T) {
	storage := newFakeStorage()
	storage.addStory(news.Story{
		Publication: "hs",
		StoryID:     "a1",
		Content:     []news.ContentBlock{{Kind: news.BlockText, Text: makeWords(30)}},
	})
	storage.addChunk(news.Chunk{ID: "1", Publication: "hs", StoryID: "a1", Version: 1, Index: 0})

	chunker := &Chunker{Storage: storage, Logger: quietLogger()}
	if err := chunker.Chunk(context.Background(), "hs", 1, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks, _ := storage.ListChunks(context.Background(), "hs", "a1", 1)
	if len(chunks) != 1 {
		t.Fatalf("expected no additional chunks at version 1, got %d", len(chunks))
	}
}

func TestChunkNewVersionIsIndependent(t *testing.T) {
	storage := newFakeStorage()
	storage.addStory(news.Story{
		Publication: "hs",
		StoryID:     "a1",
		Content: []news.ContentBlock{
			{Kind: news.BlockText, Text: makeWords(10)},
			{Kind: news.BlockText, Text: makeWords(10)},
		},
	})
	storage.addChunk(news.Chunk{ID: "1", Publication: "hs", StoryID: "a1", Version: 1, Index: 0})

	chunker := &Chunker{Storage: storage, Logger: quietLogger()}
	if err := chunker.Chunk(context.Background(), "hs", 2, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	v1, _ := storage.ListChunks(context.Background(), "hs", "a1", 1)
	if len(v1) != 1 {
		t.Fatalf("expected version 1 chunks untouched, got %d", len(v1))
	}
	v2, _ := storage.ListChunks(context.Background(), "hs", "a1", 2)
	if len(v2) != 1 {
		t.Fatalf("expected 1 chunk at version 2, got %d", len(v2))
	}
}

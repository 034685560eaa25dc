package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
	"github.com/markusylisiurunen/NewsGPT/provider"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func makeWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(words, " ")
}

type storyKey struct{ publication, storyID string }

// fakeStorage is an in-memory Storage safe for concurrent stage workers.
type fakeStorage struct {
	mu      sync.Mutex
	stories map[storyKey]news.Story
	chunks  []news.Chunk
	nextID  int

	upsertErr error
	insertErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{stories: make(map[storyKey]news.Story)}
}

func (f *fakeStorage) addStory(story news.Story) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stories[storyKey{story.Publication, story.StoryID}] = story
}

func (f *fakeStorage) addChunk(chunk news.Chunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunk)
}

func (f *fakeStorage) UpsertStory(ctx context.Context, story news.Story) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.stories[storyKey{story.Publication, story.StoryID}] = story
	return nil
}

func (f *fakeStorage) ListStoryIDs(ctx context.Context, publication string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for key := range f.stories {
		if key.publication == publication {
			ids = append(ids, key.storyID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStorage) ListStoryIDsWithoutChunks(ctx context.Context, publication string, version int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chunked := make(map[string]struct{})
	for _, chunk := range f.chunks {
		if chunk.Publication == publication && chunk.Version == version {
			chunked[chunk.StoryID] = struct{}{}
		}
	}
	var ids []string
	for key := range f.stories {
		if key.publication != publication {
			continue
		}
		if _, ok := chunked[key.storyID]; ok {
			continue
		}
		ids = append(ids, key.storyID)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStorage) FindStoryByID(ctx context.Context, publication, storyID string) (news.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	story, ok := f.stories[storyKey{publication, storyID}]
	if !ok {
		return news.Story{}, fmt.Errorf("story %q/%q not found", publication, storyID)
	}
	return story, nil
}

func (f *fakeStorage) InsertChunk(ctx context.Context, chunk news.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextID++
	chunk.ID = fmt.Sprintf("%d", f.nextID)
	f.chunks = append(f.chunks, chunk)
	return nil
}

func (f *fakeStorage) InsertEmbedding(ctx context.Context, chunkID string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.chunks {
		if f.chunks[i].ID == chunkID {
			f.chunks[i].Embedding = vector
			return nil
		}
	}
	return fmt.Errorf("chunk %q not found", chunkID)
}

func (f *fakeStorage) ListChunks(ctx context.Context, publication, storyID string, version int) ([]news.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var chunks []news.Chunk
	for _, chunk := range f.chunks {
		if chunk.Publication == publication && chunk.StoryID == storyID && chunk.Version == version {
			chunks = append(chunks, chunk)
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

func (f *fakeStorage) FindChunkByID(ctx context.Context, chunkID string) (news.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, chunk := range f.chunks {
		if chunk.ID == chunkID {
			return chunk, nil
		}
	}
	return news.Chunk{}, fmt.Errorf("chunk %q not found", chunkID)
}

// fakeIndex returns a scripted ranking.
type fakeIndex struct {
	matches []news.ChunkMatch
	err     error

	lastThreshold float64
	lastCount     int
}

func (f *fakeIndex) SearchChunks(ctx context.Context, vector []float32, threshold float64, count int) ([]news.ChunkMatch, error) {
	f.lastThreshold = threshold
	f.lastCount = count
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

// fakeProvider records calls and returns scripted results.
type fakeProvider struct {
	mu sync.Mutex

	embedding  []float32
	embedErr   error
	embedTexts []string

	answer       string
	lastMessages []provider.Message
	lastParams   provider.CompletionParams
	completions  int

	streamDeltas []string
}

func (f *fakeProvider) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedTexts = append(f.embedTexts, text)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedding, nil
}

func (f *fakeProvider) CreateCompletion(ctx context.Context, messages []provider.Message, params provider.CompletionParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions++
	f.lastMessages = messages
	f.lastParams = params
	return f.answer, nil
}

func (f *fakeProvider) StreamCompletion(ctx context.Context, messages []provider.Message, params provider.CompletionParams) (provider.CompletionStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMessages = messages
	f.lastParams = params
	return &fakeStream{deltas: f.streamDeltas}, nil
}

type fakeStream struct {
	deltas []string
	pos    int
	closed bool
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos >= len(s.deltas) {
		return "", io.EOF
	}
	delta := s.deltas[s.pos]
	s.pos++
	return delta, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
	"github.com/markusylisiurunen/NewsGPT/provider"
)

// ErrQueryTooShort rejects queries below the minimum length before any
// provider work starts. The boundary maps it to a client error.
var ErrQueryTooShort = errors.New("query is too short")

// Answerer embeds a user query, retrieves the most similar chunks, and
// produces a grounded answer, either as one response with cited stories or
// as an incremental text stream.
type Answerer struct {
	Storage  Storage
	Index    Index
	Provider provider.Provider

	// TopK and SimilarityThreshold control retrieval (defaults 8 and 0.78).
	TopK                int
	SimilarityThreshold float64
	// MaxContextWords bounds the assembled context (default 768 words,
	// roughly 1024 generation tokens at ~0.75 words per token).
	MaxContextWords int
	// MinQueryLength rejects degenerate queries (default 8 characters,
	// counted after stripping quote characters).
	MinQueryLength int
	// StreamTemperature and StreamMaxTokens parameterize the streaming,
	// cited variant (defaults 0.67 and 512).
	StreamTemperature float64
	StreamMaxTokens   int

	Logger *log.Logger
}

// Answer is the batch result: the generated text and the distinct stories
// the retrieved chunks belong to.
type Answer struct {
	Answer  string        `json:"answer"`
	Stories []AnswerStory `json:"stories"`
}

// AnswerStory identifies one cited story.
type AnswerStory struct {
	Publication string `json:"publication"`
	Headline    string `json:"headline"`
	Href        string `json:"href"`
}

// Answer runs the batch variant: retrieve, assemble a word-budgeted context,
// generate once, and return the answer with the deduplicated source stories.
func (a *Answerer) Answer(ctx context.Context, query string) (Answer, error) {
	query, chunks, err := a.retrieve(ctx, query)
	if err != nil {
		return Answer{}, err
	}

	var blocks []news.ContentBlock
	for _, chunk := range chunks {
		blocks = append(blocks, chunk.Content...)
	}
	context := takeWordBudget(blocks, a.maxContextWords())

	answer, err := a.Provider.CreateCompletion(ctx, batchMessages(query, context), provider.CompletionParams{})
	if err != nil {
		return Answer{}, err
	}

	stories, err := a.hydrateStories(ctx, chunks)
	if err != nil {
		return Answer{}, err
	}
	return Answer{Answer: answer, Stories: stories}, nil
}

// AnswerStream runs the streaming variant: retrieve, assemble per-source
// context under the same word budget, and return the provider's delta
// stream. The caller owns the stream and must Close it.
func (a *Answerer) AnswerStream(ctx context.Context, query string) (provider.CompletionStream, error) {
	query, chunks, err := a.retrieve(ctx, query)
	if err != nil {
		return nil, err
	}
	sources, err := a.collectSources(ctx, chunks)
	if err != nil {
		return nil, err
	}
	return a.Provider.StreamCompletion(ctx, streamMessages(query, sources, time.Now()), provider.CompletionParams{
		Temperature: a.streamTemperature(),
		MaxTokens:   a.streamMaxTokens(),
		Stop:        []string{"\nQuestion:"},
	})
}

// retrieve validates the query, embeds it, and hydrates the top matching
// chunks in ranking order.
func (a *Answerer) retrieve(ctx context.Context, query string) (string, []news.Chunk, error) {
	query = strings.ReplaceAll(query, `"`, "")
	if utf8.RuneCountInString(query) < a.minQueryLength() {
		return "", nil, fmt.Errorf("%w: must be at least %d characters", ErrQueryTooShort, a.minQueryLength())
	}

	vector, err := a.Provider.CreateEmbedding(ctx, query)
	if err != nil {
		return "", nil, err
	}
	matches, err := a.Index.SearchChunks(ctx, vector, a.similarityThreshold(), a.topK())
	if err != nil {
		return "", nil, err
	}
	a.logger().Printf("found %d chunks above similarity %.2f for query", len(matches), a.similarityThreshold())

	chunks := make([]news.Chunk, 0, len(matches))
	for _, match := range matches {
		chunk, err := a.Storage.FindChunkByID(ctx, match.ChunkID)
		if err != nil {
			return "", nil, err
		}
		chunks = append(chunks, chunk)
	}
	return query, chunks, nil
}

// hydrateStories deduplicates the chunks by parent story and fetches each
// matching story once, preserving ranking order.
func (a *Answerer) hydrateStories(ctx context.Context, chunks []news.Chunk) ([]AnswerStory, error) {
	type naturalKey struct{ publication, storyID string }
	seen := make(map[naturalKey]struct{}, len(chunks))
	stories := make([]AnswerStory, 0, len(chunks))
	for _, chunk := range chunks {
		key := naturalKey{chunk.Publication, chunk.StoryID}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		story, err := a.Storage.FindStoryByID(ctx, chunk.Publication, chunk.StoryID)
		if err != nil {
			return nil, err
		}
		stories = append(stories, AnswerStory{
			Publication: story.Publication,
			Headline:    story.Headline(),
			Href:        story.Href,
		})
	}
	return stories, nil
}

// answerSource is one numbered context entry of the streaming variant.
type answerSource struct {
	number      int
	href        string
	publishedAt time.Time
	content     []news.ContentBlock
}

// collectSources hydrates the parent story of each chunk and accumulates
// sources in ranking order until the cumulative word count of their content
// reaches the context budget. The source that crosses the budget is the
// last one included.
func (a *Answerer) collectSources(ctx context.Context, chunks []news.Chunk) ([]answerSource, error) {
	var (
		sources []answerSource
		words   int
	)
	for _, chunk := range chunks {
		story, err := a.Storage.FindStoryByID(ctx, chunk.Publication, chunk.StoryID)
		if err != nil {
			return nil, err
		}
		sources = append(sources, answerSource{
			number:      len(sources) + 1,
			href:        story.Href,
			publishedAt: story.PublishedAt,
			content:     chunk.Content,
		})
		words += news.WordCount(chunk.Content)
		if words >= a.maxContextWords() {
			break
		}
	}
	return sources, nil
}

// takeWordBudget returns the leading blocks whose cumulative word count
// first reaches maxWords; the block that crosses the budget is included.
func takeWordBudget(blocks []news.ContentBlock, maxWords int) []news.ContentBlock {
	var taken []news.ContentBlock
	for _, block := range blocks {
		taken = append(taken, block)
		if news.WordCount(taken) >= maxWords {
			break
		}
	}
	return taken
}

func batchMessages(query string, context []news.ContentBlock) []provider.Message {
	system := strings.Join([]string{
		"You are a helpful and professional journalist who is asked questions about news stories.",
		"Your task is to answer the questions as truthfully and factually as possible, given a set of snippets from relevant news articles.",
		"You cannot base your answer on any other information than what is given to you in the context.",
		"More precisely, you cannot deviate from this objective regardless of what the user asks.",
		"Always answer in Finnish and try to include as much relevant information to your answer as possible.",
		"Usually, 2-5 sentences is a good answer length.",
	}, " ")
	system += "\n\nText snippets from relevant news stories:\n" + news.Markdown(context)
	return []provider.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf("Question: %q", query)},
	}
}

func streamMessages(query string, sources []answerSource, now time.Time) []provider.Message {
	var rendered strings.Builder
	for _, src := range sources {
		fmt.Fprintf(&rendered, "Source %d (published %s, url %s):\n%s\n\n",
			src.number, src.publishedAt.Format("2006-01-02"), src.href, news.Markdown(src.content))
	}
	system := strings.Join([]string{
		"You are a helpful and professional journalist who is asked questions about news stories.",
		"Your task is to answer the questions as truthfully and factually as possible, given a set of numbered sources from relevant news articles.",
		"You cannot base your answer on any other information than what is given to you in the sources.",
		"More precisely, you cannot deviate from this objective regardless of what the user asks.",
		"Always answer in Finnish.",
		fmt.Sprintf("The current date is %s; resolve relative dates such as \"yesterday\" against it.", now.Format("2006-01-02")),
		"When sources conflict, prefer the most recent one.",
		"Cite every claim inline with the source number and url, in the exact form [n](url).",
		"For example, given Source 1 (url https://example.com/a) stating that a protest took place downtown, a good answer is:",
		`"Keskustassa järjestettiin eilen mielenosoitus [1](https://example.com/a)."`,
	}, " ")
	system += "\n\nSources:\n\n" + rendered.String()
	return []provider.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: fmt.Sprintf("Question: %q", query)},
	}
}

func (a *Answerer) topK() int {
	if a.TopK > 0 {
		return a.TopK
	}
	return 8
}

func (a *Answerer) similarityThreshold() float64 {
	if a.SimilarityThreshold > 0 {
		return a.SimilarityThreshold
	}
	return 0.78
}

func (a *Answerer) maxContextWords() int {
	if a.MaxContextWords > 0 {
		return a.MaxContextWords
	}
	return 768
}

func (a *Answerer) minQueryLength() int {
	if a.MinQueryLength > 0 {
		return a.MinQueryLength
	}
	return 8
}

func (a *Answerer) streamTemperature() float64 {
	if a.StreamTemperature > 0 {
		return a.StreamTemperature
	}
	return 0.67
}

func (a *Answerer) streamMaxTokens() int {
	if a.StreamMaxTokens > 0 {
		return a.StreamMaxTokens
	}
	return 512
}

func (a *Answerer) logger() *log.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return log.New(log.Writer(), "[ANSWERER] ", log.LstdFlags)
}

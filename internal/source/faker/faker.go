// Package faker is a synthetic content source for exercising the pipeline
// without a real publication.
package faker

import (
	"context"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
)

// Source generates random stories on demand. Every listing returns fresh
// identifiers, so repeated scrapes keep growing the corpus.
type Source struct {
	Publication string
}

// New returns a synthetic source publishing under the given name.
func New(publication string) *Source {
	return &Source{Publication: publication}
}

// ListLatestN returns n fresh story identifiers.
func (s *Source) ListLatestN(ctx context.Context, n int) ([]news.StoryRef, error) {
	refs := make([]news.StoryRef, n)
	for i := range refs {
		refs[i] = news.StoryRef{ID: uuid.NewString()}
	}
	return refs, nil
}

// GetStory fabricates a story with 4 to 11 content blocks: a headline
// followed by lorem paragraphs.
func (s *Source) GetStory(ctx context.Context, id string) (news.Story, error) {
	blockCount := 4 + rand.Intn(8)
	content := make([]news.ContentBlock, 0, blockCount)
	content = append(content, news.ContentBlock{
		Kind: news.BlockHeadline,
		Text: gofakeit.Sentence(6),
	})
	for len(content) < blockCount {
		content = append(content, news.ContentBlock{
			Kind: news.BlockText,
			Text: gofakeit.Paragraph(1, 3, 12, " "),
		})
	}
	now := time.Now()
	return news.Story{
		Publication: s.Publication,
		StoryID:     id,
		Href:        "https://example.com/" + id,
		Content:     content,
		PublishedAt: now,
		UpdatedAt:   &now,
	}, nil
}

// Package source defines the content source contract the scraper pulls
// news stories from.
package source

import (
	"context"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
)

// Source lists the most recent item identifiers of one publication and
// fetches the full content of an item by identifier. Listing is lightweight;
// fetching full content is a separate per-item call.
type Source interface {
	ListLatestN(ctx context.Context, n int) ([]news.StoryRef, error)
	GetStory(ctx context.Context, id string) (news.Story, error)
}

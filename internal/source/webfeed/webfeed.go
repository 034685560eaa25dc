// Package webfeed is a content source backed by a JSON feed of published
// articles. The feed lists the newest item identifiers; the full article is
// fetched from the item's URL and its content extracted with readability.
package webfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
)

// Source reads from a feed endpoint speaking a small JSON protocol:
//
//	GET {feed}?limit=N       -> {"items":[{"id":"..."}, ...]} newest first
//	GET {feed}/{id}          -> {"id","url","published_at","updated_at"}
//
// The article body is fetched from the item URL and segmented into a
// headline block plus one text block per extracted paragraph.
type Source struct {
	Publication string
	FeedURL     string

	httpClient *http.Client
}

type feedItem struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	PublishedAt time.Time  `json:"published_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// New returns a feed-backed source for the publication.
func New(publication, feedURL string, timeout time.Duration) *Source {
	return &Source{
		Publication: publication,
		FeedURL:     strings.TrimSuffix(feedURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// ListLatestN returns the identifiers of the n newest feed items.
func (s *Source) ListLatestN(ctx context.Context, n int) ([]news.StoryRef, error) {
	listURL := s.FeedURL + "?limit=" + strconv.Itoa(n)
	var listing struct {
		Items []feedItem `json:"items"`
	}
	if err := s.getJSON(ctx, listURL, &listing); err != nil {
		return nil, fmt.Errorf("list feed items: %w", err)
	}
	refs := make([]news.StoryRef, 0, len(listing.Items))
	for _, item := range listing.Items {
		refs = append(refs, news.StoryRef{ID: item.ID})
	}
	return refs, nil
}

// GetStory resolves the feed item, fetches the article page, and extracts
// its readable content.
func (s *Source) GetStory(ctx context.Context, id string) (news.Story, error) {
	var item feedItem
	if err := s.getJSON(ctx, s.FeedURL+"/"+url.PathEscape(id), &item); err != nil {
		return news.Story{}, fmt.Errorf("fetch feed item %q: %w", id, err)
	}
	if item.URL == "" {
		return news.Story{}, fmt.Errorf("feed item %q has no url", id)
	}

	content, err := s.extractContent(ctx, item.URL)
	if err != nil {
		return news.Story{}, err
	}
	return news.Story{
		Publication: s.Publication,
		StoryID:     item.ID,
		Href:        item.URL,
		Content:     content,
		PublishedAt: item.PublishedAt,
		UpdatedAt:   item.UpdatedAt,
	}, nil
}

func (s *Source) extractContent(ctx context.Context, articleURL string) ([]news.ContentBlock, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch article %q: %w", articleURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("article %q returned status: %d", articleURL, resp.StatusCode)
	}

	parsed, err := url.Parse(articleURL)
	if err != nil {
		return nil, fmt.Errorf("parse article url %q: %w", articleURL, err)
	}
	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return nil, fmt.Errorf("extract article %q: %w", articleURL, err)
	}

	var blocks []news.ContentBlock
	if title := strings.TrimSpace(article.Title); title != "" {
		blocks = append(blocks, news.ContentBlock{Kind: news.BlockHeadline, Text: title})
	}
	for _, paragraph := range strings.Split(article.TextContent, "\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		blocks = append(blocks, news.ContentBlock{Kind: news.BlockText, Text: paragraph})
	}
	return blocks, nil
}

func (s *Source) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed returned status: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

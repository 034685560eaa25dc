package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/markusylisiurunen/NewsGPT/internal/news"
	"github.com/markusylisiurunen/NewsGPT/internal/source"
)

// Scraper pulls the latest stories of one publication from its content
// source into the store. Already-stored stories are skipped, transient
// per-item failures are retried and then abandoned without failing the
// batch, and stories with too little content are silently dropped.
type Scraper struct {
	Source  source.Source
	Storage Storage

	// Concurrency caps the in-flight fetch/upsert operations (default 8).
	Concurrency int
	// RetryAttempts and RetryBackoff bound the per-item retry policy
	// (defaults 3 and 500ms).
	RetryAttempts int
	RetryBackoff  time.Duration
	// MinBlocks is the smallest content block count worth keeping
	// (default 4); thinner stories are skipped, not errors.
	MinBlocks int

	Logger *log.Logger
}

// Scrape ingests up to limit of the newest stories for the publication.
// Only an internal pool-level fault fails the call.
func (s *Scraper) Scrape(ctx context.Context, publication string, limit int) error {
	existing, err := s.Storage.ListStoryIDs(ctx, publication)
	if err != nil {
		return err
	}
	existingSet := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		existingSet[id] = struct{}{}
	}

	s.logger().Printf("listing the latest %d news stories from %q", limit, publication)
	refs, err := s.Source.ListLatestN(ctx, limit)
	if err != nil {
		return err
	}

	err = forEach(ctx, refs, s.concurrency(), func(ctx context.Context, ref news.StoryRef) error {
		if _, ok := existingSet[ref.ID]; ok {
			s.logger().Printf("story %q from %q already exists, skipping", ref.ID, publication)
			return nil
		}
		s.scrapeOne(ctx, publication, ref.ID)
		return nil
	})
	if err != nil {
		return err
	}
	s.logger().Printf("done scraping %q", publication)
	return nil
}

// scrapeOne fetches and persists a single story with the bounded retry
// policy. Failures are logged and the item abandoned; they never propagate.
func (s *Scraper) scrapeOne(ctx context.Context, publication, id string) {
	s.logger().Printf("fetching story %q from %q", id, publication)
	attempt := 0
	err := withRetry(s.retryAttempts(), s.retryBackoff(), func() error {
		attempt++
		story, err := s.Source.GetStory(ctx, id)
		if err != nil {
			s.logger().Printf("attempt %d failed for story %q: %v", attempt, id, err)
			return err
		}
		if len(story.Content) < s.minBlocks() {
			s.logger().Printf("skipping story %q because too little content", id)
			return nil
		}
		if err := s.Storage.UpsertStory(ctx, story); err != nil {
			s.logger().Printf("attempt %d failed for story %q: %v", attempt, id, err)
			return err
		}
		s.logger().Printf("story %q persisted to database", id)
		return nil
	})
	if err != nil {
		s.logger().Printf("abandoning story %q after %d attempts: %v", id, attempt, err)
	}
}

func (s *Scraper) concurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return 8
}

func (s *Scraper) retryAttempts() int {
	if s.RetryAttempts > 0 {
		return s.RetryAttempts
	}
	return 3
}

func (s *Scraper) retryBackoff() time.Duration {
	if s.RetryBackoff > 0 {
		return s.RetryBackoff
	}
	return 500 * time.Millisecond
}

func (s *Scraper) minBlocks() int {
	if s.MinBlocks > 0 {
		return s.MinBlocks
	}
	return 4
}

func (s *Scraper) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.New(log.Writer(), "[SCRAPER] ", log.LstdFlags)
}

package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"
)

// Scheduler periodically runs the full ingestion pipeline for every
// publication with a cron expression. A Redis lock keeps replicas from
// running the same publication twice.
type Scheduler struct {
	Data         *DataHandler
	Publications map[string]*Publication
	Rdb          *redis.Client
	Stop         chan struct{}

	Logger *log.Logger

	lastRuns map[string]time.Time
}

func (s *Scheduler) Start() {
	s.lastRuns = make(map[string]time.Time)
	ticker := time.NewTicker(time.Minute)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	for name, pub := range s.Publications {
		if pub.Cron == "" {
			continue
		}
		last, ok := s.lastRuns[name]
		var lastPtr *time.Time
		if ok {
			lastPtr = &last
		}
		if !isDue(pub.Cron, lastPtr) {
			continue
		}

		release := func() {}
		if s.Rdb != nil {
			lockKey := "sched:lock:" + name
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
			if !ok {
				continue
			}
			release = func() { s.Rdb.Del(ctx, lockKey) }
		}

		s.lastRuns[name] = time.Now()
		go s.ingest(ctx, pub, release)
	}
}

// ingest runs scrape, chunk and embed back to back, releasing the run lock
// when done. Each stage is idempotent, so a failure mid way is picked up by
// the next run.
func (s *Scheduler) ingest(ctx context.Context, pub *Publication, release func()) {
	defer release()
	logger := s.logger()
	logger.Printf("running the ingestion pipeline for %q", pub.Name)
	if err := s.Data.Scrape(ctx, pub, 0); err != nil {
		logger.Printf("scrape failed for %q: %v", pub.Name, err)
		return
	}
	if err := s.Data.Chunk(ctx, pub, 0, 0); err != nil {
		logger.Printf("chunk failed for %q: %v", pub.Name, err)
		return
	}
	if err := s.Data.Embed(ctx, pub, 0); err != nil {
		logger.Printf("embed failed for %q: %v", pub.Name, err)
		return
	}
	logger.Printf("done ingesting %q", pub.Name)
}

// isDue determines if a publication with cronSpec should run now based on
// its last run time. Supports "@daily", "@hourly", and standard 5-field cron
// expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}

func (s *Scheduler) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
}

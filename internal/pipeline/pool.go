package pipeline

import (
	"context"
	"sync"
	"time"
)

// forEach runs fn for every item with at most concurrency invocations in
// flight. Every item is processed even when some fail; the first per-item
// error is returned once all workers have finished. Item order is not
// significant across workers.
func forEach[T any](ctx context.Context, items []T, concurrency int, fn func(ctx context.Context, item T) error) error {
	if concurrency < 1 {
		concurrency = 1
	}
	var (
		wg    sync.WaitGroup
		sem   = make(chan struct{}, concurrency)
		mu    sync.Mutex
		first error
	)
	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := fn(ctx, item); err != nil {
				mu.Lock()
				if first == nil {
					first = err
				}
				mu.Unlock()
			}
		}(item)
	}
	wg.Wait()
	return first
}

// withRetry runs fn up to attempts times, sleeping backoff between failed
// attempts, and returns the last error when every attempt fails.
func withRetry(attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= attempts {
			return err
		}
		time.Sleep(backoff)
	}
}

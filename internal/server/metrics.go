package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scrapeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsgpt_scrape_runs_total",
		Help: "Scrape stage invocations per publication.",
	}, []string{"publication"})

	chunkRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsgpt_chunk_runs_total",
		Help: "Chunk stage invocations per publication.",
	}, []string{"publication"})

	embedRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsgpt_embed_runs_total",
		Help: "Embed stage invocations per publication.",
	}, []string{"publication"})

	searchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newsgpt_search_requests_total",
		Help: "Search requests per variant (batch or stream).",
	}, []string{"variant"})

	answerCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newsgpt_answer_cache_hits_total",
		Help: "Batch answers served from the Redis cache.",
	})
)

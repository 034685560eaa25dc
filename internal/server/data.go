package server

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	appconfig "github.com/markusylisiurunen/NewsGPT/config"
	"github.com/markusylisiurunen/NewsGPT/internal/pipeline"
)

// DataHandler triggers the ingestion stages for one publication at a time.
// The stages are idempotent, so retriggering after a partial failure is safe.
type DataHandler struct {
	Storage      pipeline.Storage
	Embeddings   pipeline.Embeddings
	Publications map[string]*Publication
	Pipeline     appconfig.PipelineConfig

	Logger *log.Logger
}

func (h *DataHandler) Register(g *echo.Group) {
	g.PUT("/scrape", h.scrape)
	g.PUT("/chunk", h.chunk)
	g.PUT("/embeddings", h.embeddings)
}

// dataRequest carries the per-request stage parameters. Every field except
// the publication is optional and falls back to the publication's configured
// values.
type dataRequest struct {
	Publication   string `json:"publication"`
	Limit         int    `json:"limit"`
	Version       int    `json:"version"`
	WordsPerChunk int    `json:"words_per_chunk"`
}

func (h *DataHandler) scrape(c echo.Context) error {
	req, pub, err := h.bind(c)
	if err != nil {
		return err
	}
	if err := h.Scrape(c.Request().Context(), pub, req.Limit); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (h *DataHandler) chunk(c echo.Context) error {
	req, pub, err := h.bind(c)
	if err != nil {
		return err
	}
	if err := h.Chunk(c.Request().Context(), pub, req.Version, req.WordsPerChunk); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (h *DataHandler) embeddings(c echo.Context) error {
	req, pub, err := h.bind(c)
	if err != nil {
		return err
	}
	if err := h.Embed(c.Request().Context(), pub, req.Version); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// Scrape runs the scrape stage for the publication. A non-positive limit
// falls back to the publication's configured one. Shared with the scheduler.
func (h *DataHandler) Scrape(ctx context.Context, pub *Publication, limit int) error {
	scrapeRuns.WithLabelValues(pub.Name).Inc()
	if limit <= 0 {
		limit = pub.limit()
	}
	scraper := &pipeline.Scraper{
		Source:        pub.Source,
		Storage:       h.Storage,
		Concurrency:   h.Pipeline.Scrape.Concurrency,
		RetryAttempts: h.Pipeline.Scrape.RetryAttempts,
		RetryBackoff:  h.Pipeline.Scrape.RetryBackoff,
		MinBlocks:     h.Pipeline.Scrape.MinBlocks,
		Logger:        h.Logger,
	}
	return scraper.Scrape(ctx, pub.Name, limit)
}

// Chunk runs the chunk stage for the publication.
func (h *DataHandler) Chunk(ctx context.Context, pub *Publication, version, wordsPerChunk int) error {
	chunkRuns.WithLabelValues(pub.Name).Inc()
	if version <= 0 {
		version = pub.chunkVersion()
	}
	if wordsPerChunk <= 0 {
		wordsPerChunk = pub.wordsPerChunk()
	}
	chunker := &pipeline.Chunker{
		Storage:     h.Storage,
		Concurrency: h.Pipeline.Chunk.Concurrency,
		Logger:      h.Logger,
	}
	return chunker.Chunk(ctx, pub.Name, version, wordsPerChunk)
}

// Embed runs the embed stage for the publication.
func (h *DataHandler) Embed(ctx context.Context, pub *Publication, version int) error {
	embedRuns.WithLabelValues(pub.Name).Inc()
	if version <= 0 {
		version = pub.chunkVersion()
	}
	embedder := &pipeline.Embedder{
		Storage:     h.Storage,
		Embeddings:  h.Embeddings,
		Concurrency: h.Pipeline.Embed.Concurrency,
		Logger:      h.Logger,
	}
	return embedder.Embed(ctx, pub.Name, version)
}

// bind parses the request body and resolves the publication, accepting the
// name from a query parameter when the body omits it.
func (h *DataHandler) bind(c echo.Context) (dataRequest, *Publication, error) {
	var req dataRequest
	if err := c.Bind(&req); err != nil {
		return req, nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	name := req.Publication
	if name == "" {
		name = c.QueryParam("publication")
	}
	if name == "" {
		return req, nil, echo.NewHTTPError(http.StatusBadRequest, "publication required")
	}
	pub, ok := h.Publications[name]
	if !ok {
		return req, nil, echo.NewHTTPError(http.StatusBadRequest, "unknown publication: "+name)
	}
	return req, pub, nil
}

func (p *Publication) limit() int {
	if p.Limit > 0 {
		return p.Limit
	}
	return 20
}

func (p *Publication) chunkVersion() int {
	if p.ChunkVersion > 0 {
		return p.ChunkVersion
	}
	return 1
}

func (p *Publication) wordsPerChunk() int {
	if p.WordsPerChunk > 0 {
		return p.WordsPerChunk
	}
	return 100
}

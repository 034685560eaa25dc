package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/markusylisiurunen/NewsGPT/internal/pipeline"
	"github.com/markusylisiurunen/NewsGPT/provider"
)

// answering is the slice of *pipeline.Answerer the handler needs.
type answering interface {
	Answer(ctx context.Context, query string) (pipeline.Answer, error)
	AnswerStream(ctx context.Context, query string) (provider.CompletionStream, error)
}

// SearchHandler answers questions over the ingested corpus. The batch
// variant returns one JSON document and caches it in Redis; the streaming
// variant forwards the model deltas as Server-Sent Events.
type SearchHandler struct {
	Answerer answering
	Cache    *redis.Client
	CacheTTL time.Duration
}

func (h *SearchHandler) Register(g *echo.Group) {
	g.GET("", h.search)
	g.GET("/stream", h.stream)
}

func (h *SearchHandler) search(c echo.Context) error {
	searchRequests.WithLabelValues("batch").Inc()
	query := c.QueryParam("query")
	ctx := c.Request().Context()

	if cached, ok := h.cachedAnswer(ctx, query); ok {
		answerCacheHits.Inc()
		return c.JSONBlob(http.StatusOK, cached)
	}

	answer, err := h.Answerer.Answer(ctx, query)
	if err != nil {
		if errors.Is(err, pipeline.ErrQueryTooShort) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	h.storeAnswer(ctx, query, answer)
	return c.JSON(http.StatusOK, answer)
}

func (h *SearchHandler) stream(c echo.Context) error {
	searchRequests.WithLabelValues("stream").Inc()
	query := c.QueryParam("query")
	ctx := c.Request().Context()

	stream, err := h.Answerer.AnswerStream(ctx, query)
	if err != nil {
		if errors.Is(err, pipeline.ErrQueryTooShort) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer stream.Close()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}

	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		payload, err := json.Marshal(map[string]string{"delta": delta})
		if err != nil {
			return err
		}
		fmt.Fprintf(resp.Writer, "data: %s\n\n", payload)
		flusher.Flush()
	}
	fmt.Fprint(resp.Writer, "data: [DONE]\n\n")
	flusher.Flush()
	return nil
}

// cachedAnswer returns a previously computed batch answer for the query.
func (h *SearchHandler) cachedAnswer(ctx context.Context, query string) ([]byte, bool) {
	if h.Cache == nil {
		return nil, false
	}
	cached, err := h.Cache.Get(ctx, answerCacheKey(query)).Bytes()
	if err != nil {
		return nil, false
	}
	return cached, true
}

func (h *SearchHandler) storeAnswer(ctx context.Context, query string, answer pipeline.Answer) {
	if h.Cache == nil {
		return
	}
	payload, err := json.Marshal(answer)
	if err != nil {
		return
	}
	h.Cache.Set(ctx, answerCacheKey(query), payload, h.CacheTTL)
}

func answerCacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return "answer:" + hex.EncodeToString(sum[:])
}

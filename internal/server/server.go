// Package server exposes the ingestion and search pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/markusylisiurunen/NewsGPT/config"
	"github.com/markusylisiurunen/NewsGPT/internal/pipeline"
	"github.com/markusylisiurunen/NewsGPT/internal/source"
	"github.com/markusylisiurunen/NewsGPT/internal/source/faker"
	"github.com/markusylisiurunen/NewsGPT/internal/source/webfeed"
	"github.com/markusylisiurunen/NewsGPT/internal/store"
	openai "github.com/markusylisiurunen/NewsGPT/provider/openai"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Publication binds one configured publication to its content source and
// ingestion parameters.
type Publication struct {
	Name          string
	Source        source.Source
	Cron          string
	Limit         int
	ChunkVersion  int
	WordsPerChunk int
}

// Run wires the dependencies and serves until the process exits.
func Run(cfg *appconfig.Config) error {
	e := newEcho(cfg)

	if err := Migrate("file://migrations", cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}

	llm := openai.NewClient(
		cfg.Providers.OpenAI.APIKey,
		cfg.Providers.OpenAI.CompletionModel,
		cfg.Providers.OpenAI.EmbeddingModel,
		cfg.Providers.OpenAI.Timeout,
	)

	publications, err := BuildPublications(cfg)
	if err != nil {
		return err
	}

	var rdb *redis.Client
	if cfg.Storage.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr(),
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
	}

	api := e.Group("/api")
	if cfg.Server.AuthUser != "" {
		api.Use(middleware.BasicAuth(func(user, password string, c echo.Context) (bool, error) {
			return user == cfg.Server.AuthUser && password == cfg.Server.AuthPassword, nil
		}))
	}

	dh := &DataHandler{Storage: st, Embeddings: llm, Publications: publications, Pipeline: cfg.Pipeline}
	dh.Register(api.Group("/data"))

	sh := &SearchHandler{
		Answerer: NewAnswerer(st, llm, cfg.Pipeline.Search),
		Cache:    rdb,
		CacheTTL: cfg.Storage.Redis.AnswerCacheTTL,
	}
	sh.Register(api.Group("/search"))

	sched := &Scheduler{Data: dh, Publications: publications, Rdb: rdb, Stop: make(chan struct{})}
	sched.Start()

	return e.Start(cfg.Server.Address)
}

// newEcho builds the router with recovery, a unified JSON error handler,
// CORS, a health check and the metrics endpoint.
func newEcho(cfg *appconfig.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return e
}

// BuildPublications resolves every configured publication to its content
// source. The CLI one-shot commands share this with the server.
func BuildPublications(cfg *appconfig.Config) (map[string]*Publication, error) {
	publications := make(map[string]*Publication, len(cfg.Sources.Publications))
	for _, pub := range cfg.Sources.Publications {
		var src source.Source
		switch pub.Type {
		case "faker":
			src = faker.New(pub.Name)
		case "webfeed":
			src = webfeed.New(pub.Name, pub.FeedURL, 30*time.Second)
		default:
			return nil, fmt.Errorf("unknown source type %q for publication %q", pub.Type, pub.Name)
		}
		publications[pub.Name] = &Publication{
			Name:          pub.Name,
			Source:        src,
			Cron:          pub.Cron,
			Limit:         pub.Limit,
			ChunkVersion:  pub.ChunkVersion,
			WordsPerChunk: pub.WordsPerChunk,
		}
	}
	return publications, nil
}

// NewAnswerer builds the retrieval and generation stage from its store and
// provider with the configured search knobs.
func NewAnswerer(st *store.Store, llm *openai.Client, cfg appconfig.SearchConfig) *pipeline.Answerer {
	return &pipeline.Answerer{
		Storage:             st,
		Index:               st,
		Provider:            llm,
		TopK:                cfg.TopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		MaxContextWords:     cfg.MaxContextWords,
		MinQueryLength:      cfg.MinQueryLength,
		StreamTemperature:   cfg.StreamTemperature,
		StreamMaxTokens:     cfg.StreamMaxTokens,
	}
}

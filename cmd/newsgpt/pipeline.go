package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/markusylisiurunen/NewsGPT/config"
	srv "github.com/markusylisiurunen/NewsGPT/internal/server"
	"github.com/markusylisiurunen/NewsGPT/internal/store"
	openai "github.com/markusylisiurunen/NewsGPT/provider/openai"
)

// withDataHandler loads the config, connects the store, and hands the stage
// runner to fn together with the named publication.
func withDataHandler(cfgPath, publication string, fn func(ctx context.Context, dh *srv.DataHandler, pub *srv.Publication) error) error {
	cfg := config.LoadConfig(cfgPath)
	ctx := context.Background()

	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return err
	}
	defer st.DB.Close()

	publications, err := srv.BuildPublications(cfg)
	if err != nil {
		return err
	}
	pub, ok := publications[publication]
	if !ok {
		return fmt.Errorf("unknown publication: %s", publication)
	}

	llm := openai.NewClient(
		cfg.Providers.OpenAI.APIKey,
		cfg.Providers.OpenAI.CompletionModel,
		cfg.Providers.OpenAI.EmbeddingModel,
		cfg.Providers.OpenAI.Timeout,
	)
	dh := &srv.DataHandler{Storage: st, Embeddings: llm, Publications: publications, Pipeline: cfg.Pipeline}
	return fn(ctx, dh, pub)
}

func scrapeCMD(cfgPath *string) *cobra.Command {
	var publication string
	var limit int
	scrape := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape the latest stories of a publication",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDataHandler(*cfgPath, publication, func(ctx context.Context, dh *srv.DataHandler, pub *srv.Publication) error {
				return dh.Scrape(ctx, pub, limit)
			})
		},
	}
	scrape.Flags().StringVar(&publication, "publication", "", "publication name")
	scrape.Flags().IntVar(&limit, "limit", 0, "number of latest stories (0 = configured default)")
	_ = scrape.MarkFlagRequired("publication")
	return scrape
}

func chunkCMD(cfgPath *string) *cobra.Command {
	var publication string
	var version, wordsPerChunk int
	chunk := &cobra.Command{
		Use:   "chunk",
		Short: "Chunk the stored stories of a publication",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDataHandler(*cfgPath, publication, func(ctx context.Context, dh *srv.DataHandler, pub *srv.Publication) error {
				return dh.Chunk(ctx, pub, version, wordsPerChunk)
			})
		},
	}
	chunk.Flags().StringVar(&publication, "publication", "", "publication name")
	chunk.Flags().IntVar(&version, "version", 0, "chunking version (0 = configured default)")
	chunk.Flags().IntVar(&wordsPerChunk, "words-per-chunk", 0, "word budget per chunk (0 = configured default)")
	_ = chunk.MarkFlagRequired("publication")
	return chunk
}

func embeddingsCMD(cfgPath *string) *cobra.Command {
	var publication string
	var version int
	embeddings := &cobra.Command{
		Use:   "embeddings",
		Short: "Compute the missing chunk embeddings of a publication",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDataHandler(*cfgPath, publication, func(ctx context.Context, dh *srv.DataHandler, pub *srv.Publication) error {
				return dh.Embed(ctx, pub, version)
			})
		},
	}
	embeddings.Flags().StringVar(&publication, "publication", "", "publication name")
	embeddings.Flags().IntVar(&version, "version", 0, "chunking version (0 = configured default)")
	_ = embeddings.MarkFlagRequired("publication")
	return embeddings
}

func askCMD(cfgPath *string) *cobra.Command {
	var stream bool
	ask := &cobra.Command{
		Use:   "ask [query]",
		Short: "Answer a question over the ingested stories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(*cfgPath)
			ctx := context.Background()

			st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
			if err != nil {
				return err
			}
			defer st.DB.Close()

			llm := openai.NewClient(
				cfg.Providers.OpenAI.APIKey,
				cfg.Providers.OpenAI.CompletionModel,
				cfg.Providers.OpenAI.EmbeddingModel,
				cfg.Providers.OpenAI.Timeout,
			)
			answerer := srv.NewAnswerer(st, llm, cfg.Pipeline.Search)

			if !stream {
				answer, err := answerer.Answer(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println(answer.Answer)
				for _, story := range answer.Stories {
					fmt.Printf("- %s (%s)\n", story.Headline, story.Href)
				}
				return nil
			}

			deltas, err := answerer.AnswerStream(ctx, args[0])
			if err != nil {
				return err
			}
			defer deltas.Close()
			for {
				delta, err := deltas.Recv()
				if err == io.EOF {
					break
				}
				if err != nil {
					return err
				}
				fmt.Print(delta)
			}
			fmt.Println()
			return nil
		},
	}
	ask.Flags().BoolVar(&stream, "stream", false, "stream the answer with citations")
	return ask
}

// Package config loads the service configuration from a JSON file with
// environment variable overrides (NEWSGPT_*).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Sources   SourcesConfig   `mapstructure:"sources"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	AuthUser     string `mapstructure:"auth_user"`
	AuthPassword string `mapstructure:"auth_password"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server.address required")
	}
	if (s.AuthUser == "") != (s.AuthPassword == "") {
		return fmt.Errorf("server.auth_user and server.auth_password must be set together")
	}
	return nil
}

// StorageConfig groups the backing stores.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN returns the connection string, built from the parts when no explicit
// url is configured.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings. Redis backs the answer
// cache and the scheduler locks; both are disabled when host is empty.
type RedisConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	AnswerCacheTTL time.Duration `mapstructure:"answer_cache_ttl"`
}

// Enabled reports whether a Redis host is configured at all.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

// ProvidersConfig contains the LLM provider configurations.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig parameterizes the completion and embedding models.
type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func (o OpenAIConfig) Validate() error {
	if strings.TrimSpace(o.APIKey) == "" {
		return fmt.Errorf("providers.openai.api_key required")
	}
	return nil
}

// PipelineConfig tunes the ingestion and retrieval stages. The zero values
// fall back to the stage defaults, so every knob is optional.
type PipelineConfig struct {
	Scrape ScrapeConfig `mapstructure:"scrape"`
	Chunk  ChunkConfig  `mapstructure:"chunk"`
	Embed  EmbedConfig  `mapstructure:"embed"`
	Search SearchConfig `mapstructure:"search"`
}

type ScrapeConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	MinBlocks     int           `mapstructure:"min_blocks"`
}

type ChunkConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type EmbedConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

type SearchConfig struct {
	TopK                int     `mapstructure:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxContextWords     int     `mapstructure:"max_context_words"`
	MinQueryLength      int     `mapstructure:"min_query_length"`
	StreamTemperature   float64 `mapstructure:"stream_temperature"`
	StreamMaxTokens     int     `mapstructure:"stream_max_tokens"`
}

// SourcesConfig lists the publications to ingest.
type SourcesConfig struct {
	Publications []PublicationConfig `mapstructure:"publications"`
}

// PublicationConfig binds one publication to a content source and its
// ingestion parameters.
type PublicationConfig struct {
	Name          string `mapstructure:"name"`
	Type          string `mapstructure:"type"` // faker or webfeed
	FeedURL       string `mapstructure:"feed_url"`
	Cron          string `mapstructure:"cron"`
	Limit         int    `mapstructure:"limit"`
	ChunkVersion  int    `mapstructure:"chunk_version"`
	WordsPerChunk int    `mapstructure:"words_per_chunk"`
}

func (p PublicationConfig) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("sources.publications[].name required")
	}
	switch p.Type {
	case "faker":
	case "webfeed":
		if strings.TrimSpace(p.FeedURL) == "" {
			return fmt.Errorf("sources.publications[%s].feed_url required for webfeed sources", p.Name)
		}
	default:
		return fmt.Errorf("sources.publications[%s].type must be faker or webfeed", p.Name)
	}
	return nil
}

// LoadConfig loads config from file. An empty path searches the working
// directory and ./config; a missing file is fine since every key can come
// from the environment.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("storage.redis.answer_cache_ttl", 5*time.Minute)
	viper.SetDefault("providers.openai.completion_model", "gpt-3.5-turbo")
	viper.SetDefault("providers.openai.embedding_model", "text-embedding-ada-002")
	viper.SetDefault("providers.openai.timeout", 60*time.Second)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("NEWSGPT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Server.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	if err := config.Providers.OpenAI.Validate(); err != nil {
		panic(err)
	}
	for _, publication := range config.Sources.Publications {
		if err := publication.Validate(); err != nil {
			panic(err)
		}
	}
	return &config
}

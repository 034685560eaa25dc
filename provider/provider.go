package provider

import "context"

// Message is one turn of a chat conversation sent to the generation model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionParams tune a single generation request. Zero values mean the
// provider's defaults (no temperature override, no token cap, no stop
// sequences).
type CompletionParams struct {
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// CompletionStream yields the text deltas of an in-flight generation.
// Recv returns io.EOF once the stream is exhausted; a malformed increment
// terminates the stream with an error.
type CompletionStream interface {
	Recv() (string, error)
	Close() error
}

// Provider converts text to embedding vectors and conversations to generated
// answers, either as a single response or as an incremental stream.
type Provider interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	CreateCompletion(ctx context.Context, messages []Message, params CompletionParams) (string, error)
	StreamCompletion(ctx context.Context, messages []Message, params CompletionParams) (CompletionStream, error)
}

// Package llm provides clients for external language-model services used
// for entity extraction and embedding generation. All network calls are
// wrapped with circuit breaker protection so a failing provider degrades
// the pipeline instead of stalling it.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// Extraction prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

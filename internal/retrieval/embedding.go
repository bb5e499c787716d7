package retrieval

import (
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/avvvet/skillbuddy-chat/internal/config"
)

// NewEmbeddingFunc returns the query embedder for the configured provider.
// It must serve the model the index was built with.
func NewEmbeddingFunc(cfg *config.Config) (chromem.EmbeddingFunc, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingOpenAI:
		// OpenAI-compatible servers (e.g. text-embeddings-inference) hosting
		// sentence-transformers models
		return chromem.NewEmbeddingFuncOpenAICompat(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, nil), nil
	case config.EmbeddingOllama:
		return chromem.NewEmbeddingFuncOllama(cfg.EmbeddingModel, cfg.EmbeddingBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

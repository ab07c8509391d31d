package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Protocol-Lattice/go-prefs/src/config"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/metrics"
)

// FastEmbedOptions configures the local ONNX provider.
type FastEmbedOptions struct {
	CacheDir  string
	MaxLength int
}

// New builds the provider named by cfg.Provider, wrapped in a CachedEmbedder
// when cfg.CacheSize is positive. A provider that cannot be constructed is
// an error; there is no fallback to the dummy embedder.
func New(ctx context.Context, cfg config.EmbedConfig, log zerolog.Logger, m *metrics.Metrics) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	var (
		e   Embedder
		err error
	)
	switch provider {
	case "", "dummy":
		e = DummyEmbedder{}
	case "openai":
		e, err = NewOpenAIEmbedder(cfg.Model)
	case "ollama":
		e, err = NewOllamaEmbedder(cfg.Model)
	case "vertex", "gemini", "google":
		e, err = NewVertexAIEmbedder(ctx, cfg.Model)
	case "fastembed":
		e, err = NewFastEmbedder(FastEmbedOptions{CacheDir: cfg.CacheDir, MaxLength: 512})
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("embedding provider %s: %w", provider, err)
	}
	log.Info().Str("provider", provider).Str("model", cfg.Model).Int("cache_size", cfg.CacheSize).Msg("embedding provider ready")
	return NewCachedEmbedder(e, cfg.CacheSize, m), nil
}

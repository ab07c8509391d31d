//go:build fastembed

package embed

import (
	"context"
	"fmt"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedder runs all-MiniLM-L6-v2 locally through ONNX Runtime.
type FastEmbedder struct {
	m *fastembed.FlagEmbedding
}

var _ PassageEmbedder = (*FastEmbedder)(nil)

func NewFastEmbedder(opt FastEmbedOptions) (*FastEmbedder, error) {
	if opt.CacheDir == "" {
		opt.CacheDir = ".fastembed"
	}
	m, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:     fastembed.AllMiniLML6V2,
		CacheDir:  opt.CacheDir,
		MaxLength: opt.MaxLength,
	})
	if err != nil {
		return nil, fmt.Errorf("fastembed init: %w", err)
	}
	return &FastEmbedder{m: m}, nil
}

func (e *FastEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return e.m.QueryEmbed(text)
}

// EmbedPassages embeds catalog documents in batches of 64.
func (e *FastEmbedder) EmbedPassages(_ context.Context, docs []string) ([][]float32, error) {
	out, err := e.m.PassageEmbed(docs, 64)
	if err != nil {
		return nil, fmt.Errorf("passage embed: %w", err)
	}
	return out, nil
}

func (e *FastEmbedder) Close() error {
	if e.m != nil {
		e.m.Destroy()
	}
	return nil
}

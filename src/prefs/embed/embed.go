// Package embed turns structured item descriptions into 384-dimension
// segment vectors.
//
// Providers implement Embedder. Encoder sits in front of a provider and
// enforces the input budget and the output width so a misconfigured model
// can never write a short or long segment into the composite vector.
package embed

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// DefaultMaxInputRunes bounds the text handed to a provider.
const DefaultMaxInputRunes = 2048

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// PassageEmbedder embeds many documents in one provider call. Encoder uses
// it for batches when the provider offers it.
type PassageEmbedder interface {
	EmbedPassages(ctx context.Context, docs []string) ([][]float32, error)
}

// ErrNotSupported is returned by providers that answered without a vector.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// Encoder validates input and output around an Embedder.
type Encoder struct {
	embedder Embedder
	maxRunes int
}

// EncoderOption configures an Encoder.
type EncoderOption func(*Encoder)

// WithMaxInputRunes overrides DefaultMaxInputRunes. Non-positive values are ignored.
func WithMaxInputRunes(n int) EncoderOption {
	return func(e *Encoder) {
		if n > 0 {
			e.maxRunes = n
		}
	}
}

func NewEncoder(embedder Embedder, opts ...EncoderOption) *Encoder {
	e := &Encoder{embedder: embedder, maxRunes: DefaultMaxInputRunes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode returns exactly model.SegmentDim components for text. Empty or
// oversized text and wrong-width provider output are encoding errors; a
// failing provider is an external service error.
func (e *Encoder) Encode(ctx context.Context, text string) ([]float32, error) {
	const op = "encode"
	if err := e.checkText(op, text); err != nil {
		return nil, err
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, model.External(op, "", err)
	}
	if err := checkWidth(op, vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// EncodeBatch encodes texts in order, with the same checks as Encode. A
// PassageEmbedder provider gets one call for the whole batch; any other
// provider is called once per text.
func (e *Encoder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "encode batch"
	pe, ok := e.embedder.(PassageEmbedder)
	if !ok {
		out := make([][]float32, 0, len(texts))
		for _, text := range texts {
			vec, err := e.Encode(ctx, text)
			if err != nil {
				return nil, err
			}
			out = append(out, vec)
		}
		return out, nil
	}
	for _, text := range texts {
		if err := e.checkText(op, text); err != nil {
			return nil, err
		}
	}
	if len(texts) == 0 {
		return nil, nil
	}
	out, err := pe.EmbedPassages(ctx, texts)
	if err != nil {
		return nil, model.External(op, "", err)
	}
	if len(out) != len(texts) {
		return nil, model.Encoding(op, "provider returned %d vectors for %d texts", len(out), len(texts))
	}
	for _, vec := range out {
		if err := checkWidth(op, vec); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Encoder) checkText(op, text string) error {
	if strings.TrimSpace(text) == "" {
		return model.Encoding(op, "empty text")
	}
	if n := utf8.RuneCountInString(text); n > e.maxRunes {
		return model.Encoding(op, "text has %d runes, limit is %d", n, e.maxRunes)
	}
	return nil
}

func checkWidth(op string, vec []float32) error {
	if len(vec) != model.SegmentDim {
		return model.Encoding(op, "provider returned %d dimensions, want %d", len(vec), model.SegmentDim)
	}
	return nil
}

// Close releases the provider if it holds resources.
func (e *Encoder) Close() error {
	if c, ok := e.embedder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// truncate keeps the leading dim components and renormalises, which is valid
// for Matryoshka-trained models.
func truncate(v []float32, dim int) []float32 {
	if len(v) <= dim {
		return v
	}
	out := make([]float32, dim)
	copy(out, v[:dim])
	return model.Normalize(out)
}

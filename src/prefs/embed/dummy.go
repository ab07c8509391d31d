package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// DummyEmbedder hashes lower-cased words into model.SegmentDim buckets and
// normalises the result. Deterministic and offline; texts that share words
// land close together.
type DummyEmbedder struct{}

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text), nil
}

func (DummyEmbedder) EmbedPassages(_ context.Context, docs []string) ([][]float32, error) {
	out := make([][]float32, len(docs))
	for i, d := range docs {
		out[i] = DummyEmbedding(d)
	}
	return out, nil
}

func DummyEmbedding(text string) []float32 {
	vec := make([]float32, model.SegmentDim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[int(sum%uint32(model.SegmentDim))] += sign
	}
	return model.Normalize(vec)
}

// Package store defines the vector index contract shared by the catalog,
// the preference vectors and the recommender, plus its backends.
package store

import (
	"context"
	"reflect"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/metrics"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// VectorIndex is a set of named cosine-similarity indexes.
//
// Query with a nil vector and a filter returns filter matches in no
// particular order. Fetch reports found=false for an unknown id.
type VectorIndex interface {
	Query(ctx context.Context, index string, vector []float32, filter Filter, topK int) ([]model.Match, error)
	Upsert(ctx context.Context, index, id string, vector []float32, metadata map[string]any) error
	Fetch(ctx context.Context, index, id string) (vector []float32, found bool, err error)
	Close() error
}

// Filter is a conjunction of exact-match conditions on metadata fields.
type Filter map[string]any

// Matches reports whether every condition holds for metadata.
func (f Filter) Matches(metadata map[string]any) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok || !sameValue(got, want) {
			return false
		}
	}
	return true
}

// sameValue compares numbers by value across Go numeric types, so 3 matches
// a float64(3) decoded from JSON, and everything else by type and value.
func sameValue(a, b any) bool {
	fa, aNum := asFloat(a)
	fb, bNum := asFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

type instrumented struct {
	VectorIndex
	metrics *metrics.Metrics
}

// WithMetrics counts every Query by index and outcome.
func WithMetrics(idx VectorIndex, m *metrics.Metrics) VectorIndex {
	if m == nil {
		return idx
	}
	return &instrumented{VectorIndex: idx, metrics: m}
}

func (i *instrumented) Query(ctx context.Context, index string, vector []float32, filter Filter, topK int) ([]model.Match, error) {
	out, err := i.VectorIndex.Query(ctx, index, vector, filter, topK)
	i.metrics.IndexQuery(index, err)
	return out, err
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DomainIndexes maps each domain to the catalog index holding its items.
type DomainIndexes map[model.Domain]string

// DefaultDomainIndexes returns the stock catalog index names.
func DefaultDomainIndexes() DomainIndexes {
	return DomainIndexes{
		model.DomainMovie:   "movies-list",
		model.DomainMusic:   "music-list",
		model.DomainProduct: "products-list",
	}
}

// Name returns the index for d, or an error naming the unmapped domain.
func (d DomainIndexes) Name(domain model.Domain) (string, error) {
	name, ok := d[domain]
	if !ok || name == "" {
		return "", model.Validation("index name", "", "no catalog index configured for domain %q", domain)
	}
	return name, nil
}

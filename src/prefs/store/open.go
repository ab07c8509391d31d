package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Protocol-Lattice/go-prefs/src/config"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// Open connects the backend named by cfg.Backend and prepares it: Qdrant
// collections are created for the catalog and preference indexes and the
// pgvector table is created if missing.
func Open(ctx context.Context, cfg config.IndexConfig, timeout time.Duration) (VectorIndex, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		return NewMemoryIndex(), nil
	case "qdrant":
		q := NewQdrantIndex(cfg.URL, cfg.APIKey, timeout)
		if err := q.EnsureCollection(ctx, cfg.PreferenceIndex, model.VectorDim); err != nil {
			return nil, err
		}
		for _, name := range IndexesFor(cfg.Domains) {
			if err := q.EnsureCollection(ctx, name, model.SegmentDim); err != nil {
				return nil, err
			}
		}
		return q, nil
	case "pgvector":
		p, err := NewPgVectorIndex(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := p.CreateSchema(ctx); err != nil {
			_ = p.Close()
			return nil, err
		}
		return p, nil
	case "mongodb":
		return NewMongoIndex(ctx, cfg.URL, cfg.Database, cfg.VectorIndex)
	}
	return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
}

// IndexesFor maps configured catalog index names to domains. Empty names fall
// back to the defaults.
func IndexesFor(cfg config.DomainIndexes) DomainIndexes {
	out := DefaultDomainIndexes()
	for _, d := range model.Domains {
		if name := cfg.Domain(string(d)); name != "" {
			out[d] = name
		}
	}
	return out
}

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

type memoryRecord struct {
	vector   []float32
	metadata map[string]any
}

// MemoryIndex is a brute-force in-process VectorIndex. Results are ordered by
// cosine similarity, ties broken by id.
type MemoryIndex struct {
	mu      sync.RWMutex
	indexes map[string]map[string]memoryRecord
}

var _ VectorIndex = (*MemoryIndex)(nil)

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{indexes: make(map[string]map[string]memoryRecord)}
}

func (m *MemoryIndex) Upsert(_ context.Context, index, id string, vector []float32, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indexes[index]
	if !ok {
		idx = make(map[string]memoryRecord)
		m.indexes[index] = idx
	}
	idx[id] = memoryRecord{
		vector:   append([]float32(nil), vector...),
		metadata: cloneMetadata(metadata),
	}
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, index string, vector []float32, filter Filter, topK int) ([]model.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]model.Match, 0, len(m.indexes[index]))
	for id, rec := range m.indexes[index] {
		if !filter.Matches(rec.metadata) {
			continue
		}
		var score float64
		if vector != nil {
			score = model.CosineSimilarity(vector, rec.vector)
		}
		results = append(results, model.Match{
			Item:  model.Item{ID: id, Metadata: cloneMetadata(rec.metadata)},
			Score: score,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MemoryIndex) Fetch(_ context.Context, index, id string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.indexes[index][id]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), rec.vector...), true, nil
}

// Len returns the number of records in index.
func (m *MemoryIndex) Len(index string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.indexes[index])
}

func (m *MemoryIndex) Close() error { return nil }

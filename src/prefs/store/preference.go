package store

import (
	"context"
	"strings"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// DefaultPreferenceIndex holds one composite vector per user.
const DefaultPreferenceIndex = "user-preference-vector"

// PreferenceStore reads and writes whole composite vectors keyed by user id.
type PreferenceStore struct {
	index VectorIndex
	name  string
}

func NewPreferenceStore(index VectorIndex, name string) *PreferenceStore {
	if strings.TrimSpace(name) == "" {
		name = DefaultPreferenceIndex
	}
	return &PreferenceStore{index: index, name: name}
}

// Name is the preference index name.
func (p *PreferenceStore) Name() string { return p.name }

// Get returns the stored vector, or found=false when the user has none.
func (p *PreferenceStore) Get(ctx context.Context, userID string) (model.CompositeVector, bool, error) {
	const op = "fetch preference vector"
	vec, found, err := p.index.Fetch(ctx, p.name, userID)
	if err != nil {
		return nil, false, model.External(op, userID, err)
	}
	if !found {
		return nil, false, nil
	}
	cv, err := model.NewCompositeVector(vec)
	if err != nil {
		return nil, false, model.Wrap(op, userID, err)
	}
	return cv, true, nil
}

// Put replaces the user's vector in a single upsert.
func (p *PreferenceStore) Put(ctx context.Context, userID string, vec model.CompositeVector) error {
	const op = "store preference vector"
	if len(vec) != model.VectorDim {
		return model.Validation(op, userID, "expected %d dimensions, got %d", model.VectorDim, len(vec))
	}
	if err := p.index.Upsert(ctx, p.name, userID, vec, nil); err != nil {
		return model.External(op, userID, err)
	}
	return nil
}

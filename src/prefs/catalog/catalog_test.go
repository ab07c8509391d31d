package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/store"
)

func seeded(t *testing.T) *store.MemoryIndex {
	t.Helper()
	ctx := context.Background()
	idx := store.NewMemoryIndex()
	items := []struct {
		index, id string
		md        map[string]any
	}{
		{"movies-list", "8587", map[string]any{"original_title": "The Lion King", "title": "The Lion King", "genres": "Family, Animation", "vote_average": 8.3}},
		{"movies-list", "10191", map[string]any{"original_title": "How to Train Your Dragon", "title": "How to Train Your Dragon"}},
		{"music-list", "4gD", map[string]any{"track_name": "Blue Bird", "artists": "Ikimonogakari", "explicit": false, "duration_ms": 217500.0}},
		{"products-list", "B07", map[string]any{"title": "Cozy Blanket", "price": 24.99, "isBestSeller": true, "stars": 4.7}},
	}
	for _, it := range items {
		if err := idx.Upsert(ctx, it.index, it.id, []float32{1, 0, 0}, it.md); err != nil {
			t.Fatal(err)
		}
	}
	return idx
}

func TestResolveExactName(t *testing.T) {
	c := New(seeded(t), nil)
	res, err := c.Resolve(context.Background(), model.DomainMovie, "The Lion King")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.Found || res.Item.ID != "8587" || res.Item.Domain != model.DomainMovie || res.Item.Name != "The Lion King" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestResolveMissIsNotAnError(t *testing.T) {
	c := New(seeded(t), nil)
	for _, tc := range []struct {
		domain model.Domain
		name   string
	}{
		{model.DomainMovie, "The Lion"},
		{model.DomainMusic, "The Lion King"},
		{model.DomainProduct, "cozy blanket"},
	} {
		res, err := c.Resolve(context.Background(), tc.domain, tc.name)
		if err != nil || res.Found {
			t.Errorf("Resolve(%s, %q) = %+v, %v; want miss", tc.domain, tc.name, res, err)
		}
	}
}

func TestResolveValidation(t *testing.T) {
	c := New(seeded(t), nil)
	if _, err := c.Resolve(context.Background(), model.Domain("book"), "x"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := c.Resolve(context.Background(), model.DomainMusic, "  "); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type brokenIndex struct{ store.VectorIndex }

func (brokenIndex) Query(context.Context, string, []float32, store.Filter, int) ([]model.Match, error) {
	return nil, errors.New("connection refused")
}

func TestResolveBackendFailure(t *testing.T) {
	c := New(brokenIndex{}, nil)
	_, err := c.Resolve(context.Background(), model.DomainMovie, "x")
	if !errors.Is(err, model.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		name string
		item model.Item
		want []string
	}{
		{
			name: "movie",
			item: model.Item{Domain: model.DomainMovie, Metadata: map[string]any{
				"title": "The Lion King", "genres": []any{"Family", "Animation"}, "vote_average": 8.3,
			}},
			want: []string{"Movie: The Lion King", "Genres: Family, Animation", "Average Vote: 8.3"},
		},
		{
			name: "music",
			item: model.Item{Domain: model.DomainMusic, Metadata: map[string]any{
				"track_name": "Blue Bird", "explicit": true, "duration_ms": 217500.0, "popularity": 71.0,
			}},
			want: []string{"Track: Blue Bird", "Explicit: Yes", "Duration: 218 seconds", "Popularity Score: 71"},
		},
		{
			name: "product",
			item: model.Item{Domain: model.DomainProduct, Metadata: map[string]any{
				"title": "Cozy Blanket", "price": 24.99, "stars": 4.7, "isBestSeller": false, "boughtInLastMonth": 300,
			}},
			want: []string{"Product: Cozy Blanket", "Price: $24.99", "Star Rating: 4.7⭐", "Best Seller: No", "Recently Bought: 300 times"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Describe(tc.item)
			for _, w := range tc.want {
				if !strings.Contains(got, w) {
					t.Errorf("expected %q in\n%s", w, got)
				}
			}
		})
	}
}

func TestDescribeFallsBackToName(t *testing.T) {
	got := Describe(model.Item{Domain: model.DomainMusic, Name: "Blue Bird"})
	if !strings.HasPrefix(got, "Track: Blue Bird\n") || !strings.Contains(got, "Duration: unknown") {
		t.Fatalf("unexpected description:\n%s", got)
	}
}

type fixedEncoder struct{ calls int }

func (f *fixedEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if strings.TrimSpace(text) == "" {
		return nil, model.Encoding("encode", "empty text")
	}
	return []float32{1, 0, 0}, nil
}

func TestAddMakesItemResolvable(t *testing.T) {
	idx := store.NewMemoryIndex()
	enc := &fixedEncoder{}
	c := New(idx, nil, WithEncoder(enc))
	err := c.Add(context.Background(), model.Item{ID: "7aE", Domain: model.DomainMusic, Name: "So What",
		Metadata: map[string]any{"artists": "Miles Davis"}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	res, err := c.Resolve(context.Background(), model.DomainMusic, "So What")
	if err != nil || !res.Found || res.Item.ID != "7aE" {
		t.Fatalf("expected to resolve added item, got %+v %v", res, err)
	}
	if res.Item.Metadata["artists"] != "Miles Davis" {
		t.Fatalf("metadata lost: %v", res.Item.Metadata)
	}
}

func TestAddValidation(t *testing.T) {
	c := New(store.NewMemoryIndex(), nil)
	if err := c.Add(context.Background(), model.Item{ID: "x", Domain: model.DomainMovie}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error without encoder, got %v", err)
	}
	c = New(store.NewMemoryIndex(), nil, WithEncoder(&fixedEncoder{}))
	if err := c.Add(context.Background(), model.Item{ID: "", Domain: model.DomainMovie}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
}

type batchEncoder struct {
	fixedEncoder
	batches int
}

func (b *batchEncoder) EncodeBatch(_ context.Context, texts []string) ([][]float32, error) {
	b.batches++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func TestAddBatchEncodesOnce(t *testing.T) {
	idx := store.NewMemoryIndex()
	enc := &batchEncoder{}
	c := New(idx, nil, WithEncoder(enc))
	items := []model.Item{
		{ID: "8587", Domain: model.DomainMovie, Name: "The Lion King"},
		{ID: "4gD", Domain: model.DomainMusic, Name: "Blue Bird"},
		{ID: "B07", Domain: model.DomainProduct, Name: "Cozy Blanket"},
	}
	if err := c.AddBatch(context.Background(), items); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}
	if enc.batches != 1 || enc.calls != 0 {
		t.Fatalf("expected one batch call and no single encodes, got batches=%d calls=%d", enc.batches, enc.calls)
	}
	for _, it := range items {
		res, err := c.Resolve(context.Background(), it.Domain, it.Name)
		if err != nil || !res.Found || res.Item.ID != it.ID {
			t.Fatalf("expected %s to resolve, got %+v %v", it.Name, res, err)
		}
	}
}

func TestAddBatchRejectsBeforeWriting(t *testing.T) {
	idx := store.NewMemoryIndex()
	enc := &batchEncoder{}
	c := New(idx, nil, WithEncoder(enc))
	err := c.AddBatch(context.Background(), []model.Item{
		{ID: "8587", Domain: model.DomainMovie, Name: "The Lion King"},
		{ID: "x", Domain: model.Domain("book"), Name: "Dune"},
	})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if enc.batches != 0 {
		t.Fatal("expected no encoding for a rejected batch")
	}
	if res, _ := c.Resolve(context.Background(), model.DomainMovie, "The Lion King"); res.Found {
		t.Fatal("expected nothing written for a rejected batch")
	}
}

func TestAddBatchWithoutBatchEncoder(t *testing.T) {
	enc := &fixedEncoder{}
	c := New(store.NewMemoryIndex(), nil, WithEncoder(enc))
	err := c.AddBatch(context.Background(), []model.Item{
		{ID: "1", Domain: model.DomainMovie, Name: "Heat"},
		{ID: "2", Domain: model.DomainMovie, Name: "Ronin"},
	})
	if err != nil || enc.calls != 2 {
		t.Fatalf("expected per-item encoding, got calls=%d err=%v", enc.calls, err)
	}
}

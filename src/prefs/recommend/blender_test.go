package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/ledger"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/store"
)

const user = "user_12345"

func axis(i int) []float32 {
	v := make([]float32, model.SegmentDim)
	v[i] = 1
	return v
}

// arc places item n of a catalog on the quarter circle between axis 0 and
// axis 1, so the domain query ranks items ascending and the collective query
// ranks them descending.
func arc(n, total int) []float32 {
	theta := (math.Pi / 2) * float64(n) / float64(total)
	v := make([]float32, model.SegmentDim)
	v[0] = float32(math.Cos(theta))
	v[1] = float32(math.Sin(theta))
	return v
}

type fixture struct {
	index   *store.MemoryIndex
	prefs   *store.PreferenceStore
	ledger  *ledger.Memory
	blender *Blender
}

func newFixture(t *testing.T, catalogSize map[model.Domain]int, activity model.Activity) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{index: store.NewMemoryIndex(), ledger: ledger.NewMemory()}
	f.prefs = store.NewPreferenceStore(f.index, "")
	names := store.DefaultDomainIndexes()
	for d, n := range catalogSize {
		for i := 1; i <= n; i++ {
			id := fmt.Sprintf("%s-%d", d, i)
			if err := f.index.Upsert(ctx, names[d], id, arc(i, n+1), map[string]any{"name": id}); err != nil {
				t.Fatal(err)
			}
		}
	}
	var s model.Segments
	for _, d := range model.Domains {
		s.SetDomain(d, axis(0))
	}
	s.SetCollective(axis(1))
	if err := f.prefs.Put(ctx, user, s.Join()); err != nil {
		t.Fatal(err)
	}
	activity.UserID = user
	f.ledger.Seed(activity)
	f.blender = New(f.prefs, f.ledger, f.index)
	return f
}

func ids(recs []Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func assertIDs(t *testing.T, label string, got []Recommendation, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("%s: got %v, want %v", label, g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("%s: got %v, want %v", label, g, want)
		}
	}
}

func full() map[model.Domain]int {
	return map[model.Domain]int{model.DomainMovie: 10, model.DomainMusic: 10, model.DomainProduct: 10}
}

func TestRecommendMixesBaseAndOtherDomains(t *testing.T) {
	f := newFixture(t, full(), model.Activity{})
	set, err := f.blender.Recommend(context.Background(), user, model.DomainMovie)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	assertIDs(t, "movie", set.Items[model.DomainMovie], "movie-1", "movie-2", "movie-3", "movie-10", "movie-9")
	assertIDs(t, "music", set.Items[model.DomainMusic], "music-1", "music-2", "music-10", "music-9", "music-8")

	for _, d := range model.Domains {
		want := map[string]int{SourceDomain: 2, SourceCollective: 3}
		if d == model.DomainMovie {
			want = map[string]int{SourceDomain: 3, SourceCollective: 2}
		}
		got := map[string]int{}
		for _, r := range set.Items[d] {
			got[r.Source]++
			if r.Domain != d {
				t.Fatalf("item %s tagged %s, want %s", r.ID, r.Domain, d)
			}
		}
		if got[SourceDomain] != want[SourceDomain] || got[SourceCollective] != want[SourceCollective] {
			t.Fatalf("%s: split %v, want %v", d, got, want)
		}
	}
}

func TestRecommendSkipsConsumedItems(t *testing.T) {
	f := newFixture(t, full(), model.Activity{
		MoviesWatched: []string{"movie-1", "movie-10", "movie-3"},
	})
	set, err := f.blender.Recommend(context.Background(), user, model.DomainMovie)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, "movie", set.Items[model.DomainMovie], "movie-2", "movie-4", "movie-5", "movie-9", "movie-8")
	excluded := map[string]bool{"movie-1": true, "movie-10": true, "movie-3": true}
	for _, r := range set.Items[model.DomainMovie] {
		if excluded[r.ID] {
			t.Fatalf("excluded item %s recommended", r.ID)
		}
	}
}

func TestRecommendDoesNotRepeatItems(t *testing.T) {
	f := newFixture(t, map[model.Domain]int{model.DomainMovie: 4}, model.Activity{})
	set, err := f.blender.Recommend(context.Background(), user, model.DomainMovie)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, "movie", set.Items[model.DomainMovie], "movie-1", "movie-2", "movie-3", "movie-4")
	if len(set.Items[model.DomainMusic]) != 0 {
		t.Fatalf("expected empty music list, got %v", ids(set.Items[model.DomainMusic]))
	}
}

func TestRecommendShortCatalog(t *testing.T) {
	f := newFixture(t, map[model.Domain]int{model.DomainProduct: 5}, model.Activity{
		ProductsPurchased: []string{"product-2", "product-4"},
	})
	set, err := f.blender.Recommend(context.Background(), user, model.DomainProduct)
	if err != nil {
		t.Fatalf("expected partial result, got %v", err)
	}
	got := set.Items[model.DomainProduct]
	if len(got) != 3 {
		t.Fatalf("expected exactly 3 products, got %v", ids(got))
	}
	seen := map[string]bool{}
	for _, r := range got {
		if seen[r.ID] || r.ID == "product-2" || r.ID == "product-4" {
			t.Fatalf("bad product list %v", ids(got))
		}
		seen[r.ID] = true
	}
}

func TestRecommendWithoutVector(t *testing.T) {
	f := newFixture(t, full(), model.Activity{})
	f.ledger.Seed(model.Activity{UserID: "stranger"})
	_, err := f.blender.Recommend(context.Background(), "stranger", model.DomainMusic)
	if !errors.Is(err, model.ErrNoPreferenceVector) {
		t.Fatalf("expected ErrNoPreferenceVector, got %v", err)
	}
}

func TestRecommendValidation(t *testing.T) {
	f := newFixture(t, full(), model.Activity{})
	if _, err := f.blender.Recommend(context.Background(), user, model.Domain("book")); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.blender.Recommend(context.Background(), "", model.DomainMovie); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

type failingIndex struct {
	*store.MemoryIndex
	failOn string
}

func (f failingIndex) Query(ctx context.Context, index string, vector []float32, filter store.Filter, topK int) ([]model.Match, error) {
	if index == f.failOn {
		return nil, errors.New("index unavailable")
	}
	return f.MemoryIndex.Query(ctx, index, vector, filter, topK)
}

func TestRecommendPropagatesIndexFailure(t *testing.T) {
	f := newFixture(t, full(), model.Activity{})
	b := New(f.prefs, f.ledger, failingIndex{MemoryIndex: f.index, failOn: "music-list"}, WithConcurrency(1))
	_, err := b.Recommend(context.Background(), user, model.DomainMovie)
	if !errors.Is(err, model.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
	var perr *model.Error
	if !errors.As(err, &perr) || perr.UserID != user || perr.Op != "recommend" {
		t.Fatalf("expected annotated error, got %v", err)
	}
}

func TestCustomMixPolicy(t *testing.T) {
	f := newFixture(t, full(), model.Activity{})
	b := New(f.prefs, f.ledger, f.index, WithMixPolicy(MixPolicy{BaseDomain: 1, BaseCollective: 0, OtherDomain: 0, OtherCollective: 1}))
	set, err := b.Recommend(context.Background(), user, model.DomainMusic)
	if err != nil {
		t.Fatal(err)
	}
	assertIDs(t, "music", set.Items[model.DomainMusic], "music-1")
	assertIDs(t, "movie", set.Items[model.DomainMovie], "movie-10")
}

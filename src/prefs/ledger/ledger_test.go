package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Protocol-Lattice/go-prefs/src/config"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// exerciseLedger runs the behaviour every backend must share.
func exerciseLedger(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()

	if _, err := l.Activity(ctx, "ghost"); !errors.Is(err, model.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := l.AppendItem(ctx, "ghost", model.DomainMovie, "1"); !errors.Is(err, model.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on append, got %v", err)
	}

	if err := l.EnsureUser(ctx, "u1"); err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	if err := l.EnsureUser(ctx, "u1"); err != nil {
		t.Fatalf("second EnsureUser: %v", err)
	}

	a, err := l.Activity(ctx, "u1")
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if a.Counts().Total() != 0 {
		t.Fatalf("expected empty activity, got %+v", a)
	}

	for _, step := range []struct {
		domain model.Domain
		id     string
		added  bool
	}{
		{model.DomainMovie, "8587", true},
		{model.DomainMovie, "10191", true},
		{model.DomainMovie, "8587", false},
		{model.DomainMusic, "4gDajIG4yNgBtym4zgtfRe", true},
		{model.DomainProduct, "B07WPRQMZH", true},
	} {
		added, err := l.AppendItem(ctx, "u1", step.domain, step.id)
		if err != nil {
			t.Fatalf("AppendItem(%s, %s): %v", step.domain, step.id, err)
		}
		if added != step.added {
			t.Fatalf("AppendItem(%s, %s) added=%v, want %v", step.domain, step.id, added, step.added)
		}
	}

	if err := l.SetSummary(ctx, "u1", model.DomainMusic, "listens to anime music a lot"); err != nil {
		t.Fatalf("SetSummary: %v", err)
	}
	if err := l.SetSummary(ctx, "u1", model.DomainMusic, "prefers jazz"); err != nil {
		t.Fatalf("SetSummary replace: %v", err)
	}

	a, err = l.Activity(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	c := a.Counts()
	if c[model.DomainMovie] != 2 || c[model.DomainMusic] != 1 || c[model.DomainProduct] != 1 {
		t.Fatalf("unexpected counts %v", c)
	}
	if got := a.Items(model.DomainMovie); len(got) != 2 || got[0] != "8587" || got[1] != "10191" {
		t.Fatalf("unexpected movie ids %v", got)
	}
	if a.MusicSummary != "prefers jazz" || a.MovieSummary != "" {
		t.Fatalf("unexpected summaries %+v", a)
	}

	if _, err := l.AppendItem(ctx, "u1", model.Domain("book"), "x"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for unknown domain, got %v", err)
	}
	if err := l.SetSummary(ctx, "ghost", model.DomainMovie, "x"); !errors.Is(err, model.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on summary, got %v", err)
	}
}

func TestMemoryLedger(t *testing.T) {
	exerciseLedger(t, NewMemory())
}

func TestMemoryLedgerReturnsCopies(t *testing.T) {
	m := NewMemory()
	m.Seed(model.Activity{UserID: "u1", MoviesWatched: []string{"1"}})
	a, _ := m.Activity(context.Background(), "u1")
	a.MoviesWatched[0] = "changed"
	b, _ := m.Activity(context.Background(), "u1")
	if b.MoviesWatched[0] != "1" {
		t.Fatal("expected Activity to return a copy")
	}
}

func TestSQLiteLedger(t *testing.T) {
	l, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "user_activity.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	defer l.Close()
	exerciseLedger(t, l)
}

func TestSQLiteReadsNumericIDs(t *testing.T) {
	ctx := context.Background()
	l, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "user_activity.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	_, err = l.db.ExecContext(ctx, `
        INSERT INTO user_activity (user_id, movies_watched, products_purchased, listened_music,
                                   music_pref_summary, movie_pref_summary, product_pref_summary)
        VALUES ('user_12345', '[8587, 10191, 278927]', '["B07WPRQMZH"]', NULL, 'anime', 'animated', 'comfy')`)
	if err != nil {
		t.Fatal(err)
	}
	a, err := l.Activity(ctx, "user_12345")
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if got := a.Items(model.DomainMovie); len(got) != 3 || got[2] != "278927" {
		t.Fatalf("unexpected movie ids %v", got)
	}
	if len(a.ListenedMusic) != 0 || a.MovieSummary != "animated" {
		t.Fatalf("unexpected row %+v", a)
	}
	if added, err := l.AppendItem(ctx, "user_12345", model.DomainMovie, "8587"); err != nil || added {
		t.Fatalf("expected numeric id to dedupe as string, got added=%v err=%v", added, err)
	}
}

func TestDecodeIDs(t *testing.T) {
	cases := map[string]int{"": 0, "null": 0, "[]": 0, `["a", 2]`: 2}
	for in, want := range cases {
		ids, err := decodeIDs(in)
		if err != nil || len(ids) != want {
			t.Errorf("decodeIDs(%q) = %v, %v; want %d ids", in, ids, err, want)
		}
	}
	if _, err := decodeIDs("{"); err == nil {
		t.Error("expected malformed JSON to fail")
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), config.LedgerConfig{Backend: "redis"}); err == nil {
		t.Fatal("expected unknown backend to fail")
	}
	l, err := Open(context.Background(), config.LedgerConfig{Backend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := l.(*Memory); !ok {
		t.Fatalf("expected memory ledger, got %T", l)
	}
}

func TestEnsureUserRejectsEmptyID(t *testing.T) {
	if err := NewMemory().EnsureUser(context.Background(), " "); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

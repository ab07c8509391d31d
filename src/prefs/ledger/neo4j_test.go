package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

type fakeRecord map[string]any

func (r fakeRecord) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

type fakeResult struct {
	records []fakeRecord
	pos     int
}

func (r *fakeResult) Next(context.Context) bool {
	if r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeResult) Record() neo4jRecord {
	if r.pos == 0 || r.pos > len(r.records) {
		return nil
	}
	return r.records[r.pos-1]
}

func (r *fakeResult) Err() error                  { return nil }
func (r *fakeResult) Close(context.Context) error { return nil }

type call struct {
	query  string
	params map[string]any
}

// fakeDriver answers each query with the first scripted result whose key is
// a substring of the query.
type fakeDriver struct {
	script    map[string][]fakeRecord
	calls     []call
	commits   int
	rollbacks int
	sessions  []Neo4jSessionConfig
}

func (d *fakeDriver) run(query string, params map[string]any) (neo4jResult, error) {
	d.calls = append(d.calls, call{query: query, params: params})
	for key, recs := range d.script {
		if strings.Contains(query, key) {
			return &fakeResult{records: recs}, nil
		}
	}
	return &fakeResult{}, nil
}

func (d *fakeDriver) NewSession(_ context.Context, cfg Neo4jSessionConfig) (neo4jSession, error) {
	d.sessions = append(d.sessions, cfg)
	return &fakeSession{d: d}, nil
}

func (d *fakeDriver) Close(context.Context) error { return nil }

type fakeSession struct{ d *fakeDriver }

func (s *fakeSession) BeginTransaction(context.Context) (neo4jTransaction, error) {
	return &fakeTx{d: s.d}, nil
}

func (s *fakeSession) Run(_ context.Context, q string, p map[string]any) (neo4jResult, error) {
	return s.d.run(q, p)
}

func (s *fakeSession) Close(context.Context) error { return nil }

type fakeTx struct{ d *fakeDriver }

func (t *fakeTx) Run(_ context.Context, q string, p map[string]any) (neo4jResult, error) {
	return t.d.run(q, p)
}
func (t *fakeTx) Commit(context.Context) error   { t.d.commits++; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.d.rollbacks++; return nil }
func (t *fakeTx) Close(context.Context) error    { return nil }

func TestNeo4jActivity(t *testing.T) {
	d := &fakeDriver{script: map[string][]fakeRecord{
		"RETURN u.movie_pref_summary": {{"movie": "animated", "music": "anime", "product": nil}},
		"ORDER BY c.seq": {
			{"domain": "movie", "id": "8587"},
			{"domain": "music", "id": "4gD"},
			{"domain": "movie", "id": "10191"},
		},
	}}
	l, err := newNeo4jLedger(d, "neo4j")
	if err != nil {
		t.Fatal(err)
	}
	a, err := l.Activity(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if len(a.MoviesWatched) != 2 || a.MoviesWatched[1] != "10191" || len(a.ListenedMusic) != 1 {
		t.Fatalf("unexpected items %+v", a)
	}
	if a.MovieSummary != "animated" || a.ProductSummary != "" {
		t.Fatalf("unexpected summaries %+v", a)
	}
	if d.sessions[0].AccessMode != AccessModeRead || d.sessions[0].DatabaseName != "neo4j" {
		t.Fatalf("unexpected session config %+v", d.sessions[0])
	}
}

func TestNeo4jActivityUnknownUser(t *testing.T) {
	l, _ := newNeo4jLedger(&fakeDriver{}, "")
	if _, err := l.Activity(context.Background(), "ghost"); !errors.Is(err, model.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestNeo4jAppendItem(t *testing.T) {
	d := &fakeDriver{script: map[string][]fakeRecord{"RETURN added": {{"added": true}}}}
	l, _ := newNeo4jLedger(d, "")
	added, err := l.AppendItem(context.Background(), "u1", model.DomainProduct, "B01")
	if err != nil || !added {
		t.Fatalf("expected added, got %v %v", added, err)
	}
	if d.commits != 1 {
		t.Fatalf("expected one commit, got %d", d.commits)
	}
	p := d.calls[0].params
	if p["user"] != "u1" || p["item"] != "B01" || p["domain"] != "product" {
		t.Fatalf("unexpected params %v", p)
	}
	if !strings.Contains(d.calls[0].query, "MERGE (u)-[c:CONSUMED") {
		t.Fatalf("expected relationship MERGE, got %s", d.calls[0].query)
	}
}

func TestNeo4jAppendItemUnknownUserRollsBack(t *testing.T) {
	d := &fakeDriver{}
	l, _ := newNeo4jLedger(d, "")
	_, err := l.AppendItem(context.Background(), "ghost", model.DomainMovie, "1")
	if !errors.Is(err, model.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if d.rollbacks != 1 || d.commits != 0 {
		t.Fatalf("expected rollback only, got commits=%d rollbacks=%d", d.commits, d.rollbacks)
	}
}

func TestNeo4jSetSummaryUsesDomainField(t *testing.T) {
	d := &fakeDriver{script: map[string][]fakeRecord{"RETURN u.id": {{"id": "u1"}}}}
	l, _ := newNeo4jLedger(d, "")
	if err := l.SetSummary(context.Background(), "u1", model.DomainMusic, "jazz"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(d.calls[0].query, "u.music_pref_summary = $text") {
		t.Fatalf("unexpected query %s", d.calls[0].query)
	}
}

func TestNewNeo4jLedgerRequiresDriver(t *testing.T) {
	if _, err := newNeo4jLedger(nil, ""); !errors.Is(err, ErrNeo4jUnavailable) {
		t.Fatalf("expected ErrNeo4jUnavailable, got %v", err)
	}
}

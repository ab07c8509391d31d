// Package workflow drives one activity event through the full pipeline as an
// explicit state machine: resolve the item, record it, refresh the summary,
// recompute the vector and produce recommendations.
package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/catalog"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/composer"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/recommend"
)

type State string

const (
	StateAwaitingName  State = "awaiting_name"
	StateAwaitingQuery State = "awaiting_query"
	StateParsing       State = "parsing"
	StateUpdating      State = "updating"
	StateSummarizing   State = "summarizing"
	StateRecomputing   State = "recomputing"
	StateRecommending  State = "recommending"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// ActivityEvent is one user interaction with a named item.
type ActivityEvent struct {
	UserID   string `json:"user_id"`
	Domain   string `json:"domain"`
	ItemName string `json:"item_name"`
	// Opinion is the user's own words about the item, folded into the summary.
	Opinion string `json:"opinion,omitempty"`
}

// Outcome is the result of Run. Trace lists every state entered, in order.
type Outcome struct {
	State           State                        `json:"state"`
	Trace           []State                      `json:"trace"`
	NotFound        bool                         `json:"not_found"`
	Item            model.Item                   `json:"item"`
	Added           bool                         `json:"added"`
	Summary         string                       `json:"summary,omitempty"`
	Weights         model.Weights                `json:"weights,omitempty"`
	Recommendations *recommend.RecommendationSet `json:"recommendations,omitempty"`
}

type Ledger interface {
	Activity(ctx context.Context, userID string) (model.Activity, error)
	AppendItem(ctx context.Context, userID string, domain model.Domain, itemID string) (bool, error)
	SetSummary(ctx context.Context, userID string, domain model.Domain, text string) error
	EnsureUser(ctx context.Context, userID string) error
}

type Resolver interface {
	Resolve(ctx context.Context, d model.Domain, name string) (catalog.LookupResult, error)
}

type Updater interface {
	UpdateEmbedding(ctx context.Context, userID string, d model.Domain, description string) (composer.UpdateResult, error)
}

type Recommender interface {
	Recommend(ctx context.Context, userID string, base model.Domain) (recommend.RecommendationSet, error)
}

type Workflow struct {
	ledger      Ledger
	resolver    Resolver
	updater     Updater
	recommender Recommender
	summarizer  Summarizer
	timeout     time.Duration
	log         zerolog.Logger

	locks keyedMutex
}

type Option func(*Workflow)

func WithSummarizer(s Summarizer) Option {
	return func(w *Workflow) {
		if s != nil {
			w.summarizer = s
		}
	}
}

// WithCallTimeout bounds each external call made by a run.
func WithCallTimeout(d time.Duration) Option {
	return func(w *Workflow) { w.timeout = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(w *Workflow) { w.log = l }
}

func New(ledger Ledger, resolver Resolver, updater Updater, recommender Recommender, opts ...Option) *Workflow {
	w := &Workflow{
		ledger:      ledger,
		resolver:    resolver,
		updater:     updater,
		recommender: recommender,
		summarizer:  HeuristicSummarizer{},
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// run carries the state shared between transitions.
type run struct {
	ev      ActivityEvent
	domain  model.Domain
	out     Outcome
	summary string
}

// Run drives ev from AwaitingName to Done. Runs for the same user are
// serialised. On failure the outcome is returned alongside the error with
// State set to StateFailed.
func (w *Workflow) Run(ctx context.Context, ev ActivityEvent) (Outcome, error) {
	unlock := w.locks.lock(strings.TrimSpace(ev.UserID))
	defer unlock()

	r := &run{ev: ev}
	state := StateAwaitingName
	for {
		r.out.Trace = append(r.out.Trace, state)
		r.out.State = state
		if state.Terminal() {
			return r.out, nil
		}
		next, err := w.step(ctx, state, r)
		if err != nil {
			r.out.Trace = append(r.out.Trace, StateFailed)
			r.out.State = StateFailed
			w.log.Warn().Err(err).Str("user_id", ev.UserID).Str("state", string(state)).Msg("workflow failed")
			return r.out, err
		}
		w.log.Debug().Str("user_id", ev.UserID).Str("from", string(state)).Str("to", string(next)).Msg("transition")
		state = next
	}
}

func (w *Workflow) step(ctx context.Context, state State, r *run) (State, error) {
	user := r.ev.UserID
	switch state {
	case StateAwaitingName:
		if strings.TrimSpace(user) == "" {
			return "", model.Validation("workflow", user, "user id is empty")
		}
		err := w.call(ctx, func(ctx context.Context) error {
			return w.ledger.EnsureUser(ctx, user)
		})
		return StateAwaitingQuery, model.External("workflow", user, err)

	case StateAwaitingQuery:
		d, err := model.ParseDomain(r.ev.Domain)
		if err != nil {
			return "", model.Wrap("workflow", user, err)
		}
		if strings.TrimSpace(r.ev.ItemName) == "" {
			return "", model.Validation("workflow", user, "item name is empty")
		}
		r.domain = d
		return StateParsing, nil

	case StateParsing:
		var res catalog.LookupResult
		err := w.call(ctx, func(ctx context.Context) (err error) {
			res, err = w.resolver.Resolve(ctx, r.domain, r.ev.ItemName)
			return err
		})
		if err != nil {
			return "", model.Wrap("workflow", user, err)
		}
		if !res.Found {
			r.out.NotFound = true
			return StateDone, nil
		}
		r.out.Item = res.Item
		return StateUpdating, nil

	case StateUpdating:
		err := w.call(ctx, func(ctx context.Context) (err error) {
			r.out.Added, err = w.ledger.AppendItem(ctx, user, r.domain, r.out.Item.ID)
			return err
		})
		return StateSummarizing, model.External("workflow", user, err)

	case StateSummarizing:
		var activity model.Activity
		if err := w.call(ctx, func(ctx context.Context) (err error) {
			activity, err = w.ledger.Activity(ctx, user)
			return err
		}); err != nil {
			return "", model.External("workflow", user, err)
		}
		var text string
		if err := w.call(ctx, func(ctx context.Context) (err error) {
			text, err = w.summarizer.Summarize(ctx, SummaryInput{
				Domain:      r.domain,
				Current:     activity.Summary(r.domain),
				Opinion:     r.ev.Opinion,
				Description: catalog.Describe(r.out.Item),
			})
			return err
		}); err != nil {
			return "", model.External("summarize", user, err)
		}
		r.out.Summary = CapSummary(text)
		err := w.call(ctx, func(ctx context.Context) error {
			return w.ledger.SetSummary(ctx, user, r.domain, r.out.Summary)
		})
		return StateRecomputing, model.External("workflow", user, err)

	case StateRecomputing:
		var res composer.UpdateResult
		err := w.call(ctx, func(ctx context.Context) (err error) {
			res, err = w.updater.UpdateEmbedding(ctx, user, r.domain, catalog.Describe(r.out.Item))
			return err
		})
		if err != nil {
			return "", err
		}
		r.out.Weights = res.Weights
		return StateRecommending, nil

	case StateRecommending:
		var set recommend.RecommendationSet
		err := w.call(ctx, func(ctx context.Context) (err error) {
			set, err = w.recommender.Recommend(ctx, user, r.domain)
			return err
		})
		if err != nil {
			return "", err
		}
		r.out.Recommendations = &set
		return StateDone, nil
	}
	return "", model.Validation("workflow", user, "no transition from state %q", state)
}

// call runs fn under the per-call timeout, if one is configured.
func (w *Workflow) call(ctx context.Context, fn func(context.Context) error) error {
	if w.timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	return fn(ctx)
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

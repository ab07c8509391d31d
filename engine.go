// Package prefs wires the preference pipeline together: activity ledger,
// vector index, embedding provider, composer, recommender and the activity
// workflow, all opened from one config.Config and released by Close.
package prefs

import (
	"context"
	"errors"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Protocol-Lattice/go-prefs/src/config"
	"github.com/Protocol-Lattice/go-prefs/src/logging"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/catalog"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/composer"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/embed"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/ledger"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/metrics"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/recommend"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/store"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/workflow"
)

// Engine owns the backend handles and the components built on them.
type Engine struct {
	cfg     config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	ledger   ledger.Ledger
	index    store.VectorIndex
	encoder  *embed.Encoder
	prefs    *store.PreferenceStore
	catalog  *catalog.Catalog
	composer *composer.Composer
	blender  *recommend.Blender
	workflow *workflow.Workflow

	closers []io.Closer
}

// New validates cfg, opens every backend it names and assembles the
// pipeline. On error, anything already opened is closed.
func New(ctx context.Context, cfg config.Config, opts ...Option) (_ *Engine, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{log: logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{cfg: cfg, log: o.log}
	defer func() {
		if err != nil {
			_ = e.Close()
		}
	}()

	switch {
	case o.registerer != nil:
		e.metrics = metrics.New(o.registerer)
	case cfg.Metrics.Enabled:
		e.metrics = metrics.New(prometheus.DefaultRegisterer)
	}

	e.ledger = o.ledger
	if e.ledger == nil {
		if e.ledger, err = ledger.Open(ctx, cfg.Ledger); err != nil {
			return nil, err
		}
		e.closers = append(e.closers, e.ledger)
	}

	index := o.index
	if index == nil {
		if index, err = store.Open(ctx, cfg.Index, cfg.Timeouts.External); err != nil {
			return nil, err
		}
		e.closers = append(e.closers, index)
	}
	e.index = store.WithMetrics(index, e.metrics)

	embedder := o.embedder
	if embedder == nil {
		if embedder, err = embed.New(ctx, cfg.Embed, logging.Component(e.log, "embed"), e.metrics); err != nil {
			return nil, err
		}
		if c, ok := embedder.(io.Closer); ok {
			e.closers = append(e.closers, c)
		}
	}
	e.encoder = embed.NewEncoder(embedder, embed.WithMaxInputRunes(cfg.Embed.MaxInputRunes))

	summarizer := o.summarizer
	if summarizer == nil && cfg.Summarizer.Provider == "anthropic" {
		summarizer = workflow.NewCachedSummarizer(
			workflow.NewAnthropicSummarizer(cfg.Summarizer.Model, cfg.Summarizer.MaxTokens),
			cfg.Summarizer.CacheSize, cfg.Summarizer.CacheTTL)
	}

	domains := store.IndexesFor(cfg.Index.Domains)
	e.prefs = store.NewPreferenceStore(e.index, cfg.Index.PreferenceIndex)
	e.catalog = catalog.New(e.index, domains,
		catalog.WithEncoder(e.encoder),
		catalog.WithLogger(logging.Component(e.log, "catalog")))
	e.composer = composer.New(e.ledger, e.encoder, e.prefs,
		composer.WithLogger(logging.Component(e.log, "composer")),
		composer.WithMetrics(e.metrics))
	e.blender = recommend.New(e.prefs, e.ledger, e.index,
		recommend.WithDomainIndexes(domains),
		recommend.WithConcurrency(cfg.Recommend.Concurrency),
		recommend.WithMixPolicy(recommend.MixPolicy{
			BaseDomain:      cfg.Recommend.BaseDomain,
			BaseCollective:  cfg.Recommend.BaseCollective,
			OtherDomain:     cfg.Recommend.OtherDomain,
			OtherCollective: cfg.Recommend.OtherCollective,
		}),
		recommend.WithLogger(logging.Component(e.log, "recommend")),
		recommend.WithMetrics(e.metrics))
	e.workflow = workflow.New(e.ledger, e.catalog, e.composer, e.blender,
		workflow.WithSummarizer(summarizer),
		workflow.WithCallTimeout(cfg.Timeouts.External),
		workflow.WithLogger(logging.Component(e.log, "workflow")))

	e.log.Info().
		Str("ledger", cfg.Ledger.Backend).
		Str("index", cfg.Index.Backend).
		Str("embedder", cfg.Embed.Provider).
		Str("summarizer", cfg.Summarizer.Provider).
		Msg("preference engine ready")
	return e, nil
}

// Close releases every handle New opened, in reverse order.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

func (e *Engine) Config() config.Config               { return e.cfg }
func (e *Engine) Ledger() ledger.Ledger               { return e.ledger }
func (e *Engine) Index() store.VectorIndex            { return e.index }
func (e *Engine) Preferences() *store.PreferenceStore { return e.prefs }
func (e *Engine) Catalog() *catalog.Catalog           { return e.catalog }
func (e *Engine) Composer() *composer.Composer        { return e.composer }
func (e *Engine) Blender() *recommend.Blender         { return e.blender }
func (e *Engine) Workflow() *workflow.Workflow        { return e.workflow }

// UpdateEmbedding calls the composer directly. Callers updating different
// domains of the same user concurrently must serialise themselves; Record does.
func (e *Engine) UpdateEmbedding(ctx context.Context, userID string, d model.Domain, description string) (composer.UpdateResult, error) {
	return e.composer.UpdateEmbedding(ctx, userID, d, description)
}

func (e *Engine) Recommend(ctx context.Context, userID string, base model.Domain) (recommend.RecommendationSet, error) {
	return e.blender.Recommend(ctx, userID, base)
}

// Provision creates the user's ledger row and starting vector if absent.
func (e *Engine) Provision(ctx context.Context, userID string, overwrite bool) (bool, error) {
	return e.composer.Provision(ctx, userID, composer.ProvisionOptions{Overwrite: overwrite})
}

func (e *Engine) Lookup(ctx context.Context, d model.Domain, name string) (catalog.LookupResult, error) {
	return e.catalog.Resolve(ctx, d, name)
}

// AddItem indexes a catalog item so it can be resolved and recommended.
func (e *Engine) AddItem(ctx context.Context, item model.Item) error {
	return e.catalog.Add(ctx, item)
}

// AddItems indexes items with one embedding call when the provider batches.
func (e *Engine) AddItems(ctx context.Context, items []model.Item) error {
	return e.catalog.AddBatch(ctx, items)
}

// Record runs one activity event through the workflow.
func (e *Engine) Record(ctx context.Context, ev workflow.ActivityEvent) (workflow.Outcome, error) {
	return e.workflow.Run(ctx, ev)
}

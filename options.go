package prefs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/embed"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/ledger"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/store"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/workflow"
)

type options struct {
	log        zerolog.Logger
	registerer prometheus.Registerer
	ledger     ledger.Ledger
	index      store.VectorIndex
	embedder   embed.Embedder
	summarizer workflow.Summarizer
}

// Option overrides what New would otherwise build from config. Handles
// passed in are owned by the caller and are not closed by Engine.Close.
type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRegisterer registers the engine metrics on reg, regardless of
// metrics.enabled.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

func WithLedger(l ledger.Ledger) Option {
	return func(o *options) { o.ledger = l }
}

func WithVectorIndex(idx store.VectorIndex) Option {
	return func(o *options) { o.index = idx }
}

func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

func WithSummarizer(s workflow.Summarizer) Option {
	return func(o *options) { o.summarizer = s }
}

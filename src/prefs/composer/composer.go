// Package composer maintains each user's composite preference vector.
//
// An update re-encodes one domain segment, leaves the other two untouched and
// recomputes the collective segment as the activity-weighted average of the
// three domain segments. The whole vector is written back in one upsert.
package composer

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/metrics"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
)

// Ledger is the slice of the activity ledger the composer reads.
type Ledger interface {
	Activity(ctx context.Context, userID string) (model.Activity, error)
	EnsureUser(ctx context.Context, userID string) error
}

// Encoder turns a description into one segment.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// VectorStore persists whole composite vectors keyed by user.
type VectorStore interface {
	Get(ctx context.Context, userID string) (model.CompositeVector, bool, error)
	Put(ctx context.Context, userID string, vec model.CompositeVector) error
}

// UpdateResult reports a successful UpdateEmbedding.
type UpdateResult struct {
	UserID  string        `json:"user_id"`
	Domain  model.Domain  `json:"domain"`
	Weights model.Weights `json:"weights"`
	Success bool          `json:"success"`
}

// ProvisionOptions controls Provision.
type ProvisionOptions struct {
	// Overwrite replaces an existing vector instead of leaving it alone.
	Overwrite bool
}

// provisionJitter bounds the initial segment components.
const provisionJitter = 0.001

type Composer struct {
	ledger  Ledger
	encoder Encoder
	vectors VectorStore
	log     zerolog.Logger
	metrics *metrics.Metrics

	randMu sync.Mutex
	rand   *rand.Rand
}

type Option func(*Composer)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Composer) { c.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Composer) { c.metrics = m }
}

// WithSeed makes Provision reproducible.
func WithSeed(seed uint64) Option {
	return func(c *Composer) { c.rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

func New(ledger Ledger, encoder Encoder, vectors VectorStore, opts ...Option) *Composer {
	c := &Composer{
		ledger:  ledger,
		encoder: encoder,
		vectors: vectors,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rand == nil {
		c.rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return c
}

// UpdateEmbedding replaces the domain segment with the encoding of
// description and recomputes the collective segment from the user's current
// activity counts. Arguments are validated before any external call.
func (c *Composer) UpdateEmbedding(ctx context.Context, userID string, domain model.Domain, description string) (res UpdateResult, err error) {
	const op = "update embedding"
	start := time.Now()
	defer func() { c.metrics.ObserveUpdate(string(domain), start, err) }()

	if strings.TrimSpace(userID) == "" {
		return UpdateResult{}, model.Validation(op, userID, "user id is empty")
	}
	if !domain.Valid() {
		return UpdateResult{}, model.Validation(op, userID, "unknown domain %q", domain)
	}
	if strings.TrimSpace(description) == "" {
		return UpdateResult{}, model.Validation(op, userID, "description is empty")
	}

	activity, err := c.ledger.Activity(ctx, userID)
	if err != nil {
		return UpdateResult{}, model.External(op, userID, err)
	}
	weights, err := activity.Counts().Weights()
	if err != nil {
		return UpdateResult{}, model.Wrap(op, userID, err)
	}

	segment, err := c.encoder.Encode(ctx, description)
	if err != nil {
		return UpdateResult{}, model.Wrap(op, userID, err)
	}

	current, found, err := c.vectors.Get(ctx, userID)
	if err != nil {
		return UpdateResult{}, model.Wrap(op, userID, err)
	}
	if !found {
		c.log.Debug().Str("user_id", userID).Msg("no stored vector, starting from zero")
		current = model.ZeroVector()
	}

	segments := current.Split()
	segments.SetDomain(domain, append([]float32(nil), segment...))
	segments.SetCollective(model.WeightedAverage(segments, weights))

	if err := c.vectors.Put(ctx, userID, segments.Join()); err != nil {
		return UpdateResult{}, model.Wrap(op, userID, err)
	}

	c.log.Info().
		Str("user_id", userID).
		Str("domain", string(domain)).
		Interface("weights", weights).
		Msg("preference vector updated")
	return UpdateResult{UserID: userID, Domain: domain, Weights: weights, Success: true}, nil
}

// Provision gives a new user an activity row and a starting vector: three
// domain segments drawn uniformly from [-0.001, 0.001] and their mean as the
// collective. An existing vector is kept unless opts.Overwrite is set.
// provisioned reports whether a vector was written.
func (c *Composer) Provision(ctx context.Context, userID string, opts ProvisionOptions) (provisioned bool, err error) {
	const op = "provision"
	if strings.TrimSpace(userID) == "" {
		return false, model.Validation(op, userID, "user id is empty")
	}
	if err := c.ledger.EnsureUser(ctx, userID); err != nil {
		return false, model.External(op, userID, err)
	}
	if !opts.Overwrite {
		_, found, err := c.vectors.Get(ctx, userID)
		if err != nil {
			return false, model.Wrap(op, userID, err)
		}
		if found {
			c.log.Debug().Str("user_id", userID).Msg("preference vector exists, skipping provision")
			return false, nil
		}
	}

	var segments model.Segments
	for _, d := range model.Domains {
		segments.SetDomain(d, c.jitter())
	}
	segments.SetCollective(model.Mean(segments))

	if err := c.vectors.Put(ctx, userID, segments.Join()); err != nil {
		return false, model.Wrap(op, userID, err)
	}
	c.log.Info().Str("user_id", userID).Bool("overwrite", opts.Overwrite).Msg("preference vector provisioned")
	return true, nil
}

func (c *Composer) jitter() []float32 {
	c.randMu.Lock()
	defer c.randMu.Unlock()
	seg := make([]float32, model.SegmentDim)
	for i := range seg {
		seg[i] = float32((c.rand.Float64()*2 - 1) * provisionJitter)
	}
	return seg
}

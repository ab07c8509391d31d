// Package recommend blends per-domain and collective similarity into ranked
// suggestions for every domain, never repeating what the user already consumed.
package recommend

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Protocol-Lattice/go-prefs/src/concurrent"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/metrics"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/store"
)

// Sources of a recommended item.
const (
	SourceDomain     = "domain"
	SourceCollective = "collective"
)

// MixPolicy is how many items each domain takes from its own segment query and
// from the collective query, depending on whether it is the base domain.
type MixPolicy struct {
	BaseDomain      int
	BaseCollective  int
	OtherDomain     int
	OtherCollective int
}

// DefaultMixPolicy favours the base domain 3/2 and the others 2/3.
func DefaultMixPolicy() MixPolicy {
	return MixPolicy{BaseDomain: 3, BaseCollective: 2, OtherDomain: 2, OtherCollective: 3}
}

// Split returns the domain and collective quotas for d.
func (p MixPolicy) Split(d, base model.Domain) (domainK, collectiveK int) {
	if d == base {
		return p.BaseDomain, p.BaseCollective
	}
	return p.OtherDomain, p.OtherCollective
}

// Recommendation is one suggested item and the query that produced it.
type Recommendation struct {
	model.Match
	Source string `json:"source"`
}

// RecommendationSet maps each domain to its ordered suggestions, domain query
// results first.
type RecommendationSet struct {
	UserID     string                            `json:"user_id"`
	BaseDomain model.Domain                      `json:"base_domain"`
	Items      map[model.Domain][]Recommendation `json:"items"`
}

// VectorSource reads stored composite vectors.
type VectorSource interface {
	Get(ctx context.Context, userID string) (model.CompositeVector, bool, error)
}

// ActivitySource supplies the exclusion sets.
type ActivitySource interface {
	Activity(ctx context.Context, userID string) (model.Activity, error)
}

type Blender struct {
	vectors     VectorSource
	activity    ActivitySource
	index       store.VectorIndex
	indexes     store.DomainIndexes
	policy      MixPolicy
	concurrency int
	log         zerolog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Blender)

func WithMixPolicy(p MixPolicy) Option {
	return func(b *Blender) { b.policy = p }
}

// WithConcurrency bounds how many domains are queried at once.
func WithConcurrency(n int) Option {
	return func(b *Blender) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithDomainIndexes(ix store.DomainIndexes) Option {
	return func(b *Blender) {
		if ix != nil {
			b.indexes = ix
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(b *Blender) { b.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Blender) { b.metrics = m }
}

func New(vectors VectorSource, activity ActivitySource, index store.VectorIndex, opts ...Option) *Blender {
	b := &Blender{
		vectors:     vectors,
		activity:    activity,
		index:       index,
		indexes:     store.DefaultDomainIndexes(),
		policy:      DefaultMixPolicy(),
		concurrency: len(model.Domains),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Recommend returns suggestions for every domain, mixing the domain and
// collective queries per the blender's MixPolicy. Short catalogs give short
// lists. A user without a stored vector fails with model.ErrNoPreferenceVector.
func (b *Blender) Recommend(ctx context.Context, userID string, base model.Domain) (set RecommendationSet, err error) {
	const op = "recommend"
	start := time.Now()
	defer func() { b.metrics.ObserveRecommend(string(base), start, err) }()

	if strings.TrimSpace(userID) == "" {
		return RecommendationSet{}, model.Validation(op, userID, "user id is empty")
	}
	if !base.Valid() {
		return RecommendationSet{}, model.Validation(op, userID, "unknown base domain %q", base)
	}

	vec, found, err := b.vectors.Get(ctx, userID)
	if err != nil {
		return RecommendationSet{}, model.Wrap(op, userID, err)
	}
	if !found {
		return RecommendationSet{}, &model.Error{Op: op, UserID: userID, Kind: model.ErrNoPreferenceVector}
	}
	segments := vec.Split()

	activity, err := b.activity.Activity(ctx, userID)
	if err != nil {
		return RecommendationSet{}, model.External(op, userID, err)
	}

	lists, err := concurrent.Map(ctx, model.Domains, b.concurrency, func(ctx context.Context, d model.Domain) ([]Recommendation, error) {
		domainK, collectiveK := b.policy.Split(d, base)
		return b.blendDomain(ctx, d, segments.Domain(d), segments.Collective(), activity.Exclusions(d), domainK, collectiveK)
	})
	if err != nil {
		return RecommendationSet{}, model.External(op, userID, err)
	}

	set = RecommendationSet{UserID: userID, BaseDomain: base, Items: make(map[model.Domain][]Recommendation, len(model.Domains))}
	for i, d := range model.Domains {
		set.Items[d] = lists[i]
		b.metrics.ObserveResultSize(string(d), len(lists[i]))
	}
	b.log.Info().
		Str("user_id", userID).
		Str("base_domain", string(base)).
		Int("movie", len(set.Items[model.DomainMovie])).
		Int("music", len(set.Items[model.DomainMusic])).
		Int("product", len(set.Items[model.DomainProduct])).
		Msg("recommendations blended")
	return set, nil
}

// blendDomain takes domainK items from the segment query, then collectiveK
// items from the collective query that are neither excluded nor already taken.
func (b *Blender) blendDomain(ctx context.Context, d model.Domain, segment, collective []float32, excluded map[string]struct{}, domainK, collectiveK int) ([]Recommendation, error) {
	indexName, err := b.indexes.Name(d)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]struct{}, domainK+collectiveK)
	out := make([]Recommendation, 0, domainK+collectiveK)

	own, err := b.eligible(ctx, indexName, segment, domainK, excluded, taken)
	if err != nil {
		return nil, err
	}
	for _, m := range own {
		m.Domain = d
		taken[m.ID] = struct{}{}
		out = append(out, Recommendation{Match: m, Source: SourceDomain})
	}

	shared, err := b.eligible(ctx, indexName, collective, collectiveK, excluded, taken)
	if err != nil {
		return nil, err
	}
	for _, m := range shared {
		m.Domain = d
		out = append(out, Recommendation{Match: m, Source: SourceCollective})
	}
	return out, nil
}

// eligible over-fetches by the size of the skip sets and keeps the first k
// results in similarity order whose id is in neither.
func (b *Blender) eligible(ctx context.Context, index string, vector []float32, k int, excluded, taken map[string]struct{}) ([]model.Match, error) {
	if k <= 0 {
		return nil, nil
	}
	matches, err := b.index.Query(ctx, index, vector, nil, k+len(excluded)+len(taken))
	if err != nil {
		return nil, err
	}
	out := make([]model.Match, 0, k)
	for _, m := range matches {
		if _, skip := excluded[m.ID]; skip {
			continue
		}
		if _, skip := taken[m.ID]; skip {
			continue
		}
		out = append(out, m)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

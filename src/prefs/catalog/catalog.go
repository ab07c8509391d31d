// Package catalog resolves item names to catalog records and renders them as
// the structured text the composer encodes.
package catalog

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/store"
)

// NameField returns the metadata field an item name is matched against.
func NameField(d model.Domain) string {
	switch d {
	case model.DomainMovie:
		return "original_title"
	case model.DomainMusic:
		return "track_name"
	case model.DomainProduct:
		return "title"
	}
	return ""
}

// LookupResult is the outcome of Resolve. A miss is Found=false, not an error.
type LookupResult struct {
	Found bool       `json:"found"`
	Item  model.Item `json:"item,omitempty"`
}

// Encoder embeds item descriptions for Add.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// BatchEncoder embeds many descriptions at once.
type BatchEncoder interface {
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Catalog answers exact-name lookups against the per-domain item indexes.
type Catalog struct {
	index   store.VectorIndex
	indexes store.DomainIndexes
	encoder Encoder
	log     zerolog.Logger
}

type Option func(*Catalog)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Catalog) { c.log = l }
}

// WithEncoder enables Add.
func WithEncoder(e Encoder) Option {
	return func(c *Catalog) { c.encoder = e }
}

func New(index store.VectorIndex, indexes store.DomainIndexes, opts ...Option) *Catalog {
	if indexes == nil {
		indexes = store.DefaultDomainIndexes()
	}
	c := &Catalog{index: index, indexes: indexes, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve finds the item of domain d whose name field equals name exactly.
func (c *Catalog) Resolve(ctx context.Context, d model.Domain, name string) (LookupResult, error) {
	const op = "resolve item"
	if !d.Valid() {
		return LookupResult{}, model.Validation(op, "", "unknown domain %q", d)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return LookupResult{}, model.Validation(op, "", "item name is empty")
	}
	indexName, err := c.indexes.Name(d)
	if err != nil {
		return LookupResult{}, err
	}

	matches, err := c.index.Query(ctx, indexName, nil, store.Filter{NameField(d): name}, 1)
	if err != nil {
		return LookupResult{}, model.External(op, "", err)
	}
	if len(matches) == 0 {
		c.log.Debug().Str("domain", string(d)).Str("name", name).Msg("catalog miss")
		return LookupResult{}, nil
	}
	m := matches[0]
	item := m.Item
	item.Domain = d
	if item.Name == "" {
		item.Name = metaString(item.Metadata, NameField(d), name)
	}
	return LookupResult{Found: true, Item: item}, nil
}

// Add embeds the description of item and upserts it into its domain index
// with its metadata. The item name is stored under the domain's name field
// when the metadata lacks it, so Resolve can find it.
func (c *Catalog) Add(ctx context.Context, item model.Item) error {
	const op = "add item"
	en, err := c.prepare(op, item)
	if err != nil {
		return err
	}
	vec, err := c.encoder.Encode(ctx, en.text)
	if err != nil {
		return err
	}
	return c.upsert(ctx, op, en, vec)
}

// AddBatch is Add for many items. When the encoder supports batches all
// descriptions are embedded in one call before any upsert; a validation
// failure on any item rejects the whole batch.
func (c *Catalog) AddBatch(ctx context.Context, items []model.Item) error {
	const op = "add items"
	be, ok := c.encoder.(BatchEncoder)
	if !ok {
		for _, it := range items {
			if err := c.Add(ctx, it); err != nil {
				return err
			}
		}
		return nil
	}
	entries := make([]entry, 0, len(items))
	texts := make([]string, 0, len(items))
	for _, it := range items {
		e, err := c.prepare(op, it)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		texts = append(texts, e.text)
	}
	vecs, err := be.EncodeBatch(ctx, texts)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if err := c.upsert(ctx, op, e, vecs[i]); err != nil {
			return err
		}
	}
	c.log.Debug().Int("items", len(items)).Msg("catalog batch indexed")
	return nil
}

type entry struct {
	index string
	item  model.Item
	text  string
}

func (c *Catalog) prepare(op string, item model.Item) (entry, error) {
	if !item.Domain.Valid() {
		return entry{}, model.Validation(op, "", "unknown domain %q", item.Domain)
	}
	if strings.TrimSpace(item.ID) == "" {
		return entry{}, model.Validation(op, "", "item id is empty")
	}
	if c.encoder == nil {
		return entry{}, model.Validation(op, "", "catalog has no encoder")
	}
	indexName, err := c.indexes.Name(item.Domain)
	if err != nil {
		return entry{}, err
	}
	md := make(map[string]any, len(item.Metadata)+1)
	for k, v := range item.Metadata {
		md[k] = v
	}
	if _, ok := md[NameField(item.Domain)]; !ok && item.Name != "" {
		md[NameField(item.Domain)] = item.Name
	}
	item.Metadata = md
	return entry{index: indexName, item: item, text: Describe(item)}, nil
}

func (c *Catalog) upsert(ctx context.Context, op string, e entry, vec []float32) error {
	if err := c.index.Upsert(ctx, e.index, e.item.ID, vec, e.item.Metadata); err != nil {
		return model.External(op, "", err)
	}
	return nil
}

// Describe renders item as labelled lines, one field per line.
func Describe(item model.Item) string {
	md := item.Metadata
	var lines []string
	add := func(label, value string) { lines = append(lines, label+": "+value) }

	switch item.Domain {
	case model.DomainMovie:
		add("Movie", metaString(md, "title", item.Name))
		add("Genres", metaString(md, "genres", ""))
		add("Keywords", metaString(md, "keywords", ""))
		add("Overview", metaString(md, "overview", ""))
		add("Tagline", metaString(md, "tagline", ""))
		add("Release Date", metaString(md, "release_date", ""))
		add("Popularity Score", metaString(md, "popularity", ""))
		add("Average Vote", metaString(md, "vote_average", ""))
	case model.DomainMusic:
		add("Track", metaString(md, "track_name", item.Name))
		add("Artist(s)", metaString(md, "artists", ""))
		add("Album", metaString(md, "album_name", ""))
		add("Genre", metaString(md, "track_genre", ""))
		add("Explicit", yesNo(md["explicit"]))
		add("Duration", durationSeconds(md["duration_ms"]))
		add("Popularity Score", metaString(md, "popularity", ""))
	case model.DomainProduct:
		add("Product", metaString(md, "title", item.Name))
		add("Category", metaString(md, "category", ""))
		add("Price", "$"+metaString(md, "price", ""))
		add("List Price", "$"+metaString(md, "listPrice", ""))
		add("Star Rating", metaString(md, "stars", "")+"⭐")
		add("Reviews", metaString(md, "reviews", ""))
		add("Best Seller", yesNo(md["isBestSeller"]))
		add("Recently Bought", metaString(md, "boughtInLastMonth", "0")+" times")
	default:
		return item.Name
	}
	return strings.Join(lines, "\n")
}

func metaString(md map[string]any, key, fallback string) string {
	v, ok := md[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	}
	return fmt.Sprint(v)
}

func yesNo(v any) string {
	switch t := v.(type) {
	case bool:
		if t {
			return "Yes"
		}
	case string:
		if b, err := strconv.ParseBool(t); err == nil && b {
			return "Yes"
		}
	}
	return "No"
}

func durationSeconds(v any) string {
	ms, ok := toFloat(v)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%d seconds", int64(math.RoundToEven(ms/1000)))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

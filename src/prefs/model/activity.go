package model

// Activity is one user's ledger row: consumed identifiers and free-text
// preference summaries, per domain.
type Activity struct {
	UserID            string
	MoviesWatched     []string
	ListenedMusic     []string
	ProductsPurchased []string
	MovieSummary      string
	MusicSummary      string
	ProductSummary    string
}

// Items returns the consumed identifiers recorded for d.
func (a Activity) Items(d Domain) []string {
	switch d {
	case DomainMovie:
		return a.MoviesWatched
	case DomainMusic:
		return a.ListenedMusic
	case DomainProduct:
		return a.ProductsPurchased
	}
	return nil
}

// SetItems replaces the identifiers recorded for d.
func (a *Activity) SetItems(d Domain, ids []string) {
	switch d {
	case DomainMovie:
		a.MoviesWatched = ids
	case DomainMusic:
		a.ListenedMusic = ids
	case DomainProduct:
		a.ProductsPurchased = ids
	}
}

// Summary returns the preference summary for d.
func (a Activity) Summary(d Domain) string {
	switch d {
	case DomainMovie:
		return a.MovieSummary
	case DomainMusic:
		return a.MusicSummary
	case DomainProduct:
		return a.ProductSummary
	}
	return ""
}

// SetSummary replaces the preference summary for d.
func (a *Activity) SetSummary(d Domain, text string) {
	switch d {
	case DomainMovie:
		a.MovieSummary = text
	case DomainMusic:
		a.MusicSummary = text
	case DomainProduct:
		a.ProductSummary = text
	}
}

// Counts returns the number of distinct identifiers per domain.
func (a Activity) Counts() Counts {
	c := Counts{}
	for _, d := range Domains {
		c[d] = len(a.Exclusions(d))
	}
	return c
}

// Exclusions returns the set of identifiers never to recommend again in d.
func (a Activity) Exclusions(d Domain) map[string]struct{} {
	items := a.Items(d)
	set := make(map[string]struct{}, len(items))
	for _, id := range items {
		set[id] = struct{}{}
	}
	return set
}

// Counts is the per-domain activity count.
type Counts map[Domain]int

// Total sums the counts across domains.
func (c Counts) Total() int {
	total := 0
	for _, d := range Domains {
		total += c[d]
	}
	return total
}

// Weights is the per-domain share of total activity.
type Weights map[Domain]float64

// Weights derives count(d)/total for every domain. A zero total has no
// defined weighting and yields ErrNoActivityHistory.
func (c Counts) Weights() (Weights, error) {
	total := c.Total()
	if total <= 0 {
		return nil, &Error{Op: "weights", Kind: ErrNoActivityHistory}
	}
	w := make(Weights, len(Domains))
	for _, d := range Domains {
		w[d] = float64(c[d]) / float64(total)
	}
	return w, nil
}

// Item is one catalog metadata record.
type Item struct {
	ID       string         `json:"id"`
	Domain   Domain         `json:"domain"`
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Match is an item returned by a similarity query.
type Match struct {
	Item
	Score float64 `json:"score"`
}

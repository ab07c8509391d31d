package model

import (
	"fmt"
	"strings"
)

// Domain names one independent activity category.
type Domain string

const (
	DomainMovie   Domain = "movie"
	DomainMusic   Domain = "music"
	DomainProduct Domain = "product"
)

// Domains lists every domain in composite-vector segment order.
var Domains = []Domain{DomainMovie, DomainMusic, DomainProduct}

// ParseDomain normalises s and rejects anything outside movie, music and product.
func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", Validation("parse domain", "", "unknown domain %q", s)
	}
	return d, nil
}

// Valid reports whether d is one of the three supported domains.
func (d Domain) Valid() bool {
	switch d {
	case DomainMovie, DomainMusic, DomainProduct:
		return true
	}
	return false
}

// Index returns the position of the domain's segment in the composite vector.
func (d Domain) Index() int {
	switch d {
	case DomainMovie:
		return 0
	case DomainMusic:
		return 1
	case DomainProduct:
		return 2
	}
	return -1
}

// ItemsField is the ledger column holding the consumed identifiers for d.
func (d Domain) ItemsField() string {
	switch d {
	case DomainMovie:
		return "movies_watched"
	case DomainMusic:
		return "listened_music"
	case DomainProduct:
		return "products_purchased"
	}
	return ""
}

// SummaryField is the ledger column holding the free-text preference summary for d.
func (d Domain) SummaryField() string {
	if !d.Valid() {
		return ""
	}
	return fmt.Sprintf("%s_pref_summary", d)
}

func (d Domain) String() string { return string(d) }

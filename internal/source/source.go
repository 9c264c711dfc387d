// Package source holds the per-platform adapters that list upcoming contests.
package source

import (
	"context"
	"net/url"
	"strings"

	"contesthub/internal/domain"
	"contesthub/internal/normalize"
)

// MaxCandidates bounds how many tuples a single adapter run returns.
const MaxCandidates = 50

// Candidate is a raw contest tuple before time normalization.
type Candidate struct {
	Name     string
	URL      string
	Platform domain.Platform
	Start    normalize.Token
	Duration normalize.Duration
}

// Adapter fetches the upcoming contests of one external source.
type Adapter interface {
	// Name identifies the source in logs and reports.
	Name() string
	// Fetch returns the raw tuples currently listed by the source. It either
	// completes or returns an error; it never writes to the store.
	Fetch(ctx context.Context) ([]Candidate, error)
}

// JSONGetter is the HTTP surface API-backed adapters need.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// resolveURL makes href absolute against base. It returns "" for empty hrefs.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

func bounded(cs []Candidate) []Candidate {
	if len(cs) > MaxCandidates {
		return cs[:MaxCandidates]
	}
	return cs
}

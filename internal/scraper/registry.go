// Package scraper turns publisher article pages into article drafts.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/domain"
)

// Scraper extracts an article draft from a publisher page.
//
// A draft with no extractable data is returned as an empty draft and a nil error.
// Errors are *FetchError or *ExtractionError.
type Scraper interface {
	Scrape(ctx context.Context, pageURL string) (*domain.ArticleDraft, error)
}

// Matcher reports whether a scraper handles rawURL.
type Matcher func(rawURL string) bool

// HostMatcher matches URLs whose host equals one of hosts or is a subdomain of one.
func HostMatcher(hosts ...string) Matcher {
	normalized := make([]string, 0, len(hosts))
	for _, h := range hosts {
		normalized = append(normalized, strings.ToLower(strings.TrimPrefix(h, "www.")))
	}

	return func(rawURL string) bool {
		u, err := url.Parse(strings.TrimSpace(rawURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return false
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		for _, h := range normalized {
			if host == h || strings.HasSuffix(host, "."+h) {
				return true
			}
		}
		return false
	}
}

// SubstringMatcher matches URLs containing s.
func SubstringMatcher(s string) Matcher {
	return func(rawURL string) bool {
		return strings.Contains(rawURL, s)
	}
}

// Registration is a named scraper and the URLs it handles.
type Registration struct {
	Name    string
	Match   Matcher
	Scraper Scraper
}

// Registry selects a scraper for a URL. Entries are tried in registration order and the
// first match wins.
type Registry struct {
	mu      sync.RWMutex
	entries []Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a scraper.
func (r *Registry) Register(name string, match Matcher, s Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Registration{Name: name, Match: match, Scraper: s})
}

// Lookup returns the first registration matching rawURL.
func (r *Registry) Lookup(rawURL string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.Match(rawURL) {
			return e, true
		}
	}
	return Registration{}, false
}

// Resolve is Lookup returning ErrUnknownPublisher when nothing matches.
func (r *Registry) Resolve(rawURL string) (Registration, error) {
	reg, ok := r.Lookup(rawURL)
	if !ok {
		return Registration{}, fmt.Errorf("%w: %s", ErrUnknownPublisher, rawURL)
	}
	return reg, nil
}

// Names lists registered scrapers in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.Name)
	}
	return names
}

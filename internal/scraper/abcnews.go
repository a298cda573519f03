package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/domain"
)

// ABCNewsPublisherID is the publisher id stored on ABC News articles.
const ABCNewsPublisherID = 1

// ABCNewsName is the registry name of the ABC News scraper.
const ABCNewsName = "abcnews"

// abcStatePrefix locates the assignment of the page state object inside a script.
var abcStatePrefix = regexp.MustCompile(`window\[['"]__abcnews__['"]\]\s*=\s*`)

// Layouts tried for story timestamps, in order.
var abcTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"January 2, 2006, 3:04 PM",
	"January 2, 2006",
}

// ABCNews scrapes abcnews.go.com story pages, which embed their data as a JSON object
// assigned to window['__abcnews__'].
type ABCNews struct {
	fetcher     PageFetcher
	publisherID int
	now         func() time.Time
}

// ABCNewsOption customises an ABCNews scraper.
type ABCNewsOption func(*ABCNews)

// WithPublisherID overrides ABCNewsPublisherID.
func WithPublisherID(id int) ABCNewsOption {
	return func(s *ABCNews) { s.publisherID = id }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ABCNewsOption {
	return func(s *ABCNews) { s.now = now }
}

// NewABCNews creates the ABC News scraper.
func NewABCNews(fetcher PageFetcher, opts ...ABCNewsOption) *ABCNews {
	s := &ABCNews{fetcher: fetcher, publisherID: ABCNewsPublisherID, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterABCNews adds the ABC News scraper to r for abcnews.go.com and abcnews.com.
func RegisterABCNews(r *Registry, fetcher PageFetcher, opts ...ABCNewsOption) {
	r.Register(ABCNewsName, HostMatcher("abcnews.go.com", "abcnews.com"), NewABCNews(fetcher, opts...))
}

// Scrape fetches pageURL and extracts its story.
func (s *ABCNews) Scrape(ctx context.Context, pageURL string) (*domain.ArticleDraft, error) {
	html, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return s.Extract(html, pageURL)
}

// Extract builds a draft from an already fetched page. Pages without the state object, or
// whose state holds no story, produce an empty draft.
func (s *ABCNews) Extract(html []byte, pageURL string) (*domain.ArticleDraft, error) {
	raw, found, err := findABCState(html)
	if err != nil {
		return nil, &ExtractionError{URL: pageURL, Cause: err}
	}
	if !found {
		return &domain.ArticleDraft{}, nil
	}

	var state any
	if err = json.NewDecoder(strings.NewReader(raw)).Decode(&state); err != nil {
		return nil, &ExtractionError{URL: pageURL, Cause: fmt.Errorf("parse __abcnews__ json: %w", err)}
	}

	story, ok := lookup(state, "page", "content", "story", "story").(map[string]any)
	if !ok {
		return &domain.ArticleDraft{}, nil
	}

	now := s.now()
	draft := &domain.ArticleDraft{
		ImageURL: firstNonEmpty(
			stringAt(story, "leadMediaImage", "image", "src"),
			firstThumbnail(story),
			stringAt(story, "image", "url"),
			stringAt(story, "heroImage", "url"),
		),
		Title:        firstNonEmpty(stringAt(story, "headline"), stringAt(story, "title")),
		Description:  stringAt(story, "description"),
		Content:      stringAt(story, "body"),
		PublisherID:  s.publisherID,
		PublisherURL: pageURL,
		ImportedAt:   now,
	}

	createdAt, ok := parseStoryTime(stringAt(story, "metadata", "timestamp"))
	if !ok {
		createdAt, ok = parseStoryTime(stringAt(story, "publishedDate"))
	}
	if !ok {
		createdAt = now
	}
	draft.CreatedAt = createdAt
	draft.Normalize()

	return draft, nil
}

// findABCState returns the text following the state assignment in the first script that has one.
func findABCState(html []byte) (string, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", false, err
	}

	var raw string
	found := false
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		loc := abcStatePrefix.FindStringIndex(text)
		if loc == nil {
			return true
		}
		rest := strings.TrimSpace(text[loc[1]:])
		if !strings.HasPrefix(rest, "{") {
			return true
		}
		raw, found = rest, true
		return false
	})

	return raw, found, nil
}

func lookup(v any, path ...string) any {
	for _, key := range path {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}

func stringAt(v any, path ...string) string {
	switch val := lookup(v, path...).(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

func firstThumbnail(story map[string]any) string {
	thumbs, ok := story["thumbnails"].([]any)
	if !ok || len(thumbs) == 0 {
		return ""
	}
	return stringAt(thumbs[0], "url")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseStoryTime accepts the layouts ABC uses plus epoch milliseconds.
func parseStoryTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range abcTimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms), true
	}
	return time.Time{}, false
}

// Package feed turns publisher syndication feeds into lists of candidate article URLs.
package feed

import (
	"bytes"
	"context"
	"fmt"

	"github.com/antchfx/xmlquery"
	"github.com/mmcdole/gofeed"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

// Extractor fetches a feed, detects its dialect and returns the item links.
type Extractor struct {
	fetcher  Fetcher
	dialects []Dialect
	log      logger.Logger
}

// NewExtractor creates an Extractor. With no dialects given, DefaultDialects is used.
func NewExtractor(fetcher Fetcher, log logger.Logger, dialects ...Dialect) *Extractor {
	if len(dialects) == 0 {
		dialects = DefaultDialects()
	}
	return &Extractor{fetcher: fetcher, dialects: dialects, log: log}
}

// Extract fetches feedURL and returns its article links in document order. Duplicates are kept.
//
// Errors are *FetchError, *ParseError or ErrUnsupportedFormat. For ErrUnsupportedFormat the
// returned slice is empty and non-nil.
func (e *Extractor) Extract(ctx context.Context, feedURL string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extract feed: %w", err)
	}

	body, err := e.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	return e.ExtractDocument(feedURL, body)
}

// ExtractDocument runs dialect detection and link extraction over an already fetched body.
func (e *Extractor) ExtractDocument(feedURL string, body []byte) ([]string, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: feedURL, Cause: err}
	}

	dialect := e.detect(doc)
	if dialect == nil {
		e.log.Warn("Feed dialect not recognized", logger.String("feed_url", feedURL))
		return []string{}, ErrUnsupportedFormat
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, &ParseError{URL: feedURL, Cause: err}
	}

	links := dialect.Links(parsed)
	e.log.Debug("Feed links extracted",
		logger.String("feed_url", feedURL),
		logger.String("dialect", dialect.Name()),
		logger.Int("items", len(parsed.Items)),
		logger.Int("links", len(links)),
	)

	return links, nil
}

func (e *Extractor) detect(doc *xmlquery.Node) Dialect {
	ns, ok := rootNamespaces(doc)
	if !ok {
		return nil
	}
	for _, d := range e.dialects {
		if d.Recognizes(ns) {
			return d
		}
	}
	return nil
}

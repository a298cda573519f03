package scraper

import (
	"context"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/httpclient"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

const defaultMaxBodySize = 10 << 20

// PageFetcher retrieves the raw HTML of a page.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) ([]byte, error)
}

// FetcherConfig configures a CollyFetcher.
type FetcherConfig struct {
	Timeout   time.Duration
	UserAgent string
	// RequestsPerSecond limits fetches across all workers. Zero disables the limit.
	RequestsPerSecond float64
	Burst             int
	MaxBodySize       int
}

// CollyFetcher fetches single pages through a colly collector, one clone per call.
type CollyFetcher struct {
	base    *colly.Collector
	limiter *rate.Limiter
}

// NewCollyFetcher builds a fetcher with a bounded request timeout.
func NewCollyFetcher(cfg FetcherConfig) *CollyFetcher {
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}

	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(maxBody),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}

	base := colly.NewCollector(opts...)
	base.SetRequestTimeout(httpclient.ClampTimeout(cfg.Timeout))

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}

	return &CollyFetcher{base: base, limiter: limiter}
}

// Fetch returns the page body. Transport failures and non-2xx statuses yield *FetchError.
func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: pageURL, Cause: err}
	}

	c := f.base.Clone()
	c.Context = ctx

	var (
		body   []byte
		status int
	)
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, &FetchError{URL: pageURL, StatusCode: status, Cause: err}
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, &FetchError{URL: pageURL, StatusCode: status}
	}

	logger.FromContext(ctx).Debug("Fetched page",
		logger.String("page_url", pageURL),
		logger.Int("status", status),
		logger.Int("bytes", len(body)),
	)
	return body, nil
}

package scraper

import (
	"errors"
	"fmt"
)

// ErrUnknownPublisher is returned when no registered scraper matches a URL.
var ErrUnknownPublisher = errors.New("no scraper registered for url")

// FetchError reports a transport failure or non-2xx response while fetching a page.
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ExtractionError reports embedded article data that was found but could not be decoded.
type ExtractionError struct {
	URL   string
	Cause error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract article from %s: %v", e.URL, e.Cause)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

package feed

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned when the feed root declares no recognized publisher namespace.
// It is a permanent, feed-level condition.
var ErrUnsupportedFormat = errors.New("unsupported XML format")

// FetchError reports a transport failure or non-2xx response while fetching a feed.
type FetchError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch feed %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch feed %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ParseError reports a feed body that is not well-formed XML.
type ParseError struct {
	URL   string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed %s: %v", e.URL, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

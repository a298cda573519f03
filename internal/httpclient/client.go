// Package httpclient builds http.Clients with bounded timeouts for feed and page fetches.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Timeout bounds. A zero or out-of-range Timeout is clamped into this window.
const (
	MinTimeout     = 10 * time.Second
	DefaultTimeout = 20 * time.Second
	MaxTimeout     = 30 * time.Second
)

const (
	dialTimeout         = 5 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
	idleConnTimeout     = 90 * time.Second
	maxIdleConns        = 50
	maxIdleConnsPerHost = 5
)

// Config configures a client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// New returns a client whose total request time never exceeds the clamped timeout.
func New(cfg Config) *http.Client {
	timeout := ClampTimeout(cfg.Timeout)

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   tlsHandshakeTimeout,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       idleConnTimeout,
		MaxIdleConns:          maxIdleConns,
		MaxIdleConnsPerHost:   maxIdleConnsPerHost,
	}

	var rt http.RoundTripper = transport
	if cfg.UserAgent != "" {
		rt = &userAgentTransport{next: transport, userAgent: cfg.UserAgent}
	}

	return &http.Client{Timeout: timeout, Transport: rt}
}

// ClampTimeout maps d into [MinTimeout, MaxTimeout], using DefaultTimeout for zero.
func ClampTimeout(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultTimeout
	case d < MinTimeout:
		return MinTimeout
	case d > MaxTimeout:
		return MaxTimeout
	default:
		return d
	}
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(clone)
}

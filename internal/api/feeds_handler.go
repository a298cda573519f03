package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/feed"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

// ExtractRequest is the body of POST /api/v1/feeds/extract.
type ExtractRequest struct {
	FeedURL string `binding:"required" json:"feed_url"`
	// Publish defaults to true.
	Publish *bool `json:"publish"`
}

func (r *Router) extractFeed(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feed_url is required"})
		return
	}
	if !isHTTPURL(req.FeedURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feed_url must be an absolute http(s) URL"})
		return
	}

	publish := req.Publish == nil || *req.Publish

	ctx := c.Request.Context()
	run := r.deps.Feeds.Dispatch
	if !publish {
		run = r.deps.Feeds.Extract
	}

	res, err := run(ctx, req.FeedURL)
	if err != nil {
		status, msg := classifyFeedError(err)
		logger.FromContext(ctx).Warn("Feed extraction failed",
			logger.String("feed_url", req.FeedURL),
			logger.Int("status", status),
			logger.Error(err),
		)
		c.JSON(status, gin.H{"error": msg, "feed_url": req.FeedURL, "urls": []string{}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"feed_url":  res.FeedURL,
		"urls":      res.URLs,
		"count":     len(res.URLs),
		"published": res.Published,
		"failed":    res.Failed,
	})
}

func classifyFeedError(err error) (int, string) {
	var (
		fetchErr *feed.FetchError
		parseErr *feed.ParseError
	)

	switch {
	case errors.Is(err, feed.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity, "Unsupported XML format"
	case errors.As(err, &parseErr):
		return http.StatusUnprocessableEntity, "Feed is not valid XML"
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, "Failed to fetch feed"
	default:
		return http.StatusInternalServerError, "Failed to extract feed"
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

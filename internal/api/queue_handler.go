package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

func (r *Router) queueStats(c *gin.Context) {
	ctx := c.Request.Context()

	st, err := r.deps.Queue.Stats(ctx, r.deps.QueueName)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to read queue stats", logger.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Queue unavailable"})
		return
	}

	r.deps.Metrics.SetQueueLength(st.Queue, st.Length)
	c.JSON(http.StatusOK, st)
}

func (r *Router) deadLetters(c *gin.Context) {
	limit := int64(defaultDeadLetterLimit)
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 || n > maxDeadLetterLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	items, err := r.deps.Queue.DeadLetters(ctx, r.deps.QueueName, limit)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to read dead letters", logger.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Queue unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"queue": r.deps.QueueName, "count": len(items), "items": items})
}

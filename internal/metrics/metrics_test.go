package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/metrics"
)

func TestMetrics_Record(t *testing.T) {
	m := metrics.New()

	m.RecordOutcome("stored")
	m.RecordOutcome("stored")
	m.RecordOutcome("skipped")
	m.RecordFeedURLs(3, 1)
	m.RecordStoreError()
	m.ObserveScrape("abcnews", 150*time.Millisecond)
	m.SetQueueLength("news_urls", 4)

	assert.InDelta(t, 2, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("stored")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("skipped")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.FeedURLsTotal.WithLabelValues(metrics.FeedURLPublished)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FeedURLsTotal.WithLabelValues(metrics.FeedURLFailed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreErrors), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.QueueLength.WithLabelValues("news_urls")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.ScrapeDuration))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.RecordOutcome("stored")
		m.RecordFeedURLs(1, 0)
		m.RecordStoreError()
		m.ObserveScrape("abcnews", time.Second)
		m.SetQueueLength("q", 1)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()
	m.RecordOutcome("dead_lettered")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `news_ingestor_messages_total{outcome="dead_lettered"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

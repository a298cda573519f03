package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampTimeout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, httpclient.DefaultTimeout, httpclient.ClampTimeout(0))
	assert.Equal(t, httpclient.MinTimeout, httpclient.ClampTimeout(time.Second))
	assert.Equal(t, httpclient.MaxTimeout, httpclient.ClampTimeout(5*time.Minute))
	assert.Equal(t, 15*time.Second, httpclient.ClampTimeout(15*time.Second))
}

func TestNew_SetsTimeoutAndUserAgent(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	client := httpclient.New(httpclient.Config{Timeout: 12 * time.Second, UserAgent: "news-ingestor-test"})
	assert.Equal(t, 12*time.Second, client.Timeout)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "news-ingestor-test", gotUA)
}

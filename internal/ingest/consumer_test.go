package ingest_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/domain"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/ingest"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/logger"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/metrics"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/queue"
	"github.com/jonesrussell/north-cloud/news-ingestor/internal/scraper"
)

const storyURL = "https://abcnews.go.com/US/storm/story?id=1"

type mockAcker struct {
	mock.Mock
}

func (m *mockAcker) Ack(ctx context.Context, d *queue.Delivery) error {
	return m.Called(ctx, d).Error(0)
}

func (m *mockAcker) Nack(ctx context.Context, d *queue.Delivery, requeue bool) error {
	return m.Called(ctx, d, requeue).Error(0)
}

func (m *mockAcker) DeadLetter(ctx context.Context, d *queue.Delivery, reason string) error {
	return m.Called(ctx, d, reason).Error(0)
}

// memoryStore keeps one article per publisher URL.
type memoryStore struct {
	mu       sync.Mutex
	articles map[string]*domain.Article
	nextID   int64
	calls    int
	err      error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{articles: make(map[string]*domain.Article)}
}

func (s *memoryStore) Upsert(_ context.Context, draft domain.ArticleDraft) (*domain.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	draft.Normalize()
	if a, ok := s.articles[draft.PublisherURL]; ok {
		a.ArticleDraft = draft
		return a, nil
	}
	s.nextID++
	a := &domain.Article{ID: s.nextID, ArticleDraft: draft}
	s.articles[draft.PublisherURL] = a
	return a, nil
}

func (s *memoryStore) snapshot() (calls, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, len(s.articles)
}

type scrapeFunc func(ctx context.Context, pageURL string) (*domain.ArticleDraft, error)

func (f scrapeFunc) Scrape(ctx context.Context, pageURL string) (*domain.ArticleDraft, error) {
	return f(ctx, pageURL)
}

func fullDraft(pageURL string) *domain.ArticleDraft {
	return &domain.ArticleDraft{
		ImageURL:     "https://s.abcnews.com/images/lead.jpg",
		Title:        "Storm batters coast",
		Content:      "Crews are working overnight.",
		PublisherID:  scraper.ABCNewsPublisherID,
		PublisherURL: pageURL,
		ImportedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		CreatedAt:    time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC),
	}
}

func registryWith(s scraper.Scraper) *scraper.Registry {
	r := scraper.NewRegistry()
	r.Register(scraper.ABCNewsName, scraper.HostMatcher("abcnews.go.com"), s)
	return r
}

type fixture struct {
	consumer *ingest.Consumer
	acker    *mockAcker
	store    *memoryStore
	metrics  *metrics.Metrics
}

func newFixture(s scraper.Scraper, cfg ingest.Config) *fixture {
	f := &fixture{acker: &mockAcker{}, store: newMemoryStore(), metrics: metrics.New()}
	f.consumer = ingest.NewConsumer(registryWith(s), f.store, f.acker, cfg, f.metrics, logger.NewNop())
	return f
}

func delivery(payload string, attempt int) *queue.Delivery {
	return &queue.Delivery{ID: "1-0", Queue: "news_urls", Payload: payload, Attempt: attempt}
}

func TestHandle_StoresViableDraft(t *testing.T) {
	f := newFixture(scrapeFunc(func(_ context.Context, u string) (*domain.ArticleDraft, error) {
		return fullDraft(u), nil
	}), ingest.Config{})
	d := delivery(storyURL, 1)
	f.acker.On("Ack", mock.Anything, d).Return(nil).Once()

	outcome := f.consumer.Handle(context.Background(), d)

	assert.Equal(t, ingest.OutcomeStored, outcome)
	f.acker.AssertExpectations(t)
	_, rows := f.store.snapshot()
	assert.Equal(t, 1, rows)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.MessagesTotal.WithLabelValues("stored")), 0)
}

func TestHandle_UnknownPublisherIsAcked(t *testing.T) {
	f := newFixture(scrapeFunc(func(context.Context, string) (*domain.ArticleDraft, error) {
		t.Fatal("scraper must not run")
		return nil, nil
	}), ingest.Config{})
	d := delivery("https://www.bbc.co.uk/news/1", 1)
	f.acker.On("Ack", mock.Anything, d).Return(nil).Once()

	assert.Equal(t, ingest.OutcomeUnknownPublisher, f.consumer.Handle(context.Background(), d))
	f.acker.AssertExpectations(t)
	f.acker.AssertNotCalled(t, "Nack", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_SkipsDraftWithoutImage(t *testing.T) {
	f := newFixture(scrapeFunc(func(_ context.Context, u string) (*domain.ArticleDraft, error) {
		draft := fullDraft(u)
		draft.ImageURL = ""
		return draft, nil
	}), ingest.Config{})
	d := delivery(storyURL, 1)
	f.acker.On("Ack", mock.Anything, d).Return(nil).Once()

	assert.Equal(t, ingest.OutcomeSkipped, f.consumer.Handle(context.Background(), d))
	f.acker.AssertExpectations(t)
	f.acker.AssertNotCalled(t, "Nack", mock.Anything, mock.Anything, mock.Anything)

	calls, rows := f.store.snapshot()
	assert.Zero(t, calls)
	assert.Zero(t, rows)
}

func TestHandle_AnyContentPolicyStoresImagelessDraft(t *testing.T) {
	f := newFixture(scrapeFunc(func(_ context.Context, u string) (*domain.ArticleDraft, error) {
		draft := fullDraft(u)
		draft.ImageURL = ""
		return draft, nil
	}), ingest.Config{Policy: domain.PolicyAnyContent})
	d := delivery(storyURL, 1)
	f.acker.On("Ack", mock.Anything, d).Return(nil).Once()

	assert.Equal(t, ingest.OutcomeStored, f.consumer.Handle(context.Background(), d))
}

func TestHandle_EmptyDraftIsSkipped(t *testing.T) {
	for name, draft := range map[string]*domain.ArticleDraft{
		"nil draft":   nil,
		"empty draft": {},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(scrapeFunc(func(context.Context, string) (*domain.ArticleDraft, error) {
				return draft, nil
			}), ingest.Config{Policy: domain.PolicyAnyContent})
			d := delivery(storyURL, 1)
			f.acker.On("Ack", mock.Anything, d).Return(nil).Once()

			assert.Equal(t, ingest.OutcomeSkipped, f.consumer.Handle(context.Background(), d))
		})
	}
}

func TestHandle_ScrapeFailureRequeues(t *testing.T) {
	f := newFixture(scrapeFunc(func(_ context.Context, u string) (*domain.ArticleDraft, error) {
		return nil, &scraper.ExtractionError{URL: u, Cause: errors.New("unexpected EOF")}
	}), ingest.Config{MaxDeliveries: 3})
	d := delivery(storyURL, 2)
	f.acker.On("Nack", mock.Anything, d, true).Return(nil).Once()

	assert.Equal(t, ingest.OutcomeRequeued, f.consumer.Handle(context.Background(), d))
	f.acker.AssertExpectations(t)
}

func TestHandle_StoreOutageRequeuesWithoutPersisting(t *testing.T) {
	f := newFixture(scrapeFunc(func(_ context.Context, u string) (*domain.ArticleDraft, error) {
		return fullDraft(u), nil
	}), ingest.Config{})
	f.store.err = errors.New("dial tcp 127.0.0.1:5432: connection refused")
	d := delivery(storyURL, 1)
	f.acker.On("Nack", mock.Anything, d, true).Return(nil).Once()

	assert.Equal(t, ingest.OutcomeRequeued, f.consumer.Handle(context.Background(), d))
	f.acker.AssertExpectations(t)
	f.acker.AssertNotCalled(t, "Ack", mock.Anything, mock.Anything)

	_, rows := f.store.snapshot()
	assert.Zero(t, rows)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.StoreErrors), 0)
}

func TestHandle_LastDeliveryIsDeadLettered(t *testing.T) {
	f := newFixture(scrapeFunc(func(_ context.Context, u string) (*domain.ArticleDraft, error) {
		return nil, &scraper.FetchError{URL: u, StatusCode: 503}
	}), ingest.Config{MaxDeliveries: 3})
	d := delivery(storyURL, 3)
	f.acker.On("DeadLetter", mock.Anything, d, mock.MatchedBy(func(reason string) bool {
		return strings.Contains(reason, "503")
	})).Return(nil).Once()

	assert.Equal(t, ingest.OutcomeDeadLettered, f.consumer.Handle(context.Background(), d))
	f.acker.AssertExpectations(t)
	f.acker.AssertNotCalled(t, "Nack", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_ScraperPanicRequeues(t *testing.T) {
	f := newFixture(scrapeFunc(func(context.Context, string) (*domain.ArticleDraft, error) {
		panic("index out of range")
	}), ingest.Config{})
	d := delivery(storyURL, 1)
	f.acker.On("Nack", mock.Anything, d, true).Return(nil).Once()

	assert.NotPanics(t, func() {
		assert.Equal(t, ingest.OutcomeRequeued, f.consumer.Handle(context.Background(), d))
	})
	f.acker.AssertExpectations(t)
}

type panickingStore struct{}

func (panickingStore) Upsert(context.Context, domain.ArticleDraft) (*domain.Article, error) {
	panic("nil map write")
}

func TestHandle_StorePanicRequeues(t *testing.T) {
	acker := &mockAcker{}
	m := metrics.New()
	consumer := ingest.NewConsumer(
		registryWith(scrapeFunc(func(_ context.Context, u string) (*domain.ArticleDraft, error) {
			return fullDraft(u), nil
		})),
		panickingStore{}, acker, ingest.Config{}, m, logger.NewNop(),
	)
	d := delivery(storyURL, 1)
	acker.On("Nack", mock.Anything, d, true).Return(nil).Once()

	assert.NotPanics(t, func() {
		assert.Equal(t, ingest.OutcomeRequeued, consumer.Handle(context.Background(), d))
	})
	acker.AssertExpectations(t)
	assert.InDelta(t, 1, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("requeued")), 0)
}

func TestHandle_ShutdownLeavesMessagePending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(scrapeFunc(func(ctx context.Context, u string) (*domain.ArticleDraft, error) {
		cancel()
		return nil, &scraper.FetchError{URL: u, Cause: ctx.Err()}
	}), ingest.Config{})
	d := delivery(storyURL, 1)

	assert.Equal(t, ingest.OutcomeAbandoned, f.consumer.Handle(ctx, d))
	f.acker.AssertNotCalled(t, "Ack", mock.Anything, mock.Anything)
	f.acker.AssertNotCalled(t, "Nack", mock.Anything, mock.Anything, mock.Anything)
	f.acker.AssertNotCalled(t, "DeadLetter", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandle_AckFailureIsReported(t *testing.T) {
	f := newFixture(scrapeFunc(func(_ context.Context, u string) (*domain.ArticleDraft, error) {
		return fullDraft(u), nil
	}), ingest.Config{})
	d := delivery(storyURL, 1)
	f.acker.On("Ack", mock.Anything, d).Return(errors.New("redis: connection pool timeout")).Once()

	assert.Equal(t, ingest.OutcomeSettleFailed, f.consumer.Handle(context.Background(), d))
}

func TestHandle_RepeatedIngestionKeepsOneArticle(t *testing.T) {
	title := "first"
	f := newFixture(scrapeFunc(func(_ context.Context, u string) (*domain.ArticleDraft, error) {
		draft := fullDraft(u)
		draft.Title = title
		return draft, nil
	}), ingest.Config{})
	f.acker.On("Ack", mock.Anything, mock.Anything).Return(nil)

	require.Equal(t, ingest.OutcomeStored, f.consumer.Handle(context.Background(), delivery(storyURL, 1)))
	title = "second"
	require.Equal(t, ingest.OutcomeStored, f.consumer.Handle(context.Background(), delivery(storyURL, 1)))

	_, rows := f.store.snapshot()
	assert.Equal(t, 1, rows)
	assert.Equal(t, "second", f.store.articles[storyURL].Title)
}

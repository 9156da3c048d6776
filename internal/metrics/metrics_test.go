package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := resolutionsTotal
	Init()
	if resolutionsTotal != first {
		t.Fatal("Init() replaced collectors on second call")
	}
}

func TestObserveResolution(t *testing.T) {
	before := testutil.ToFloat64(counterFor(OutcomeScraped))
	ObserveResolution(OutcomeScraped)
	if got := testutil.ToFloat64(counterFor(OutcomeScraped)); got != before+1 {
		t.Errorf("expected scraped counter %f, got %f", before+1, got)
	}
}

func TestSetPoolHandles(t *testing.T) {
	SetPoolHandles(5, 2)
	if got := testutil.ToFloat64(poolHandles.WithLabelValues("in_use")); got != 2 {
		t.Errorf("expected 2 in-use handles, got %f", got)
	}
	if got := testutil.ToFloat64(poolHandles.WithLabelValues("idle")); got != 3 {
		t.Errorf("expected 3 idle handles, got %f", got)
	}
}

func TestObserveScrapeAndEviction(t *testing.T) {
	ObserveScrape(ScrapeSucceeded, 1500*time.Millisecond)
	if val := testutil.CollectAndCount(scrapeDurationSeconds); val <= 0 {
		t.Errorf("expected scrape histogram to be observed, got %d", val)
	}
	before := testutil.ToFloat64(poolEvictionsTotal.WithLabelValues("idle"))
	ObservePoolEviction("idle")
	if got := testutil.ToFloat64(poolEvictionsTotal.WithLabelValues("idle")); got != before+1 {
		t.Errorf("expected idle evictions %f, got %f", before+1, got)
	}
}

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/teapot", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	beforeTeapot := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418"))
	for _, path := range []string{"/ok", "/teapot"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "418")); val != beforeTeapot+1 {
		t.Errorf("expected teapot counter %f, got %f", beforeTeapot+1, val)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("Expected httpRequestDurationSeconds to be observed, got %d", val)
	}
}

func counterFor(outcome string) prometheus.Counter {
	Init()
	return resolutionsTotal.WithLabelValues(outcome)
}

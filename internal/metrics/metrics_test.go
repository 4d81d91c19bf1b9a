package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveProvider("groq", "explain", 0.1, nil)
	m.Fallback("augment")
	m.Mutation("add", 3, nil)
	m.ObserveQuery("recommend", 0.2)
	if m.CacheCounter() != nil {
		t.Error("nil metrics should return nil counter")
	}
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveProvider("groq", "enhance", 0.2, errors.New("boom"))
	m.Fallback("augment")
	m.Mutation("add", 7, nil)

	if got := testutil.ToFloat64(m.ProviderRequests.WithLabelValues("groq", "enhance", "error")); got != 1 {
		t.Errorf("provider errors = %v", got)
	}
	if got := testutil.ToFloat64(m.Fallbacks.WithLabelValues("augment")); got != 1 {
		t.Errorf("fallbacks = %v", got)
	}
	if got := testutil.ToFloat64(m.IndexSize); got != 7 {
		t.Errorf("index size = %v", got)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("GatherAndCount = %d, %v", n, err)
	}
}

func TestMiddleware(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware())
	r.Get("/api/v1/records/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/records/abc", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/api/v1/records/{id}", "404"))
	if got != 1 {
		t.Errorf("http requests = %v", got)
	}
}

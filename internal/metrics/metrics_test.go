package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveAction(t *testing.T) {
	before := testutil.ToFloat64(ActionsTotal.WithLabelValues("deposit", "true"))
	ObserveAction("deposit", true, 5*time.Millisecond)
	after := testutil.ToFloat64(ActionsTotal.WithLabelValues("deposit", "true"))
	require.Equal(t, 1.0, after-before)
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/markets/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/markets/{name}", "418"))
	req := httptest.NewRequest(http.MethodGet, "/markets/abc", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/markets/{name}", "418"))
	require.Equal(t, 1.0, after-before, "request should be counted under the route pattern")
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	w := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: 200}
	_, _, err := w.Hijack()
	require.Error(t, err)
}

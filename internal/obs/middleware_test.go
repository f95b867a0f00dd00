package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-lms/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("lms", []float64{1, 10}, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/payments/{provider}/ipn", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/payments/vnpay/ipn?vnp_TxnRef=abc", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	missing := httptest.NewRecorder()
	r.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, missing.Code)

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/payments/{provider}/ipn", "204")))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "unmatched", "404")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("lms", nil, registry)
	second := obs.NewHTTPMetrics("lms", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
	require.Same(t, first.ReqDur, second.ReqDur)
}

func TestParseBucketsCSV(t *testing.T) {
	require.Nil(t, obs.ParseBucketsCSV("  "))
	require.Equal(t, []float64{5, 25.5, 100}, obs.ParseBucketsCSV("5, 25.5,abc,-1,,100"))
}

func TestRequestLoggerOmitsQueryString(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	handler := obs.RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/payments/vnpay/ipn?vnp_SecureHash=deadbeef", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "/api/payments/vnpay/ipn", entry["path"])
	require.Equal(t, "203.0.113.9", entry["client_ip"])
	require.EqualValues(t, http.StatusBadRequest, entry["status"])
	require.NotContains(t, buf.String(), "deadbeef")
}

func TestDomainMetricsHelpers(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("lms", registry)

	obs.CountCheckout("vnpay", "ok")
	obs.CountIPN("momo", "rejected")
	obs.CountSettlement("order_paid", "enqueued")
	obs.ObserveProviderLatency("momo", "ok", 12)

	require.GreaterOrEqual(t, testutil.ToFloat64(obs.PaymentCheckoutTotal.WithLabelValues("vnpay", "ok")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(obs.PaymentIPNTotal.WithLabelValues("momo", "rejected")), 1.0)
	require.GreaterOrEqual(t, testutil.ToFloat64(obs.SettlementTotal.WithLabelValues("order_paid", "enqueued")), 1.0)
	require.NotZero(t, testutil.CollectAndCount(obs.PaymentProviderLatency))
}

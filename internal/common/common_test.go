package common_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-lms/internal/common"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded first hop", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.2:5000", want: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.4"}, remote: "10.0.0.2:5000", want: "198.51.100.4"},
		{name: "peer address", remote: "192.0.2.10:41234", want: "192.0.2.10"},
		{name: "peer without port", remote: "192.0.2.11", want: "192.0.2.11"},
		{name: "blank forwarded falls through", headers: map[string]string{"X-Forwarded-For": " , "}, remote: "192.0.2.12:80", want: "192.0.2.12"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tc.want, common.ClientIP(req))
		})
	}
	require.Equal(t, "", common.ClientIP(nil))
}

func TestWriteErrorUsesAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	err := common.NewAppError("GATEWAY_ERROR", "payment provider rejected the order", http.StatusBadRequest, errors.New("raw body"))
	common.WriteError(rr, err)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body map[string]common.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "GATEWAY_ERROR", body["error"].Code)
	require.NotContains(t, rr.Body.String(), "raw body")
}

func TestWriteErrorFallback(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "boom")
}

func TestIdemRejectsReplay(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	calls := 0
	handler := common.Idem{R: client}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/payments/checkout", nil)
		if key != "" {
			req.Header.Set(common.IdempotencyHeader, key)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, send("k1"))
	require.Equal(t, http.StatusConflict, send("k1"))
	require.Equal(t, http.StatusOK, send("k2"))
	require.Equal(t, http.StatusOK, send(""))
	require.Equal(t, http.StatusOK, send(""))
	require.Equal(t, 4, calls)
}

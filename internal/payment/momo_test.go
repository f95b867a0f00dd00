package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-lms/internal/payment"
	"github.com/noah-isme/backend-lms/internal/resilience"
	"github.com/noah-isme/backend-lms/internal/signing"
)

var momoCreateOrder = []string{
	"accessKey", "amount", "extraData", "ipnUrl", "orderId", "orderInfo",
	"partnerCode", "redirectUrl", "requestId", "requestType",
}

func newMoMo(t *testing.T, cfg payment.MoMoConfig) *payment.MoMo {
	t.Helper()
	m, err := payment.NewMoMo(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func TestMoMoCreateOrderSignsRequest(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		require.NoError(t, dec.Decode(&got))
		_, _ = w.Write([]byte(`{"partnerCode":"MOMO","orderId":"3f2a9c1b7d4e","resultCode":0,"message":"Successful.","payUrl":"https://test-payment.momo.vn/v2/gateway/pay?t=abc"}`))
	}))
	defer srv.Close()

	m := newMoMo(t, testMoMoConfig(srv.URL))
	payURL, err := m.CreateOrder(context.Background(), "3f2a9c1b7d4e", 10000, "Payment for course go-101")
	require.NoError(t, err)
	require.Equal(t, "https://test-payment.momo.vn/v2/gateway/pay?t=abc", payURL)

	require.Equal(t, "MOMO", got["partnerCode"])
	require.Equal(t, testMoMoAccess, got["accessKey"])
	require.Equal(t, json.Number("10000"), got["amount"])
	require.Equal(t, "captureWallet", got["requestType"])
	require.Equal(t, "", got["extraData"])
	require.Equal(t, "vi", got["lang"])
	require.NotContains(t, got, "secretKey")

	requestID, _ := got["requestId"].(string)
	_, err = strconv.ParseInt(requestID, 10, 64)
	require.NoError(t, err, "request id is a snowflake id")

	fields := signing.Fields{}
	for _, k := range momoCreateOrder {
		switch v := got[k].(type) {
		case string:
			fields[k] = v
		case json.Number:
			fields[k] = v.String()
		}
	}
	expected := signing.SignFields(fields, testMoMoSecret, signing.NewFixedOrderScheme("momo-create", momoCreateOrder...))
	require.Equal(t, expected, got["signature"])
}

func TestMoMoRequestIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		seen[body["requestId"].(string)] = true
		_, _ = w.Write([]byte(`{"resultCode":0,"payUrl":"https://pay"}`))
	}))
	defer srv.Close()

	m := newMoMo(t, testMoMoConfig(srv.URL))
	for i := 0; i < 5; i++ {
		_, err := m.CreateOrder(context.Background(), "o1", 1000, "x")
		require.NoError(t, err)
	}
	require.Len(t, seen, 5)
}

func TestMoMoCreateOrderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"resultCode":21,"message":"Invalid amount"}`))
	}))
	defer srv.Close()

	_, err := newMoMo(t, testMoMoConfig(srv.URL)).CreateOrder(context.Background(), "o1", 1, "x")
	require.ErrorIs(t, err, payment.ErrGateway)
	var gwErr *payment.GatewayError
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, "21", gwErr.ResultCode)
	require.Equal(t, "Invalid amount", gwErr.Message)
	require.Contains(t, string(gwErr.Body), "Invalid amount")
	require.NotContains(t, err.Error(), testMoMoSecret)
}

func TestMoMoCreateOrderUnreadableResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	_, err := newMoMo(t, testMoMoConfig(srv.URL)).CreateOrder(context.Background(), "o1", 1, "x")
	require.ErrorIs(t, err, payment.ErrGateway)
}

func TestMoMoCreateOrderServerErrorIsNetworkError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newMoMo(t, testMoMoConfig(srv.URL)).CreateOrder(context.Background(), "o1", 1, "x")
	require.ErrorIs(t, err, payment.ErrNetwork)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls), "create order is never retried")
}

func TestMoMoCreateOrderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testMoMoConfig(srv.URL)
	cfg.Timeout = 100 * time.Millisecond
	m := newMoMo(t, cfg)

	start := time.Now()
	_, err := m.CreateOrder(context.Background(), "o1", 1000, "x")
	elapsed := time.Since(start)
	require.ErrorIs(t, err, payment.ErrNetwork)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, elapsed, 2*time.Second)
}

func TestMoMoCreateOrderOpenBreaker(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	breaker := resilience.NewBreaker(1, 0.5, time.Minute)
	breaker.Report(context.Background(), false)
	client := &resilience.HTTPClient{Client: srv.Client(), Breaker: breaker, MaxAttempts: 1}
	m, err := payment.NewMoMo(testMoMoConfig(srv.URL), client, zerolog.Nop())
	require.NoError(t, err)

	_, err = m.CreateOrder(context.Background(), "o1", 1000, "x")
	require.ErrorIs(t, err, payment.ErrNetwork)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Zero(t, atomic.LoadInt32(&calls))
}

func TestMoMoCreateOrderConfigurationError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	cfg := testMoMoConfig(srv.URL)
	cfg.AccessKey = ""
	_, err := newMoMo(t, cfg).CreateOrder(context.Background(), "o1", 1000, "x")
	require.ErrorIs(t, err, payment.ErrConfiguration)
	require.Contains(t, err.Error(), "access key")
	require.NotContains(t, err.Error(), testMoMoSecret)
	require.Zero(t, atomic.LoadInt32(&calls))

	var nilMoMo *payment.MoMo
	_, err = nilMoMo.CreateOrder(context.Background(), "o1", 1, "x")
	require.ErrorIs(t, err, payment.ErrConfiguration)
}

func TestNewMoMoRejectsInvalidNode(t *testing.T) {
	cfg := testMoMoConfig("http://127.0.0.1:1")
	cfg.NodeID = 5000
	_, err := payment.NewMoMo(cfg, nil, zerolog.Nop())
	require.Error(t, err)
}

func TestMoMoVerifyPayload(t *testing.T) {
	m := newMoMo(t, testMoMoConfig("http://127.0.0.1:1"))

	res := m.VerifyPayload(momoIPNBody(t, "3f2a9c1b7d4e", 0, nil))
	require.True(t, res.Valid)
	require.NoError(t, res.Err)
	require.Equal(t, payment.StatusPaid, res.Status)
	require.Equal(t, "3f2a9c1b7d4e", res.OrderID)
	require.Equal(t, int64(10000), res.Amount)
	require.Equal(t, "4088878653", res.TransactionID)
	require.Equal(t, "0", res.ResultCode)

	res = m.VerifyPayload(momoIPNBody(t, "3f2a9c1b7d4e", 1006, nil))
	require.True(t, res.Valid)
	require.Equal(t, payment.StatusFailed, res.Status)
}

func TestMoMoVerifyPayloadUppercaseSignature(t *testing.T) {
	m := newMoMo(t, testMoMoConfig("http://127.0.0.1:1"))
	body := momoIPNBody(t, "o1", 0, func(b map[string]any) {
		b["signature"] = upper(b["signature"].(string))
	})
	require.True(t, m.VerifyPayload(body).Valid)
}

func TestMoMoVerifyPayloadRejectsTampering(t *testing.T) {
	m := newMoMo(t, testMoMoConfig("http://127.0.0.1:1"))
	cases := map[string]func(map[string]any){
		"amount":            func(b map[string]any) { b["amount"] = json.Number("1") },
		"message":           func(b map[string]any) { b["message"] = "forged" },
		"outcome":           func(b map[string]any) { b["resultCode"] = json.Number("1006") },
		"order id":          func(b map[string]any) { b["orderId"] = "000000000000" },
		"signature missing": func(b map[string]any) { delete(b, "signature") },
		"access key":        func(b map[string]any) { b["accessKey"] = "other" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			res := m.VerifyPayload(momoIPNBody(t, "o1", 0, mutate))
			require.False(t, res.Valid)
			require.ErrorIs(t, res.Err, payment.ErrSignatureMismatch)
		})
	}
}

func TestMoMoVerifyPayloadInvalidJSON(t *testing.T) {
	m := newMoMo(t, testMoMoConfig("http://127.0.0.1:1"))
	for _, body := range []string{"", "{", "[]", "null"} {
		res := m.VerifyPayload([]byte(body))
		require.False(t, res.Valid, body)
		require.ErrorIs(t, res.Err, payment.ErrInvalidPayload, body)
	}
}

func TestMoMoVerifyPayloadMissingSecret(t *testing.T) {
	cfg := testMoMoConfig("http://127.0.0.1:1")
	cfg.SecretKey = ""
	res := newMoMo(t, cfg).VerifyPayload(momoIPNBody(t, "o1", 0, nil))
	require.False(t, res.Valid)
	require.ErrorIs(t, res.Err, payment.ErrConfiguration)
}

func TestMoMoConfigStringRedactsSecret(t *testing.T) {
	cfg := testMoMoConfig("https://test-payment.momo.vn/v2/gateway/api/create")
	require.NotContains(t, cfg.String(), testMoMoSecret)
	require.NotContains(t, cfg.String(), "K951")
}

func upper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'z' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

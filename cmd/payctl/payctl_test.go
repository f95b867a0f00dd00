package main

import (
	"bytes"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-lms/internal/config"
	"github.com/noah-isme/backend-lms/internal/signing"
)

const (
	cliVNPaySecret = "cli-vnpay-secret"
	cliMoMoSecret  = "cli-momo-secret"
)

func testLoader(t *testing.T) func() (*config.Config, error) {
	t.Helper()
	cfg, err := config.LoadForTests(map[string]string{
		"VNPAY_TMN_CODE":    "DEMO0001",
		"VNPAY_HASH_SECRET": cliVNPaySecret,
		"VNPAY_PAY_URL":     "https://sandbox.example/pay",
		"MOMO_PARTNER_CODE": "MOMODEMO",
		"MOMO_ACCESS_KEY":   "access",
		"MOMO_SECRET_KEY":   cliMoMoSecret,
	})
	require.NoError(t, err)
	return func() (*config.Config, error) { return cfg, nil }
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(testLoader(t))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVNPayURLThenVerify(t *testing.T) {
	out, err := run(t, "", "vnpay-url", "--amount", "50000", "--order-id", "a1b2c3d4e5f6", "--course", "go-101", "--ip", "203.0.113.7")
	require.NoError(t, err)
	signed := strings.TrimSpace(out)
	require.True(t, strings.HasPrefix(signed, "https://sandbox.example/pay?"))
	require.NotContains(t, signed, cliVNPaySecret)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	require.Equal(t, "5000000", u.Query().Get("vnp_Amount"))
	require.Equal(t, "Payment for course go-101", u.Query().Get("vnp_OrderInfo"))

	// the outbound request carries no response code, so it verifies as a failed outcome
	verdict, err := run(t, "", "verify-vnpay", signed, "--json")
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(verdict), &v))
	require.Equal(t, true, v["valid"])
	require.Equal(t, "a1b2c3d4e5f6", v["orderId"])
	require.Equal(t, "FAILED", v["status"])
}

func TestVerifyVNPayRejectsTampered(t *testing.T) {
	out, err := run(t, "", "vnpay-url", "--amount", "50000", "--order-id", "a1b2c3d4e5f6")
	require.NoError(t, err)
	tampered := strings.Replace(strings.TrimSpace(out), "vnp_Amount=5000000", "vnp_Amount=100", 1)

	verdict, err := run(t, "", "verify-vnpay", tampered)
	require.ErrorIs(t, err, errRejected)
	require.Contains(t, verdict, "Valid:       false")
}

func momoBody(t *testing.T, resultCode int) []byte {
	t.Helper()
	fields := signing.Fields{
		"accessKey":    "access",
		"amount":       "50000",
		"extraData":    "",
		"message":      "Successful.",
		"orderId":      "a1b2c3d4e5f6",
		"orderInfo":    "Payment for course go-101",
		"orderType":    "momo_wallet",
		"partnerCode":  "MOMODEMO",
		"payType":      "qr",
		"requestId":    "1700000000000",
		"responseTime": "1700000000123",
		"resultCode":   itoa(resultCode),
		"transId":      "4088878653",
	}
	order := []string{"accessKey", "amount", "extraData", "message", "orderId", "orderInfo", "orderType", "partnerCode", "payType", "requestId", "responseTime", "resultCode", "transId"}
	sig := signing.SignFields(fields, cliMoMoSecret, signing.NewFixedOrderScheme("momo-ipn", order...))

	body := map[string]any{
		"partnerCode":  "MOMODEMO",
		"orderId":      "a1b2c3d4e5f6",
		"requestId":    "1700000000000",
		"amount":       50000,
		"orderInfo":    "Payment for course go-101",
		"orderType":    "momo_wallet",
		"transId":      4088878653,
		"resultCode":   resultCode,
		"message":      "Successful.",
		"payType":      "qr",
		"responseTime": 1700000000123,
		"extraData":    "",
		"signature":    sig,
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestVerifyMoMoFromStdin(t *testing.T) {
	out, err := run(t, string(momoBody(t, 0)), "verify-momo", "-")
	require.NoError(t, err)
	require.Contains(t, out, "Valid:       true")
	require.Contains(t, out, "Status:      PAID")
	require.Contains(t, out, "Amount:      50000")
	require.NotContains(t, out, cliMoMoSecret)
}

func TestVerifyMoMoFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipn.json")
	require.NoError(t, os.WriteFile(path, momoBody(t, 1006), 0o600))

	out, err := run(t, "", "verify-momo", path, "--json")
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	require.Equal(t, "FAILED", v["status"])
	require.Equal(t, "1006", v["resultCode"])
}

func TestVerifyMoMoRejectsForgedBody(t *testing.T) {
	forged := strings.Replace(string(momoBody(t, 0)), `"amount":50000`, `"amount":1`, 1)
	_, err := run(t, forged, "verify-momo", "-")
	require.ErrorIs(t, err, errRejected)
}

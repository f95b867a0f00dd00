package payment_test

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-lms/internal/payment"
	"github.com/noah-isme/backend-lms/internal/settlement"
	"github.com/noah-isme/backend-lms/internal/signing"
)

const (
	testVNPaySecret = "VNPAYSECRETKEY0123456789"
	testMoMoSecret  = "K951B6PE1waDMi640xX08PD3vg6EkVlz"
	testMoMoAccess  = "F8BBA842ECF85"
)

var momoIPNOrder = []string{
	"accessKey", "amount", "extraData", "message", "orderId", "orderInfo",
	"orderType", "partnerCode", "payType", "requestId", "responseTime",
	"resultCode", "transId",
}

func testVNPayConfig() payment.VNPayConfig {
	return payment.VNPayConfig{
		TmnCode:    "DEMO0001",
		HashSecret: testVNPaySecret,
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "http://localhost:5173/payment/return",
		IPNURL:     "http://localhost:8080/api/payments/vnpay/ipn",
	}
}

func testMoMoConfig(endpoint string) payment.MoMoConfig {
	return payment.MoMoConfig{
		PartnerCode: "MOMO",
		AccessKey:   testMoMoAccess,
		SecretKey:   testMoMoSecret,
		Endpoint:    endpoint,
		RedirectURL: "http://localhost:5173/payment/return",
		IPNURL:      "http://localhost:8080/api/payments/momo/ipn",
	}
}

// signedVNPayQuery signs the vnp_ fields of q the way VNPay does and appends
// the digest.
func signedVNPayQuery(q url.Values) url.Values {
	fields := signing.Fields{}
	for k, v := range q {
		if len(k) > 4 && k[:4] == "vnp_" {
			fields[k] = v[0]
		}
	}
	q.Set("vnp_SecureHash", signing.SignFields(fields, testVNPaySecret, signing.SchemeSortedSHA512))
	return q
}

func vnpayIPNQuery(orderID, responseCode string) url.Values {
	q := url.Values{}
	q.Set("vnp_TmnCode", "DEMO0001")
	q.Set("vnp_Amount", "1000000")
	q.Set("vnp_BankCode", "NCB")
	q.Set("vnp_OrderInfo", "Payment for course go-101")
	q.Set("vnp_PayDate", "20240102100405")
	q.Set("vnp_ResponseCode", responseCode)
	q.Set("vnp_TransactionNo", "14226112")
	q.Set("vnp_TransactionStatus", responseCode)
	q.Set("vnp_TxnRef", orderID)
	return signedVNPayQuery(q)
}

// momoIPNBody renders a MoMo IPN body with numeric fields kept as JSON numbers.
func momoIPNBody(t *testing.T, orderID string, resultCode int, mutate func(map[string]any)) []byte {
	t.Helper()
	body := map[string]any{
		"partnerCode":  "MOMO",
		"orderId":      orderID,
		"requestId":    "1790000000000000000",
		"amount":       json.Number("10000"),
		"orderInfo":    "Payment for course go-101",
		"orderType":    "momo_wallet",
		"transId":      json.Number("4088878653"),
		"resultCode":   json.Number(itoa(resultCode)),
		"message":      "Successful.",
		"payType":      "qr",
		"responseTime": json.Number("1721720663942"),
		"extraData":    "",
	}
	fields := signing.Fields{"accessKey": testMoMoAccess}
	for k, v := range body {
		switch val := v.(type) {
		case json.Number:
			fields[k] = val.String()
		case string:
			fields[k] = val
		}
	}
	body["signature"] = signing.SignFields(fields, testMoMoSecret, signing.NewFixedOrderScheme("momo-ipn", momoIPNOrder...))
	if mutate != nil {
		mutate(body)
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

type recordingMarker struct {
	mu     sync.Mutex
	paid   []settlement.Settlement
	failed []settlement.Settlement
	err    error
}

func (m *recordingMarker) MarkPaid(_ context.Context, s settlement.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.paid = append(m.paid, s)
	return nil
}

func (m *recordingMarker) MarkFailed(_ context.Context, s settlement.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.failed = append(m.failed, s)
	return nil
}

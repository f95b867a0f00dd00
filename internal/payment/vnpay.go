package payment

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/backend-lms/internal/signing"
)

const (
	vnpayName          = "vnpay"
	vnpayVersion       = "2.1.0"
	vnpayCommand       = "pay"
	vnpayDateLayout    = "20060102150405"
	vnpaySecureHash    = "vnp_SecureHash"
	vnpaySecureHashTyp = "vnp_SecureHashType"
	vnpaySuccessCode   = "00"
	vnpayDefaultIP     = "127.0.0.1"
)

// maxVNPayAmount is the largest amount whose minor units fit in an int64.
const maxVNPayAmount = math.MaxInt64 / 100

// VNPayConfig holds the merchant credentials and endpoints for the redirect provider.
type VNPayConfig struct {
	TmnCode      string
	HashSecret   string
	PayURL       string
	ReturnURL    string
	IPNURL       string
	Locale       string
	CurrencyCode string
	OrderType    string
	ExpireAfter  time.Duration
	Location     *time.Location
}

// String renders the config without the hash secret.
func (c VNPayConfig) String() string {
	return fmt.Sprintf("VNPayConfig{TmnCode:%s PayURL:%s ReturnURL:%s IPNURL:%s HashSecret:[redacted]}",
		c.TmnCode, c.PayURL, c.ReturnURL, c.IPNURL)
}

func (c VNPayConfig) missing() []string {
	var out []string
	if strings.TrimSpace(c.TmnCode) == "" {
		out = append(out, "tmn code")
	}
	if strings.TrimSpace(c.HashSecret) == "" {
		out = append(out, "hash secret")
	}
	if strings.TrimSpace(c.PayURL) == "" {
		out = append(out, "pay url")
	}
	return out
}

// VNPay builds signed redirect URLs and verifies VNPay notifications.
type VNPay struct {
	cfg    VNPayConfig
	scheme signing.Scheme
	now    func() time.Time
}

// NewVNPay applies defaults to cfg and returns the adapter. Missing credentials
// are reported when the adapter is used, not here.
func NewVNPay(cfg VNPayConfig) *VNPay {
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	if cfg.CurrencyCode == "" {
		cfg.CurrencyCode = "VND"
	}
	if cfg.OrderType == "" {
		cfg.OrderType = "other"
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 15 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = VietnamLocation()
	}
	return &VNPay{
		cfg:    cfg,
		scheme: signing.SchemeSortedSHA512.WithExclude(vnpaySecureHash, vnpaySecureHashTyp),
		now:    time.Now,
	}
}

// VietnamLocation returns Asia/Ho_Chi_Minh, or a fixed UTC+7 zone when the
// tz database is unavailable.
func VietnamLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		return time.FixedZone("ICT", 7*60*60)
	}
	return loc
}

// WithClock overrides the clock used for vnp_CreateDate. Intended for tests and tooling.
func (v *VNPay) WithClock(now func() time.Time) *VNPay {
	if now != nil {
		v.now = now
	}
	return v
}

// Name implements Verifier.
func (v *VNPay) Name() string { return vnpayName }

// Configured reports whether all credentials required for signing are present.
func (v *VNPay) Configured() bool {
	return v != nil && len(v.cfg.missing()) == 0
}

// BuildRedirectURL returns the signed payment URL the customer is sent to.
// The amount is in whole currency units and is scaled by 100 as VNPay expects.
func (v *VNPay) BuildRedirectURL(orderID string, amount int64, description, clientIP string) (string, error) {
	if v == nil {
		return "", configError(vnpayName, []string{"tmn code", "hash secret", "pay url"})
	}
	if missing := v.cfg.missing(); len(missing) > 0 {
		return "", configError(vnpayName, missing)
	}
	if amount < 0 || amount > maxVNPayAmount {
		amount = 0
	}
	ip := strings.TrimSpace(clientIP)
	if ip == "" {
		ip = vnpayDefaultIP
	}
	created := v.now().In(v.cfg.Location)

	fields := signing.Fields{
		"vnp_Version":    vnpayVersion,
		"vnp_Command":    vnpayCommand,
		"vnp_TmnCode":    v.cfg.TmnCode,
		"vnp_Amount":     strconv.FormatInt(amount*100, 10),
		"vnp_CurrCode":   v.cfg.CurrencyCode,
		"vnp_TxnRef":     orderID,
		"vnp_OrderInfo":  description,
		"vnp_OrderType":  v.cfg.OrderType,
		"vnp_Locale":     v.cfg.Locale,
		"vnp_ReturnUrl":  v.cfg.ReturnURL,
		"vnp_IpAddr":     ip,
		"vnp_CreateDate": created.Format(vnpayDateLayout),
		"vnp_ExpireDate": created.Add(v.cfg.ExpireAfter).Format(vnpayDateLayout),
	}
	if v.cfg.IPNURL != "" {
		fields["vnp_IpnUrl"] = v.cfg.IPNURL
	}

	canonical := signing.Canonicalize(fields, v.scheme)
	digest := signing.Sign(canonical, v.cfg.HashSecret, v.scheme)

	var b strings.Builder
	b.Grow(len(v.cfg.PayURL) + len(canonical) + len(digest) + 20)
	b.WriteString(v.cfg.PayURL)
	b.WriteString(querySeparator(v.cfg.PayURL))
	b.WriteString(canonical)
	b.WriteString("&" + vnpaySecureHash + "=")
	b.WriteString(digest)
	return b.String(), nil
}

// querySeparator joins the signed query onto a pay URL that may already carry
// its own parameters.
func querySeparator(base string) string {
	switch {
	case !strings.Contains(base, "?"):
		return "?"
	case strings.HasSuffix(base, "?"), strings.HasSuffix(base, "&"):
		return ""
	default:
		return "&"
	}
}

// VerifyQuery checks the signature of a VNPay IPN or return query and extracts
// the reported outcome. Only vnp_ parameters take part, using the first value
// of each.
func (v *VNPay) VerifyQuery(query url.Values) WebhookVerifyResult {
	fields := signing.Fields{}
	for key, values := range query {
		if !strings.HasPrefix(key, "vnp_") {
			continue
		}
		if len(values) == 0 {
			fields[key] = ""
			continue
		}
		fields[key] = values[0]
	}

	res := WebhookVerifyResult{
		Provider:      vnpayName,
		OrderID:       fields["vnp_TxnRef"],
		ResultCode:    fields["vnp_ResponseCode"],
		TransactionID: fields["vnp_TransactionNo"],
	}
	if v == nil || strings.TrimSpace(v.cfg.HashSecret) == "" {
		res.Err = configError(vnpayName, []string{"hash secret"})
		return res
	}
	if !signing.Verify(fields, fields[vnpaySecureHash], v.cfg.HashSecret, v.scheme) {
		res.Err = fmt.Errorf("%w: %s", ErrSignatureMismatch, vnpayName)
		return res
	}

	res.Valid = true
	if raw, err := strconv.ParseInt(strings.TrimSpace(fields["vnp_Amount"]), 10, 64); err == nil && raw > 0 {
		res.Amount = raw / 100
	}
	res.Status = StatusFailed
	txStatus, hasTxStatus := fields["vnp_TransactionStatus"]
	if res.ResultCode == vnpaySuccessCode && (!hasTxStatus || txStatus == vnpaySuccessCode) {
		res.Status = StatusPaid
	}
	return res
}

// VerifyWebhook implements Verifier. VNPay delivers its notification in the query string.
func (v *VNPay) VerifyWebhook(r *http.Request, _ []byte) (WebhookVerifyResult, error) {
	if r == nil || r.URL == nil {
		return WebhookVerifyResult{Provider: vnpayName, Err: ErrInvalidPayload}, nil
	}
	res := v.VerifyQuery(r.URL.Query())
	res.ProviderPayload = []byte(r.URL.RawQuery)
	return res, nil
}

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/backend-lms/internal/obs"
	"github.com/noah-isme/backend-lms/internal/resilience"
	"github.com/noah-isme/backend-lms/internal/signing"
)

const (
	momoName               = "momo"
	momoDefaultRequestType = "captureWallet"
	momoDefaultLang        = "vi"
	momoDefaultTimeout     = 10 * time.Second
	momoSuccessCode        = "0"
	momoMaxResponseBytes   = 1 << 20
)

var (
	momoCreateOrder = []string{
		"accessKey", "amount", "extraData", "ipnUrl", "orderId", "orderInfo",
		"partnerCode", "redirectUrl", "requestId", "requestType",
	}
	momoIPNOrder = []string{
		"accessKey", "amount", "extraData", "message", "orderId", "orderInfo",
		"orderType", "partnerCode", "payType", "requestId", "responseTime",
		"resultCode", "transId",
	}
)

// MoMoConfig holds the partner credentials and endpoints for the API provider.
type MoMoConfig struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectURL string
	IPNURL      string
	RequestType string
	Lang        string
	Timeout     time.Duration
	NodeID      int64
}

// String renders the config without the secret key.
func (c MoMoConfig) String() string {
	return fmt.Sprintf("MoMoConfig{PartnerCode:%s Endpoint:%s RedirectURL:%s IPNURL:%s SecretKey:[redacted]}",
		c.PartnerCode, c.Endpoint, c.RedirectURL, c.IPNURL)
}

func (c MoMoConfig) missing() []string {
	var out []string
	if strings.TrimSpace(c.PartnerCode) == "" {
		out = append(out, "partner code")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		out = append(out, "access key")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		out = append(out, "secret key")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		out = append(out, "endpoint")
	}
	return out
}

// MoMo creates wallet payment orders over the MoMo API and verifies MoMo IPNs.
type MoMo struct {
	cfg          MoMoConfig
	client       *resilience.HTTPClient
	node         *snowflake.Node
	logger       zerolog.Logger
	createScheme signing.Scheme
	ipnScheme    signing.Scheme
}

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	RequestType string `json:"requestType"`
	ExtraData   string `json:"extraData"`
	Lang        string `json:"lang"`
	Signature   string `json:"signature"`
}

type momoCreateResponse struct {
	PayURL     string      `json:"payUrl"`
	ResultCode json.Number `json:"resultCode"`
	Message    string      `json:"message"`
}

// NewMoMo applies defaults to cfg and returns the adapter. A nil client gets a
// single-attempt instrumented client bounded by cfg.Timeout.
func NewMoMo(cfg MoMoConfig, client *resilience.HTTPClient, logger zerolog.Logger) (*MoMo, error) {
	if cfg.RequestType == "" {
		cfg.RequestType = momoDefaultRequestType
	}
	if cfg.Lang == "" {
		cfg.Lang = momoDefaultLang
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = momoDefaultTimeout
	}
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("momo request id node: %w", err)
	}
	if client == nil {
		client = resilience.NewHTTPClient(resilience.ClientOptions{
			Target:      momoName,
			Timeout:     cfg.Timeout,
			MaxAttempts: 1,
			Logger:      &logger,
		})
	}
	return &MoMo{
		cfg:          cfg,
		client:       client,
		node:         node,
		logger:       logger.With().Str("provider", momoName).Logger(),
		createScheme: signing.NewFixedOrderScheme("momo-create", momoCreateOrder...),
		ipnScheme:    signing.NewFixedOrderScheme("momo-ipn", momoIPNOrder...).WithExclude("signature"),
	}, nil
}

// Name implements Verifier.
func (m *MoMo) Name() string { return momoName }

// Configured reports whether all credentials required for signing are present.
func (m *MoMo) Configured() bool {
	return m != nil && len(m.cfg.missing()) == 0
}

// CreateOrder registers the order with MoMo and returns the payment URL.
func (m *MoMo) CreateOrder(ctx context.Context, orderID string, amount int64, description string) (string, error) {
	if m == nil {
		return "", configError(momoName, []string{"partner code", "access key", "secret key", "endpoint"})
	}
	if missing := m.cfg.missing(); len(missing) > 0 {
		return "", configError(momoName, missing)
	}
	if amount < 0 {
		amount = 0
	}

	ctx, span := otel.Tracer("payment.MoMo").Start(ctx, "MoMo.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	requestID := m.node.Generate().String()
	fields := signing.Fields{
		"accessKey":   m.cfg.AccessKey,
		"amount":      strconv.FormatInt(amount, 10),
		"extraData":   "",
		"ipnUrl":      m.cfg.IPNURL,
		"orderId":     orderID,
		"orderInfo":   description,
		"partnerCode": m.cfg.PartnerCode,
		"redirectUrl": m.cfg.RedirectURL,
		"requestId":   requestID,
		"requestType": m.cfg.RequestType,
	}
	payload := momoCreateRequest{
		PartnerCode: m.cfg.PartnerCode,
		AccessKey:   m.cfg.AccessKey,
		RequestID:   requestID,
		Amount:      amount,
		OrderID:     orderID,
		OrderInfo:   description,
		RedirectURL: m.cfg.RedirectURL,
		IPNURL:      m.cfg.IPNURL,
		RequestType: m.cfg.RequestType,
		ExtraData:   "",
		Lang:        m.cfg.Lang,
		Signature:   signing.SignFields(fields, m.cfg.SecretKey, m.createScheme),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode momo request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", configError(momoName, []string{"valid endpoint"})
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	result := "network_error"
	defer func() {
		obs.ObserveProviderLatency(momoName, result, obs.DurationMillis(time.Since(start)))
	}()

	resp, err := m.client.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "momo unreachable")
		m.logger.Warn().Err(err).Str("order_id", orderID).Bool("breaker_open", errors.Is(err, resilience.ErrOpenCircuit)).Msg("momo_create_failed")
		return "", networkError(momoName, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, momoMaxResponseBytes))
	if err != nil {
		span.RecordError(err)
		return "", networkError(momoName, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	var out momoCreateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		result = "gateway_error"
		return "", &GatewayError{Provider: momoName, Message: "unreadable provider response", Body: raw}
	}
	if payURL := strings.TrimSpace(out.PayURL); payURL != "" {
		result = "ok"
		return payURL, nil
	}
	result = "gateway_error"
	m.logger.Warn().Str("order_id", orderID).Str("result_code", out.ResultCode.String()).Str("message", out.Message).Msg("momo_create_rejected")
	return "", &GatewayError{
		Provider:   momoName,
		ResultCode: out.ResultCode.String(),
		Message:    out.Message,
		Body:       raw,
	}
}

// VerifyPayload checks the signature of a MoMo IPN body and extracts the
// reported outcome. Numbers keep their literal text and absent fields sign as
// empty strings. MoMo omits accessKey from IPNs, so the configured key is used
// when the body does not carry one.
func (m *MoMo) VerifyPayload(body []byte) WebhookVerifyResult {
	res := WebhookVerifyResult{Provider: momoName, ProviderPayload: body}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		res.Err = fmt.Errorf("%w: %s", ErrInvalidPayload, momoName)
		return res
	}

	fields := make(signing.Fields, len(momoIPNOrder))
	for _, key := range momoIPNOrder {
		fields[key] = stringifyJSON(raw[key])
	}
	if _, ok := raw["accessKey"]; !ok && m != nil {
		fields["accessKey"] = m.cfg.AccessKey
	}
	res.OrderID = fields["orderId"]
	res.ResultCode = fields["resultCode"]
	res.TransactionID = fields["transId"]

	if m == nil || strings.TrimSpace(m.cfg.SecretKey) == "" {
		res.Err = configError(momoName, []string{"secret key"})
		return res
	}
	if !signing.Verify(fields, stringifyJSON(raw["signature"]), m.cfg.SecretKey, m.ipnScheme) {
		res.Err = fmt.Errorf("%w: %s", ErrSignatureMismatch, momoName)
		return res
	}

	res.Valid = true
	if amount, err := strconv.ParseInt(fields["amount"], 10, 64); err == nil && amount > 0 {
		res.Amount = amount
	}
	res.Status = StatusFailed
	if res.ResultCode == momoSuccessCode {
		res.Status = StatusPaid
	}
	return res
}

// VerifyWebhook implements Verifier.
func (m *MoMo) VerifyWebhook(_ *http.Request, body []byte) (WebhookVerifyResult, error) {
	return m.VerifyPayload(body), nil
}

func stringifyJSON(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

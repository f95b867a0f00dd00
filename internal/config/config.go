package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/backend-lms/internal/payment"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	LogFormat               string
	LogLevel                string
	MetricsNamespace        string
	MetricsBucketsMS        string
	EnablePrometheus        bool
	EnableTracing           bool
	OTLPEndpoint            string
	TracingExporter         string
	TracingSamplingRatio    float64
	CheckoutRateLimit       int
	CheckoutRateWindow      time.Duration
	IPNBodyLimitBytes       int64
	IdempotencyTTL          time.Duration
	PaymentOfflineEnabled   bool
	SettlementDedupTTL      time.Duration
	SettlementQueue         string
	SettlementCallbackURL   string
	SettlementTimeout       time.Duration
	SettlementMaxRetry      int
	SettlementRetryBase     time.Duration
	WorkerConcurrency       int
	CircuitMoMoMinReq       int
	CircuitMoMoFailureRate  float64
	CircuitMoMoOpenFor      time.Duration
	CircuitSettleMinReq     int
	CircuitSettleFailRate   float64
	CircuitSettleOpenFor    time.Duration
	ShutdownTimeout         time.Duration
	HTTPReadHeaderTimeout   time.Duration
	HTTPWriteTimeout        time.Duration
	SettlementRetentionTime time.Duration
	SecurityHeadersEnabled  bool
	SecurityHSTSEnabled     bool
	SecurityHSTSMaxAge      int

	VNPay VNPaySettings
	MoMo  MoMoSettings
}

// VNPaySettings carries the redirect provider credentials.
type VNPaySettings struct {
	TmnCode     string
	HashSecret  string
	PayURL      string
	ReturnURL   string
	IPNURL      string
	Locale      string
	ExpireAfter time.Duration
	Timezone    string
}

// MoMoSettings carries the API provider credentials.
type MoMoSettings struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectURL string
	IPNURL      string
	RequestType string
	Timeout     time.Duration
	NodeID      int64
}

// Load reads configuration from environment variables and optional .env files.
// Missing provider credentials are not an error here; the adapters report them
// when a checkout needs them.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		LogFormat:               valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:                valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsNamespace:        valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "lms"),
		MetricsBucketsMS:        k.String("OBS_METRICS_BUCKETS_MS"),
		EnablePrometheus:        parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
		EnableTracing:           parseBool(k.String("OBS_ENABLE_TRACING")),
		OTLPEndpoint:            strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
		TracingExporter:         valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
		TracingSamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
		CheckoutRateLimit:       parseInt(k.String("CHECKOUT_RATE_LIMIT"), 20),
		CheckoutRateWindow:      parseDuration(k.String("CHECKOUT_RATE_WINDOW"), "1m"),
		IPNBodyLimitBytes:       int64(parseInt(k.String("IPN_BODY_LIMIT_BYTES"), 64<<10)),
		IdempotencyTTL:          parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		PaymentOfflineEnabled:   parseBoolDefault(k.String("PAYMENT_OFFLINE_ENABLED"), true),
		SettlementDedupTTL:      parseDuration(k.String("SETTLEMENT_DEDUP_TTL"), "24h"),
		SettlementQueue:         valueOrDefault(k.String("SETTLEMENT_QUEUE"), "settlement"),
		SettlementCallbackURL:   strings.TrimSpace(k.String("SETTLEMENT_CALLBACK_URL")),
		SettlementTimeout:       parseDuration(k.String("SETTLEMENT_CALLBACK_TIMEOUT"), "5s"),
		SettlementMaxRetry:      parseInt(k.String("SETTLEMENT_MAX_RETRY"), 10),
		SettlementRetryBase:     parseDuration(k.String("SETTLEMENT_RETRY_BASE"), "200ms"),
		SettlementRetentionTime: parseDuration(k.String("SETTLEMENT_RETENTION"), "24h"),
		WorkerConcurrency:       parseInt(k.String("WORKER_CONCURRENCY"), 5),
		CircuitMoMoMinReq:       parseInt(k.String("CIRCUIT_MOMO_MIN_REQ"), 5),
		CircuitMoMoFailureRate:  parseFloat(k.String("CIRCUIT_MOMO_FAILURE_RATE"), 0.5),
		CircuitMoMoOpenFor:      parseDuration(k.String("CIRCUIT_MOMO_OPEN_FOR"), "30s"),
		CircuitSettleMinReq:     parseInt(k.String("CIRCUIT_SETTLEMENT_MIN_REQ"), 5),
		CircuitSettleFailRate:   parseFloat(k.String("CIRCUIT_SETTLEMENT_FAILURE_RATE"), 0.5),
		CircuitSettleOpenFor:    parseDuration(k.String("CIRCUIT_SETTLEMENT_OPEN_FOR"), "30s"),
		ShutdownTimeout:         parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		HTTPReadHeaderTimeout:   parseDuration(k.String("HTTP_READ_HEADER_TIMEOUT"), "5s"),
		HTTPWriteTimeout:        parseDuration(k.String("HTTP_WRITE_TIMEOUT"), "30s"),
		SecurityHeadersEnabled:  parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		SecurityHSTSEnabled:     parseBool(k.String("SECURITY_HSTS_ENABLED")),
		SecurityHSTSMaxAge:      parseInt(k.String("SECURITY_HSTS_MAX_AGE"), 31536000),

		VNPay: VNPaySettings{
			TmnCode:     strings.TrimSpace(k.String("VNPAY_TMN_CODE")),
			HashSecret:  strings.TrimSpace(k.String("VNPAY_HASH_SECRET")),
			PayURL:      valueOrDefault(k.String("VNPAY_PAY_URL"), "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"),
			ReturnURL:   valueOrDefault(k.String("VNPAY_RETURN_URL"), "http://localhost:3000/checkout/success"),
			IPNURL:      valueOrDefault(k.String("VNPAY_IPN_URL"), "http://localhost:8081/api/payments/vnpay/ipn"),
			Locale:      valueOrDefault(k.String("VNPAY_LOCALE"), "vn"),
			ExpireAfter: parseDuration(k.String("VNPAY_EXPIRE_AFTER"), "15m"),
			Timezone:    valueOrDefault(k.String("VNPAY_TIMEZONE"), "Asia/Ho_Chi_Minh"),
		},
		MoMo: MoMoSettings{
			PartnerCode: strings.TrimSpace(k.String("MOMO_PARTNER_CODE")),
			AccessKey:   strings.TrimSpace(k.String("MOMO_ACCESS_KEY")),
			SecretKey:   strings.TrimSpace(k.String("MOMO_SECRET_KEY")),
			Endpoint:    valueOrDefault(k.String("MOMO_ENDPOINT"), "https://test-payment.momo.vn/v2/gateway/api/create"),
			RedirectURL: valueOrDefault(k.String("MOMO_REDIRECT_URL"), "http://localhost:3000/checkout/success"),
			IPNURL:      valueOrDefault(k.String("MOMO_IPN_URL"), "http://localhost:8081/api/payments/momo/ipn"),
			RequestType: valueOrDefault(k.String("MOMO_REQUEST_TYPE"), "captureWallet"),
			Timeout:     parseDuration(k.String("MOMO_TIMEOUT"), "10s"),
			NodeID:      int64(parseInt(k.String("MOMO_NODE_ID"), 1)),
		},
	}

	if cfg.MoMo.NodeID < 0 || cfg.MoMo.NodeID > 1023 {
		return nil, fmt.Errorf("MOMO_NODE_ID must be between 0 and 1023")
	}
	if cfg.CheckoutRateLimit < 0 {
		return nil, fmt.Errorf("CHECKOUT_RATE_LIMIT must not be negative")
	}
	if cfg.SettlementCallbackURL != "" {
		if u, err := url.Parse(cfg.SettlementCallbackURL); err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("SETTLEMENT_CALLBACK_URL must be an absolute URL")
		}
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.AppEnv)) {
	case "production", "prod":
		return true
	default:
		return false
	}
}

// VNPayConfig converts the settings into the adapter's credential value.
func (c *Config) VNPayConfig() payment.VNPayConfig {
	loc, err := time.LoadLocation(c.VNPay.Timezone)
	if err != nil {
		loc = payment.VietnamLocation()
	}
	return payment.VNPayConfig{
		TmnCode:     c.VNPay.TmnCode,
		HashSecret:  c.VNPay.HashSecret,
		PayURL:      c.VNPay.PayURL,
		ReturnURL:   c.VNPay.ReturnURL,
		IPNURL:      c.VNPay.IPNURL,
		Locale:      c.VNPay.Locale,
		ExpireAfter: c.VNPay.ExpireAfter,
		Location:    loc,
	}
}

// MoMoConfig converts the settings into the adapter's credential value.
func (c *Config) MoMoConfig() payment.MoMoConfig {
	return payment.MoMoConfig{
		PartnerCode: c.MoMo.PartnerCode,
		AccessKey:   c.MoMo.AccessKey,
		SecretKey:   c.MoMo.SecretKey,
		Endpoint:    c.MoMo.Endpoint,
		RedirectURL: c.MoMo.RedirectURL,
		IPNURL:      c.MoMo.IPNURL,
		RequestType: c.MoMo.RequestType,
		Timeout:     c.MoMo.Timeout,
		NodeID:      c.MoMo.NodeID,
	}
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return fallback
	case "0", "false", "no", "off":
		return false
	default:
		return parseBool(value)
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

package zarinpal

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

	"github.com/mojig27/web-site-sub001/internal/domain/payment"
	"github.com/mojig27/web-site-sub001/internal/observability"
	"github.com/mojig27/web-site-sub001/internal/observability/logctx"
)

const (
	DefaultBaseURL     = "https://api.zarinpal.com/pg/v4/payment"
	DefaultStartPayURL = "https://www.zarinpal.com/pg/StartPay/"
	SandboxBaseURL     = "https://sandbox.zarinpal.com/pg/v4/payment"
	SandboxStartPayURL = "https://sandbox.zarinpal.com/pg/StartPay/"

	peerName = "zarinpal"

	codeSuccess         = 100
	codeAlreadyVerified = 101

	maxBodyBytes = 1 << 20
)

type Config struct {
	MerchantID      string
	BaseURL         string
	StartPayURL     string
	InitiateTimeout time.Duration
	VerifyTimeout   time.Duration
}

// Client talks to the Zarinpal v4 REST API. Every call is bounded by its own
// timeout regardless of the caller's context.
type Client struct {
	cfg      Config
	client   *http.Client
	log      observability.Logger
	requests observability.Counter
	duration observability.Histogram
}

type requestBody struct {
	MerchantID  string            `json:"merchant_id"`
	Amount      int64             `json:"amount"`
	CallbackURL string            `json:"callback_url"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type verifyBody struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

// envelope mirrors the API response. On failure "data" is an empty array and
// "errors" an object, on success the other way around.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors json.RawMessage `json:"errors"`
}

type requestData struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Authority string `json:"authority"`
}

type verifyData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	RefID   int64  `json:"ref_id"`
	CardPan string `json:"card_pan"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func New(cfg Config, httpClient *http.Client, tel observability.Observability) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.StartPayURL == "" {
		cfg.StartPayURL = DefaultStartPayURL
	}
	if cfg.InitiateTimeout <= 0 {
		cfg.InitiateTimeout = 5 * time.Second
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 8 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	metrics := observability.MetricsOf(tel)
	return &Client{
		cfg:      cfg,
		client:   httpClient,
		log:      observability.LoggerOf(tel).With(observability.F("component", "gateway_zarinpal")),
		requests: metrics.Counter(observability.MExternalRequests),
		duration: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

func (c *Client) Initiate(ctx context.Context, req payment.InitiateRequest) (payment.InitiateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.InitiateTimeout)
	defer cancel()

	body := requestBody{
		MerchantID:  c.cfg.MerchantID,
		Amount:      req.Amount,
		CallbackURL: req.CallbackURL,
		Description: req.Description,
		Metadata:    map[string]string{"order_id": req.OrderID},
	}
	if body.Description == "" {
		body.Description = "Order " + req.OrderID
	}

	status, env, err := c.post(ctx, "request", body)
	if err != nil {
		return payment.InitiateResult{}, fmt.Errorf("%w: %v", payment.ErrGatewayUnreachable, err)
	}
	if transient(status) {
		return payment.InitiateResult{}, fmt.Errorf("%w: http %d", payment.ErrGatewayUnreachable, status)
	}

	var data requestData
	if decodeObject(env.Data, &data) && data.Code == codeSuccess && data.Authority != "" {
		return payment.InitiateResult{
			GatewayReference: data.Authority,
			RedirectURL:      c.cfg.StartPayURL + data.Authority,
		}, nil
	}
	return payment.InitiateResult{}, fmt.Errorf("%w: %s", payment.ErrGatewayRejected, describe(status, env, data.Code, data.Message))
}

// Verify maps the gateway answer onto a Verification. Codes 100 and 101 both
// confirm and only a decoded Zarinpal error code rejects. Anything else,
// throttling and timeouts included, is ambiguous.
func (c *Client) Verify(ctx context.Context, reference string, amount int64) payment.Verification {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.VerifyTimeout)
	defer cancel()

	status, env, err := c.post(ctx, "verify", verifyBody{
		MerchantID: c.cfg.MerchantID,
		Amount:     amount,
		Authority:  reference,
	})
	if err != nil {
		return payment.Verification{Outcome: payment.OutcomeAmbiguous, Reason: err.Error()}
	}
	if transient(status) {
		return payment.Verification{Outcome: payment.OutcomeAmbiguous, Reason: fmt.Sprintf("http %d", status)}
	}

	var data verifyData
	if decodeObject(env.Data, &data) && (data.Code == codeSuccess || data.Code == codeAlreadyVerified) {
		return payment.Verification{
			Outcome:     payment.OutcomeConfirmed,
			Amount:      amount,
			ProviderRef: strconv.FormatInt(data.RefID, 10),
		}
	}
	outcome := payment.OutcomeAmbiguous
	if _, _, ok := errorCode(env, data.Code, data.Message); ok {
		outcome = payment.OutcomeRejected
	}
	return payment.Verification{
		Outcome: outcome,
		Reason:  describe(status, env, data.Code, data.Message),
	}
}

// transient reports statuses that say nothing about the payment itself.
func transient(status int) bool {
	return status >= http.StatusInternalServerError ||
		status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests
}

// post sends body as JSON to <BaseURL>/<endpoint>.json. A non-nil error
// means no usable answer was received.
func (c *Client) post(ctx context.Context, endpoint string, body any) (int, envelope, error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		c.requests.Add(1,
			observability.L("peer", peerName),
			observability.L("endpoint", endpoint),
			observability.L("outcome", outcome),
		)
		c.duration.Observe(time.Since(start).Seconds(),
			observability.L("peer", peerName),
			observability.L("endpoint", endpoint),
		)
	}()
	logger := logctx.FromOr(ctx, c.log).With(observability.F("endpoint", endpoint))

	payload, err := json.Marshal(body)
	if err != nil {
		outcome = "error"
		return 0, envelope{}, fmt.Errorf("marshal request: %w", err)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + endpoint + ".json"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		outcome = "error"
		return 0, envelope{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		outcome = "unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		logger.Warn("gateway_request_failed", observability.F("error", err))
		return 0, envelope{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		outcome = "unreachable"
		logger.Warn("gateway_response_read_failed", observability.F("error", err))
		return 0, envelope{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		outcome = "server_error"
		logger.Warn("gateway_server_error", observability.F("http_status", resp.StatusCode))
		return resp.StatusCode, envelope{}, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		outcome = "bad_response"
		logger.Warn("gateway_response_invalid", observability.F("http_status", resp.StatusCode), observability.F("error", err))
		return 0, envelope{}, fmt.Errorf("decode response (http %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		outcome = "client_error"
	}
	logger.Debug("gateway_response", observability.F("http_status", resp.StatusCode))
	return resp.StatusCode, env, nil
}

func decodeObject(raw json.RawMessage, v any) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Unmarshal(trimmed, v) == nil
}

// errorCode returns the Zarinpal code carried by the errors object, falling
// back to the one from data.
func errorCode(env envelope, code int, message string) (int, string, bool) {
	var apiErr apiError
	if decodeObject(env.Errors, &apiErr) && apiErr.Code != 0 {
		return apiErr.Code, apiErr.Message, true
	}
	if code != 0 {
		return code, message, true
	}
	return 0, "", false
}

func describe(status int, env envelope, code int, message string) string {
	if c, msg, ok := errorCode(env, code, message); ok {
		return fmt.Sprintf("zarinpal code %d: %s", c, msg)
	}
	return fmt.Sprintf("unexpected response (http %d)", status)
}

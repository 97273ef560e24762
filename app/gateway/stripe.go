package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const stripeAPIBase = "https://api.stripe.com"

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
	APIBase                   string
}

// StripeClient talks to the Stripe REST API with form-encoded posts.
// It is constructed once at startup and injected into the services
// that need it.
type StripeClient struct {
	cfg    StripeConfig
	client *http.Client
}

func NewStripeClient(cfg StripeConfig) *StripeClient {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}
	if strings.TrimSpace(cfg.APIBase) == "" {
		cfg.APIBase = stripeAPIBase
	}

	return &StripeClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Error is a failed gateway call. Message carries Stripe's own error
// message verbatim; callers surface it untransformed.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "stripe request failed: " + e.Message
	}
	return fmt.Sprintf("stripe request failed: status=%d code=%s message=%s", e.Status, e.Code, e.Message)
}

// Transient reports whether the failure is worth retrying: network
// errors, timeouts, rate limits, and gateway-side 5xx.
func (e *Error) Transient() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status == http.StatusRequestTimeout, e.Status == http.StatusTooManyRequests:
		return true
	case e.Status >= 500:
		return true
	default:
		return false
	}
}

type IntentResult struct {
	IntentID string
	Status   string
	ChargeID string

	VoucherEntity    string
	VoucherReference string
	VoucherExpiresAt *time.Time
}

func (c *StripeClient) CreateCustomer(ctx context.Context, name string, email, phone *string) (string, error) {
	values := url.Values{}
	if name = strings.TrimSpace(name); name != "" {
		values.Set("name", name)
	}
	if email != nil && strings.TrimSpace(*email) != "" {
		values.Set("email", strings.TrimSpace(*email))
	}
	if phone != nil && strings.TrimSpace(*phone) != "" {
		values.Set("phone", strings.TrimSpace(*phone))
	}

	body, err := c.postForm(ctx, "/v1/customers", values)
	if err != nil {
		return "", err
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	customerID := strings.TrimSpace(payload.ID)
	if customerID == "" {
		return "", errors.New("stripe customer id missing")
	}

	return customerID, nil
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, params url.Values) (*IntentResult, error) {
	body, err := c.postForm(ctx, "/v1/payment_intents", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID           string      `json:"id"`
		Status       string      `json:"status"`
		LatestCharge interface{} `json:"latest_charge"`
		NextAction   struct {
			MultibancoDisplayDetails struct {
				Entity    string `json:"entity"`
				Reference string `json:"reference"`
				ExpiresAt int64  `json:"expires_at"`
			} `json:"multibanco_display_details"`
		} `json:"next_action"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.ID) == "" {
		return nil, errors.New("stripe payment intent id missing")
	}

	result := &IntentResult{
		IntentID: strings.TrimSpace(payload.ID),
		Status:   strings.TrimSpace(payload.Status),
		ChargeID: parseStringish(payload.LatestCharge),
	}

	details := payload.NextAction.MultibancoDisplayDetails
	if strings.TrimSpace(details.Reference) != "" {
		result.VoucherEntity = strings.TrimSpace(details.Entity)
		result.VoucherReference = strings.TrimSpace(details.Reference)
		if details.ExpiresAt > 0 {
			expiry := time.Unix(details.ExpiresAt, 0).UTC()
			result.VoucherExpiresAt = &expiry
		}
	}

	return result, nil
}

func (c *StripeClient) postForm(ctx context.Context, path string, values url.Values) ([]byte, error) {
	if strings.TrimSpace(c.cfg.SecretKey) == "" {
		return nil, errors.New("stripe secret key is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBase+path, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}
	if resp.StatusCode >= 400 {
		return nil, parseStripeError(resp.StatusCode, body)
	}

	return body, nil
}

func parseStripeError(status int, body []byte) *Error {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	result := &Error{Status: status, Message: strings.TrimSpace(string(body))}
	if json.Unmarshal(body, &payload) == nil && strings.TrimSpace(payload.Error.Message) != "" {
		result.Code = strings.TrimSpace(payload.Error.Code)
		result.Message = strings.TrimSpace(payload.Error.Message)
	}
	return result
}

func parseStringish(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if raw, ok := t["id"]; ok {
			if s, ok := raw.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

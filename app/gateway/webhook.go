package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type EventKind string

const (
	EventSucceeded EventKind = "succeeded"
	EventFailed    EventKind = "failed"
	EventCancelled EventKind = "cancelled"
	EventRefund    EventKind = "refund"
	EventUnknown   EventKind = "unknown"
)

// Event is a verified, typed gateway notification. Success, failure
// and cancellation carry the payment-intent id; refunds carry the
// charge id and Stripe's cumulative refunded amount for that charge.
type Event struct {
	ID   string
	Type string
	Kind EventKind

	IntentID string
	ChargeID string

	FailureCode    string
	FailureMessage string

	RefundedCents int64

	OccurredAt time.Time
}

// VerifyWebhook checks the Stripe-Signature header over the raw,
// unparsed body and only then parses the payload. The raw bytes must
// be used for the check; re-serialization would break the digest.
func (c *StripeClient) VerifyWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if strings.TrimSpace(c.cfg.WebhookSecret) == "" {
		return nil, errors.New("stripe webhook secret is not configured")
	}
	if !verifySignature(payload, signatureHeader, c.cfg.WebhookSecret, c.cfg.SignatureToleranceSeconds) {
		return nil, ErrInvalidSignature
	}

	return parseEvent(payload)
}

func verifySignature(payload []byte, signatureHeader, webhookSecret string, toleranceSeconds int64) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" {
		return false
	}

	parts := strings.Split(signatureHeader, ",")
	var ts string
	v1 := make([]string, 0, 1)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "t=") {
			ts = strings.TrimSpace(strings.TrimPrefix(part, "t="))
		}
		if strings.HasPrefix(part, "v1=") {
			v1 = append(v1, strings.TrimSpace(strings.TrimPrefix(part, "v1=")))
		}
	}
	if ts == "" || len(v1) == 0 {
		return false
	}

	tsUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	now := time.Now().Unix()
	if now-tsUnix > toleranceSeconds || tsUnix-now > toleranceSeconds {
		return false
	}

	signedPayload := []byte(ts + "." + string(payload))
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	_, _ = mac.Write(signedPayload)
	expected := mac.Sum(nil)

	for _, sig := range v1 {
		candidate, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(candidate, expected) {
			return true
		}
	}

	return false
}

func parseEvent(payload []byte) (*Event, error) {
	var envelope struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}

	event := &Event{
		ID:   strings.TrimSpace(envelope.ID),
		Type: strings.TrimSpace(envelope.Type),
		Kind: EventUnknown,
	}
	if envelope.Created > 0 {
		event.OccurredAt = time.Unix(envelope.Created, 0).UTC()
	} else {
		event.OccurredAt = time.Now().UTC()
	}

	switch envelope.Type {
	case "payment_intent.succeeded":
		event.Kind = EventSucceeded
		assignIntentFields(event, envelope.Data.Object)
	case "payment_intent.payment_failed":
		event.Kind = EventFailed
		assignIntentFields(event, envelope.Data.Object)
	case "payment_intent.canceled":
		event.Kind = EventCancelled
		assignIntentFields(event, envelope.Data.Object)
	case "charge.refunded":
		event.Kind = EventRefund
		assignChargeFields(event, envelope.Data.Object)
	}

	return event, nil
}

func assignIntentFields(event *Event, payload json.RawMessage) {
	var object struct {
		ID               string      `json:"id"`
		LatestCharge     interface{} `json:"latest_charge"`
		LastPaymentError struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"last_payment_error"`
	}
	if json.Unmarshal(payload, &object) != nil {
		return
	}
	event.IntentID = strings.TrimSpace(object.ID)
	event.ChargeID = parseStringish(object.LatestCharge)
	event.FailureCode = strings.TrimSpace(object.LastPaymentError.Code)
	event.FailureMessage = strings.TrimSpace(object.LastPaymentError.Message)
}

func assignChargeFields(event *Event, payload json.RawMessage) {
	var object struct {
		ID             string      `json:"id"`
		PaymentIntent  interface{} `json:"payment_intent"`
		AmountRefunded int64       `json:"amount_refunded"`
	}
	if json.Unmarshal(payload, &object) != nil {
		return
	}
	event.ChargeID = strings.TrimSpace(object.ID)
	event.IntentID = parseStringish(object.PaymentIntent)
	event.RefundedCents = object.AmountRefunded
}

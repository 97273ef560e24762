package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

func signPayload(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, string(payload))))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func testClient(secret string) *StripeClient {
	return NewStripeClient(StripeConfig{
		SecretKey:     "sk_test",
		WebhookSecret: secret,
	})
}

func TestVerifyWebhookAcceptsValidSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","latest_charge":"ch_1"}}}`)
	client := testClient("whsec_test")

	event, err := client.VerifyWebhook(payload, signPayload(t, payload, "whsec_test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Kind != EventSucceeded {
		t.Fatalf("expected succeeded kind, got %s", event.Kind)
	}
	if event.IntentID != "pi_1" || event.ChargeID != "ch_1" {
		t.Fatalf("unexpected correlation ids: intent=%s charge=%s", event.IntentID, event.ChargeID)
	}
}

func TestVerifyWebhookRejectsWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	client := testClient("whsec_test")

	_, err := client.VerifyWebhook(payload, signPayload(t, payload, "whsec_other"))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyWebhookRejectsTamperedBody(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	client := testClient("whsec_test")
	header := signPayload(t, payload, "whsec_test")

	tampered := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","amount":1}`)
	_, err := client.VerifyWebhook(tampered, header)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered body, got %v", err)
	}
}

func TestVerifyWebhookRejectsMissingHeader(t *testing.T) {
	client := testClient("whsec_test")
	if _, err := client.VerifyWebhook([]byte(`{}`), ""); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for missing header, got %v", err)
	}
}

func TestVerifyWebhookRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	secret := "whsec_test"
	ts := time.Now().Add(-time.Hour).Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, string(payload))))
	header := fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))

	if _, err := testClient(secret).VerifyWebhook(payload, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for stale timestamp, got %v", err)
	}
}

func TestParseEventKinds(t *testing.T) {
	cases := []struct {
		payload string
		kind    EventKind
	}{
		{`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`, EventSucceeded},
		{`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_1","last_payment_error":{"code":"card_declined","message":"Your card was declined."}}}}`, EventFailed},
		{`{"id":"evt_3","type":"payment_intent.canceled","data":{"object":{"id":"pi_1"}}}`, EventCancelled},
		{`{"id":"evt_4","type":"charge.refunded","data":{"object":{"id":"ch_1","payment_intent":"pi_1","amount_refunded":2000}}}`, EventRefund},
		{`{"id":"evt_5","type":"customer.created","data":{"object":{"id":"cus_1"}}}`, EventUnknown},
	}

	for _, tc := range cases {
		event, err := parseEvent([]byte(tc.payload))
		if err != nil {
			t.Fatalf("unexpected parse error: %v", err)
		}
		if event.Kind != tc.kind {
			t.Fatalf("expected kind %s, got %s", tc.kind, event.Kind)
		}
	}
}

func TestParseEventRefundCarriesCumulativeAmount(t *testing.T) {
	payload := []byte(`{"id":"evt_4","type":"charge.refunded","created":1700000000,"data":{"object":{"id":"ch_1","payment_intent":"pi_1","amount_refunded":5000}}}`)
	event, err := parseEvent(payload)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if event.ChargeID != "ch_1" {
		t.Fatalf("expected charge id ch_1, got %s", event.ChargeID)
	}
	if event.RefundedCents != 5000 {
		t.Fatalf("expected cumulative refunded 5000, got %d", event.RefundedCents)
	}
	if event.OccurredAt.Unix() != 1700000000 {
		t.Fatalf("unexpected occurred-at: %v", event.OccurredAt)
	}
}

func TestParseEventFailureDetails(t *testing.T) {
	payload := []byte(`{"id":"evt_2","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_1","last_payment_error":{"code":"card_declined","message":"Your card was declined."}}}}`)
	event, err := parseEvent(payload)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if event.FailureCode != "card_declined" {
		t.Fatalf("expected failure code card_declined, got %s", event.FailureCode)
	}
	if event.FailureMessage != "Your card was declined." {
		t.Fatalf("unexpected failure message: %s", event.FailureMessage)
	}
}

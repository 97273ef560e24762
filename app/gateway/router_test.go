package gateway

import (
	"errors"
	"strings"
	"testing"

	"github.com/rendaflow/ms-go-billing/app/entity"
)

func baseIntentRequest(method entity.PaymentMethod) IntentRequest {
	return IntentRequest{
		Method:      method,
		AmountCents: 5000,
		Currency:    "EUR",
		CustomerRef: "cus_123",
		Description: "rent march",
		Country:     "PT",
		Metadata:    map[string]string{"lease_id": "lease-9"},
	}
}

func TestBuildIntentParamsScopesSingleMethod(t *testing.T) {
	cases := []struct {
		method entity.PaymentMethod
		want   string
	}{
		{entity.MethodCard, "card"},
		{entity.MethodSEPADebit, "sepa_debit"},
		{entity.MethodMultibanco, "multibanco"},
		{entity.MethodBankTransfer, "customer_balance"},
	}

	for _, tc := range cases {
		params, err := BuildIntentParams(baseIntentRequest(tc.method))
		if err != nil {
			t.Fatalf("method %s: unexpected error: %v", tc.method, err)
		}
		if got := params.Get("payment_method_types[0]"); got != tc.want {
			t.Fatalf("method %s: expected payment_method_types[0]=%s, got %s", tc.method, tc.want, got)
		}
		if params.Get("payment_method_types[1]") != "" {
			t.Fatalf("method %s: expected a single payment method type", tc.method)
		}
		if got := params.Get("amount"); got != "5000" {
			t.Fatalf("method %s: expected amount=5000, got %s", tc.method, got)
		}
		if got := params.Get("currency"); got != "eur" {
			t.Fatalf("method %s: expected currency=eur, got %s", tc.method, got)
		}
		if got := params.Get("customer"); got != "cus_123" {
			t.Fatalf("method %s: expected customer=cus_123, got %s", tc.method, got)
		}
		if got := params.Get("metadata[lease_id]"); got != "lease-9" {
			t.Fatalf("method %s: expected metadata passthrough, got %s", tc.method, got)
		}
	}
}

func TestBuildIntentParamsBankTransferScopedToCountry(t *testing.T) {
	params, err := BuildIntentParams(baseIntentRequest(entity.MethodBankTransfer))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := params.Get("payment_method_options[customer_balance][funding_type]"); got != "bank_transfer" {
		t.Fatalf("expected bank_transfer funding type, got %s", got)
	}
	if got := params.Get("payment_method_options[customer_balance][bank_transfer][eu_bank_transfer][country]"); got != "PT" {
		t.Fatalf("expected PT country scope, got %s", got)
	}
}

func TestBuildIntentParamsMBWayRequiresManualFlow(t *testing.T) {
	_, err := BuildIntentParams(baseIntentRequest(entity.MethodMBWay))
	if !errors.Is(err, ErrManualFlow) {
		t.Fatalf("expected ErrManualFlow, got %v", err)
	}
}

func TestBuildIntentParamsUnknownMethod(t *testing.T) {
	_, err := BuildIntentParams(baseIntentRequest(entity.PaymentMethod("paypal")))
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "paypal") {
		t.Fatalf("expected error to name the method, got %v", err)
	}
}

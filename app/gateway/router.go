package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rendaflow/ms-go-billing/app/entity"
)

// ErrManualFlow marks a payment method the gateway does not support
// natively. The intent creator must branch on it and record the
// transaction on the manual channel without calling Stripe.
var ErrManualFlow = errors.New("payment method requires a manual flow")

var ErrUnsupportedMethod = errors.New("unsupported payment method")

type IntentRequest struct {
	Method      entity.PaymentMethod
	AmountCents int64
	Currency    string
	CustomerRef string
	Description string
	Country     string
	Metadata    map[string]string
}

// BuildIntentParams maps a payment method to Stripe payment-intent
// parameters scoped to exactly that method. Pure; the voucher details
// for Multibanco come from the gateway response, not from here.
func BuildIntentParams(req IntentRequest) (url.Values, error) {
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	values.Set("currency", strings.ToLower(strings.TrimSpace(req.Currency)))
	values.Set("customer", strings.TrimSpace(req.CustomerRef))
	if description := strings.TrimSpace(req.Description); description != "" {
		values.Set("description", description)
	}
	for k, v := range req.Metadata {
		values.Set("metadata["+k+"]", v)
	}

	switch req.Method {
	case entity.MethodCard:
		values.Set("payment_method_types[0]", "card")
	case entity.MethodSEPADebit:
		values.Set("payment_method_types[0]", "sepa_debit")
	case entity.MethodMultibanco:
		values.Set("payment_method_types[0]", "multibanco")
		values.Set("payment_method_data[type]", "multibanco")
		values.Set("confirm", "true")
	case entity.MethodBankTransfer:
		values.Set("payment_method_types[0]", "customer_balance")
		values.Set("payment_method_data[type]", "customer_balance")
		values.Set("payment_method_options[customer_balance][funding_type]", "bank_transfer")
		values.Set("payment_method_options[customer_balance][bank_transfer][type]", "eu_bank_transfer")
		values.Set("payment_method_options[customer_balance][bank_transfer][eu_bank_transfer][country]", strings.ToUpper(strings.TrimSpace(req.Country)))
		values.Set("confirm", "true")
	case entity.MethodMBWay:
		return nil, ErrManualFlow
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, req.Method)
	}

	return values, nil
}

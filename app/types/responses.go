package types

type TransactionView struct {
	ID          string `json:"id"`
	PayerID     string `json:"payer_id"`
	InvoiceID   string `json:"invoice_id,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Provider    string `json:"provider"`
	Method      string `json:"method"`

	StripePaymentIntentID string `json:"stripe_payment_intent_id,omitempty"`
	StripeChargeID        string `json:"stripe_charge_id,omitempty"`

	VoucherEntity    string `json:"voucher_entity,omitempty"`
	VoucherReference string `json:"voucher_reference,omitempty"`
	VoucherExpiresAt string `json:"voucher_expires_at,omitempty"`

	PushRequestID string `json:"push_request_id,omitempty"`

	FailureCode    string `json:"failure_code,omitempty"`
	FailureMessage string `json:"failure_message,omitempty"`

	RefundedCents int64  `json:"refunded_cents"`
	RefundedAt    string `json:"refunded_at,omitempty"`

	ProcessedAt string `json:"processed_at,omitempty"`
	FailedAt    string `json:"failed_at,omitempty"`

	Metadata map[string]string `json:"metadata"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type CreateIntentResponse struct {
	Transaction  *TransactionView `json:"transaction"`
	ResultStatus string           `json:"result_status"`
	Message      string           `json:"message,omitempty"`
}

type TransactionEnvelopeResponse struct {
	Transaction *TransactionView `json:"transaction"`
}

type ListTransactionsResponse struct {
	Transactions []*TransactionView `json:"transactions"`
}

type WebhookAckResponse struct {
	Received bool `json:"received"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

package entity

import "time"

type TransactionStatus string

const (
	StatusPending           TransactionStatus = "pending"
	StatusSucceeded         TransactionStatus = "succeeded"
	StatusFailed            TransactionStatus = "failed"
	StatusCancelled         TransactionStatus = "cancelled"
	StatusRefunded          TransactionStatus = "refunded"
	StatusPartiallyRefunded TransactionStatus = "partially_refunded"
)

type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderManual Provider = "manual"
)

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodSEPADebit    PaymentMethod = "sepa_debit"
	MethodMultibanco   PaymentMethod = "multibanco"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodMBWay        PaymentMethod = "mbway"
)

type Transaction struct {
	ID string

	PayerID   string
	InvoiceID *string

	AmountCents int64
	Currency    string

	Status   TransactionStatus
	Provider Provider
	Method   PaymentMethod

	StripePaymentIntentID *string
	StripeChargeID        *string

	VoucherEntity    *string
	VoucherReference *string
	VoucherExpiresAt *time.Time

	PushRequestID *string

	FailureCode    *string
	FailureMessage *string

	RefundedCents int64
	RefundedAt    *time.Time

	ProcessedAt *time.Time
	FailedAt    *time.Time

	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Refundable reports whether a refund event may be applied.
func (s TransactionStatus) Refundable() bool {
	switch s {
	case StatusSucceeded, StatusPartiallyRefunded, StatusRefunded:
		return true
	default:
		return false
	}
}

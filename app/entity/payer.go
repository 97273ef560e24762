package entity

import "time"

type Payer struct {
	ID string

	DisplayName string
	Email       *string
	Phone       *string
	Country     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PayerPaymentMethod is a stored payment instrument of a payer. The
// gateway customer reference lives here so the resolver can reuse it
// across transactions.
type PayerPaymentMethod struct {
	ID uint64

	PayerID           string
	StripeCustomerRef *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

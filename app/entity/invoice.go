package entity

import "time"

const (
	InvoiceStatusOpen = "open"
	InvoiceStatusPaid = "paid"
)

// Invoice is owned by the invoicing module; marking it paid on a
// succeeded transaction is the only write this engine performs there.
type Invoice struct {
	ID string

	Status string
	PaidAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

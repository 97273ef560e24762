package entity

import "time"

const (
	WebhookLogProcessed int32 = 10
	WebhookLogRejected  int32 = 20
)

// WebhookLog records every inbound gateway notification, including
// rejected ones. Rejected rows are the audit trail for signature
// failures.
type WebhookLog struct {
	ID uint64

	TransactionID *string

	Provider    string
	EventType   string
	Signature   string
	PayloadJSON string
	Status      int32
	Error       *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

package entity

import "time"

type TransactionEvent struct {
	ID uint64

	TransactionID string

	EventType string

	OldStatus *TransactionStatus
	NewStatus TransactionStatus

	ProviderEventID *string
	PayloadJSON     *string

	CreatedAt time.Time
}

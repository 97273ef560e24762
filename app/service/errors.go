package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrPayerNotFound       = errors.New("payer not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrWebhookRejected     = errors.New("webhook rejected")
	ErrMalformedEvent      = errors.New("malformed webhook event")
)

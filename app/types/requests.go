package types

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type CreateIntentRequest struct {
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	PayerID     string            `json:"payer_id"`
	InvoiceID   string            `json:"invoice_id"`
	Method      string            `json:"method"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

func NewCreateIntentRequestFromContext(ctx echo.Context) (*CreateIntentRequest, error) {
	var body CreateIntentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.Currency = strings.ToUpper(strings.TrimSpace(body.Currency))
	body.PayerID = strings.TrimSpace(body.PayerID)
	body.InvoiceID = strings.TrimSpace(body.InvoiceID)
	body.Method = strings.ToLower(strings.TrimSpace(body.Method))
	body.Description = strings.TrimSpace(body.Description)

	return &body, nil
}

func (r *CreateIntentRequest) Validate() error {
	if r.AmountCents <= 0 {
		return errors.New("amount_cents must be > 0")
	}
	if len(r.Currency) != 3 {
		return errors.New("currency must be 3 letters")
	}
	if r.PayerID == "" {
		return errors.New("payer_id is required")
	}
	if !isValidMethod(r.Method) {
		return errors.New("method must be card, sepa_debit, multibanco, bank_transfer, or mbway")
	}
	return nil
}

type GetTransactionRequest struct {
	ID string
}

func NewGetTransactionRequestFromContext(ctx echo.Context) (*GetTransactionRequest, error) {
	id := strings.TrimSpace(ctx.Param("id"))
	if id == "" {
		return nil, errors.New("invalid transaction id")
	}
	return &GetTransactionRequest{ID: id}, nil
}

type ListTransactionsRequest struct {
	PayerID   string
	HasStatus bool
	Status    string
	Limit     int32
	Offset    int32
}

func NewListTransactionsRequestFromContext(ctx echo.Context) (*ListTransactionsRequest, error) {
	req := &ListTransactionsRequest{
		PayerID: strings.TrimSpace(ctx.QueryParam("payer_id")),
		Limit:   100,
		Offset:  0,
	}

	if statusRaw := strings.TrimSpace(ctx.QueryParam("status")); statusRaw != "" {
		req.HasStatus = true
		req.Status = strings.ToLower(statusRaw)
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListTransactionsRequest) Validate() error {
	if r.PayerID == "" {
		return errors.New("payer_id is required")
	}
	if r.Limit <= 0 || r.Limit > 500 {
		return errors.New("limit must be between 1 and 500")
	}
	if r.Offset < 0 {
		return errors.New("offset must be >= 0")
	}
	if r.HasStatus && !isValidStatus(r.Status) {
		return errors.New("invalid status")
	}
	return nil
}

func isValidMethod(method string) bool {
	switch method {
	case "card", "sepa_debit", "multibanco", "bank_transfer", "mbway":
		return true
	default:
		return false
	}
}

func isValidStatus(status string) bool {
	switch status {
	case "pending", "succeeded", "failed", "cancelled", "refunded", "partially_refunded":
		return true
	default:
		return false
	}
}

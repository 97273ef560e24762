package mapper

import (
	"time"

	"github.com/rendaflow/ms-go-billing/app/entity"
	"github.com/rendaflow/ms-go-billing/app/types"
)

func TransactionToView(item *entity.Transaction) *types.TransactionView {
	if item == nil {
		return nil
	}

	return &types.TransactionView{
		ID:                    item.ID,
		PayerID:               item.PayerID,
		InvoiceID:             derefString(item.InvoiceID),
		AmountCents:           item.AmountCents,
		Currency:              item.Currency,
		Status:                string(item.Status),
		Provider:              string(item.Provider),
		Method:                string(item.Method),
		StripePaymentIntentID: derefString(item.StripePaymentIntentID),
		StripeChargeID:        derefString(item.StripeChargeID),
		VoucherEntity:         derefString(item.VoucherEntity),
		VoucherReference:      derefString(item.VoucherReference),
		VoucherExpiresAt:      formatTime(item.VoucherExpiresAt),
		PushRequestID:         derefString(item.PushRequestID),
		FailureCode:           derefString(item.FailureCode),
		FailureMessage:        derefString(item.FailureMessage),
		RefundedCents:         item.RefundedCents,
		RefundedAt:            formatTime(item.RefundedAt),
		ProcessedAt:           formatTime(item.ProcessedAt),
		FailedAt:              formatTime(item.FailedAt),
		Metadata:              cloneMetadata(item.Metadata),
		CreatedAt:             item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:             item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func TransactionsToView(items []*entity.Transaction) []*types.TransactionView {
	result := make([]*types.TransactionView, 0, len(items))
	for _, item := range items {
		result = append(result, TransactionToView(item))
	}
	return result
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTime(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

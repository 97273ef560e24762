package service

import (
	"context"
	"time"

	"github.com/rendaflow/ms-go-billing/app/entity"
)

// RunExpireVouchersBatch cancels pending voucher transactions whose
// payment reference expired. Stripe also cancels expired Multibanco
// intents on its side; both paths land on the same guarded transition.
func (s *PaymentService) RunExpireVouchersBatch(ctx context.Context) error {
	now := time.Now().UTC()
	items, err := s.txRepo.ListExpiredVouchers(ctx, now, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, tx := range items {
		if tx == nil {
			continue
		}

		applied, err := s.txRepo.CancelPendingByID(ctx, tx.ID, now)
		if err != nil {
			firstErr = keepFirstErr(firstErr, err)
			continue
		}
		if !applied {
			continue
		}

		oldStatus := tx.Status
		_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
			TransactionID: tx.ID,
			EventType:     "voucher_expired",
			OldStatus:     &oldStatus,
			NewStatus:     entity.StatusCancelled,
			CreatedAt:     now,
		})
	}

	return firstErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rendaflow/ms-go-billing/app/entity"
	"github.com/rendaflow/ms-go-billing/app/gateway"
)

// ReconcileOutcome reports what a verified webhook event did to local
// state. Skipped outcomes were acknowledged without reconciling
// (unrecognized event kinds); Applied is false when a re-delivered
// event found its transition already in place.
type ReconcileOutcome struct {
	EventID       string
	EventType     string
	TransactionID string
	NewStatus     entity.TransactionStatus
	Applied       bool
	Skipped       bool
}

// HandleWebhook verifies the signature over the raw payload, parses
// the event, and applies the matching status transition. Every
// delivery is persisted to the webhook log, rejected ones included.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*ReconcileOutcome, error) {
	event, err := s.stripe.VerifyWebhook(payload, signatureHeader)
	if err != nil {
		s.persistWebhookLog(ctx, nil, "", signatureHeader, payload, entity.WebhookLogRejected,
			fmt.Sprintf("webhook validation failed: %v", err))
		if errors.Is(err, gateway.ErrInvalidSignature) {
			return nil, fmt.Errorf("%w: %v", ErrWebhookRejected, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	outcome, err := s.reconcile(ctx, event)

	logStatus := entity.WebhookLogProcessed
	var logErr string
	var transactionID *string
	if err != nil {
		logStatus = entity.WebhookLogRejected
		logErr = err.Error()
	}
	if outcome != nil && outcome.TransactionID != "" {
		transactionID = &outcome.TransactionID
	}
	s.persistWebhookLog(ctx, transactionID, event.Type, signatureHeader, payload, logStatus, logErr)

	return outcome, err
}

func (s *PaymentService) reconcile(ctx context.Context, event *gateway.Event) (*ReconcileOutcome, error) {
	outcome := &ReconcileOutcome{
		EventID:   event.ID,
		EventType: event.Type,
	}

	switch event.Kind {
	case gateway.EventSucceeded:
		return s.reconcileSucceeded(ctx, event, outcome)
	case gateway.EventFailed:
		return s.reconcileFailed(ctx, event, outcome)
	case gateway.EventCancelled:
		return s.reconcileCancelled(ctx, event, outcome)
	case gateway.EventRefund:
		return s.reconcileRefund(ctx, event, outcome)
	default:
		// Unknown kinds are acknowledged but not reconciled, so new
		// gateway event types never bounce.
		outcome.Skipped = true
		return outcome, nil
	}
}

func (s *PaymentService) reconcileSucceeded(ctx context.Context, event *gateway.Event, outcome *ReconcileOutcome) (*ReconcileOutcome, error) {
	tx, err := s.findByIntentID(ctx, event.IntentID)
	if err != nil {
		return outcome, err
	}
	outcome.TransactionID = tx.ID

	now := time.Now().UTC()
	applied, err := s.txRepo.MarkSucceeded(ctx, event.IntentID, event.ChargeID, now)
	if err != nil {
		return outcome, err
	}

	outcome.NewStatus = entity.StatusSucceeded
	outcome.Applied = applied
	if !applied {
		outcome, err = s.finishNoop(ctx, tx.ID, outcome)
		if err != nil {
			return outcome, err
		}
		// The status transition and the invoice write are separate
		// statements; if the paid update failed after the transition
		// stuck, a redelivery is the only chance to repair it. MarkPaid
		// is guarded, so settled invoices see a no-op.
		if tx.InvoiceID != nil && outcome.NewStatus.Refundable() {
			if _, err := s.invoiceRepo.MarkPaid(ctx, *tx.InvoiceID, now); err != nil {
				return outcome, err
			}
		}
		return outcome, nil
	}

	if tx.InvoiceID != nil {
		if _, err := s.invoiceRepo.MarkPaid(ctx, *tx.InvoiceID, now); err != nil {
			return outcome, err
		}
	}

	s.recordTransition(ctx, tx, entity.StatusSucceeded, event, now)
	return outcome, nil
}

func (s *PaymentService) reconcileFailed(ctx context.Context, event *gateway.Event, outcome *ReconcileOutcome) (*ReconcileOutcome, error) {
	tx, err := s.findByIntentID(ctx, event.IntentID)
	if err != nil {
		return outcome, err
	}
	outcome.TransactionID = tx.ID

	now := time.Now().UTC()
	applied, err := s.txRepo.MarkFailed(ctx, event.IntentID, event.FailureCode, event.FailureMessage, now)
	if err != nil {
		return outcome, err
	}

	outcome.NewStatus = entity.StatusFailed
	outcome.Applied = applied
	if !applied {
		return s.finishNoop(ctx, tx.ID, outcome)
	}

	s.recordTransition(ctx, tx, entity.StatusFailed, event, now)
	return outcome, nil
}

func (s *PaymentService) reconcileCancelled(ctx context.Context, event *gateway.Event, outcome *ReconcileOutcome) (*ReconcileOutcome, error) {
	tx, err := s.findByIntentID(ctx, event.IntentID)
	if err != nil {
		return outcome, err
	}
	outcome.TransactionID = tx.ID

	now := time.Now().UTC()
	applied, err := s.txRepo.MarkCancelled(ctx, event.IntentID, now)
	if err != nil {
		return outcome, err
	}

	outcome.NewStatus = entity.StatusCancelled
	outcome.Applied = applied
	if !applied {
		return s.finishNoop(ctx, tx.ID, outcome)
	}

	s.recordTransition(ctx, tx, entity.StatusCancelled, event, now)
	return outcome, nil
}

// reconcileRefund applies the gateway's cumulative refunded amount for
// the charge; deltas are never added locally, so reordered or missed
// refund events cannot drift the figure.
func (s *PaymentService) reconcileRefund(ctx context.Context, event *gateway.Event, outcome *ReconcileOutcome) (*ReconcileOutcome, error) {
	chargeID := strings.TrimSpace(event.ChargeID)
	if chargeID == "" {
		return outcome, fmt.Errorf("%w: refund event without charge id", ErrMalformedEvent)
	}

	tx, err := s.txRepo.FindByChargeID(ctx, chargeID)
	if err != nil {
		return outcome, err
	}
	if tx == nil {
		return outcome, ErrTransactionNotFound
	}
	outcome.TransactionID = tx.ID

	// Clamp overage so refunded_cents never exceeds the original
	// amount even when the gateway reports a rounding-induced excess.
	refundedCents := event.RefundedCents
	if refundedCents > tx.AmountCents {
		refundedCents = tx.AmountCents
	}
	if refundedCents <= 0 {
		return outcome, fmt.Errorf("%w: refund event without amount", ErrMalformedEvent)
	}

	newStatus := entity.StatusPartiallyRefunded
	if refundedCents >= tx.AmountCents {
		newStatus = entity.StatusRefunded
	}

	now := time.Now().UTC()
	applied, err := s.txRepo.ApplyRefund(ctx, chargeID, refundedCents, newStatus, now)
	if err != nil {
		return outcome, err
	}

	outcome.NewStatus = newStatus
	outcome.Applied = applied
	if !applied {
		return s.finishNoop(ctx, tx.ID, outcome)
	}

	s.recordTransition(ctx, tx, newStatus, event, now)
	return outcome, nil
}

func (s *PaymentService) findByIntentID(ctx context.Context, intentID string) (*entity.Transaction, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, fmt.Errorf("%w: event without payment intent id", ErrMalformedEvent)
	}

	tx, err := s.txRepo.FindByIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

// finishNoop reloads the row after a guarded update changed nothing,
// so a duplicate delivery reports the state that actually stuck.
func (s *PaymentService) finishNoop(ctx context.Context, id string, outcome *ReconcileOutcome) (*ReconcileOutcome, error) {
	current, err := s.txRepo.FindByID(ctx, id)
	if err != nil {
		return outcome, err
	}
	if current != nil {
		outcome.NewStatus = current.Status
	}
	return outcome, nil
}

func (s *PaymentService) recordTransition(ctx context.Context, tx *entity.Transaction, newStatus entity.TransactionStatus, event *gateway.Event, now time.Time) {
	oldStatus := tx.Status
	var providerEventID *string
	if strings.TrimSpace(event.ID) != "" {
		eventID := strings.TrimSpace(event.ID)
		providerEventID = &eventID
	}

	_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
		TransactionID:   tx.ID,
		EventType:       event.Type,
		OldStatus:       &oldStatus,
		NewStatus:       newStatus,
		ProviderEventID: providerEventID,
		CreatedAt:       now,
	})
}

func (s *PaymentService) persistWebhookLog(
	ctx context.Context,
	transactionID *string,
	eventType, signature string,
	payload []byte,
	status int32,
	reason string,
) {
	now := time.Now().UTC()
	var logErr *string
	if reason = strings.TrimSpace(reason); reason != "" {
		trimmed := truncate(reason, 1024)
		logErr = &trimmed
	}

	_ = s.webhookRepo.Create(ctx, &entity.WebhookLog{
		TransactionID: transactionID,
		Provider:      string(entity.ProviderStripe),
		EventType:     eventType,
		Signature:     strings.TrimSpace(signature),
		PayloadJSON:   string(payload),
		Status:        status,
		Error:         logErr,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rendaflow/ms-go-billing/app/entity"
)

// ErrTransactionAlreadyExists maps a duplicate-key insert, either on
// the primary key or on a gateway correlation id already claimed by
// another row. Lookups signal a missing row with a nil result instead
// of a sentinel.
var ErrTransactionAlreadyExists = errors.New("transaction already exists")

type TransactionFilter struct {
	PayerID   string
	HasStatus bool
	Status    entity.TransactionStatus
	Limit     int32
	Offset    int32
}

type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, payer_id, invoice_id, amount_cents, currency, status, provider, method,
	stripe_payment_intent_id, stripe_charge_id,
	voucher_entity, voucher_reference, voucher_expires_at, push_request_id,
	failure_code, failure_message,
	refunded_cents, refunded_at, processed_at, failed_at,
	metadata_json, created_at, updated_at
`

func (r *TransactionRepository) Create(ctx context.Context, tx *entity.Transaction) error {
	metadataJSON, err := serializeMetadata(tx.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payment_transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		tx.ID,
		tx.PayerID,
		nullableStringValue(tx.InvoiceID),
		tx.AmountCents,
		tx.Currency,
		string(tx.Status),
		string(tx.Provider),
		string(tx.Method),
		nullableStringValue(tx.StripePaymentIntentID),
		nullableStringValue(tx.StripeChargeID),
		nullableStringValue(tx.VoucherEntity),
		nullableStringValue(tx.VoucherReference),
		nullableTimeValue(tx.VoucherExpiresAt),
		nullableStringValue(tx.PushRequestID),
		nullableStringValue(tx.FailureCode),
		nullableStringValue(tx.FailureMessage),
		tx.RefundedCents,
		nullableTimeValue(tx.RefundedAt),
		nullableTimeValue(tx.ProcessedAt),
		nullableTimeValue(tx.FailedAt),
		metadataJSON,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrTransactionAlreadyExists
		}
		return err
	}

	return nil
}

func (r *TransactionRepository) FindByID(ctx context.Context, id string) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = ?`
	return r.findOne(ctx, query, id)
}

func (r *TransactionRepository) FindByIntentID(ctx context.Context, intentID string) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE stripe_payment_intent_id = ? LIMIT 1`
	return r.findOne(ctx, query, intentID)
}

func (r *TransactionRepository) FindByChargeID(ctx context.Context, chargeID string) (*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE stripe_charge_id = ? LIMIT 1`
	return r.findOne(ctx, query, chargeID)
}

func (r *TransactionRepository) List(ctx context.Context, filter TransactionFilter) ([]*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions`

	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if strings.TrimSpace(filter.PayerID) != "" {
		conditions = append(conditions, "payer_id = ?")
		args = append(args, filter.PayerID)
	}
	if filter.HasStatus {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*entity.Transaction, 0)
	for rows.Next() {
		item := &entity.Transaction{}
		if err := scanTransaction(rows, item); err != nil {
			return nil, err
		}
		transactions = append(transactions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transactions, nil
}

// MarkSucceeded applies the pending -> succeeded transition keyed on
// the payment-intent correlation id. The status guard makes concurrent
// duplicate deliveries collapse into a single applied write; zero
// affected rows means the transition was already applied (or the row
// is in another terminal state) and the caller treats it as a no-op.
func (r *TransactionRepository) MarkSucceeded(ctx context.Context, intentID, chargeID string, processedAt time.Time) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = ?, stripe_charge_id = COALESCE(stripe_charge_id, ?), processed_at = ?, updated_at = ?
		WHERE stripe_payment_intent_id = ? AND status = ?
	`
	return r.execTransition(ctx, query,
		string(entity.StatusSucceeded),
		nullableStringValue(normalizeOptional(chargeID)),
		processedAt,
		processedAt,
		intentID,
		string(entity.StatusPending),
	)
}

func (r *TransactionRepository) MarkFailed(ctx context.Context, intentID, failureCode, failureMessage string, failedAt time.Time) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = ?, failure_code = ?, failure_message = ?, failed_at = ?, updated_at = ?
		WHERE stripe_payment_intent_id = ? AND status = ?
	`
	return r.execTransition(ctx, query,
		string(entity.StatusFailed),
		nullableStringValue(normalizeOptional(failureCode)),
		nullableStringValue(normalizeOptional(failureMessage)),
		failedAt,
		failedAt,
		intentID,
		string(entity.StatusPending),
	)
}

func (r *TransactionRepository) MarkCancelled(ctx context.Context, intentID string, now time.Time) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = ?, updated_at = ?
		WHERE stripe_payment_intent_id = ? AND status = ?
	`
	return r.execTransition(ctx, query,
		string(entity.StatusCancelled),
		now,
		intentID,
		string(entity.StatusPending),
	)
}

// ApplyRefund writes the gateway's cumulative refunded amount keyed on
// the charge id. The refunded_cents guard keeps reordered refund
// events from moving the cumulative figure backwards.
func (r *TransactionRepository) ApplyRefund(ctx context.Context, chargeID string, refundedCents int64, status entity.TransactionStatus, refundedAt time.Time) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = ?, refunded_cents = ?, refunded_at = ?, updated_at = ?
		WHERE stripe_charge_id = ?
		  AND status IN (?, ?, ?)
		  AND refunded_cents < ?
	`
	return r.execTransition(ctx, query,
		string(status),
		refundedCents,
		refundedAt,
		refundedAt,
		chargeID,
		string(entity.StatusSucceeded),
		string(entity.StatusPartiallyRefunded),
		string(entity.StatusRefunded),
		refundedCents,
	)
}

// CancelPendingByID is used by the voucher-expiry job.
func (r *TransactionRepository) CancelPendingByID(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE payment_transactions
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	return r.execTransition(ctx, query,
		string(entity.StatusCancelled),
		now,
		id,
		string(entity.StatusPending),
	)
}

func (r *TransactionRepository) ListExpiredVouchers(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM payment_transactions
		WHERE status = ?
		  AND voucher_expires_at IS NOT NULL
		  AND voucher_expires_at <= ?
		ORDER BY voucher_expires_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, string(entity.StatusPending), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*entity.Transaction, 0)
	for rows.Next() {
		item := &entity.Transaction{}
		if err := scanTransaction(rows, item); err != nil {
			return nil, err
		}
		transactions = append(transactions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transactions, nil
}

func (r *TransactionRepository) execTransition(ctx context.Context, query string, args ...interface{}) (bool, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *TransactionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Transaction, error) {
	tx := &entity.Transaction{}
	if err := scanTransaction(r.db.QueryRowContext(ctx, query, args...), tx); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return tx, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(scan rowScanner, tx *entity.Transaction) error {
	var invoiceID sql.NullString
	var status, provider, method string
	var intentID, chargeID sql.NullString
	var voucherEntity, voucherReference sql.NullString
	var voucherExpiresAt sql.NullTime
	var pushRequestID sql.NullString
	var failureCode, failureMessage sql.NullString
	var refundedAt, processedAt, failedAt sql.NullTime
	var metadataJSON string

	err := scan.Scan(
		&tx.ID,
		&tx.PayerID,
		&invoiceID,
		&tx.AmountCents,
		&tx.Currency,
		&status,
		&provider,
		&method,
		&intentID,
		&chargeID,
		&voucherEntity,
		&voucherReference,
		&voucherExpiresAt,
		&pushRequestID,
		&failureCode,
		&failureMessage,
		&tx.RefundedCents,
		&refundedAt,
		&processedAt,
		&failedAt,
		&metadataJSON,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return err
	}

	tx.InvoiceID = stringPtrFromNull(invoiceID)
	tx.Status = entity.TransactionStatus(status)
	tx.Provider = entity.Provider(provider)
	tx.Method = entity.PaymentMethod(method)
	tx.StripePaymentIntentID = stringPtrFromNull(intentID)
	tx.StripeChargeID = stringPtrFromNull(chargeID)
	tx.VoucherEntity = stringPtrFromNull(voucherEntity)
	tx.VoucherReference = stringPtrFromNull(voucherReference)
	tx.VoucherExpiresAt = timePtrFromNull(voucherExpiresAt)
	tx.PushRequestID = stringPtrFromNull(pushRequestID)
	tx.FailureCode = stringPtrFromNull(failureCode)
	tx.FailureMessage = stringPtrFromNull(failureMessage)
	tx.RefundedAt = timePtrFromNull(refundedAt)
	tx.ProcessedAt = timePtrFromNull(processedAt)
	tx.FailedAt = timePtrFromNull(failedAt)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	tx.Metadata = metadata

	return nil
}

func normalizeOptional(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

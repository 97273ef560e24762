package repository

import (
	"context"
	"time"

	"github.com/rendaflow/ms-go-billing/app/entity"
)

type InvoiceRepository struct {
	db DBTX
}

func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// MarkPaid sets the invoice to paid exactly once; re-delivered success
// events hit the status guard and change nothing.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	query := `
		UPDATE invoices
		SET status = ?, paid_at = ?, updated_at = ?
		WHERE id = ? AND status <> ?
	`

	result, err := r.db.ExecContext(ctx, query,
		entity.InvoiceStatusPaid,
		paidAt,
		paidAt,
		id,
		entity.InvoiceStatusPaid,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

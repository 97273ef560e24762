package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/rendaflow/ms-go-billing/app/entity"
)

type PayerRepository struct {
	db DBTX
}

func NewPayerRepository(db DBTX) *PayerRepository {
	return &PayerRepository{db: db}
}

func (r *PayerRepository) FindByID(ctx context.Context, id string) (*entity.Payer, error) {
	query := `
		SELECT id, display_name, email, phone, country, created_at, updated_at
		FROM payers
		WHERE id = ?
	`

	payer := &entity.Payer{}
	var email, phone sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&payer.ID,
		&payer.DisplayName,
		&email,
		&phone,
		&payer.Country,
		&payer.CreatedAt,
		&payer.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	payer.Email = stringPtrFromNull(email)
	payer.Phone = stringPtrFromNull(phone)

	return payer, nil
}

// FindCustomerRef returns a previously stored gateway customer
// reference from any of the payer's payment-method records.
func (r *PayerRepository) FindCustomerRef(ctx context.Context, payerID string) (*string, error) {
	query := `
		SELECT stripe_customer_ref
		FROM payer_payment_methods
		WHERE payer_id = ? AND stripe_customer_ref IS NOT NULL
		ORDER BY id ASC
		LIMIT 1
	`

	var ref sql.NullString
	err := r.db.QueryRowContext(ctx, query, payerID).Scan(&ref)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return stringPtrFromNull(ref), nil
}

func (r *PayerRepository) SaveCustomerRef(ctx context.Context, payerID, customerRef string) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO payer_payment_methods (payer_id, stripe_customer_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query, payerID, customerRef, now, now)
	if err != nil && !isDuplicateEntryError(err) {
		return err
	}
	return nil
}

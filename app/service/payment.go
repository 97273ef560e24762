package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rendaflow/ms-go-billing/app/entity"
	"github.com/rendaflow/ms-go-billing/app/gateway"
	"github.com/rendaflow/ms-go-billing/app/repository"
	"github.com/rendaflow/ms-go-billing/app/types"
	"github.com/rendaflow/ms-go-billing/config"
)

const (
	defaultListLimit        = int32(100)
	defaultBatchSize        = int32(100)
	defaultSubmitMaxRetries = uint64(3)
)

const manualFlowMessage = "MB Way payments are not yet integrated with the payment gateway; the transaction was recorded and requires manual confirmation"

type transactionRepository interface {
	Create(ctx context.Context, tx *entity.Transaction) error
	FindByID(ctx context.Context, id string) (*entity.Transaction, error)
	FindByIntentID(ctx context.Context, intentID string) (*entity.Transaction, error)
	FindByChargeID(ctx context.Context, chargeID string) (*entity.Transaction, error)
	List(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error)
	MarkSucceeded(ctx context.Context, intentID, chargeID string, processedAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, intentID, failureCode, failureMessage string, failedAt time.Time) (bool, error)
	MarkCancelled(ctx context.Context, intentID string, now time.Time) (bool, error)
	ApplyRefund(ctx context.Context, chargeID string, refundedCents int64, status entity.TransactionStatus, refundedAt time.Time) (bool, error)
	CancelPendingByID(ctx context.Context, id string, now time.Time) (bool, error)
	ListExpiredVouchers(ctx context.Context, cutoff time.Time, limit int32) ([]*entity.Transaction, error)
}

type payerRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Payer, error)
	FindCustomerRef(ctx context.Context, payerID string) (*string, error)
	SaveCustomerRef(ctx context.Context, payerID, customerRef string) error
}

type invoiceRepository interface {
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
}

type transactionEventRepository interface {
	Create(ctx context.Context, event *entity.TransactionEvent) error
}

type webhookLogRepository interface {
	Create(ctx context.Context, log *entity.WebhookLog) error
}

type stripeGateway interface {
	CreateCustomer(ctx context.Context, name string, email, phone *string) (string, error)
	CreatePaymentIntent(ctx context.Context, params url.Values) (*gateway.IntentResult, error)
	VerifyWebhook(payload []byte, signatureHeader string) (*gateway.Event, error)
}

type PaymentService struct {
	txRepo      transactionRepository
	payerRepo   payerRepository
	invoiceRepo invoiceRepository
	eventRepo   transactionEventRepository
	webhookRepo webhookLogRepository
	stripe      stripeGateway
	paymentsCfg config.PaymentsConfig
}

func NewPaymentService(
	txRepo transactionRepository,
	payerRepo payerRepository,
	invoiceRepo invoiceRepository,
	eventRepo transactionEventRepository,
	webhookRepo webhookLogRepository,
	stripe stripeGateway,
	paymentsCfg config.PaymentsConfig,
) *PaymentService {
	return &PaymentService{
		txRepo:      txRepo,
		payerRepo:   payerRepo,
		invoiceRepo: invoiceRepo,
		eventRepo:   eventRepo,
		webhookRepo: webhookRepo,
		stripe:      stripe,
		paymentsCfg: paymentsCfg,
	}
}

const (
	IntentResultPending        = "pending"
	IntentResultRequiresAction = "requires_action"
)

type IntentResult struct {
	Transaction  *entity.Transaction
	ResultStatus string
	Message      string
}

func (s *PaymentService) CreatePaymentIntent(ctx context.Context, req *types.CreateIntentRequest) (*IntentResult, error) {
	if req == nil || req.AmountCents <= 0 || strings.TrimSpace(req.PayerID) == "" {
		return nil, ErrInvalidRequest
	}

	payer, err := s.payerRepo.FindByID(ctx, strings.TrimSpace(req.PayerID))
	if err != nil {
		return nil, err
	}
	if payer == nil {
		return nil, ErrPayerNotFound
	}

	customerRef, created, err := s.resolveCustomer(ctx, payer)
	if err != nil {
		return nil, err
	}
	if created {
		if err := s.payerRepo.SaveCustomerRef(ctx, payer.ID, customerRef); err != nil {
			return nil, err
		}
	}

	transactionID := uuid.NewString()
	metadata := cloneMetadata(req.Metadata)
	method := entity.PaymentMethod(strings.TrimSpace(req.Method))

	params, err := gateway.BuildIntentParams(gateway.IntentRequest{
		Method:      method,
		AmountCents: req.AmountCents,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		CustomerRef: customerRef,
		Description: strings.TrimSpace(req.Description),
		Country:     payer.Country,
		Metadata:    metadata,
	})
	if errors.Is(err, gateway.ErrManualFlow) {
		return s.createManualTransaction(ctx, req, method, metadata)
	}
	if err != nil {
		return nil, err
	}
	params.Set("metadata[transaction_id]", transactionID)

	intent, err := s.submitIntent(ctx, params)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	tx := &entity.Transaction{
		ID:                    transactionID,
		PayerID:               payer.ID,
		InvoiceID:             normalizeOptionalString(req.InvoiceID),
		AmountCents:           req.AmountCents,
		Currency:              strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:                entity.StatusPending,
		Provider:              entity.ProviderStripe,
		Method:                method,
		StripePaymentIntentID: normalizeOptionalString(intent.IntentID),
		Metadata:              metadata,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if intent.VoucherReference != "" {
		tx.VoucherEntity = normalizeOptionalString(intent.VoucherEntity)
		tx.VoucherReference = normalizeOptionalString(intent.VoucherReference)
		tx.VoucherExpiresAt = intent.VoucherExpiresAt
	}

	if err := s.txRepo.Create(ctx, tx); err != nil {
		return nil, err
	}

	_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
		TransactionID: tx.ID,
		EventType:     "transaction_created",
		NewStatus:     tx.Status,
		CreatedAt:     now,
	})

	return &IntentResult{Transaction: tx, ResultStatus: IntentResultPending}, nil
}

func (s *PaymentService) createManualTransaction(
	ctx context.Context,
	req *types.CreateIntentRequest,
	method entity.PaymentMethod,
	metadata map[string]string,
) (*IntentResult, error) {
	now := time.Now().UTC()
	pushRequestID := uuid.NewString()

	tx := &entity.Transaction{
		ID:            uuid.NewString(),
		PayerID:       strings.TrimSpace(req.PayerID),
		InvoiceID:     normalizeOptionalString(req.InvoiceID),
		AmountCents:   req.AmountCents,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		Status:        entity.StatusPending,
		Provider:      entity.ProviderManual,
		Method:        method,
		PushRequestID: &pushRequestID,
		Metadata:      metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.txRepo.Create(ctx, tx); err != nil {
		return nil, err
	}

	_ = s.eventRepo.Create(ctx, &entity.TransactionEvent{
		TransactionID: tx.ID,
		EventType:     "transaction_created",
		NewStatus:     tx.Status,
		CreatedAt:     now,
	})

	return &IntentResult{
		Transaction:  tx,
		ResultStatus: IntentResultRequiresAction,
		Message:      manualFlowMessage,
	}, nil
}

// submitIntent retries transient gateway failures with capped
// exponential backoff and jitter. Permanent rejections come back on
// the first attempt with Stripe's message untouched.
func (s *PaymentService) submitIntent(ctx context.Context, params url.Values) (*gateway.IntentResult, error) {
	maxRetries := s.paymentsCfg.SubmitMaxRetries
	if maxRetries == 0 {
		maxRetries = defaultSubmitMaxRetries
	}

	operation := func() (*gateway.IntentResult, error) {
		intent, err := s.stripe.CreatePaymentIntent(ctx, params)
		if err != nil {
			var gatewayErr *gateway.Error
			if errors.As(err, &gatewayErr) && gatewayErr.Transient() {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return intent, nil
	}

	return backoff.RetryWithData(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx),
	)
}

// resolveCustomer returns the payer's gateway customer reference,
// creating one on first use. It never persists the new link itself;
// the caller owns that write.
func (s *PaymentService) resolveCustomer(ctx context.Context, payer *entity.Payer) (string, bool, error) {
	ref, err := s.payerRepo.FindCustomerRef(ctx, payer.ID)
	if err != nil {
		return "", false, err
	}
	if ref != nil && strings.TrimSpace(*ref) != "" {
		return strings.TrimSpace(*ref), false, nil
	}

	customerRef, err := s.stripe.CreateCustomer(ctx, payer.DisplayName, payer.Email, payer.Phone)
	if err != nil {
		return "", false, err
	}

	return customerRef, true, nil
}

func (s *PaymentService) GetTransaction(ctx context.Context, id string) (*entity.Transaction, error) {
	tx, err := s.txRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

func (s *PaymentService) ListTransactions(ctx context.Context, req *types.ListTransactionsRequest) ([]*entity.Transaction, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	filter := repository.TransactionFilter{
		PayerID:   strings.TrimSpace(req.PayerID),
		HasStatus: req.HasStatus,
		Status:    entity.TransactionStatus(req.Status),
		Limit:     limit,
		Offset:    req.Offset,
	}

	return s.txRepo.List(ctx, filter)
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func normalizeOptionalString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
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

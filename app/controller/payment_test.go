package controller

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rendaflow/ms-go-billing/app/entity"
	"github.com/rendaflow/ms-go-billing/app/gateway"
	"github.com/rendaflow/ms-go-billing/app/repository"
	"github.com/rendaflow/ms-go-billing/app/service"
	"github.com/rendaflow/ms-go-billing/config"
)

const testWebhookSecret = "whsec_test"

type stubTxRepo struct {
	transactions map[string]*entity.Transaction
}

func newStubTxRepo() *stubTxRepo {
	return &stubTxRepo{transactions: map[string]*entity.Transaction{}}
}

func (r *stubTxRepo) Create(_ context.Context, tx *entity.Transaction) error {
	copyItem := *tx
	r.transactions[tx.ID] = &copyItem
	return nil
}

func (r *stubTxRepo) FindByID(_ context.Context, id string) (*entity.Transaction, error) {
	item, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *stubTxRepo) FindByIntentID(_ context.Context, intentID string) (*entity.Transaction, error) {
	for _, item := range r.transactions {
		if item.StripePaymentIntentID != nil && *item.StripePaymentIntentID == intentID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *stubTxRepo) FindByChargeID(context.Context, string) (*entity.Transaction, error) {
	return nil, nil
}

func (r *stubTxRepo) List(context.Context, repository.TransactionFilter) ([]*entity.Transaction, error) {
	items := make([]*entity.Transaction, 0, len(r.transactions))
	for _, item := range r.transactions {
		copyItem := *item
		items = append(items, &copyItem)
	}
	return items, nil
}

func (r *stubTxRepo) MarkSucceeded(_ context.Context, intentID, chargeID string, processedAt time.Time) (bool, error) {
	for _, item := range r.transactions {
		if item.StripePaymentIntentID != nil && *item.StripePaymentIntentID == intentID && item.Status == entity.StatusPending {
			item.Status = entity.StatusSucceeded
			if chargeID != "" {
				charge := chargeID
				item.StripeChargeID = &charge
			}
			at := processedAt
			item.ProcessedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (r *stubTxRepo) MarkFailed(context.Context, string, string, string, time.Time) (bool, error) {
	return false, nil
}

func (r *stubTxRepo) MarkCancelled(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func (r *stubTxRepo) ApplyRefund(context.Context, string, int64, entity.TransactionStatus, time.Time) (bool, error) {
	return false, nil
}

func (r *stubTxRepo) CancelPendingByID(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func (r *stubTxRepo) ListExpiredVouchers(context.Context, time.Time, int32) ([]*entity.Transaction, error) {
	return nil, nil
}

type stubPayerRepo struct {
	payers map[string]*entity.Payer
	refs   map[string]string
}

func newStubPayerRepo() *stubPayerRepo {
	return &stubPayerRepo{payers: map[string]*entity.Payer{}, refs: map[string]string{}}
}

func (r *stubPayerRepo) FindByID(_ context.Context, id string) (*entity.Payer, error) {
	item, ok := r.payers[id]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *stubPayerRepo) FindCustomerRef(_ context.Context, payerID string) (*string, error) {
	ref, ok := r.refs[payerID]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

func (r *stubPayerRepo) SaveCustomerRef(_ context.Context, payerID, customerRef string) error {
	r.refs[payerID] = customerRef
	return nil
}

type stubInvoiceRepo struct{}

func (stubInvoiceRepo) MarkPaid(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

type stubEventRepo struct{}

func (stubEventRepo) Create(context.Context, *entity.TransactionEvent) error { return nil }

type stubWebhookRepo struct {
	logs []*entity.WebhookLog
}

func (r *stubWebhookRepo) Create(_ context.Context, log *entity.WebhookLog) error {
	copyItem := *log
	r.logs = append(r.logs, &copyItem)
	return nil
}

type controllerEnv struct {
	controller  *PaymentController
	txRepo      *stubTxRepo
	payerRepo   *stubPayerRepo
	webhookRepo *stubWebhookRepo
}

func newControllerEnv(stripeEnabled bool) *controllerEnv {
	env := &controllerEnv{
		txRepo:      newStubTxRepo(),
		payerRepo:   newStubPayerRepo(),
		webhookRepo: &stubWebhookRepo{},
	}

	client := gateway.NewStripeClient(gateway.StripeConfig{
		SecretKey:     "sk_test",
		WebhookSecret: testWebhookSecret,
	})
	paymentService := service.NewPaymentService(
		env.txRepo,
		env.payerRepo,
		stubInvoiceRepo{},
		stubEventRepo{},
		env.webhookRepo,
		client,
		config.PaymentsConfig{JobBatchSize: 100, SubmitMaxRetries: 1},
	)
	env.controller = NewPaymentController(paymentService, stripeEnabled)
	return env
}

func signStripePayload(payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.%s", ts, string(payload))))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func performWebhook(env *controllerEnv, payload []byte, signature string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(payload)))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	_ = env.controller.HandleStripeWebhook(e.NewContext(req, rec))
	return rec
}

func TestHandleStripeWebhookInvalidSignature(t *testing.T) {
	env := newControllerEnv(true)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	rec := performWebhook(env, payload, "t=1,v1=deadbeef")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(env.webhookRepo.logs) != 1 || env.webhookRepo.logs[0].Status != entity.WebhookLogRejected {
		t.Fatal("expected the rejection to be logged")
	}
}

func TestHandleStripeWebhookMalformedPayload(t *testing.T) {
	env := newControllerEnv(true)
	payload := []byte(`{"id":`)

	rec := performWebhook(env, payload, signStripePayload(payload))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed payload, got %d", rec.Code)
	}
}

func TestHandleStripeWebhookEmptyBody(t *testing.T) {
	env := newControllerEnv(true)

	rec := performWebhook(env, nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty body, got %d", rec.Code)
	}
}

func TestHandleStripeWebhookUnknownTransactionAcknowledged(t *testing.T) {
	env := newControllerEnv(true)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_missing"}}}`)

	rec := performWebhook(env, payload, signStripePayload(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 ack for an unknown transaction, got %d", rec.Code)
	}

	var ack map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack["received"] {
		t.Fatal("expected received=true in the ack")
	}
}

func TestHandleStripeWebhookUnknownKindAcknowledged(t *testing.T) {
	env := newControllerEnv(true)
	payload := []byte(`{"id":"evt_1","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)

	rec := performWebhook(env, payload, signStripePayload(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 ack for an unknown event kind, got %d", rec.Code)
	}
}

func TestHandleStripeWebhookAppliesSuccess(t *testing.T) {
	env := newControllerEnv(true)
	intent := "pi_1"
	env.txRepo.transactions["tx-1"] = &entity.Transaction{
		ID:                    "tx-1",
		PayerID:               "T1",
		AmountCents:           5000,
		Currency:              "EUR",
		Status:                entity.StatusPending,
		Provider:              entity.ProviderStripe,
		Method:                entity.MethodCard,
		StripePaymentIntentID: &intent,
	}

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","latest_charge":"ch_1"}}}`)
	rec := performWebhook(env, payload, signStripePayload(payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.txRepo.transactions["tx-1"].Status != entity.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", env.txRepo.transactions["tx-1"].Status)
	}
}

func TestHandleStripeWebhookDisabledIntegration(t *testing.T) {
	env := newControllerEnv(false)

	rec := performWebhook(env, []byte(`{}`), "t=1,v1=sig")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when the integration is disabled, got %d", rec.Code)
	}
}

func performJSON(env *controllerEnv, method, target, body string, handler func(echo.Context) error) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	_ = handler(e.NewContext(req, rec))
	return rec
}

func TestCreateIntentDisabledIntegration(t *testing.T) {
	env := newControllerEnv(false)

	rec := performJSON(env, http.MethodPost, "/payments/intents", `{}`, env.controller.CreateIntent)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when the integration is disabled, got %d", rec.Code)
	}
}

func TestCreateIntentValidation(t *testing.T) {
	env := newControllerEnv(true)

	body := `{"amount_cents":5000,"currency":"EUR","payer_id":"T1","method":"paypal"}`
	rec := performJSON(env, http.MethodPost, "/payments/intents", body, env.controller.CreateIntent)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unsupported method, got %d", rec.Code)
	}
}

func TestCreateIntentPayerNotFound(t *testing.T) {
	env := newControllerEnv(true)

	body := `{"amount_cents":5000,"currency":"EUR","payer_id":"T404","method":"mbway"}`
	rec := performJSON(env, http.MethodPost, "/payments/intents", body, env.controller.CreateIntent)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown payer, got %d", rec.Code)
	}
}

func TestCreateIntentManualFlow(t *testing.T) {
	env := newControllerEnv(true)
	email := "maria@example.com"
	env.payerRepo.payers["T1"] = &entity.Payer{ID: "T1", DisplayName: "Maria Santos", Email: &email, Country: "PT"}
	env.payerRepo.refs["T1"] = "cus_t1"

	body := `{"amount_cents":5000,"currency":"EUR","payer_id":"T1","method":"mbway"}`
	rec := performJSON(env, http.MethodPost, "/payments/intents", body, env.controller.CreateIntent)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var response struct {
		Transaction struct {
			ID       string `json:"id"`
			Status   string `json:"status"`
			Provider string `json:"provider"`
		} `json:"transaction"`
		ResultStatus string `json:"result_status"`
		Message      string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.ResultStatus != "requires_action" {
		t.Fatalf("expected requires_action, got %s", response.ResultStatus)
	}
	if response.Transaction.Provider != "manual" {
		t.Fatalf("expected manual provider, got %s", response.Transaction.Provider)
	}
	if response.Message == "" {
		t.Fatal("expected an explanatory message")
	}
	if _, ok := env.txRepo.transactions[response.Transaction.ID]; !ok {
		t.Fatal("expected the transaction to be persisted")
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	env := newControllerEnv(true)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/payments/transactions/missing", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("missing")

	_ = env.controller.GetTransaction(ctx)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

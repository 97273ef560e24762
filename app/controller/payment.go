package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rendaflow/ms-go-billing/app/factory"
	"github.com/rendaflow/ms-go-billing/app/gateway"
	"github.com/rendaflow/ms-go-billing/app/mapper"
	"github.com/rendaflow/ms-go-billing/app/service"
	"github.com/rendaflow/ms-go-billing/app/types"
	"github.com/sirupsen/logrus"
)

type PaymentController struct {
	paymentService *service.PaymentService
	stripeEnabled  bool
	logger         logrus.FieldLogger
}

func NewPaymentController(paymentService *service.PaymentService, stripeEnabled bool) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		stripeEnabled:  stripeEnabled,
		logger:         factory.NewModuleLogger("billing-controller"),
	}
}

func (c *PaymentController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *PaymentController) CreateIntent(ctx echo.Context) error {
	if !c.stripeEnabled {
		return c.writeError(ctx, http.StatusNotFound, "payments integration is disabled")
	}

	req, err := types.NewCreateIntentRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	result, err := c.paymentService.CreatePaymentIntent(ctx.Request().Context(), req)
	if err != nil {
		var gatewayErr *gateway.Error
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrPayerNotFound):
			return c.writeError(ctx, http.StatusNotFound, "payer not found")
		case errors.Is(err, gateway.ErrUnsupportedMethod):
			return c.writeError(ctx, http.StatusBadRequest, err.Error())
		case errors.As(err, &gatewayErr):
			if gatewayErr.Transient() {
				return c.writeError(ctx, http.StatusServiceUnavailable, "payment gateway is temporarily unavailable")
			}
			// Stripe's rejection message goes through verbatim.
			return c.writeError(ctx, http.StatusPaymentRequired, gatewayErr.Message)
		default:
			factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Create payment intent failed")
			return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
		}
	}

	return ctx.JSON(http.StatusCreated, &types.CreateIntentResponse{
		Transaction:  mapper.TransactionToView(result.Transaction),
		ResultStatus: result.ResultStatus,
		Message:      result.Message,
	})
}

func (c *PaymentController) GetTransaction(ctx echo.Context) error {
	req, err := types.NewGetTransactionRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}

	item, err := c.paymentService.GetTransaction(ctx.Request().Context(), req.ID)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "transaction not found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get transaction failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.TransactionEnvelopeResponse{Transaction: mapper.TransactionToView(item)})
}

func (c *PaymentController) ListTransactions(ctx echo.Context) error {
	req, err := types.NewListTransactionsRequestFromContext(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return c.writeError(ctx, http.StatusBadRequest, err.Error())
	}

	items, err := c.paymentService.ListTransactions(ctx.Request().Context(), req)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List transactions failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	return ctx.JSON(http.StatusOK, &types.ListTransactionsResponse{Transactions: mapper.TransactionsToView(items)})
}

// HandleStripeWebhook acknowledges every verified event with 200, no
// matter what reconciliation did; a 5xx here would make the gateway
// retry a permanently unprocessable event forever. 400/401 are
// reserved for malformed payloads and signature failures, which the
// gateway retries on its own schedule.
func (c *PaymentController) HandleStripeWebhook(ctx echo.Context) error {
	if !c.stripeEnabled {
		return c.writeError(ctx, http.StatusNotFound, "payments integration is disabled")
	}

	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil || len(rawBody) == 0 {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	signature := ctx.Request().Header.Get("Stripe-Signature")

	logger := factory.LoggerWithContext(c.logger, ctx)
	outcome, err := c.paymentService.HandleWebhook(ctx.Request().Context(), rawBody, signature)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWebhookRejected):
			logger.WithError(err).Warn("Webhook signature rejected")
			return c.writeError(ctx, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, service.ErrMalformedEvent):
			logger.WithError(err).Warn("Webhook payload malformed")
			return c.writeError(ctx, http.StatusBadRequest, "malformed payload")
		case errors.Is(err, service.ErrTransactionNotFound):
			logger.WithError(err).WithFields(eventFields(outcome)).Error("Webhook references unknown transaction")
			return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Received: true})
		default:
			logger.WithError(err).WithFields(eventFields(outcome)).Error("Webhook reconciliation failed")
			return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Received: true})
		}
	}

	return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Received: true})
}

func eventFields(outcome *service.ReconcileOutcome) logrus.Fields {
	if outcome == nil {
		return logrus.Fields{}
	}
	return logrus.Fields{
		"event_id":   outcome.EventID,
		"event_type": outcome.EventType,
	}
}

func (c *PaymentController) writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}

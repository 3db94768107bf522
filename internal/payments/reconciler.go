package payments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/esewa"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

const gatewayName = "esewa"

var tracer = otel.Tracer("github.com/angelmondragon/storefront-backend/internal/payments")

// Outcome classifies a reconciliation attempt.
type Outcome string

const (
	OutcomePaid             Outcome = "paid"
	OutcomeFailed           Outcome = "failed"
	OutcomeNotCompleted     Outcome = "not_completed"
	OutcomeNoop             Outcome = "noop"
	OutcomeSignatureInvalid Outcome = "signature_invalid"
	OutcomeRejected         Outcome = "rejected"
	OutcomeError            Outcome = "error"
)

// ReconcileResult is reported back to the gateway, the client or the sweep.
// Success is only true for the attempt that settled the group as paid;
// PaymentStatus carries the group's state after the attempt.
type ReconcileResult struct {
	Success           bool                `json:"success"`
	Outcome           Outcome             `json:"outcome"`
	CorrelationID     string              `json:"correlation_id,omitempty"`
	AlreadyReconciled bool                `json:"already_reconciled,omitempty"`
	GatewayStatus     string              `json:"gateway_status,omitempty"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status,omitempty"`
	OrderNumbers      []string            `json:"order_numbers,omitempty"`
}

// StatusChecker queries the gateway for a transaction's state.
type StatusChecker interface {
	CheckStatus(ctx context.Context, transactionUUID string, totalAmount decimal.Decimal) (*esewa.TransactionStatus, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ReconcilerParams wires a Reconciler.
type ReconcilerParams struct {
	Orders            orders.Repository
	TransactionRunner txRunner
	Cart              cart.Clearer
	Outbox            outbox.Emitter
	Refunds           orders.Refunder
	Gateway           StatusChecker
	SecretKey         string
	ProductCode       string
	Metrics           *metrics.PaymentMetrics
	Logger            *logger.Logger
}

// Reconciler settles correlation groups from gateway callbacks and status polls.
type Reconciler struct {
	orders      orders.Repository
	tx          txRunner
	cart        cart.Clearer
	outbox      outbox.Emitter
	refunds     orders.Refunder
	gateway     StatusChecker
	secret      string
	productCode string
	metrics     *metrics.PaymentMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart clearer required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway status checker required")
	}
	if strings.TrimSpace(params.SecretKey) == "" || strings.TrimSpace(params.ProductCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "esewa secret key and product code required")
	}
	refunds := params.Refunds
	if refunds == nil {
		refunds = orders.NewOutboxRefunder(params.Outbox)
	}
	return &Reconciler{
		orders:      params.Orders,
		tx:          params.TransactionRunner,
		cart:        params.Cart,
		outbox:      params.Outbox,
		refunds:     refunds,
		gateway:     params.Gateway,
		secret:      params.SecretKey,
		productCode: strings.TrimSpace(params.ProductCode),
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// settlement is one conditional group update request.
type settlement struct {
	source        string
	correlationID string
	target        enums.PaymentStatus
	gatewayTotal  *decimal.Decimal
	details       types.PaymentDetails
	actor         *outbox.ActorRef
}

// Reconcile handles a gateway callback. The signature is verified before
// anything else is looked at.
func (r *Reconciler) Reconcile(ctx context.Context, payload CallbackPayload) (result *ReconcileResult, err error) {
	ctx, span := tracer.Start(ctx, "payments.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("payments.source", metrics.SourceCallback),
		attribute.String("payments.correlation_id", payload.TransactionUUID),
	)
	defer func() { r.finish(ctx, span, metrics.SourceCallback, payload.TransactionUUID, result, err) }()

	if err := r.authenticate(payload); err != nil {
		return nil, err
	}

	var total *decimal.Decimal
	if raw := esewa.NormalizeAmount(payload.TotalAmount); raw != "" {
		parsed, parseErr := decimal.NewFromString(raw)
		if parseErr != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid total_amount").
				WithDetails(map[string]string{"total_amount": payload.TotalAmount})
		}
		total = &parsed
	}

	details := types.PaymentDetails{
		Gateway:         gatewayName,
		Source:          metrics.SourceCallback,
		TransactionCode: payload.TransactionCode,
		GatewayStatus:   payload.Status,
		ReconciledAt:    r.now(),
		Raw:             payload.Raw,
	}
	if total != nil {
		details.TotalAmount = *total
	}

	switch payload.Status {
	case esewa.StatusComplete:
		return r.settle(ctx, settlement{
			source:        metrics.SourceCallback,
			correlationID: payload.TransactionUUID,
			target:        enums.PaymentStatusPaid,
			gatewayTotal:  total,
			details:       details,
		})
	case esewa.StatusCanceled:
		return r.settle(ctx, settlement{
			source:        metrics.SourceCallback,
			correlationID: payload.TransactionUUID,
			target:        enums.PaymentStatusFailed,
			details:       details,
		})
	default:
		return &ReconcileResult{
			Outcome:       OutcomeNotCompleted,
			CorrelationID: payload.TransactionUUID,
			GatewayStatus: payload.Status,
		}, nil
	}
}

// Authenticate checks the callback signature and merchant without touching
// any state. Rejections are counted like a failed Reconcile.
func (r *Reconciler) Authenticate(ctx context.Context, payload CallbackPayload) error {
	err := r.authenticate(payload)
	if err != nil {
		r.finish(ctx, trace.SpanFromContext(ctx), metrics.SourceCallback, payload.TransactionUUID, nil, err)
	}
	return err
}

func (r *Reconciler) authenticate(payload CallbackPayload) error {
	declared := esewa.ParseSignedFieldNames(payload.SignedFieldNames)
	if !esewa.CoversFields(declared, esewa.CallbackSignedFields) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "payment signature does not cover settlement fields")
	}
	if !esewa.Verify(r.secret, payload.Raw, declared, payload.Signature) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid payment signature")
	}
	if payload.ProductCode != r.productCode {
		return pkgerrors.New(pkgerrors.CodeValidation, "product code mismatch").
			WithDetails(map[string]string{"product_code": payload.ProductCode})
	}
	if payload.TransactionUUID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction_uuid is required")
	}
	return nil
}

// Verify polls the gateway on behalf of the purchaser for a group whose
// callback never arrived.
func (r *Reconciler) Verify(ctx context.Context, correlationID string, userID uuid.UUID) (*ReconcileResult, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction_uuid is required")
	}
	session, err := r.orders.FindSession(ctx, correlationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment session")
	}
	if session == nil || session.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
	}
	if session.CompletedAt != nil {
		return r.GroupState(ctx, correlationID)
	}
	return r.verifySession(ctx, *session, metrics.SourceVerify, &outbox.ActorRef{UserID: userID, Role: string(enums.UserRoleCustomer)})
}

// VerifySession polls the gateway for an open session. Used by the sweep.
func (r *Reconciler) VerifySession(ctx context.Context, session models.PaymentSession) (*ReconcileResult, error) {
	return r.verifySession(ctx, session, metrics.SourceSweep, nil)
}

// Expire fails every still-pending order of the session's group.
func (r *Reconciler) Expire(ctx context.Context, session models.PaymentSession, gatewayStatus string) (result *ReconcileResult, err error) {
	ctx, span := tracer.Start(ctx, "payments.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("payments.source", metrics.SourceSweep),
		attribute.String("payments.correlation_id", session.CorrelationID),
	)
	defer func() { r.finish(ctx, span, metrics.SourceSweep, session.CorrelationID, result, err) }()

	return r.settle(ctx, settlement{
		source:        metrics.SourceSweep,
		correlationID: session.CorrelationID,
		target:        enums.PaymentStatusFailed,
		details: types.PaymentDetails{
			Gateway:       gatewayName,
			Source:        metrics.SourceSweep,
			GatewayStatus: gatewayStatus,
			TotalAmount:   session.TotalAmount,
			ReconciledAt:  r.now(),
		},
	})
}

func (r *Reconciler) verifySession(ctx context.Context, session models.PaymentSession, source string, actor *outbox.ActorRef) (result *ReconcileResult, err error) {
	ctx, span := tracer.Start(ctx, "payments.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("payments.source", source),
		attribute.String("payments.correlation_id", session.CorrelationID),
	)
	defer func() { r.finish(ctx, span, source, session.CorrelationID, result, err) }()

	started := time.Now()
	status, err := r.gateway.CheckStatus(ctx, session.CorrelationID, session.TotalAmount)
	r.metrics.ObserveGatewayLatency(time.Since(started))
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query payment status")
	}
	if status.ProductCode != "" && status.ProductCode != r.productCode {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product code mismatch").
			WithDetails(map[string]string{"product_code": status.ProductCode})
	}

	details := types.PaymentDetails{
		Gateway:       gatewayName,
		Source:        source,
		GatewayStatus: status.Status,
		TotalAmount:   status.TotalAmount,
		ReconciledAt:  r.now(),
		Raw:           status.Fields(),
	}
	if status.RefID != nil {
		details.TransactionCode = *status.RefID
	}
	total := status.TotalAmount

	switch status.Status {
	case esewa.StatusComplete:
		return r.settle(ctx, settlement{
			source:        source,
			correlationID: session.CorrelationID,
			target:        enums.PaymentStatusPaid,
			gatewayTotal:  &total,
			details:       details,
			actor:         actor,
		})
	case esewa.StatusCanceled:
		return r.settle(ctx, settlement{
			source:        source,
			correlationID: session.CorrelationID,
			target:        enums.PaymentStatusFailed,
			details:       details,
			actor:         actor,
		})
	default:
		return &ReconcileResult{
			Outcome:       OutcomeNotCompleted,
			CorrelationID: session.CorrelationID,
			GatewayStatus: status.Status,
		}, nil
	}
}

// settle runs the conditional group update and its side effects in one
// transaction. Side effects only run when the update matched pending rows.
func (r *Reconciler) settle(ctx context.Context, req settlement) (*ReconcileResult, error) {
	result := &ReconcileResult{
		CorrelationID: req.correlationID,
		GatewayStatus: req.details.GatewayStatus,
	}

	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.orders.WithTx(tx)
		group, err := repo.FindByCorrelation(ctx, req.correlationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment group")
		}
		if len(group) == 0 {
			result.Outcome = OutcomeNoop
			return nil
		}
		session, err := repo.FindSession(ctx, req.correlationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment session")
		}
		if req.gatewayTotal != nil && session != nil && !session.TotalAmount.Equal(*req.gatewayTotal) {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment amount mismatch").
				WithDetails(map[string]string{
					"expected": session.TotalAmount.String(),
					"received": req.gatewayTotal.String(),
				})
		}

		var rows int64
		switch req.target {
		case enums.PaymentStatusPaid:
			rows, err = repo.MarkGroupPaid(ctx, req.correlationID, req.details)
		case enums.PaymentStatusFailed:
			rows, err = repo.MarkGroupFailed(ctx, req.correlationID, req.details)
		default:
			return pkgerrors.Newf(pkgerrors.CodeInternal, "unsupported settlement target %s", req.target)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payment group")
		}

		result.OrderNumbers = orderNumbers(group)
		if rows == 0 {
			result.Outcome = OutcomeNoop
			result.AlreadyReconciled = true
			result.PaymentStatus = group[0].PaymentStatus
			return nil
		}
		result.PaymentStatus = req.target

		now := r.now()
		userID := group[0].UserID
		checkoutID := uuid.Nil
		if session != nil {
			checkoutID = session.ID
		}
		if err := repo.CloseSession(ctx, req.correlationID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "close payment session")
		}

		if req.target == enums.PaymentStatusPaid {
			if _, err := r.cart.ClearUserCart(ctx, tx, userID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
			}
			for _, order := range group {
				if order.Status != enums.OrderStatusCancelled || order.PaymentStatus != enums.PaymentStatusPending {
					continue
				}
				order.PaymentDetails = &req.details
				if err := orders.RefundLatePayment(ctx, tx, repo, r.refunds, order, now); err != nil {
					return err
				}
			}
			result.Outcome = OutcomePaid
			result.Success = true
			return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderPaid,
				AggregateType: enums.AggregateCheckout,
				AggregateID:   checkoutID,
				Actor:         req.actor,
				OccurredAt:    now,
				Data: payloads.OrderPaidEvent{
					CheckoutID:      checkoutID,
					CorrelationID:   req.correlationID,
					UserID:          userID,
					OrderIDs:        orderIDs(group),
					TotalAmount:     req.details.TotalAmount,
					TransactionCode: req.details.TransactionCode,
					Source:          req.source,
					PaidAt:          now,
				},
			})
		}

		result.Outcome = OutcomeFailed
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateCheckout,
			AggregateID:   checkoutID,
			Actor:         req.actor,
			OccurredAt:    now,
			Data: payloads.PaymentFailedEvent{
				CheckoutID:    checkoutID,
				CorrelationID: req.correlationID,
				UserID:        userID,
				OrderIDs:      orderIDs(group),
				GatewayStatus: req.details.GatewayStatus,
				Source:        req.source,
				FailedAt:      now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GroupState reports the stored state of a group without reconciling it.
func (r *Reconciler) GroupState(ctx context.Context, correlationID string) (*ReconcileResult, error) {
	group, err := r.orders.FindByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment group")
	}
	result := &ReconcileResult{
		Outcome:       OutcomeNoop,
		CorrelationID: correlationID,
		OrderNumbers:  orderNumbers(group),
	}
	if len(group) > 0 {
		result.PaymentStatus = group[0].PaymentStatus
		result.AlreadyReconciled = result.PaymentStatus != enums.PaymentStatusPending
	}
	return result, nil
}

func (r *Reconciler) finish(ctx context.Context, span trace.Span, source, correlationID string, result *ReconcileResult, err error) {
	outcome := OutcomeError
	switch {
	case err != nil && pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized):
		outcome = OutcomeSignatureInvalid
	case err != nil && pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		outcome = OutcomeRejected
	case err == nil && result != nil:
		outcome = result.Outcome
	}
	r.metrics.RecordReconciliation(source, string(outcome))
	span.SetAttributes(attribute.String("payments.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(outcome))
	}

	if r.logg == nil {
		return
	}
	logCtx := r.logg.WithCorrelationID(ctx, correlationID)
	logCtx = r.logg.WithFields(logCtx, map[string]any{
		"source":  source,
		"outcome": string(outcome),
	})
	switch {
	case err != nil && outcome == OutcomeError:
		r.logg.Error(logCtx, "payment reconciliation failed", err)
	case err != nil:
		r.logg.Warn(r.logg.WithField(logCtx, "reason", err.Error()), "payment callback rejected")
	case outcome == OutcomeNoop:
		r.logg.Info(r.logg.WithField(logCtx, "already_reconciled", result.AlreadyReconciled), "no pending orders for payment group")
	default:
		r.logg.Info(logCtx, "payment reconciled")
	}
}

func orderNumbers(group []models.Order) []string {
	out := make([]string, 0, len(group))
	for _, order := range group {
		out = append(out, order.OrderNumber)
	}
	return out
}

func orderIDs(group []models.Order) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(group))
	for _, order := range group {
		out = append(out, order.ID)
	}
	return out
}

package confirmation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/internal/fulfillment"
	"github.com/pagehaven/bookstore-backend/internal/inventory"
	"github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/internal/payments"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
	"github.com/pagehaven/bookstore-backend/pkg/outbox"
	"github.com/pagehaven/bookstore-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the single confirmation path for settled payments. Webhook
// deliveries and manual review decisions both land in applyOutcome so the
// success sequence (transaction, order, inventory commit, fulfillment) exists
// exactly once.
type Service interface {
	HandleWebhook(ctx context.Context, provider enums.PaymentGateway, payload []byte, signature string) error
	ApplyOutcome(ctx context.Context, input OutcomeInput) error
	// ApplyOutcomeTx is the same sequence inside a caller-owned transaction,
	// for flows that must settle alongside their own writes (proof review).
	ApplyOutcomeTx(ctx context.Context, tx *gorm.DB, input OutcomeInput) error
}

// OutcomeInput is a normalized settlement decision, whatever its origin.
type OutcomeInput struct {
	Reference   string
	Status      enums.CallbackStatus
	ExternalRef string
	Raw         json.RawMessage
	Actor       string
	Reason      string
	// VerifiedBy is set on the manual review path only.
	VerifiedBy *int64
}

type service struct {
	registry    *payments.Registry
	txns        payments.Repository
	orders      orders.Service
	ordersRepo  orders.Repository
	inventory   inventory.Service
	fulfillment fulfillment.Service
	outbox      outboxPublisher
	tx          txRunner
	guard       *IdempotencyGuard
	logg        *logger.Logger
	now         func() time.Time
}

// NewService wires the confirmation router with every collaborator it drives.
// The guard is optional; without one every delivery goes through the full
// transactional path.
func NewService(
	registry *payments.Registry,
	txns payments.Repository,
	ordersSvc orders.Service,
	ordersRepo orders.Repository,
	inventorySvc inventory.Service,
	fulfillmentSvc fulfillment.Service,
	ob outboxPublisher,
	tx txRunner,
	guard *IdempotencyGuard,
	logg *logger.Logger,
) (Service, error) {
	if registry == nil || txns == nil || ordersSvc == nil || ordersRepo == nil ||
		inventorySvc == nil || fulfillmentSvc == nil || ob == nil || tx == nil {
		return nil, fmt.Errorf("confirmation service missing dependencies")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		registry:    registry,
		txns:        txns,
		orders:      ordersSvc,
		ordersRepo:  ordersRepo,
		inventory:   inventorySvc,
		fulfillment: fulfillmentSvc,
		outbox:      ob,
		tx:          tx,
		guard:       guard,
		logg:        logg,
		now:         time.Now,
	}, nil
}

// HandleWebhook verifies and normalizes a provider callback, then applies it.
// Signature failures surface as unauthorized; everything past verification is
// at-least-once territory and must stay replay-safe.
func (s *service) HandleWebhook(ctx context.Context, provider enums.PaymentGateway, payload []byte, signature string) error {
	gateway, err := s.registry.Get(provider)
	if err != nil {
		return err
	}
	outcome, err := gateway.ParseCallback(ctx, payload, signature)
	if err != nil {
		return err
	}

	deliveryID := fmt.Sprintf("%s:%s:%s", provider, outcome.Reference, outcome.Status)
	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, deliveryID)
		if err == nil && seen {
			s.logg.Info(s.logg.WithField(ctx, "delivery_id", deliveryID), "duplicate webhook delivery ignored")
			return nil
		}
		// a guard outage never blocks confirmation
	}

	err = s.ApplyOutcome(ctx, OutcomeInput{
		Reference:   outcome.Reference,
		Status:      outcome.Status,
		ExternalRef: outcome.ExternalRef,
		Raw:         outcome.Raw,
		Actor:       fmt.Sprintf("webhook:%s", provider),
	})
	if err != nil && s.guard != nil {
		_ = s.guard.Delete(ctx, deliveryID)
	}
	return err
}

// ApplyOutcome runs the whole settlement sequence in one transaction. The
// order row is read under a lock so racing deliveries serialize; whichever
// lands second sees the already-applied state and becomes a no-op.
func (s *service) ApplyOutcome(ctx context.Context, input OutcomeInput) error {
	if input.Reference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment reference required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ApplyOutcomeTx(ctx, tx, input)
	})
}

func (s *service) ApplyOutcomeTx(ctx context.Context, tx *gorm.DB, input OutcomeInput) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	txns := s.txns.WithTx(tx)

	txn, err := txns.FindByReference(ctx, input.Reference)
	if err != nil {
		return err
	}
	if txn == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found").
			WithDetails(map[string]any{"reference": input.Reference})
	}

	// Locked read: two open transactions for one order (a late webhook
	// racing a manual verify) must not both pass the settled checks below.
	order, err := s.ordersRepo.WithTx(tx).FindByIDForUpdate(ctx, txn.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	switch input.Status {
	case enums.CallbackSucceeded:
		return s.applySuccess(ctx, tx, txns, txn, order, input)
	case enums.CallbackFailed:
		return s.applyFailure(ctx, tx, txns, txn, order, input)
	default:
		return s.applyPending(ctx, txns, txn, input)
	}
}

func (s *service) applySuccess(ctx context.Context, tx *gorm.DB, txns payments.Repository, txn *models.PaymentTransaction, order *models.Order, input OutcomeInput) error {
	if txn.Status == enums.PaymentTxnSucceeded {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"reference": txn.Reference, "order_id": order.ID,
		}), "duplicate payment confirmation ignored")
		return nil
	}
	settled, err := txns.HasSucceededForOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if settled {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"reference": txn.Reference, "order_id": order.ID,
		}), "order already settled by another transaction")
		return nil
	}

	now := s.now()
	updates := map[string]any{
		"status":       enums.PaymentTxnSucceeded,
		"last_payload": rawOrNil(input.Raw),
	}
	if input.ExternalRef != "" {
		updates["external_ref"] = input.ExternalRef
	}
	if input.VerifiedBy != nil {
		updates["verified_by"] = *input.VerifiedBy
		updates["verified_at"] = now
	}
	if err := txns.Update(ctx, txn.ID, updates); err != nil {
		return err
	}

	actor := actorOrDefault(input.Actor)
	paid := enums.PaymentStatusPaid
	if err := s.orders.Transition(ctx, tx, orders.TransitionInput{
		OrderID:       order.ID,
		To:            enums.OrderStatusPaid,
		PaymentStatus: &paid,
		Actor:         actor,
		Reason:        "payment confirmed",
	}); err != nil {
		return err
	}

	if err := s.inventory.Commit(ctx, tx, order.ID, orderLines(order), actor); err != nil {
		return err
	}
	if _, err := s.fulfillment.Fulfill(ctx, tx, order); err != nil {
		return err
	}

	if err := s.orders.Transition(ctx, tx, orders.TransitionInput{
		OrderID: order.ID,
		To:      enums.OrderStatusProcessing,
		Actor:   actor,
	}); err != nil {
		return err
	}

	if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaidEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			UserID:        order.UserID,
			TransactionID: txn.ID,
			Gateway:       txn.Gateway,
			Amount:        txn.Amount,
			Currency:      txn.Currency,
			PaidAt:        now,
		},
		OccurredAt: now,
	}); err != nil {
		return err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID, "reference": txn.Reference, "gateway": txn.Gateway,
	}), "payment settled")
	return nil
}

func (s *service) applyFailure(ctx context.Context, tx *gorm.DB, txns payments.Repository, txn *models.PaymentTransaction, order *models.Order, input OutcomeInput) error {
	if txn.Status == enums.PaymentTxnSucceeded {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"reference": txn.Reference, "order_id": order.ID,
		}), "failure callback for settled transaction ignored")
		return nil
	}
	if txn.Status == enums.PaymentTxnFailed {
		s.logg.Info(s.logg.WithField(ctx, "reference", txn.Reference), "duplicate payment failure ignored")
		return nil
	}

	updates := map[string]any{
		"status":       enums.PaymentTxnFailed,
		"last_payload": rawOrNil(input.Raw),
	}
	if input.Reason != "" {
		updates["failure_reason"] = input.Reason
	}
	if err := txns.Update(ctx, txn.ID, updates); err != nil {
		return err
	}

	actor := actorOrDefault(input.Actor)
	if order.Status == enums.OrderStatusPendingPayment {
		if err := s.inventory.Release(ctx, tx, order.ID, orderLines(order), actor); err != nil {
			return err
		}
		failed := enums.PaymentStatusFailed
		if err := s.orders.Transition(ctx, tx, orders.TransitionInput{
			OrderID:       order.ID,
			To:            enums.OrderStatusPaymentFailed,
			PaymentStatus: &failed,
			Actor:         actor,
			Reason:        input.Reason,
		}); err != nil {
			return err
		}
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaymentFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.PaymentFailedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			TransactionID: txn.ID,
			Gateway:       txn.Gateway,
			Reason:        input.Reason,
		},
		OccurredAt: s.now(),
	})
}

// applyPending only records the provider payload. Unknown statuses settle via
// a later callback or a reconciliation sweep.
func (s *service) applyPending(ctx context.Context, txns payments.Repository, txn *models.PaymentTransaction, input OutcomeInput) error {
	s.logg.Info(s.logg.WithField(ctx, "reference", txn.Reference), "payment callback pending")
	if len(input.Raw) == 0 {
		return nil
	}
	return txns.Update(ctx, txn.ID, map[string]any{"last_payload": rawOrNil(input.Raw)})
}

func orderLines(order *models.Order) []inventory.Line {
	lines := make([]inventory.Line, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, inventory.Line{BookID: item.BookID, Quantity: item.Quantity})
	}
	return lines
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

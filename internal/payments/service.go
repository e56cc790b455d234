package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service creates payment intents against pending orders.
type Service interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error)
	TransactionsForOrder(ctx context.Context, orderID int64) ([]models.PaymentTransaction, error)
}

// CreateIntentInput identifies the order, the chosen provider and any
// provider-specific metadata forwarded verbatim.
type CreateIntentInput struct {
	OrderID  int64
	UserID   int64
	Role     enums.MemberRole
	Method   enums.PaymentGateway
	Metadata map[string]string
}

type service struct {
	repo     Repository
	orders   orders.Service
	registry *Registry
	tx       txRunner
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds a payment service with the required dependencies.
func NewService(repo Repository, ordersSvc orders.Service, registry *Registry, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if ordersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if registry == nil {
		return nil, fmt.Errorf("payment registry required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:     repo,
		orders:   ordersSvc,
		registry: registry,
		tx:       tx,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// CreateIntent records a new payment attempt and asks the provider for the
// client-facing intent. A payment_failed order is moved back to
// pending_payment first (retry edge). The transaction row is persisted before
// the provider call so a timed-out call leaves it initiated for later
// reconciliation, never silently failed.
func (s *service) CreateIntent(ctx context.Context, input CreateIntentInput) (*Intent, error) {
	if !input.Method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	gateway, err := s.registry.Get(input.Method)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.Get(ctx, input.OrderID, input.UserID, input.Role)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case enums.OrderStatusPendingPayment, enums.OrderStatusPaymentFailed:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
	}

	settled, err := s.repo.HasSucceededForOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if settled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order already has a successful payment")
	}

	txn := &models.PaymentTransaction{
		OrderID:   order.ID,
		Gateway:   input.Method,
		Reference: fmt.Sprintf("PH-%s", uuid.NewString()),
		Amount:    order.Total,
		Currency:  order.Currency,
		Status:    enums.PaymentTxnInitiated,
	}
	if input.Method == enums.GatewayBankTransfer {
		txn.Status = enums.PaymentTxnPendingReview
	}

	// Bank transfer initiation is local, so the intent (and its payment
	// window deadline) is computed before the insert and committed with the
	// row; the expiry sweep must never see a pending_review transaction
	// without a deadline.
	var intent *Intent
	if !input.Method.IsInstant() {
		intent, err = gateway.Initiate(ctx, order, txn, input.Metadata)
		if err != nil {
			return nil, err
		}
		txn.ExpiresAt = intent.ExpiresAt
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if order.Status == enums.OrderStatusPaymentFailed {
			if err := s.orders.Transition(ctx, tx, orders.TransitionInput{
				OrderID: order.ID,
				To:      enums.OrderStatusPendingPayment,
				Actor:   fmt.Sprintf("customer:%d", input.UserID),
				Reason:  "payment retry",
			}); err != nil {
				return err
			}
		}
		if _, err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
			return err
		}
		method := input.Method
		return tx.Model(&models.Order{}).
			Where("id = ?", order.ID).
			Update("payment_method", method).Error
	})
	if err != nil {
		return nil, err
	}

	if intent == nil {
		intent, err = gateway.Initiate(ctx, order, txn, input.Metadata)
		if err != nil {
			// the transaction stays initiated; a webhook or reconciliation
			// sweep settles it later
			if s.logg != nil {
				s.logg.Error(s.logg.WithFields(ctx, map[string]any{
					"reference": txn.Reference, "gateway": input.Method,
				}), "payment initiation failed", err)
			}
			return nil, err
		}
		if intent.ExpiresAt != nil {
			if err := s.repo.Update(ctx, txn.ID, map[string]any{"expires_at": *intent.ExpiresAt}); err != nil {
				return nil, err
			}
		}
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id": order.ID, "reference": txn.Reference, "gateway": input.Method,
		}), "payment intent issued")
	}
	return intent, nil
}

func (s *service) TransactionsForOrder(ctx context.Context, orderID int64) ([]models.PaymentTransaction, error) {
	return s.repo.FindByOrder(ctx, orderID)
}

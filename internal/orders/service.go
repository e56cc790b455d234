package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/pagination"
)

// Service defines order-level operations beyond repository reads.
type Service interface {
	Get(ctx context.Context, orderID, requesterID int64, requesterRole enums.MemberRole) (*models.Order, error)
	List(ctx context.Context, userID int64, params pagination.Params, filters ListFilters) (*OrderList, error)
	History(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error)
	Transition(ctx context.Context, tx *gorm.DB, input TransitionInput) error
}

// TransitionInput captures one status move plus its audit metadata.
type TransitionInput struct {
	OrderID       int64
	To            enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	Actor         string
	Reason        string
}

type service struct {
	repo Repository
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Get(ctx context.Context, orderID, requesterID int64, requesterRole enums.MemberRole) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if requesterRole != enums.RoleAdmin {
		// unclaimed guest orders stay admin-only until an account owns them
		if order.UserID == nil || *order.UserID != requesterID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
	}
	return order, nil
}

func (s *service) List(ctx context.Context, userID int64, params pagination.Params, filters ListFilters) (*OrderList, error) {
	return s.repo.ListByUser(ctx, userID, params, filters)
}

func (s *service) History(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	return s.repo.ListStatusHistory(ctx, orderID)
}

// Transition moves the order along a legal edge and appends the audit row in
// the same transaction. Replaying a move the order already made is a no-op so
// duplicate webhook deliveries cannot corrupt the trail.
func (s *service) Transition(ctx context.Context, tx *gorm.DB, input TransitionInput) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)

	order, err := repo.FindByID(ctx, input.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status == input.To {
		return nil
	}
	if !CanTransition(order.Status, input.To) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition disallowed").
			WithDetails(map[string]any{
				"order_id": input.OrderID,
				"from":     order.Status,
				"to":       input.To,
			})
	}

	updates := map[string]any{"status": input.To}
	if input.PaymentStatus != nil {
		updates["payment_status"] = *input.PaymentStatus
	}
	if err := repo.UpdateStatus(ctx, input.OrderID, updates); err != nil {
		return err
	}

	from := order.Status
	var reason *string
	if input.Reason != "" {
		reason = &input.Reason
	}
	actor := input.Actor
	if actor == "" {
		actor = "system"
	}
	return repo.AppendStatusHistory(ctx, &models.OrderStatusHistory{
		OrderID:    input.OrderID,
		FromStatus: &from,
		ToStatus:   input.To,
		Actor:      actor,
		Reason:     reason,
	})
}

// GenerateOrderNumber builds a unique, human-quotable order reference.
func GenerateOrderNumber(now time.Time) string {
	buf := make([]byte, 3)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), hex.EncodeToString(buf))
}

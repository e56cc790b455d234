package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/internal/inventory"
	"github.com/pagehaven/bookstore-backend/internal/orders"
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
}

// Service converts a cart snapshot into a pending_payment order with its
// stock reserved.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
}

// CartLine is one requested (book, quantity) pair.
type CartLine struct {
	BookID   int64
	Quantity int
}

// CreateOrderInput carries the cart snapshot. Tax, shipping and discount are
// computed upstream and consumed as opaque amounts.
type CreateOrderInput struct {
	// UserID is nil for guest checkout; the order is claimed by an account
	// later.
	UserID          *int64
	Lines           []CartLine
	ShippingAddress *string
	Tax             decimal.Decimal
	ShippingFee     decimal.Decimal
	Discount        decimal.Decimal
}

type service struct {
	repo      Repository
	orders    orders.Repository
	inventory inventory.Service
	tx        txRunner
	outbox    outboxPublisher
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds a checkout service with the required dependencies.
func NewService(repo Repository, ordersRepo orders.Repository, inv inventory.Service, tx txRunner, ob outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ob == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:      repo,
		orders:    ordersRepo,
		inventory: inv,
		tx:        tx,
		outbox:    ob,
		logg:      logg,
		now:       time.Now,
	}, nil
}

// CreateOrder validates the cart, snapshots prices, reserves stock for every
// line and persists the order, all inside one transaction. Any failed line
// rolls the whole order back so no partial reservation survives.
func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.UserID != nil && *input.UserID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	seen := make(map[int64]bool, len(input.Lines))
	ids := make([]int64, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"book_id": line.BookID})
		}
		if seen[line.BookID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate book in cart").
				WithDetails(map[string]any{"book_id": line.BookID})
		}
		seen[line.BookID] = true
		ids = append(ids, line.BookID)
	}

	books, err := s.repo.FindActiveBooksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Book, len(books))
	for _, book := range books {
		byID[book.ID] = book
	}

	var (
		currency   enums.Currency
		subtotal   decimal.Decimal
		items      []models.OrderItem
		invLines   []inventory.Line
		anyShipped bool
	)
	for _, line := range input.Lines {
		book, ok := byID[line.BookID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown or inactive book").
				WithDetails(map[string]any{"book_id": line.BookID})
		}
		if currency == "" {
			currency = book.Currency
		} else if currency != book.Currency {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart mixes currencies").
				WithDetails(map[string]any{"book_id": line.BookID})
		}
		lineTotal := book.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, models.OrderItem{
			BookID:    book.ID,
			Title:     book.Title,
			Format:    book.Format,
			Quantity:  line.Quantity,
			UnitPrice: book.Price,
			LineTotal: lineTotal,
		})
		invLines = append(invLines, inventory.Line{BookID: book.ID, Quantity: line.Quantity})
		if book.Format.HasPhysical() {
			anyShipped = true
		}
	}

	if anyShipped && (input.ShippingAddress == nil || *input.ShippingAddress == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address required for physical items")
	}

	total := subtotal.Add(input.Tax).Add(input.ShippingFee).Sub(input.Discount)
	if total.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total cannot be negative")
	}

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order := &models.Order{
			OrderNumber:     orders.GenerateOrderNumber(s.now()),
			UserID:          input.UserID,
			Status:          enums.OrderStatusPendingPayment,
			PaymentStatus:   enums.PaymentStatusPending,
			Currency:        currency,
			Subtotal:        subtotal,
			Tax:             input.Tax,
			ShippingFee:     input.ShippingFee,
			Discount:        input.Discount,
			Total:           total,
			ShippingAddress: input.ShippingAddress,
			Items:           items,
		}
		order, err := s.orders.WithTx(tx).Create(ctx, order)
		if err != nil {
			return err
		}

		actor := "guest"
		var eventActor *outbox.ActorRef
		if input.UserID != nil {
			actor = fmt.Sprintf("customer:%d", *input.UserID)
			eventActor = &outbox.ActorRef{UserID: *input.UserID, Role: string(enums.RoleCustomer)}
		}
		if err := s.inventory.Reserve(ctx, tx, order.ID, invLines, actor); err != nil {
			return err
		}

		itemCount := 0
		for _, item := range items {
			itemCount += item.Quantity
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         eventActor,
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				Total:       order.Total,
				Currency:    order.Currency,
				ItemCount:   itemCount,
			},
			Version: 1,
		}); err != nil {
			return err
		}

		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, fmt.Sprintf("%d", created.ID))
		s.logg.Info(logCtx, "order created")
	}
	return created, nil
}

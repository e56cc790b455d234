package orders

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	"github.com/pagehaven/bookstore-backend/pkg/pagination"
)

// Repository defines persistence operations for order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id int64) (*models.Order, error)
	// FindByIDForUpdate reads the order under a row lock so concurrent
	// settlement attempts against the same order serialize.
	FindByIDForUpdate(ctx context.Context, id int64) (*models.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	ListByUser(ctx context.Context, userID int64, params pagination.Params, filters ListFilters) (*OrderList, error)
	FindPendingBankTransfersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id int64, updates map[string]any) error
	AppendStatusHistory(ctx context.Context, row *models.OrderStatusHistory) error
	ListStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error)
}

// ListFilters describe the inputs supported by the order list.
type ListFilters struct {
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	DateFrom      *time.Time
	DateTo        *time.Time
}

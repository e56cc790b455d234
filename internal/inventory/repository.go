package inventory

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// Repository manages persistence for stock counters and the inventory ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetItem(ctx context.Context, bookID int64) (*models.InventoryItem, error)
	CreateItem(ctx context.Context, item *models.InventoryItem) error
	// ApplyDelta atomically shifts the cached counters. When guardStock is
	// true the update refuses to take stock_qty below zero and reports
	// applied=false instead.
	ApplyDelta(ctx context.Context, bookID int64, stockDelta, reservedDelta int, guardStock bool) (bool, error)
	AppendLedger(ctx context.Context, row *models.InventoryTransaction) error
	ListLedger(ctx context.Context, bookID int64) ([]models.InventoryTransaction, error)
	FindOrderOp(ctx context.Context, bookID, orderID int64, op enums.InventoryOp) (*models.InventoryTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetItem(ctx context.Context, bookID int64) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := r.db.WithContext(ctx).Where("book_id = ?", bookID).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repository) CreateItem(ctx context.Context, item *models.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) ApplyDelta(ctx context.Context, bookID int64, stockDelta, reservedDelta int, guardStock bool) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("book_id = ?", bookID).
		Where("reserved_qty + ? >= 0", reservedDelta)
	if guardStock {
		query = query.Where("stock_qty + ? >= 0", stockDelta)
	}
	res := query.Updates(map[string]any{
		"stock_qty":    gorm.Expr("stock_qty + ?", stockDelta),
		"reserved_qty": gorm.Expr("reserved_qty + ?", reservedDelta),
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AppendLedger(ctx context.Context, row *models.InventoryTransaction) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *repository) ListLedger(ctx context.Context, bookID int64) ([]models.InventoryTransaction, error) {
	var rows []models.InventoryTransaction
	err := r.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindOrderOp(ctx context.Context, bookID, orderID int64, op enums.InventoryOp) (*models.InventoryTransaction, error) {
	var row models.InventoryTransaction
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND order_id = ? AND op = ?", bookID, orderID, op).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

package models

import (
	"time"

	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// InventoryItem caches the current stock counters for one book. StockQty is
// always the running sum of the book's ledger rows; ReservedQty tracks units
// held for orders that have not settled yet. Books with TrackingEnabled false
// bypass reservation entirely.
type InventoryItem struct {
	BookID          int64     `gorm:"column:book_id;primaryKey"`
	StockQty        int       `gorm:"column:stock_qty;not null;default:0"`
	ReservedQty     int       `gorm:"column:reserved_qty;not null;default:0"`
	TrackingEnabled bool      `gorm:"column:tracking_enabled;not null;default:true"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryItem) TableName() string { return "inventory_items" }

// InventoryTransaction is one append-only ledger row. Rows are never updated
// or deleted.
type InventoryTransaction struct {
	ID             int64             `gorm:"column:id;primaryKey;autoIncrement"`
	BookID         int64             `gorm:"column:book_id;not null;index:idx_inventory_txns_book"`
	OrderID        *int64            `gorm:"column:order_id;index:idx_inventory_txns_order"`
	Op             enums.InventoryOp `gorm:"column:op;type:inventory_op_enum;not null"`
	Delta          int               `gorm:"column:delta;not null"`
	ResultingStock int               `gorm:"column:resulting_stock;not null"`
	Actor          string            `gorm:"column:actor;not null"`
	Note           *string           `gorm:"column:note"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (InventoryTransaction) TableName() string { return "inventory_transactions" }

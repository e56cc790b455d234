package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// Order is the customer-facing aggregate. Status moves only along the legal
// transition edges; every change appends an OrderStatusHistory row.
type Order struct {
	ID              int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	OrderNumber     string                `gorm:"column:order_number;uniqueIndex:ux_orders_number;not null"`
	// UserID is nil for guest checkout until the order is claimed by an
	// account.
	UserID          *int64                `gorm:"column:user_id;index:idx_orders_user"`
	Status          enums.OrderStatus     `gorm:"column:status;type:order_status_enum;not null;default:pending_payment"`
	PaymentStatus   enums.PaymentStatus   `gorm:"column:payment_status;type:payment_status_enum;not null;default:pending"`
	PaymentMethod   *enums.PaymentGateway `gorm:"column:payment_method;type:payment_gateway_enum"`
	Currency        enums.Currency        `gorm:"column:currency;type:currency_enum;not null"`
	Subtotal        decimal.Decimal       `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax             decimal.Decimal       `gorm:"column:tax;type:numeric(12,2);not null;default:0"`
	ShippingFee     decimal.Decimal       `gorm:"column:shipping_fee;type:numeric(12,2);not null;default:0"`
	Discount        decimal.Decimal       `gorm:"column:discount;type:numeric(12,2);not null;default:0"`
	Total           decimal.Decimal       `gorm:"column:total;type:numeric(12,2);not null"`
	ShippingAddress *string               `gorm:"column:shipping_address"`
	Items           []OrderItem           `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime;index:idx_orders_created"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// HasPhysicalItems reports whether any line requires a shipment.
func (o Order) HasPhysicalItems() bool {
	for _, item := range o.Items {
		if item.Format.HasPhysical() {
			return true
		}
	}
	return false
}

// HasDigitalItems reports whether any line grants a library entry.
func (o Order) HasDigitalItems() bool {
	for _, item := range o.Items {
		if item.Format.HasDigital() {
			return true
		}
	}
	return false
}

// OrderItem snapshots one cart line at checkout time. Title, format and price
// are copied so later catalog edits never change a placed order.
type OrderItem struct {
	ID        int64            `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID   int64            `gorm:"column:order_id;not null;index:idx_order_items_order"`
	BookID    int64            `gorm:"column:book_id;not null"`
	Title     string           `gorm:"column:title;not null"`
	Format    enums.BookFormat `gorm:"column:format;type:book_format_enum;not null"`
	Quantity  int              `gorm:"column:quantity;not null"`
	UnitPrice decimal.Decimal  `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineTotal decimal.Decimal  `gorm:"column:line_total;type:numeric(12,2);not null"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
}

// OrderStatusHistory is the append-only audit trail of status transitions.
type OrderStatusHistory struct {
	ID         int64              `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID    int64              `gorm:"column:order_id;not null;index:idx_order_status_history_order"`
	FromStatus *enums.OrderStatus `gorm:"column:from_status;type:order_status_enum"`
	ToStatus   enums.OrderStatus  `gorm:"column:to_status;type:order_status_enum;not null"`
	Actor      string             `gorm:"column:actor;not null"`
	Reason     *string            `gorm:"column:reason"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusHistory) TableName() string { return "order_status_history" }

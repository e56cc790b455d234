package models

import (
	"time"

	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// LibraryEntry grants a user permanent access to a digital title. The
// (user_id, book_id) unique index makes grants idempotent: a conflict means
// the user already owns the book.
type LibraryEntry struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex:ux_library_entries_user_book"`
	BookID    int64     `gorm:"column:book_id;not null;uniqueIndex:ux_library_entries_user_book"`
	OrderID   int64     `gorm:"column:order_id;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LibraryEntry) TableName() string { return "library_entries" }

// Shipment is the single shipping record for an order's physical items.
type Shipment struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID      int64     `gorm:"column:order_id;uniqueIndex:ux_shipments_order;not null"`
	Address      string    `gorm:"column:address;not null"`
	Carrier      *string   `gorm:"column:carrier"`
	TrackingCode *string   `gorm:"column:tracking_code"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// FulfillmentAttempt tracks the digital and shipping halves of an order's
// fulfillment independently so a shipping failure never blocks a completed
// library grant.
type FulfillmentAttempt struct {
	OrderID        int64                       `gorm:"column:order_id;primaryKey"`
	DigitalStatus  enums.FulfillmentStepStatus `gorm:"column:digital_status;type:fulfillment_step_enum;not null;default:pending"`
	ShippingStatus enums.FulfillmentStepStatus `gorm:"column:shipping_status;type:fulfillment_step_enum;not null;default:pending"`
	LastError      *string                     `gorm:"column:last_error"`
	CreatedAt      time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (FulfillmentAttempt) TableName() string { return "fulfillment_attempts" }

// Completed reports whether both halves have reached a final, non-failed state.
func (f FulfillmentAttempt) Completed() bool {
	digitalDone := f.DigitalStatus == enums.FulfillStepDone || f.DigitalStatus == enums.FulfillStepSkipped
	shippingDone := f.ShippingStatus == enums.FulfillStepDone || f.ShippingStatus == enums.FulfillStepSkipped
	return digitalDone && shippingDone
}

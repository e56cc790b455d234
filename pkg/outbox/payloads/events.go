package payloads

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// OrderCreatedEvent signals a new order entering pending_payment.
type OrderCreatedEvent struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      *int64          `json:"user_id"`
	Total       decimal.Decimal `json:"total"`
	Currency    enums.Currency  `json:"currency"`
	ItemCount   int             `json:"item_count"`
}

// OrderPaidEvent is emitted when a payment settles against an order.
type OrderPaidEvent struct {
	OrderID       int64                `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	UserID        *int64               `json:"user_id"`
	TransactionID int64                `json:"transaction_id"`
	Gateway       enums.PaymentGateway `json:"gateway"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      enums.Currency       `json:"currency"`
	PaidAt        time.Time            `json:"paid_at"`
}

// PaymentFailedEvent reports a definitive provider failure.
type PaymentFailedEvent struct {
	OrderID       int64                `json:"order_id"`
	OrderNumber   string               `json:"order_number"`
	TransactionID int64                `json:"transaction_id"`
	Gateway       enums.PaymentGateway `json:"gateway"`
	Reason        string               `json:"reason,omitempty"`
}

// OrderCancelledEvent is emitted whenever an order is cancelled.
type OrderCancelledEvent struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CancelledAt time.Time `json:"cancelled_at"`
	Reason      string    `json:"reason,omitempty"`
}

// OrderExpiredEvent describes a bank transfer window lapsing.
type OrderExpiredEvent struct {
	OrderID     int64     `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	ExpiredAt   time.Time `json:"expired_at"`
}

// ProofSubmittedEvent tells reviewers a new bank transfer proof is waiting.
type ProofSubmittedEvent struct {
	OrderID       int64 `json:"order_id"`
	TransactionID int64 `json:"transaction_id"`
	ProofID       int64 `json:"proof_id"`
	Attempt       int   `json:"attempt"`
}

// ProofReviewedEvent records the outcome of a proof review.
type ProofReviewedEvent struct {
	OrderID       int64             `json:"order_id"`
	TransactionID int64             `json:"transaction_id"`
	ProofID       int64             `json:"proof_id"`
	Status        enums.ProofStatus `json:"status"`
	ReviewedBy    int64             `json:"reviewed_by"`
}

// FulfillmentCompletedEvent surfaces the per-step outcome when an order's
// fulfillment finishes.
type FulfillmentCompletedEvent struct {
	OrderID        int64                       `json:"order_id"`
	OrderNumber    string                      `json:"order_number"`
	DigitalStatus  enums.FulfillmentStepStatus `json:"digital_status"`
	ShippingStatus enums.FulfillmentStepStatus `json:"shipping_status"`
	GrantedBooks   []int64                     `json:"granted_books,omitempty"`
}

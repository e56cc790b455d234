package orders

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// OrderSummary exposes the aggregated fields returned in the order list.
type OrderSummary struct {
	ID            int64                 `json:"id"`
	OrderNumber   string                `json:"order_number"`
	CreatedAt     time.Time             `json:"created_at"`
	Status        enums.OrderStatus     `json:"status"`
	PaymentStatus enums.PaymentStatus   `json:"payment_status"`
	PaymentMethod *enums.PaymentGateway `json:"payment_method,omitempty"`
	Currency      enums.Currency        `json:"currency"`
	Total         decimal.Decimal       `json:"total"`
	TotalItems    int                   `json:"total_items"`
}

// Summarize flattens an order into its list representation.
func Summarize(order *models.Order) OrderSummary {
	totalItems := 0
	for _, item := range order.Items {
		totalItems += item.Quantity
	}
	return OrderSummary{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		CreatedAt:     order.CreatedAt,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		Currency:      order.Currency,
		Total:         order.Total,
		TotalItems:    totalItems,
	}
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

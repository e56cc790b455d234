package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/pagehaven/bookstore-backend/api/middleware"
	"github.com/pagehaven/bookstore-backend/api/responses"
	"github.com/pagehaven/bookstore-backend/api/validators"
	"github.com/pagehaven/bookstore-backend/internal/banktransfer"
	checkoutsvc "github.com/pagehaven/bookstore-backend/internal/checkout"
	internalorders "github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/internal/payments"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
	"github.com/pagehaven/bookstore-backend/pkg/pagination"
)

// CreateOrder turns the submitted cart snapshot into a pending_payment order.
func CreateOrder(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lines := make([]checkoutsvc.CartLine, 0, len(payload.Items))
		for _, item := range payload.Items {
			lines = append(lines, checkoutsvc.CartLine{BookID: item.BookID, Quantity: item.Quantity})
		}

		order, err := svc.CreateOrder(r.Context(), checkoutsvc.CreateOrderInput{
			UserID:          &userID,
			Lines:           lines,
			ShippingAddress: payload.ShippingAddress,
			Tax:             payload.Tax,
			ShippingFee:     payload.ShippingFee,
			Discount:        payload.Discount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order, nil, nil))
	}
}

// ListOrders returns the caller's orders, newest first, cursor-paginated.
func ListOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters, err := buildOrderFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), userID, params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// OrderDetail renders one order with its items, payment attempts and status
// trail. A lapsed bank transfer order is cancelled on read so the caller never
// sees a stale payment window.
func OrderDetail(
	svc internalorders.Service,
	paymentsSvc payments.Service,
	bankTransfers banktransfer.Service,
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || paymentsSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		role := middleware.RoleFromContext(r.Context())

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if bankTransfers != nil {
			if _, err := bankTransfers.ExpireOrderIfDue(r.Context(), orderID, time.Now().UTC()); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Get(r.Context(), orderID, userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txns, err := paymentsSvc.TransactionsForOrder(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.History(r.Context(), order.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order, txns, history))
	}
}

type createOrderRequest struct {
	Items           []orderLineRequest `json:"items" validate:"required,min=1,dive"`
	ShippingAddress *string            `json:"shipping_address,omitempty"`
	Tax             decimal.Decimal    `json:"tax"`
	ShippingFee     decimal.Decimal    `json:"shipping_fee"`
	Discount        decimal.Decimal    `json:"discount"`
}

type orderLineRequest struct {
	BookID   int64 `json:"book_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,gt=0"`
}

type orderResponse struct {
	ID              int64                  `json:"id"`
	OrderNumber     string                 `json:"order_number"`
	Status          enums.OrderStatus      `json:"status"`
	PaymentStatus   enums.PaymentStatus    `json:"payment_status"`
	PaymentMethod   *enums.PaymentGateway  `json:"payment_method,omitempty"`
	Currency        enums.Currency         `json:"currency"`
	Subtotal        decimal.Decimal        `json:"subtotal"`
	Tax             decimal.Decimal        `json:"tax"`
	ShippingFee     decimal.Decimal        `json:"shipping_fee"`
	Discount        decimal.Decimal        `json:"discount"`
	Total           decimal.Decimal        `json:"total"`
	ShippingAddress *string                `json:"shipping_address,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	Items           []orderItemResponse    `json:"items"`
	Transactions    []transactionResponse  `json:"transactions,omitempty"`
	History         []statusChangeResponse `json:"history,omitempty"`
}

type orderItemResponse struct {
	BookID    int64            `json:"book_id"`
	Title     string           `json:"title"`
	Format    enums.BookFormat `json:"format"`
	Quantity  int              `json:"quantity"`
	UnitPrice decimal.Decimal  `json:"unit_price"`
	LineTotal decimal.Decimal  `json:"line_total"`
}

type transactionResponse struct {
	ID        int64                          `json:"id"`
	Gateway   enums.PaymentGateway           `json:"gateway"`
	Reference string                         `json:"reference"`
	Status    enums.PaymentTransactionStatus `json:"status"`
	Amount    decimal.Decimal                `json:"amount"`
	Currency  enums.Currency                 `json:"currency"`
	ExpiresAt *time.Time                     `json:"expires_at,omitempty"`
	CreatedAt time.Time                      `json:"created_at"`
}

type statusChangeResponse struct {
	FromStatus *enums.OrderStatus `json:"from_status,omitempty"`
	ToStatus   enums.OrderStatus  `json:"to_status"`
	Actor      string             `json:"actor"`
	Reason     *string            `json:"reason,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

func newOrderResponse(order *models.Order, txns []models.PaymentTransaction, history []models.OrderStatusHistory) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			BookID:    item.BookID,
			Title:     item.Title,
			Format:    item.Format,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}
	resp := orderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		PaymentMethod:   order.PaymentMethod,
		Currency:        order.Currency,
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		ShippingFee:     order.ShippingFee,
		Discount:        order.Discount,
		Total:           order.Total,
		ShippingAddress: order.ShippingAddress,
		CreatedAt:       order.CreatedAt,
		Items:           items,
	}
	for _, txn := range txns {
		resp.Transactions = append(resp.Transactions, transactionResponse{
			ID:        txn.ID,
			Gateway:   txn.Gateway,
			Reference: txn.Reference,
			Status:    txn.Status,
			Amount:    txn.Amount,
			Currency:  txn.Currency,
			ExpiresAt: txn.ExpiresAt,
			CreatedAt: txn.CreatedAt,
		})
	}
	for _, row := range history {
		resp.History = append(resp.History, statusChangeResponse{
			FromStatus: row.FromStatus,
			ToStatus:   row.ToStatus,
			Actor:      row.Actor,
			Reason:     row.Reason,
			CreatedAt:  row.CreatedAt,
		})
	}
	return resp
}

func parseOrderID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id")
	}
	return id, nil
}

func buildOrderFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid status %q", raw))
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid payment_status %q", raw))
		}
		filters.PaymentStatus = &status
	}

	dateFrom, err := parseDateParam(r.URL.Query().Get("date_from"), "date_from")
	if err != nil {
		return filters, err
	}
	filters.DateFrom = dateFrom

	dateTo, err := parseDateParam(r.URL.Query().Get("date_to"), "date_to")
	if err != nil {
		return filters, err
	}
	filters.DateTo = dateTo

	return filters, nil
}

func parseDateParam(value, field string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		t, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid %s", field))
		}
	}
	return &t, nil
}

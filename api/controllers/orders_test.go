package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/api/middleware"
	"github.com/pagehaven/bookstore-backend/internal/banktransfer"
	"github.com/pagehaven/bookstore-backend/internal/checkout"
	internalorders "github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/internal/payments"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	"github.com/pagehaven/bookstore-backend/pkg/pagination"
	"github.com/pagehaven/bookstore-backend/pkg/types"
)

type fakeOrders struct {
	order *models.Order

	calls *[]string
}

func (f *fakeOrders) Get(ctx context.Context, orderID, requesterID int64, requesterRole enums.MemberRole) (*models.Order, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, "get")
	}
	return f.order, nil
}

func (f *fakeOrders) List(ctx context.Context, userID int64, params pagination.Params, filters internalorders.ListFilters) (*internalorders.OrderList, error) {
	return &internalorders.OrderList{}, nil
}

func (f *fakeOrders) History(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	return nil, nil
}

func (f *fakeOrders) Transition(ctx context.Context, tx *gorm.DB, input internalorders.TransitionInput) error {
	return nil
}

type fakePayments struct{}

func (fakePayments) CreateIntent(ctx context.Context, input payments.CreateIntentInput) (*payments.Intent, error) {
	return &payments.Intent{Gateway: input.Method, Reference: "PH-test"}, nil
}

func (fakePayments) TransactionsForOrder(ctx context.Context, orderID int64) ([]models.PaymentTransaction, error) {
	return nil, nil
}

type fakeBankTransfers struct {
	expired []int64
	calls   *[]string
}

func (f *fakeBankTransfers) SubmitProof(ctx context.Context, input banktransfer.SubmitProofInput) (*models.BankTransferProof, error) {
	return nil, nil
}

func (f *fakeBankTransfers) Review(ctx context.Context, input banktransfer.ReviewInput) (*models.BankTransferProof, error) {
	return nil, nil
}

func (f *fakeBankTransfers) ListPendingProofs(ctx context.Context, limit int) ([]banktransfer.PendingProof, error) {
	return nil, nil
}

func (f *fakeBankTransfers) ExpireOrderIfDue(ctx context.Context, orderID int64, now time.Time) (bool, error) {
	f.expired = append(f.expired, orderID)
	if f.calls != nil {
		*f.calls = append(*f.calls, "expire")
	}
	return false, nil
}

func (f *fakeBankTransfers) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func TestOrderDetailAppliesLazyExpiryBeforeRead(t *testing.T) {
	var calls []string
	owner := int64(7)
	ordersSvc := &fakeOrders{
		order: &models.Order{ID: 12, OrderNumber: "ORD-12", UserID: &owner, Status: enums.OrderStatusPendingPayment},
		calls: &calls,
	}
	transfers := &fakeBankTransfers{calls: &calls}

	r := chi.NewRouter()
	r.Get("/api/v1/orders/{orderID}", OrderDetail(ordersSvc, fakePayments{}, transfers, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/12", nil)
	req = req.WithContext(middleware.WithUser(req.Context(), 7, enums.RoleCustomer))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(transfers.expired) != 1 || transfers.expired[0] != 12 {
		t.Fatalf("expected expiry check for order 12, got %v", transfers.expired)
	}
	if len(calls) == 0 || calls[0] != "expire" {
		t.Fatalf("expiry must run before the order read, got %v", calls)
	}

	var body types.SuccessEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	data := body.Data.(map[string]any)
	if data["order_number"] != "ORD-12" {
		t.Fatalf("unexpected order payload %v", data)
	}
}

func TestOrderDetailRejectsBadID(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/orders/{orderID}", OrderDetail(&fakeOrders{}, fakePayments{}, &fakeBankTransfers{}, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/not-a-number", nil)
	req = req.WithContext(middleware.WithUser(req.Context(), 7, enums.RoleCustomer))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreateOrderRequiresUserContext(t *testing.T) {
	checkoutStub := checkoutFunc(func(ctx context.Context, input checkout.CreateOrderInput) (*models.Order, error) {
		t.Fatal("service must not run without a caller")
		return nil, nil
	})
	handler := CreateOrder(checkoutStub, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCreateOrderValidatesCart(t *testing.T) {
	checkoutStub := checkoutFunc(func(ctx context.Context, input checkout.CreateOrderInput) (*models.Order, error) {
		t.Fatal("service must not run on an invalid cart")
		return nil, nil
	})

	handler := CreateOrder(checkoutStub, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{"items":[]}`))
	req = req.WithContext(middleware.WithUser(req.Context(), 7, enums.RoleCustomer))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

type checkoutFunc func(ctx context.Context, input checkout.CreateOrderInput) (*models.Order, error)

func (f checkoutFunc) CreateOrder(ctx context.Context, input checkout.CreateOrderInput) (*models.Order, error) {
	return f(ctx, input)
}

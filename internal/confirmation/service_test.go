package confirmation

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pagehaven/bookstore-backend/internal/fulfillment"
	"github.com/pagehaven/bookstore-backend/internal/inventory"
	"github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/internal/payments"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
	"github.com/pagehaven/bookstore-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// fakeGateway replays a canned outcome so webhook tests control the provider
// response without signing real payloads.
type fakeGateway struct {
	tag     enums.PaymentGateway
	outcome *payments.NormalizedOutcome
}

func (g *fakeGateway) Tag() enums.PaymentGateway { return g.tag }

func (g *fakeGateway) Initiate(ctx context.Context, order *models.Order, txn *models.PaymentTransaction, metadata map[string]string) (*payments.Intent, error) {
	return &payments.Intent{Gateway: g.tag, Reference: txn.Reference}, nil
}

func (g *fakeGateway) ParseCallback(ctx context.Context, payload []byte, signature string) (*payments.NormalizedOutcome, error) {
	return g.outcome, nil
}

type fixture struct {
	db      *gorm.DB
	svc     Service
	gateway *fakeGateway
	invSvc  inventory.Service
}

func setupConfirmation(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Book{}, &models.InventoryItem{}, &models.InventoryTransaction{},
		&models.Order{}, &models.OrderItem{}, &models.OrderStatusHistory{},
		&models.PaymentTransaction{},
		&models.LibraryEntry{}, &models.Shipment{}, &models.FulfillmentAttempt{},
		&models.OutboxEvent{},
	))

	logg := logger.New(logger.Options{ServiceName: "confirmation-test", Output: io.Discard})
	invSvc, err := inventory.NewService(inventory.NewRepository(db), logg)
	require.NoError(t, err)
	obSvc := outbox.NewService(outbox.NewRepository(db), logg)
	ordersSvc, err := orders.NewService(orders.NewRepository(db))
	require.NoError(t, err)
	fulfillSvc, err := fulfillment.NewService(fulfillment.NewRepository(db), obSvc, logg)
	require.NoError(t, err)

	gateway := &fakeGateway{tag: enums.GatewayFlutterwave}
	svc, err := NewService(
		payments.NewRegistryWith(gateway),
		payments.NewRepository(db),
		ordersSvc,
		orders.NewRepository(db),
		invSvc,
		fulfillSvc,
		obSvc,
		gormTxRunner{db: db},
		nil,
		logg,
	)
	require.NoError(t, err)
	return &fixture{db: db, svc: svc, gateway: gateway, invSvc: invSvc}
}

// seedPendingOrder creates a reserved pending_payment order with one ebook
// line and an initiated transaction, the state checkout and intent creation
// leave behind.
func (f *fixture) seedPendingOrder(t *testing.T, orderID int64, reference string, stock int) *models.Order {
	t.Helper()
	require.NoError(t, f.db.Create(&models.InventoryItem{
		BookID:          1,
		StockQty:        stock,
		TrackingEnabled: true,
	}).Error)

	owner := int64(7)
	order := &models.Order{
		ID:            orderID,
		OrderNumber:   orders.GenerateOrderNumber(time.Now()),
		UserID:        &owner,
		Status:        enums.OrderStatusPendingPayment,
		PaymentStatus: enums.PaymentStatusPending,
		Currency:      enums.CurrencyNGN,
		Subtotal:      decimal.NewFromInt(2500),
		Total:         decimal.NewFromInt(2500),
		Items: []models.OrderItem{{
			BookID:    1,
			Title:     "book",
			Format:    enums.FormatEbook,
			Quantity:  1,
			UnitPrice: decimal.NewFromInt(2500),
			LineTotal: decimal.NewFromInt(2500),
		}},
	}
	require.NoError(t, f.db.Create(order).Error)
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.invSvc.Reserve(context.Background(), tx, orderID, []inventory.Line{{BookID: 1, Quantity: 1}}, "test")
	}))

	require.NoError(t, f.db.Create(&models.PaymentTransaction{
		OrderID:   orderID,
		Gateway:   enums.GatewayFlutterwave,
		Reference: reference,
		Amount:    order.Total,
		Currency:  order.Currency,
		Status:    enums.PaymentTxnInitiated,
	}).Error)
	return order
}

func (f *fixture) deliver(t *testing.T, reference string, status enums.CallbackStatus) error {
	t.Helper()
	f.gateway.outcome = &payments.NormalizedOutcome{
		Reference:   reference,
		ExternalRef: "EXT-1",
		Status:      status,
		Amount:      decimal.NewFromInt(2500),
		Currency:    enums.CurrencyNGN,
		Raw:         json.RawMessage(`{"status":"` + string(status) + `"}`),
	}
	return f.svc.HandleWebhook(context.Background(), enums.GatewayFlutterwave, []byte(`{}`), "sig")
}

func TestWebhookSuccessSettlesOrder(t *testing.T) {
	f := setupConfirmation(t)
	f.seedPendingOrder(t, 100, "PH-100", 5)

	require.NoError(t, f.deliver(t, "PH-100", enums.CallbackSucceeded))

	var txn models.PaymentTransaction
	require.NoError(t, f.db.Where("reference = ?", "PH-100").First(&txn).Error)
	require.Equal(t, enums.PaymentTxnSucceeded, txn.Status)
	require.NotNil(t, txn.ExternalRef)
	require.Equal(t, "EXT-1", *txn.ExternalRef)

	var order models.Order
	require.NoError(t, f.db.First(&order, 100).Error)
	require.Equal(t, enums.OrderStatusProcessing, order.Status)
	require.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)

	var item models.InventoryItem
	require.NoError(t, f.db.Where("book_id = ?", 1).First(&item).Error)
	require.Equal(t, 4, item.StockQty)
	require.Zero(t, item.ReservedQty)

	var entryCount int64
	require.NoError(t, f.db.Model(&models.LibraryEntry{}).Count(&entryCount).Error)
	require.Equal(t, int64(1), entryCount)

	var history []models.OrderStatusHistory
	require.NoError(t, f.db.Where("order_id = ?", 100).Order("id ASC").Find(&history).Error)
	require.Len(t, history, 2)
	require.Equal(t, enums.OrderStatusPaid, history[0].ToStatus)
	require.Equal(t, enums.OrderStatusProcessing, history[1].ToStatus)

	var eventTypes []enums.OutboxEventType
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Order("id ASC").Pluck("event_type", &eventTypes).Error)
	require.Contains(t, eventTypes, enums.EventOrderPaid)
	require.Contains(t, eventTypes, enums.EventFulfillmentCompleted)
}

func TestDuplicateWebhookIsNoOp(t *testing.T) {
	f := setupConfirmation(t)
	f.seedPendingOrder(t, 100, "PH-100", 5)

	require.NoError(t, f.deliver(t, "PH-100", enums.CallbackSucceeded))
	require.NoError(t, f.deliver(t, "PH-100", enums.CallbackSucceeded))

	var ledgerCount, entryCount, eventCount, historyCount int64
	require.NoError(t, f.db.Model(&models.InventoryTransaction{}).Count(&ledgerCount).Error)
	require.NoError(t, f.db.Model(&models.LibraryEntry{}).Count(&entryCount).Error)
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Count(&eventCount).Error)
	require.NoError(t, f.db.Model(&models.OrderStatusHistory{}).Count(&historyCount).Error)
	require.Equal(t, int64(2), ledgerCount) // reserve + commit
	require.Equal(t, int64(1), entryCount)
	require.Equal(t, int64(2), eventCount) // order.paid + fulfillment.completed
	require.Equal(t, int64(2), historyCount)
}

func TestWebhookFailureReleasesReservation(t *testing.T) {
	f := setupConfirmation(t)
	f.seedPendingOrder(t, 100, "PH-100", 5)

	require.NoError(t, f.deliver(t, "PH-100", enums.CallbackFailed))

	var txn models.PaymentTransaction
	require.NoError(t, f.db.Where("reference = ?", "PH-100").First(&txn).Error)
	require.Equal(t, enums.PaymentTxnFailed, txn.Status)

	var order models.Order
	require.NoError(t, f.db.First(&order, 100).Error)
	require.Equal(t, enums.OrderStatusPaymentFailed, order.Status)
	require.Equal(t, enums.PaymentStatusFailed, order.PaymentStatus)

	var item models.InventoryItem
	require.NoError(t, f.db.Where("book_id = ?", 1).First(&item).Error)
	require.Equal(t, 5, item.StockQty)
	require.Zero(t, item.ReservedQty)

	var event models.OutboxEvent
	require.NoError(t, f.db.Where("event_type = ?", enums.EventOrderPaymentFailed).First(&event).Error)
}

func TestPendingOutcomeOnlyRecordsPayload(t *testing.T) {
	f := setupConfirmation(t)
	f.seedPendingOrder(t, 100, "PH-100", 5)

	require.NoError(t, f.deliver(t, "PH-100", enums.CallbackPending))

	var txn models.PaymentTransaction
	require.NoError(t, f.db.Where("reference = ?", "PH-100").First(&txn).Error)
	require.Equal(t, enums.PaymentTxnInitiated, txn.Status)
	require.NotEmpty(t, txn.LastPayload)

	var order models.Order
	require.NoError(t, f.db.First(&order, 100).Error)
	require.Equal(t, enums.OrderStatusPendingPayment, order.Status)
}

func TestAtMostOneSuccessAcrossTransactions(t *testing.T) {
	f := setupConfirmation(t)
	order := f.seedPendingOrder(t, 100, "PH-first", 5)
	require.NoError(t, f.db.Create(&models.PaymentTransaction{
		OrderID:   order.ID,
		Gateway:   enums.GatewayFlutterwave,
		Reference: "PH-second",
		Amount:    order.Total,
		Currency:  order.Currency,
		Status:    enums.PaymentTxnInitiated,
	}).Error)

	require.NoError(t, f.deliver(t, "PH-first", enums.CallbackSucceeded))
	require.NoError(t, f.deliver(t, "PH-second", enums.CallbackSucceeded))

	var succeeded int64
	require.NoError(t, f.db.Model(&models.PaymentTransaction{}).
		Where("status = ?", enums.PaymentTxnSucceeded).
		Count(&succeeded).Error)
	require.Equal(t, int64(1), succeeded)

	var second models.PaymentTransaction
	require.NoError(t, f.db.Where("reference = ?", "PH-second").First(&second).Error)
	require.Equal(t, enums.PaymentTxnInitiated, second.Status)
}

func TestManualVerifySetsReviewer(t *testing.T) {
	f := setupConfirmation(t)
	f.seedPendingOrder(t, 100, "PH-100", 5)

	reviewer := int64(42)
	require.NoError(t, f.svc.ApplyOutcome(context.Background(), OutcomeInput{
		Reference:  "PH-100",
		Status:     enums.CallbackSucceeded,
		Actor:      "admin:42",
		VerifiedBy: &reviewer,
	}))

	var txn models.PaymentTransaction
	require.NoError(t, f.db.Where("reference = ?", "PH-100").First(&txn).Error)
	require.Equal(t, enums.PaymentTxnSucceeded, txn.Status)
	require.NotNil(t, txn.VerifiedBy)
	require.Equal(t, reviewer, *txn.VerifiedBy)
	require.NotNil(t, txn.VerifiedAt)

	var order models.Order
	require.NoError(t, f.db.First(&order, 100).Error)
	require.Equal(t, enums.OrderStatusProcessing, order.Status)
}

package banktransfer

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pagehaven/bookstore-backend/internal/confirmation"
	"github.com/pagehaven/bookstore-backend/internal/fulfillment"
	"github.com/pagehaven/bookstore-backend/internal/inventory"
	"github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/internal/payments"
	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
	"github.com/pagehaven/bookstore-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fixture struct {
	db     *gorm.DB
	svc    Service
	invSvc inventory.Service
}

func setupBankTransfer(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Book{}, &models.InventoryItem{}, &models.InventoryTransaction{},
		&models.Order{}, &models.OrderItem{}, &models.OrderStatusHistory{},
		&models.PaymentTransaction{}, &models.BankTransferProof{},
		&models.LibraryEntry{}, &models.Shipment{}, &models.FulfillmentAttempt{},
		&models.OutboxEvent{},
	))

	logg := logger.New(logger.Options{ServiceName: "banktransfer-test", Output: io.Discard})
	invSvc, err := inventory.NewService(inventory.NewRepository(db), logg)
	require.NoError(t, err)
	obSvc := outbox.NewService(outbox.NewRepository(db), logg)
	ordersSvc, err := orders.NewService(orders.NewRepository(db))
	require.NoError(t, err)
	fulfillSvc, err := fulfillment.NewService(fulfillment.NewRepository(db), obSvc, logg)
	require.NoError(t, err)

	paymentsRepo := payments.NewRepository(db)
	confirmSvc, err := confirmation.NewService(
		payments.NewRegistryWith(),
		paymentsRepo,
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

	svc, err := NewService(
		NewRepository(db),
		paymentsRepo,
		ordersSvc,
		orders.NewRepository(db),
		invSvc,
		confirmSvc,
		obSvc,
		gormTxRunner{db: db},
		config.BankTransferConfig{Expiry: 48 * time.Hour, MaxProofAttempts: 2},
		logg,
	)
	require.NoError(t, err)
	return &fixture{db: db, svc: svc, invSvc: invSvc}
}

// seedBankOrder creates a reserved pending order with a pending_review bank
// transfer transaction expiring at the given time.
func (f *fixture) seedBankOrder(t *testing.T, orderID int64, expiresAt time.Time) *models.PaymentTransaction {
	t.Helper()
	require.NoError(t, f.db.Create(&models.InventoryItem{
		BookID:          1,
		StockQty:        5,
		TrackingEnabled: true,
	}).Error)

	method := enums.GatewayBankTransfer
	owner := int64(7)
	order := &models.Order{
		ID:            orderID,
		OrderNumber:   orders.GenerateOrderNumber(time.Now()),
		UserID:        &owner,
		Status:        enums.OrderStatusPendingPayment,
		PaymentStatus: enums.PaymentStatusPending,
		PaymentMethod: &method,
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

	txn := &models.PaymentTransaction{
		OrderID:   orderID,
		Gateway:   enums.GatewayBankTransfer,
		Reference: "PH-bank",
		Amount:    order.Total,
		Currency:  order.Currency,
		Status:    enums.PaymentTxnPendingReview,
		ExpiresAt: &expiresAt,
	}
	require.NoError(t, f.db.Create(txn).Error)
	return txn
}

func TestRejectThenVerifySettlesOnce(t *testing.T) {
	f := setupBankTransfer(t)
	txn := f.seedBankOrder(t, 200, time.Now().Add(48*time.Hour))
	ctx := context.Background()

	first, err := f.svc.SubmitProof(ctx, SubmitProofInput{
		TransactionID: txn.ID, UserID: 7, FileURL: "uploads/proof-1.jpg",
	})
	require.NoError(t, err)

	rejected, err := f.svc.Review(ctx, ReviewInput{
		ProofID: first.ID, ReviewerID: 42, Action: ActionReject, Notes: "illegible",
	})
	require.NoError(t, err)
	require.Equal(t, enums.ProofRejected, rejected.Status)
	require.NotNil(t, rejected.AdminNotes)
	require.Equal(t, "illegible", *rejected.AdminNotes)

	var order models.Order
	require.NoError(t, f.db.First(&order, 200).Error)
	require.Equal(t, enums.OrderStatusPendingPayment, order.Status)

	second, err := f.svc.SubmitProof(ctx, SubmitProofInput{
		TransactionID: txn.ID, UserID: 7, FileURL: "uploads/proof-2.jpg",
	})
	require.NoError(t, err)

	verified, err := f.svc.Review(ctx, ReviewInput{
		ProofID: second.ID, ReviewerID: 42, Action: ActionVerify,
	})
	require.NoError(t, err)
	require.Equal(t, enums.ProofVerified, verified.Status)

	require.NoError(t, f.db.First(&order, 200).Error)
	require.Equal(t, enums.OrderStatusProcessing, order.Status)
	require.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)

	var succeeded int64
	require.NoError(t, f.db.Model(&models.PaymentTransaction{}).
		Where("status = ?", enums.PaymentTxnSucceeded).Count(&succeeded).Error)
	require.Equal(t, int64(1), succeeded)

	// the rejected proof survives as rejected
	var statuses []enums.ProofStatus
	require.NoError(t, f.db.Model(&models.BankTransferProof{}).Order("id ASC").Pluck("status", &statuses).Error)
	require.Equal(t, []enums.ProofStatus{enums.ProofRejected, enums.ProofVerified}, statuses)

	var txnRow models.PaymentTransaction
	require.NoError(t, f.db.First(&txnRow, txn.ID).Error)
	require.NotNil(t, txnRow.VerifiedBy)
	require.Equal(t, int64(42), *txnRow.VerifiedBy)
}

func TestRejectionBudgetFailsOrder(t *testing.T) {
	f := setupBankTransfer(t)
	txn := f.seedBankOrder(t, 200, time.Now().Add(48*time.Hour))
	ctx := context.Background()

	for attempt := 1; attempt <= 2; attempt++ {
		proof, err := f.svc.SubmitProof(ctx, SubmitProofInput{
			TransactionID: txn.ID, UserID: 7, FileURL: "uploads/proof.jpg",
		})
		require.NoError(t, err)
		_, err = f.svc.Review(ctx, ReviewInput{
			ProofID: proof.ID, ReviewerID: 42, Action: ActionReject, Notes: "wrong account",
		})
		require.NoError(t, err)
	}

	var order models.Order
	require.NoError(t, f.db.First(&order, 200).Error)
	require.Equal(t, enums.OrderStatusPaymentFailed, order.Status)

	var item models.InventoryItem
	require.NoError(t, f.db.Where("book_id = ?", 1).First(&item).Error)
	require.Equal(t, 5, item.StockQty)
	require.Zero(t, item.ReservedQty)

	_, err := f.svc.SubmitProof(ctx, SubmitProofInput{
		TransactionID: txn.ID, UserID: 7, FileURL: "uploads/proof.jpg",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestSubmitProofGuards(t *testing.T) {
	f := setupBankTransfer(t)
	txn := f.seedBankOrder(t, 200, time.Now().Add(48*time.Hour))
	ctx := context.Background()

	_, err := f.svc.SubmitProof(ctx, SubmitProofInput{TransactionID: txn.ID, UserID: 9, FileURL: "x"})
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())

	_, err = f.svc.SubmitProof(ctx, SubmitProofInput{TransactionID: txn.ID, UserID: 7})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = f.svc.SubmitProof(ctx, SubmitProofInput{TransactionID: txn.ID, UserID: 7, FileURL: "x"})
	require.NoError(t, err)

	// one pending proof at a time
	_, err = f.svc.SubmitProof(ctx, SubmitProofInput{TransactionID: txn.ID, UserID: 7, FileURL: "x"})
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestDuplicateReviewIsNoOp(t *testing.T) {
	f := setupBankTransfer(t)
	txn := f.seedBankOrder(t, 200, time.Now().Add(48*time.Hour))
	ctx := context.Background()

	proof, err := f.svc.SubmitProof(ctx, SubmitProofInput{
		TransactionID: txn.ID, UserID: 7, FileURL: "uploads/proof.jpg",
	})
	require.NoError(t, err)

	_, err = f.svc.Review(ctx, ReviewInput{ProofID: proof.ID, ReviewerID: 42, Action: ActionVerify})
	require.NoError(t, err)
	_, err = f.svc.Review(ctx, ReviewInput{ProofID: proof.ID, ReviewerID: 42, Action: ActionVerify})
	require.NoError(t, err)

	var historyCount int64
	require.NoError(t, f.db.Model(&models.OrderStatusHistory{}).Count(&historyCount).Error)
	require.Equal(t, int64(2), historyCount) // paid + processing, once

	_, err = f.svc.Review(ctx, ReviewInput{ProofID: proof.ID, ReviewerID: 42, Action: ActionReject})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestExpiryCancelsAndReleases(t *testing.T) {
	f := setupBankTransfer(t)
	txn := f.seedBankOrder(t, 200, time.Now().Add(-time.Hour))
	ctx := context.Background()

	now := time.Now()
	expired, err := f.svc.ExpireDue(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	var order models.Order
	require.NoError(t, f.db.First(&order, 200).Error)
	require.Equal(t, enums.OrderStatusCancelled, order.Status)
	require.Equal(t, enums.PaymentStatusFailed, order.PaymentStatus)

	var item models.InventoryItem
	require.NoError(t, f.db.Where("book_id = ?", 1).First(&item).Error)
	require.Equal(t, 5, item.StockQty)
	require.Zero(t, item.ReservedQty)

	var txnRow models.PaymentTransaction
	require.NoError(t, f.db.First(&txnRow, txn.ID).Error)
	require.Equal(t, enums.PaymentTxnFailed, txnRow.Status)

	// sweeping again finds nothing to do
	expired, err = f.svc.ExpireDue(ctx, now)
	require.NoError(t, err)
	require.Zero(t, expired)

	var eventTypes []enums.OutboxEventType
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Order("id ASC").Pluck("event_type", &eventTypes).Error)
	require.Contains(t, eventTypes, enums.EventOrderExpired)
	require.Contains(t, eventTypes, enums.EventOrderCancelled)

	// a late proof upload is refused
	_, err = f.svc.SubmitProof(ctx, SubmitProofInput{
		TransactionID: txn.ID, UserID: 7, FileURL: "uploads/late.jpg",
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestLazyExpiryOnRead(t *testing.T) {
	f := setupBankTransfer(t)
	f.seedBankOrder(t, 200, time.Now().Add(-time.Minute))

	did, err := f.svc.ExpireOrderIfDue(context.Background(), 200, time.Now())
	require.NoError(t, err)
	require.True(t, did)

	// second evaluation is stable
	did, err = f.svc.ExpireOrderIfDue(context.Background(), 200, time.Now())
	require.NoError(t, err)
	require.False(t, did)

	var order models.Order
	require.NoError(t, f.db.First(&order, 200).Error)
	require.Equal(t, enums.OrderStatusCancelled, order.Status)
}

package payments

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// stubGateway stands in for a hosted provider so intent tests never hit the
// network.
type stubGateway struct {
	tag       enums.PaymentGateway
	initErr   error
	initCalls int
}

func (g *stubGateway) Tag() enums.PaymentGateway { return g.tag }

func (g *stubGateway) Initiate(ctx context.Context, order *models.Order, txn *models.PaymentTransaction, metadata map[string]string) (*Intent, error) {
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	link := "https://pay.example.com/" + txn.Reference
	return &Intent{Gateway: g.tag, Reference: txn.Reference, RedirectURL: &link}, nil
}

func (g *stubGateway) ParseCallback(ctx context.Context, payload []byte, signature string) (*NormalizedOutcome, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "not implemented")
}

func setupPayments(t *testing.T, gateways ...Gateway) (*gorm.DB, Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Order{}, &models.OrderItem{}, &models.OrderStatusHistory{}, &models.PaymentTransaction{},
	))

	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})
	ordersSvc, err := orders.NewService(orders.NewRepository(db))
	require.NoError(t, err)

	svc, err := NewService(NewRepository(db), ordersSvc, NewRegistryWith(gateways...), gormTxRunner{db: db}, logg)
	require.NoError(t, err)
	return db, svc
}

func seedOrder(t *testing.T, db *gorm.DB, id, userID int64, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            id,
		UserID:        &userID,
		OrderNumber:   orders.GenerateOrderNumber(time.Now()),
		Status:        status,
		PaymentStatus: enums.PaymentStatusPending,
		Currency:      enums.CurrencyNGN,
		Subtotal:      decimal.NewFromInt(4500),
		Total:         decimal.NewFromInt(4500),
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestCreateIntentPersistsTransactionAndReturnsRedirect(t *testing.T) {
	stub := &stubGateway{tag: enums.GatewayFlutterwave}
	db, svc := setupPayments(t, stub)
	seedOrder(t, db, 1, 7, enums.OrderStatusPendingPayment)

	intent, err := svc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID: 1, UserID: 7, Role: enums.RoleCustomer, Method: enums.GatewayFlutterwave,
	})
	require.NoError(t, err)
	require.NotNil(t, intent.RedirectURL)
	require.Equal(t, 1, stub.initCalls)

	var txn models.PaymentTransaction
	require.NoError(t, db.Where("order_id = ?", 1).First(&txn).Error)
	require.Equal(t, enums.PaymentTxnInitiated, txn.Status)
	require.Regexp(t, `^PH-`, txn.Reference)
	require.True(t, decimal.NewFromInt(4500).Equal(txn.Amount))

	var order models.Order
	require.NoError(t, db.First(&order, 1).Error)
	require.NotNil(t, order.PaymentMethod)
	require.Equal(t, enums.GatewayFlutterwave, *order.PaymentMethod)
}

func TestCreateIntentBankTransferStartsPendingReview(t *testing.T) {
	gw := NewBankTransferGateway(config.BankTransferConfig{
		BankName:      "Zenith Bank",
		AccountName:   "PageHaven Ltd",
		AccountNumber: "1234567890",
		Expiry:        48 * time.Hour,
	})
	db, svc := setupPayments(t, gw)
	seedOrder(t, db, 1, 7, enums.OrderStatusPendingPayment)

	intent, err := svc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID: 1, UserID: 7, Role: enums.RoleCustomer, Method: enums.GatewayBankTransfer,
	})
	require.NoError(t, err)
	require.NotNil(t, intent.BankAccount)
	require.NotNil(t, intent.ExpiresAt)

	var txn models.PaymentTransaction
	require.NoError(t, db.Where("order_id = ?", 1).First(&txn).Error)
	require.Equal(t, enums.PaymentTxnPendingReview, txn.Status)
	require.NotNil(t, txn.ExpiresAt)
}

// noFollowUpRepo fails any update outside the creation transaction, proving
// the bank transfer deadline is persisted by the insert itself.
type noFollowUpRepo struct {
	Repository
}

func (noFollowUpRepo) Update(ctx context.Context, id int64, updates map[string]any) error {
	return errors.New("unexpected follow-up update")
}

func TestCreateIntentBankTransferDeadlineCommitsWithRow(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Order{}, &models.OrderItem{}, &models.OrderStatusHistory{}, &models.PaymentTransaction{},
	))

	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})
	ordersSvc, err := orders.NewService(orders.NewRepository(db))
	require.NoError(t, err)
	gw := NewBankTransferGateway(config.BankTransferConfig{
		BankName:      "Zenith Bank",
		AccountName:   "PageHaven Ltd",
		AccountNumber: "1234567890",
		Expiry:        48 * time.Hour,
	})
	svc, err := NewService(noFollowUpRepo{NewRepository(db)}, ordersSvc, NewRegistryWith(gw), gormTxRunner{db: db}, logg)
	require.NoError(t, err)

	seedOrder(t, db, 1, 7, enums.OrderStatusPendingPayment)

	intent, err := svc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID: 1, UserID: 7, Role: enums.RoleCustomer, Method: enums.GatewayBankTransfer,
	})
	require.NoError(t, err)
	require.NotNil(t, intent.ExpiresAt)

	var txn models.PaymentTransaction
	require.NoError(t, db.Where("order_id = ?", 1).First(&txn).Error)
	require.Equal(t, enums.PaymentTxnPendingReview, txn.Status)
	require.NotNil(t, txn.ExpiresAt)
	require.WithinDuration(t, *intent.ExpiresAt, *txn.ExpiresAt, time.Second)
}

func TestCreateIntentRetryMovesOrderBackToPending(t *testing.T) {
	stub := &stubGateway{tag: enums.GatewayFlutterwave}
	db, svc := setupPayments(t, stub)
	seedOrder(t, db, 1, 7, enums.OrderStatusPaymentFailed)

	_, err := svc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID: 1, UserID: 7, Role: enums.RoleCustomer, Method: enums.GatewayFlutterwave,
	})
	require.NoError(t, err)

	var order models.Order
	require.NoError(t, db.First(&order, 1).Error)
	require.Equal(t, enums.OrderStatusPendingPayment, order.Status)

	var history models.OrderStatusHistory
	require.NoError(t, db.Where("order_id = ?", 1).First(&history).Error)
	require.NotNil(t, history.Reason)
	require.Equal(t, "payment retry", *history.Reason)
}

func TestCreateIntentRejectsSettledOrder(t *testing.T) {
	stub := &stubGateway{tag: enums.GatewayFlutterwave}
	db, svc := setupPayments(t, stub)
	order := seedOrder(t, db, 1, 7, enums.OrderStatusPendingPayment)
	require.NoError(t, db.Create(&models.PaymentTransaction{
		OrderID:   order.ID,
		Gateway:   enums.GatewayFlutterwave,
		Reference: "PH-done",
		Amount:    order.Total,
		Currency:  order.Currency,
		Status:    enums.PaymentTxnSucceeded,
	}).Error)

	_, err := svc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID: 1, UserID: 7, Role: enums.RoleCustomer, Method: enums.GatewayFlutterwave,
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	require.Zero(t, stub.initCalls)
}

func TestCreateIntentRejectsWrongStatusAndOwner(t *testing.T) {
	stub := &stubGateway{tag: enums.GatewayFlutterwave}
	db, svc := setupPayments(t, stub)
	seedOrder(t, db, 1, 7, enums.OrderStatusPaid)
	seedOrder(t, db, 2, 9, enums.OrderStatusPendingPayment)

	_, err := svc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID: 1, UserID: 7, Role: enums.RoleCustomer, Method: enums.GatewayFlutterwave,
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	_, err = svc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID: 2, UserID: 7, Role: enums.RoleCustomer, Method: enums.GatewayFlutterwave,
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestCreateIntentUnavailableMethodFails(t *testing.T) {
	db, svc := setupPayments(t)
	seedOrder(t, db, 1, 7, enums.OrderStatusPendingPayment)

	_, err := svc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID: 1, UserID: 7, Role: enums.RoleCustomer, Method: enums.GatewayStripe,
	})
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestCreateIntentProviderFailureLeavesTxnInitiated(t *testing.T) {
	stub := &stubGateway{
		tag:     enums.GatewayFlutterwave,
		initErr: pkgerrors.New(pkgerrors.CodeDependency, "provider timeout"),
	}
	db, svc := setupPayments(t, stub)
	seedOrder(t, db, 1, 7, enums.OrderStatusPendingPayment)

	_, err := svc.CreateIntent(context.Background(), CreateIntentInput{
		OrderID: 1, UserID: 7, Role: enums.RoleCustomer, Method: enums.GatewayFlutterwave,
	})
	require.Error(t, err)

	var txn models.PaymentTransaction
	require.NoError(t, db.Where("order_id = ?", 1).First(&txn).Error)
	require.Equal(t, enums.PaymentTxnInitiated, txn.Status)
}

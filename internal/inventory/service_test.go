package inventory

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

func setupService(t *testing.T) (*gorm.DB, Service) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.InventoryItem{}, &models.InventoryTransaction{}))

	svc, err := NewService(NewRepository(db), logger.New(logger.Options{ServiceName: "inventory-test", Output: io.Discard}))
	require.NoError(t, err)
	return db, svc
}

func seedItem(t *testing.T, db *gorm.DB, bookID int64, stock int, tracked bool) {
	t.Helper()
	require.NoError(t, db.Create(&models.InventoryItem{
		BookID:          bookID,
		StockQty:        stock,
		TrackingEnabled: tracked,
	}).Error)
	// gorm substitutes the column default for a zero-valued bool on insert, so
	// tracked=false needs an explicit update to actually persist.
	if !tracked {
		require.NoError(t, db.Model(&models.InventoryItem{}).
			Where("book_id = ?", bookID).
			Update("tracking_enabled", false).Error)
	}
}

func getItem(t *testing.T, db *gorm.DB, bookID int64) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, db.Where("book_id = ?", bookID).First(&item).Error)
	return item
}

func TestReserveHoldsStockAndAppendsLedger(t *testing.T) {
	db, svc := setupService(t)
	seedItem(t, db, 1, 10, true)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, 100, []Line{{BookID: 1, Quantity: 3}}, "customer:7")
	})
	require.NoError(t, err)

	item := getItem(t, db, 1)
	require.Equal(t, 7, item.StockQty)
	require.Equal(t, 3, item.ReservedQty)

	var row models.InventoryTransaction
	require.NoError(t, db.First(&row).Error)
	require.Equal(t, enums.InventoryOpReserve, row.Op)
	require.Equal(t, -3, row.Delta)
	require.Equal(t, 7, row.ResultingStock)
	require.NotNil(t, row.OrderID)
	require.Equal(t, int64(100), *row.OrderID)
}

func TestReserveRejectsInsufficientStock(t *testing.T) {
	db, svc := setupService(t)
	seedItem(t, db, 1, 2, true)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, 100, []Line{{BookID: 1, Quantity: 5}}, "customer:7")
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())

	item := getItem(t, db, 1)
	require.Equal(t, 2, item.StockQty)
	require.Equal(t, 0, item.ReservedQty)

	var count int64
	require.NoError(t, db.Model(&models.InventoryTransaction{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestReserveAllOrNothingAcrossLines(t *testing.T) {
	db, svc := setupService(t)
	seedItem(t, db, 1, 10, true)
	seedItem(t, db, 2, 1, true)

	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, 100, []Line{
			{BookID: 1, Quantity: 2},
			{BookID: 2, Quantity: 4},
		}, "customer:7")
	})
	require.Error(t, err)

	// first line's hold rolled back with the transaction
	require.Equal(t, 10, getItem(t, db, 1).StockQty)
	require.Equal(t, 1, getItem(t, db, 2).StockQty)
}

func TestReserveIsIdempotentPerOrder(t *testing.T) {
	db, svc := setupService(t)
	seedItem(t, db, 1, 10, true)

	reserve := func() error {
		return db.Transaction(func(tx *gorm.DB) error {
			return svc.Reserve(context.Background(), tx, 100, []Line{{BookID: 1, Quantity: 3}}, "customer:7")
		})
	}
	require.NoError(t, reserve())
	require.NoError(t, reserve())

	item := getItem(t, db, 1)
	require.Equal(t, 7, item.StockQty)
	require.Equal(t, 3, item.ReservedQty)
}

func TestReleaseRestoresStock(t *testing.T) {
	db, svc := setupService(t)
	seedItem(t, db, 1, 10, true)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, 100, []Line{{BookID: 1, Quantity: 4}}, "customer:7")
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Release(context.Background(), tx, 100, []Line{{BookID: 1, Quantity: 4}}, "system")
	}))

	item := getItem(t, db, 1)
	require.Equal(t, 10, item.StockQty)
	require.Equal(t, 0, item.ReservedQty)
}

func TestCommitConvertsReservationWithoutMovingStock(t *testing.T) {
	db, svc := setupService(t)
	seedItem(t, db, 1, 10, true)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, 100, []Line{{BookID: 1, Quantity: 4}}, "customer:7")
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Commit(context.Background(), tx, 100, []Line{{BookID: 1, Quantity: 4}}, "system")
	}))

	item := getItem(t, db, 1)
	require.Equal(t, 6, item.StockQty)
	require.Equal(t, 0, item.ReservedQty)

	var commitRow models.InventoryTransaction
	require.NoError(t, db.Where("op = ?", enums.InventoryOpCommit).First(&commitRow).Error)
	require.Zero(t, commitRow.Delta)
	require.Equal(t, 6, commitRow.ResultingStock)
}

func TestUntrackedBookBypassesReservation(t *testing.T) {
	db, svc := setupService(t)
	seedItem(t, db, 1, 0, false)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(context.Background(), tx, 100, []Line{{BookID: 1, Quantity: 99}}, "customer:7")
	}))

	var count int64
	require.NoError(t, db.Model(&models.InventoryTransaction{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAdjustRejectsNegativeResult(t *testing.T) {
	db, svc := setupService(t)
	seedItem(t, db, 1, 3, true)

	_, err := svc.Adjust(context.Background(), AdjustInput{BookID: 1, Delta: -5, Actor: "admin:1"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	require.Equal(t, 3, getItem(t, db, 1).StockQty)
}

func TestStockEqualsRunningLedgerSum(t *testing.T) {
	db, svc := setupService(t)
	seedItem(t, db, 1, 20, true)
	ctx := context.Background()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(ctx, tx, 100, []Line{{BookID: 1, Quantity: 5}}, "customer:7")
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Commit(ctx, tx, 100, []Line{{BookID: 1, Quantity: 5}}, "system")
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Reserve(ctx, tx, 101, []Line{{BookID: 1, Quantity: 2}}, "customer:8")
	}))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return svc.Release(ctx, tx, 101, []Line{{BookID: 1, Quantity: 2}}, "system")
	}))
	if _, err := svc.Adjust(ctx, AdjustInput{BookID: 1, Delta: 7, Actor: "admin:1", Note: "restock"}); err != nil {
		t.Fatal(err)
	}

	rows, err := svc.Ledger(ctx, 1)
	require.NoError(t, err)

	sum := 20
	for _, row := range rows {
		sum += row.Delta
	}
	require.Equal(t, sum, getItem(t, db, 1).StockQty)
}

package inventory

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

// Service exposes the stock operations used by checkout, payment confirmation
// and the admin surface. Reserve, Release and Commit are idempotent per
// (order, book): replaying an already-recorded operation is a no-op.
type Service interface {
	Reserve(ctx context.Context, tx *gorm.DB, orderID int64, lines []Line, actor string) error
	Release(ctx context.Context, tx *gorm.DB, orderID int64, lines []Line, actor string) error
	Commit(ctx context.Context, tx *gorm.DB, orderID int64, lines []Line, actor string) error
	Adjust(ctx context.Context, input AdjustInput) (*models.InventoryItem, error)
	GetItem(ctx context.Context, bookID int64) (*models.InventoryItem, error)
	Ledger(ctx context.Context, bookID int64) ([]models.InventoryTransaction, error)
}

// Line is one (book, quantity) pair taken from an order's items.
type Line struct {
	BookID   int64
	Quantity int
}

// AdjustInput captures a manual stock correction.
type AdjustInput struct {
	BookID int64
	Delta  int
	Actor  string
	Note   string
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires an inventory service with the provided repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// Reserve holds stock for every line or none of them. The caller supplies the
// transaction so a failed line rolls back earlier holds together with the
// order insert.
func (s *service) Reserve(ctx context.Context, tx *gorm.DB, orderID int64, lines []Line, actor string) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	for _, line := range lines {
		if err := s.applyOrderOp(ctx, repo, orderID, line, enums.InventoryOpReserve, actor); err != nil {
			return err
		}
	}
	return nil
}

// Release returns previously reserved stock, e.g. on payment failure or
// expiry.
func (s *service) Release(ctx context.Context, tx *gorm.DB, orderID int64, lines []Line, actor string) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	for _, line := range lines {
		if err := s.applyOrderOp(ctx, repo, orderID, line, enums.InventoryOpRelease, actor); err != nil {
			return err
		}
	}
	return nil
}

// Commit converts a reservation into a definitive sale once payment settles.
// Stock was already decremented at reserve time, so only the reserved counter
// moves; the ledger still gets a row so the sale is auditable.
func (s *service) Commit(ctx context.Context, tx *gorm.DB, orderID int64, lines []Line, actor string) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	for _, line := range lines {
		if err := s.applyOrderOp(ctx, repo, orderID, line, enums.InventoryOpCommit, actor); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) applyOrderOp(ctx context.Context, repo Repository, orderID int64, line Line, op enums.InventoryOp, actor string) error {
	if line.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	item, err := repo.GetItem(ctx, line.BookID)
	if err != nil {
		return err
	}
	if item == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found").
			WithDetails(map[string]any{"book_id": line.BookID})
	}
	if !item.TrackingEnabled {
		return nil
	}

	existing, err := repo.FindOrderOp(ctx, line.BookID, orderID, op)
	if err != nil {
		return err
	}
	if existing != nil {
		if s.logg != nil {
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"book_id": line.BookID, "order_id": orderID, "op": op,
			}), "inventory operation already recorded, skipping")
		}
		return nil
	}

	stockDelta, reservedDelta, guard := opDeltas(op, line.Quantity)
	applied, err := repo.ApplyDelta(ctx, line.BookID, stockDelta, reservedDelta, guard)
	if err != nil {
		return err
	}
	if !applied {
		if op == enums.InventoryOpReserve {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock to reserve").
				WithDetails(map[string]any{"book_id": line.BookID, "requested": line.Quantity, "available": item.StockQty})
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("inventory %s rejected", op)).
			WithDetails(map[string]any{"book_id": line.BookID, "order_id": orderID})
	}

	updated, err := repo.GetItem(ctx, line.BookID)
	if err != nil {
		return err
	}

	oID := orderID
	return repo.AppendLedger(ctx, &models.InventoryTransaction{
		BookID:         line.BookID,
		OrderID:        &oID,
		Op:             op,
		Delta:          stockDelta,
		ResultingStock: updated.StockQty,
		Actor:          actor,
	})
}

// opDeltas maps an operation to its counter movements. Commit leaves stock
// untouched (it moved at reserve time) and writes a zero-delta ledger row.
func opDeltas(op enums.InventoryOp, qty int) (stockDelta, reservedDelta int, guardStock bool) {
	switch op {
	case enums.InventoryOpReserve:
		return -qty, qty, true
	case enums.InventoryOpRelease:
		return qty, -qty, false
	case enums.InventoryOpCommit:
		return 0, -qty, false
	default:
		return 0, 0, false
	}
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.InventoryItem, error) {
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if input.Actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}

	item, err := s.repo.GetItem(ctx, input.BookID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found").
			WithDetails(map[string]any{"book_id": input.BookID})
	}

	applied, err := s.repo.ApplyDelta(ctx, input.BookID, input.Delta, 0, true)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "adjustment would take stock below zero").
			WithDetails(map[string]any{"book_id": input.BookID, "delta": input.Delta})
	}

	updated, err := s.repo.GetItem(ctx, input.BookID)
	if err != nil {
		return nil, err
	}

	var note *string
	if input.Note != "" {
		note = &input.Note
	}
	if err := s.repo.AppendLedger(ctx, &models.InventoryTransaction{
		BookID:         input.BookID,
		Op:             enums.InventoryOpAdjust,
		Delta:          input.Delta,
		ResultingStock: updated.StockQty,
		Actor:          input.Actor,
		Note:           note,
	}); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) GetItem(ctx context.Context, bookID int64) (*models.InventoryItem, error) {
	item, err := s.repo.GetItem(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
	}
	return item, nil
}

func (s *service) Ledger(ctx context.Context, bookID int64) ([]models.InventoryTransaction, error) {
	return s.repo.ListLedger(ctx, bookID)
}

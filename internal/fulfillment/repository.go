package fulfillment

import (
	"context"
	"errors"

	"gorm.io/gorm"

	dbpkg "github.com/pagehaven/bookstore-backend/pkg/db"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// Repository persists library grants, shipments and per-order attempt rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// GrantEntry inserts a library entry and reports whether the row is new.
	// A unique-constraint conflict means the user already owns the book and
	// is returned as (false, nil).
	GrantEntry(ctx context.Context, entry *models.LibraryEntry) (bool, error)
	ListEntriesByUser(ctx context.Context, userID int64) ([]models.LibraryEntry, error)
	// CreateShipment inserts the order's shipment record, reporting whether it
	// is new. The per-order unique index absorbs duplicate attempts.
	CreateShipment(ctx context.Context, shipment *models.Shipment) (bool, error)
	FindAttempt(ctx context.Context, orderID int64) (*models.FulfillmentAttempt, error)
	SaveAttempt(ctx context.Context, attempt *models.FulfillmentAttempt) error
	ListIncompleteAttempts(ctx context.Context, limit int) ([]models.FulfillmentAttempt, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a fulfillment repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GrantEntry(ctx context.Context, entry *models.LibraryEntry) (bool, error) {
	err := r.db.WithContext(ctx).Create(entry).Error
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_library_entries_user_book") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) ListEntriesByUser(ctx context.Context, userID int64) ([]models.LibraryEntry, error) {
	var entries []models.LibraryEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repository) CreateShipment(ctx context.Context, shipment *models.Shipment) (bool, error) {
	err := r.db.WithContext(ctx).Create(shipment).Error
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_shipments_order") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) FindAttempt(ctx context.Context, orderID int64) (*models.FulfillmentAttempt, error) {
	var attempt models.FulfillmentAttempt
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

func (r *repository) SaveAttempt(ctx context.Context, attempt *models.FulfillmentAttempt) error {
	return r.db.WithContext(ctx).Save(attempt).Error
}

func (r *repository) ListIncompleteAttempts(ctx context.Context, limit int) ([]models.FulfillmentAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	var attempts []models.FulfillmentAttempt
	err := r.db.WithContext(ctx).
		Where("digital_status = ? OR shipping_status = ?", enums.FulfillStepFailed, enums.FulfillStepFailed).
		Order("order_id ASC").
		Limit(limit).
		Find(&attempts).Error
	return attempts, err
}

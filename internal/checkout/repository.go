package checkout

import (
	"context"

	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/pkg/db/models"
)

// Repository loads the catalog rows checkout needs to snapshot a cart.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a checkout repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActiveBooksByIDs(ctx context.Context, ids []int64) ([]models.Book, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var books []models.Book
	err := r.db.WithContext(ctx).
		Where("id IN ? AND active = ?", ids, true).
		Find(&books).Error
	return books, err
}

package banktransfer

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// Repository persists bank transfer proofs and finds transactions whose
// payment window has lapsed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateProof(ctx context.Context, proof *models.BankTransferProof) (*models.BankTransferProof, error)
	FindProofByID(ctx context.Context, id int64) (*models.BankTransferProof, error)
	UpdateProof(ctx context.Context, id int64, updates map[string]any) error
	CountProofsForTransaction(ctx context.Context, transactionID int64) (int64, error)
	HasPendingProof(ctx context.Context, transactionID int64) (bool, error)
	ListProofsByStatus(ctx context.Context, status enums.ProofStatus, limit int) ([]models.BankTransferProof, error)
	// FindExpiredPendingReview returns bank transfer transactions past their
	// deadline that never settled.
	FindExpiredPendingReview(ctx context.Context, now time.Time, limit int) ([]models.PaymentTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a bank transfer repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateProof(ctx context.Context, proof *models.BankTransferProof) (*models.BankTransferProof, error) {
	if err := r.db.WithContext(ctx).Create(proof).Error; err != nil {
		return nil, err
	}
	return proof, nil
}

func (r *repository) FindProofByID(ctx context.Context, id int64) (*models.BankTransferProof, error) {
	var proof models.BankTransferProof
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&proof).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &proof, nil
}

func (r *repository) UpdateProof(ctx context.Context, id int64, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.BankTransferProof{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CountProofsForTransaction(ctx context.Context, transactionID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BankTransferProof{}).
		Where("transaction_id = ?", transactionID).
		Count(&count).Error
	return count, err
}

func (r *repository) HasPendingProof(ctx context.Context, transactionID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.BankTransferProof{}).
		Where("transaction_id = ? AND status = ?", transactionID, enums.ProofPending).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListProofsByStatus(ctx context.Context, status enums.ProofStatus, limit int) ([]models.BankTransferProof, error) {
	if limit <= 0 {
		limit = 50
	}
	var proofs []models.BankTransferProof
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&proofs).Error
	return proofs, err
}

func (r *repository) FindExpiredPendingReview(ctx context.Context, now time.Time, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	var txns []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND status = ? AND expires_at IS NOT NULL AND expires_at < ?",
			enums.GatewayBankTransfer, enums.PaymentTxnPendingReview, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

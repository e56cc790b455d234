package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pagehaven/bookstore-backend/pkg/enums"
)

// PaymentTransaction is one payment attempt against an order. Reference is
// the identifier we hand to the provider and receive back in callbacks; at
// most one transaction per order ever reaches succeeded.
type PaymentTransaction struct {
	ID            int64                          `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID       int64                          `gorm:"column:order_id;not null;index:idx_payment_txns_order"`
	Gateway       enums.PaymentGateway           `gorm:"column:gateway;type:payment_gateway_enum;not null"`
	Reference     string                         `gorm:"column:reference;uniqueIndex:ux_payment_txns_reference;not null"`
	ExternalRef   *string                        `gorm:"column:external_ref"`
	Amount        decimal.Decimal                `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency      enums.Currency                 `gorm:"column:currency;type:currency_enum;not null"`
	Status        enums.PaymentTransactionStatus `gorm:"column:status;type:payment_txn_status_enum;not null;default:initiated"`
	FailureReason *string                        `gorm:"column:failure_reason"`
	VerifiedBy    *int64                         `gorm:"column:verified_by"`
	VerifiedAt    *time.Time                     `gorm:"column:verified_at"`
	ExpiresAt     *time.Time                     `gorm:"column:expires_at"`
	LastPayload   json.RawMessage                `gorm:"column:last_payload;type:jsonb"`
	CreatedAt     time.Time                      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                      `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

// IsSettled reports whether the attempt reached a final state.
func (t PaymentTransaction) IsSettled() bool {
	return t.Status == enums.PaymentTxnSucceeded || t.Status == enums.PaymentTxnFailed
}

// BankTransferProof is one uploaded proof of payment awaiting admin review.
type BankTransferProof struct {
	ID                   int64             `gorm:"column:id;primaryKey;autoIncrement"`
	TransactionID        int64             `gorm:"column:transaction_id;not null;index:idx_bank_proofs_txn"`
	FileURL              string            `gorm:"column:file_url;not null"`
	TransactionReference *string           `gorm:"column:transaction_reference"`
	Status               enums.ProofStatus `gorm:"column:status;type:proof_status_enum;not null;default:pending"`
	AdminNotes           *string           `gorm:"column:admin_notes"`
	ReviewedBy           *int64            `gorm:"column:reviewed_by"`
	ReviewedAt           *time.Time        `gorm:"column:reviewed_at"`
	CreatedAt            time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (BankTransferProof) TableName() string { return "bank_transfer_proofs" }

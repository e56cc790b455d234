package banktransfer

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pagehaven/bookstore-backend/internal/confirmation"
	"github.com/pagehaven/bookstore-backend/internal/inventory"
	"github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/internal/payments"
	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
	"github.com/pagehaven/bookstore-backend/pkg/outbox"
	"github.com/pagehaven/bookstore-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns the manual side of bank transfer payments: proof uploads,
// reviewer decisions and the payment-window expiry sweep. Verification drives
// the shared confirmation path so settling by review and settling by webhook
// never diverge.
type Service interface {
	SubmitProof(ctx context.Context, input SubmitProofInput) (*models.BankTransferProof, error)
	Review(ctx context.Context, input ReviewInput) (*models.BankTransferProof, error)
	ListPendingProofs(ctx context.Context, limit int) ([]PendingProof, error)
	// ExpireOrderIfDue lazily cancels a pending bank transfer order whose
	// window lapsed, reporting whether it did.
	ExpireOrderIfDue(ctx context.Context, orderID int64, now time.Time) (bool, error)
	// ExpireDue sweeps every lapsed pending transaction, one transaction per
	// order so a cancelled sweep never leaves an order half-moved.
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// SubmitProofInput is a customer's uploaded evidence of an out-of-band
// transfer.
type SubmitProofInput struct {
	TransactionID        int64
	UserID               int64
	FileURL              string
	TransactionReference *string
}

// ReviewAction is the reviewer's decision on one proof.
type ReviewAction string

const (
	ActionVerify ReviewAction = "verify"
	ActionReject ReviewAction = "reject"
)

// ReviewInput carries a reviewer decision.
type ReviewInput struct {
	ProofID    int64
	ReviewerID int64
	Action     ReviewAction
	Notes      string
}

// PendingProof joins a waiting proof with its transaction and order for the
// admin queue.
type PendingProof struct {
	Proof       models.BankTransferProof  `json:"proof"`
	Transaction models.PaymentTransaction `json:"transaction"`
	Order       orders.OrderSummary       `json:"order"`
}

type service struct {
	repo         Repository
	txns         payments.Repository
	orders       orders.Service
	ordersRepo   orders.Repository
	inventory    inventory.Service
	confirmation confirmation.Service
	outbox       outboxPublisher
	tx           txRunner
	cfg          config.BankTransferConfig
	logg         *logger.Logger
}

// NewService wires the bank transfer service.
func NewService(
	repo Repository,
	txns payments.Repository,
	ordersSvc orders.Service,
	ordersRepo orders.Repository,
	inventorySvc inventory.Service,
	confirmationSvc confirmation.Service,
	ob outboxPublisher,
	tx txRunner,
	cfg config.BankTransferConfig,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil || txns == nil || ordersSvc == nil || ordersRepo == nil ||
		inventorySvc == nil || confirmationSvc == nil || ob == nil || tx == nil {
		return nil, fmt.Errorf("bank transfer service missing dependencies")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.MaxProofAttempts <= 0 {
		cfg.MaxProofAttempts = 3
	}
	return &service{
		repo:         repo,
		txns:         txns,
		orders:       ordersSvc,
		ordersRepo:   ordersRepo,
		inventory:    inventorySvc,
		confirmation: confirmationSvc,
		outbox:       ob,
		tx:           tx,
		cfg:          cfg,
		logg:         logg,
	}, nil
}

// SubmitProof records a new proof for a pending bank transfer. Uploads are
// bounded by the configured attempt budget and refused once the payment
// window lapsed.
func (s *service) SubmitProof(ctx context.Context, input SubmitProofInput) (*models.BankTransferProof, error) {
	if input.FileURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "proof file reference required")
	}

	txn, err := s.txns.FindByID(ctx, input.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	if txn.Gateway != enums.GatewayBankTransfer {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction is not a bank transfer")
	}

	order, err := s.ordersRepo.FindByID(ctx, txn.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.UserID == nil || *order.UserID != input.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}

	if txn.ExpiresAt != nil && txn.ExpiresAt.Before(time.Now()) {
		if _, err := s.ExpireOrderIfDue(ctx, order.ID, time.Now()); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment window has expired")
	}
	if txn.Status != enums.PaymentTxnPendingReview {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is not awaiting a transfer").
			WithDetails(map[string]any{"status": txn.Status})
	}

	pending, err := s.repo.HasPendingProof(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a proof is already awaiting review")
	}

	attempts, err := s.repo.CountProofsForTransaction(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	if attempts >= int64(s.cfg.MaxProofAttempts) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "proof attempt limit reached").
			WithDetails(map[string]any{"max_attempts": s.cfg.MaxProofAttempts})
	}

	var proof *models.BankTransferProof
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		proof, err = s.repo.WithTx(tx).CreateProof(ctx, &models.BankTransferProof{
			TransactionID:        txn.ID,
			FileURL:              input.FileURL,
			TransactionReference: input.TransactionReference,
			Status:               enums.ProofPending,
		})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentProofSubmitted,
			AggregateType: enums.AggregatePayment,
			AggregateID:   txn.ID,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: string(enums.RoleCustomer)},
			Data: payloads.ProofSubmittedEvent{
				OrderID:       order.ID,
				TransactionID: txn.ID,
				ProofID:       proof.ID,
				Attempt:       int(attempts) + 1,
			},
			OccurredAt: time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID, "transaction_id": txn.ID, "proof_id": proof.ID,
	}), "bank transfer proof submitted")
	return proof, nil
}

// Review applies a reviewer decision. Verify settles the order through the
// shared confirmation sequence; reject leaves the order pending until the
// attempt budget is spent, then fails it. Replaying an identical decision is
// a no-op.
func (s *service) Review(ctx context.Context, input ReviewInput) (*models.BankTransferProof, error) {
	if input.Action != ActionVerify && input.Action != ActionReject {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "review action must be verify or reject")
	}

	proof, err := s.repo.FindProofByID(ctx, input.ProofID)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "proof not found")
	}
	if proof.Status != enums.ProofPending {
		if (input.Action == ActionVerify && proof.Status == enums.ProofVerified) ||
			(input.Action == ActionReject && proof.Status == enums.ProofRejected) {
			s.logg.Info(s.logg.WithField(ctx, "proof_id", proof.ID), "duplicate proof review ignored")
			return proof, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "proof already reviewed").
			WithDetails(map[string]any{"status": proof.Status})
	}

	txn, err := s.txns.FindByID(ctx, proof.TransactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}

	status := enums.ProofVerified
	if input.Action == ActionReject {
		status = enums.ProofRejected
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]any{
			"status":      status,
			"reviewed_by": input.ReviewerID,
			"reviewed_at": now,
		}
		if input.Notes != "" {
			updates["admin_notes"] = input.Notes
		}
		if err := s.repo.WithTx(tx).UpdateProof(ctx, proof.ID, updates); err != nil {
			return err
		}

		if input.Action == ActionVerify {
			if err := s.confirmation.ApplyOutcomeTx(ctx, tx, confirmation.OutcomeInput{
				Reference:  txn.Reference,
				Status:     enums.CallbackSucceeded,
				Actor:      fmt.Sprintf("admin:%d", input.ReviewerID),
				Reason:     "bank transfer verified",
				VerifiedBy: &input.ReviewerID,
			}); err != nil {
				return err
			}
		} else if exhausted, err := s.rejectionExhausted(ctx, tx, txn.ID); err != nil {
			return err
		} else if exhausted {
			if err := s.confirmation.ApplyOutcomeTx(ctx, tx, confirmation.OutcomeInput{
				Reference: txn.Reference,
				Status:    enums.CallbackFailed,
				Actor:     fmt.Sprintf("admin:%d", input.ReviewerID),
				Reason:    "proof attempt limit reached",
			}); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentProofReviewed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   txn.ID,
			Actor:         &outbox.ActorRef{UserID: input.ReviewerID, Role: string(enums.RoleAdmin)},
			Data: payloads.ProofReviewedEvent{
				OrderID:       txn.OrderID,
				TransactionID: txn.ID,
				ProofID:       proof.ID,
				Status:        status,
				ReviewedBy:    input.ReviewerID,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	proof, err = s.repo.FindProofByID(ctx, input.ProofID)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"proof_id": input.ProofID, "action": input.Action, "reviewer_id": input.ReviewerID,
	}), "bank transfer proof reviewed")
	return proof, nil
}

// rejectionExhausted reports whether the transaction has burned its whole
// attempt budget on rejected proofs.
func (s *service) rejectionExhausted(ctx context.Context, tx *gorm.DB, transactionID int64) (bool, error) {
	var rejected int64
	err := tx.WithContext(ctx).
		Model(&models.BankTransferProof{}).
		Where("transaction_id = ? AND status = ?", transactionID, enums.ProofRejected).
		Count(&rejected).Error
	if err != nil {
		return false, err
	}
	return rejected >= int64(s.cfg.MaxProofAttempts), nil
}

func (s *service) ListPendingProofs(ctx context.Context, limit int) ([]PendingProof, error) {
	proofs, err := s.repo.ListProofsByStatus(ctx, enums.ProofPending, limit)
	if err != nil {
		return nil, err
	}
	out := make([]PendingProof, 0, len(proofs))
	for _, proof := range proofs {
		txn, err := s.txns.FindByID(ctx, proof.TransactionID)
		if err != nil {
			return nil, err
		}
		if txn == nil {
			continue
		}
		order, err := s.ordersRepo.FindByID(ctx, txn.OrderID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			continue
		}
		out = append(out, PendingProof{
			Proof:       proof,
			Transaction: *txn,
			Order:       orders.Summarize(order),
		})
	}
	return out, nil
}

func (s *service) ExpireOrderIfDue(ctx context.Context, orderID int64, now time.Time) (bool, error) {
	order, err := s.ordersRepo.FindByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return false, nil
	}

	txns, err := s.txns.FindByOrder(ctx, orderID)
	if err != nil {
		return false, err
	}
	for _, txn := range txns {
		if txn.Gateway != enums.GatewayBankTransfer || txn.Status != enums.PaymentTxnPendingReview {
			continue
		}
		if txn.ExpiresAt == nil || !txn.ExpiresAt.Before(now) {
			continue
		}
		if err := s.expireTransaction(ctx, txn, now); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (s *service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	txns, err := s.repo.FindExpiredPendingReview(ctx, now, 0)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, txn := range txns {
		if err := s.expireTransaction(ctx, txn, now); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// expireTransaction cancels one lapsed order atomically: transaction failed,
// reservation released, order cancelled, events emitted. A replay finds the
// order already cancelled and does nothing.
func (s *service) expireTransaction(ctx context.Context, txn models.PaymentTransaction, now time.Time) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.ordersRepo.WithTx(tx).FindByID(ctx, txn.OrderID)
		if err != nil {
			return err
		}
		if order == nil || order.Status != enums.OrderStatusPendingPayment {
			return nil
		}

		if err := s.txns.WithTx(tx).Update(ctx, txn.ID, map[string]any{
			"status":         enums.PaymentTxnFailed,
			"failure_reason": "payment window expired",
		}); err != nil {
			return err
		}

		lines := make([]inventory.Line, 0, len(order.Items))
		for _, item := range order.Items {
			lines = append(lines, inventory.Line{BookID: item.BookID, Quantity: item.Quantity})
		}
		if err := s.inventory.Release(ctx, tx, order.ID, lines, "system:expiry"); err != nil {
			return err
		}

		failed := enums.PaymentStatusFailed
		if err := s.orders.Transition(ctx, tx, orders.TransitionInput{
			OrderID:       order.ID,
			To:            enums.OrderStatusCancelled,
			PaymentStatus: &failed,
			Actor:         "system:expiry",
			Reason:        "bank transfer window expired",
		}); err != nil {
			return err
		}

		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderExpired,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderExpiredEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				ExpiredAt:   now,
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderCancelledEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CancelledAt: now,
				Reason:      "bank transfer window expired",
			},
			OccurredAt: now,
		})
	})
}

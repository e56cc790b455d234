package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pagehaven/bookstore-backend/api/middleware"
	"github.com/pagehaven/bookstore-backend/api/responses"
	"github.com/pagehaven/bookstore-backend/api/validators"
	"github.com/pagehaven/bookstore-backend/internal/banktransfer"
	"github.com/pagehaven/bookstore-backend/internal/confirmation"
	internalorders "github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/internal/payments"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
	"github.com/pagehaven/bookstore-backend/pkg/pagination"
)

// ListPendingTransferProofs serves the reviewer queue, oldest first.
func ListPendingTransferProofs(svc banktransfer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bank transfer service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pending, err := svc.ListPendingProofs(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]pendingProofResponse, 0, len(pending))
		for _, row := range pending {
			proof := row.Proof
			items = append(items, pendingProofResponse{
				Proof: newProofResponse(&proof),
				Transaction: transactionResponse{
					ID:        row.Transaction.ID,
					Gateway:   row.Transaction.Gateway,
					Reference: row.Transaction.Reference,
					Status:    row.Transaction.Status,
					Amount:    row.Transaction.Amount,
					Currency:  row.Transaction.Currency,
					ExpiresAt: row.Transaction.ExpiresAt,
					CreatedAt: row.Transaction.CreatedAt,
				},
				Order: row.Order,
			})
		}
		responses.WriteSuccess(w, map[string]any{"proofs": items})
	}
}

// ReviewTransferProof applies a verify or reject decision to one pending
// proof.
func ReviewTransferProof(svc banktransfer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bank transfer service unavailable"))
			return
		}

		reviewerID := middleware.UserIDFromContext(r.Context())
		if reviewerID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		proofID, err := parseProofID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reviewProofRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		action, err := parseReviewAction(payload.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		proof, err := svc.Review(r.Context(), banktransfer.ReviewInput{
			ProofID:    proofID,
			ReviewerID: reviewerID,
			Action:     action,
			Notes:      payload.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newProofResponse(proof))
	}
}

// OverridePaymentStatus lets an operator settle an order's open payment
// attempt by hand. The decision travels the same confirmation path as a
// webhook so inventory and fulfillment stay consistent.
func OverridePaymentStatus(
	paymentsSvc payments.Service,
	confirmationSvc confirmation.Service,
	ordersSvc internalorders.Service,
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if paymentsSvc == nil || confirmationSvc == nil || ordersSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment override unavailable"))
			return
		}

		adminID := middleware.UserIDFromContext(r.Context())
		if adminID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload overridePaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var outcome enums.CallbackStatus
		switch payload.Status {
		case "success":
			outcome = enums.CallbackSucceeded
		case "failed":
			outcome = enums.CallbackFailed
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status must be success or failed"))
			return
		}

		txns, err := paymentsSvc.TransactionsForOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		// Latest open attempt wins; rows come back oldest first.
		var reference string
		for i := len(txns) - 1; i >= 0; i-- {
			switch txns[i].Status {
			case enums.PaymentTxnInitiated, enums.PaymentTxnPendingReview:
				reference = txns[i].Reference
			}
			if reference != "" {
				break
			}
		}
		if reference == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no open payment attempt"))
			return
		}

		err = confirmationSvc.ApplyOutcome(r.Context(), confirmation.OutcomeInput{
			Reference:  reference,
			Status:     outcome,
			Actor:      fmt.Sprintf("admin:%d", adminID),
			Reason:     payload.Reason,
			VerifiedBy: &adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := ordersSvc.Get(r.Context(), orderID, adminID, enums.RoleAdmin)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(order, nil, nil))
	}
}

type pendingProofResponse struct {
	Proof       proofResponse               `json:"proof"`
	Transaction transactionResponse         `json:"transaction"`
	Order       internalorders.OrderSummary `json:"order"`
}

type reviewProofRequest struct {
	Action string `json:"action" validate:"required,oneof=verify reject"`
	Notes  string `json:"notes,omitempty"`
}

type overridePaymentRequest struct {
	Status string `json:"status" validate:"required,oneof=success failed"`
	Reason string `json:"reason,omitempty"`
}

func parseReviewAction(raw string) (banktransfer.ReviewAction, error) {
	switch banktransfer.ReviewAction(raw) {
	case banktransfer.ActionVerify:
		return banktransfer.ActionVerify, nil
	case banktransfer.ActionReject:
		return banktransfer.ActionReject, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "action must be verify or reject")
	}
}

func parseProofID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "proofID"))
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "proof id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid proof id")
	}
	return id, nil
}

package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagehaven/bookstore-backend/api/middleware"
	"github.com/pagehaven/bookstore-backend/api/responses"
	"github.com/pagehaven/bookstore-backend/api/validators"
	"github.com/pagehaven/bookstore-backend/internal/banktransfer"
	"github.com/pagehaven/bookstore-backend/internal/payments"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

// CreatePaymentIntent starts a payment attempt for a pending order with the
// chosen provider.
func CreatePaymentIntent(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var payload createIntentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentGateway(payload.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown payment method"))
			return
		}

		intent, err := svc.CreateIntent(r.Context(), payments.CreateIntentInput{
			OrderID:  payload.OrderID,
			UserID:   userID,
			Role:     middleware.RoleFromContext(r.Context()),
			Method:   method,
			Metadata: payload.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

// SubmitTransferProof attaches the customer's transfer evidence to a pending
// bank transfer attempt.
func SubmitTransferProof(svc banktransfer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bank transfer service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		txnID, err := parseTransactionID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload submitProofRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		proof, err := svc.SubmitProof(r.Context(), banktransfer.SubmitProofInput{
			TransactionID:        txnID,
			UserID:               userID,
			FileURL:              payload.FileURL,
			TransactionReference: payload.TransactionReference,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newProofResponse(proof))
	}
}

type createIntentRequest struct {
	OrderID  int64             `json:"order_id" validate:"required,gt=0"`
	Method   string            `json:"method" validate:"required"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type submitProofRequest struct {
	FileURL              string  `json:"file_url" validate:"required,url"`
	TransactionReference *string `json:"transaction_reference,omitempty"`
}

type proofResponse struct {
	ID                   int64             `json:"id"`
	TransactionID        int64             `json:"transaction_id"`
	FileURL              string            `json:"file_url"`
	TransactionReference *string           `json:"transaction_reference,omitempty"`
	Status               enums.ProofStatus `json:"status"`
	AdminNotes           *string           `json:"admin_notes,omitempty"`
	ReviewedBy           *int64            `json:"reviewed_by,omitempty"`
	ReviewedAt           *time.Time        `json:"reviewed_at,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

func newProofResponse(proof *models.BankTransferProof) proofResponse {
	if proof == nil {
		return proofResponse{}
	}
	return proofResponse{
		ID:                   proof.ID,
		TransactionID:        proof.TransactionID,
		FileURL:              proof.FileURL,
		TransactionReference: proof.TransactionReference,
		Status:               proof.Status,
		AdminNotes:           proof.AdminNotes,
		ReviewedBy:           proof.ReviewedBy,
		ReviewedAt:           proof.ReviewedAt,
		CreatedAt:            proof.CreatedAt,
	}
}

func parseTransactionID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "transactionID"))
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction id")
	}
	return id, nil
}

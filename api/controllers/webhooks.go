package controllers

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pagehaven/bookstore-backend/api/responses"
	"github.com/pagehaven/bookstore-backend/internal/confirmation"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

// Provider deliveries can be large but never unbounded.
const maxWebhookBody = 1 << 20

// signatureHeader returns the header each provider signs its deliveries with.
func signatureHeader(provider enums.PaymentGateway) string {
	switch provider {
	case enums.GatewayStripe:
		return "Stripe-Signature"
	case enums.GatewayFlutterwave:
		return "verif-hash"
	default:
		return ""
	}
}

// PaymentWebhook receives a provider callback, verifies it and routes the
// outcome through the confirmation path. Duplicate deliveries settle to 200 so
// providers stop retrying.
func PaymentWebhook(svc confirmation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "confirmation service unavailable"))
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "provider"))
		provider, err := enums.ParsePaymentGateway(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown payment provider"))
			return
		}
		if !provider.IsInstant() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "provider does not deliver webhooks"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable webhook body"))
			return
		}

		signature := r.Header.Get(signatureHeader(provider))
		if err := svc.HandleWebhook(r.Context(), provider, payload, signature); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "received"})
	}
}

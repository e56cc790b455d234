package controllers

import (
	"net/http"
	"time"

	"github.com/pagehaven/bookstore-backend/api/middleware"
	"github.com/pagehaven/bookstore-backend/api/responses"
	"github.com/pagehaven/bookstore-backend/internal/fulfillment"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

// Library lists the caller's granted digital books.
func Library(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		entries, err := svc.Library(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]libraryEntryResponse, 0, len(entries))
		for _, entry := range entries {
			items = append(items, libraryEntryResponse{
				BookID:    entry.BookID,
				OrderID:   entry.OrderID,
				GrantedAt: entry.CreatedAt,
			})
		}
		responses.WriteSuccess(w, map[string]any{"entries": items})
	}
}

type libraryEntryResponse struct {
	BookID    int64     `json:"book_id"`
	OrderID   int64     `json:"order_id"`
	GrantedAt time.Time `json:"granted_at"`
}

package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pagehaven/bookstore-backend/api/middleware"
	"github.com/pagehaven/bookstore-backend/api/responses"
	"github.com/pagehaven/bookstore-backend/api/validators"
	"github.com/pagehaven/bookstore-backend/internal/inventory"
	"github.com/pagehaven/bookstore-backend/pkg/db/models"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	pkgerrors "github.com/pagehaven/bookstore-backend/pkg/errors"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
)

// AdjustInventory applies a manual stock correction and records it as an
// adjust ledger row attributed to the acting admin.
func AdjustInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		adminID := middleware.UserIDFromContext(r.Context())
		if adminID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		bookID, err := parseBookID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload adjustInventoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.Adjust(r.Context(), inventory.AdjustInput{
			BookID: bookID,
			Delta:  payload.Delta,
			Actor:  fmt.Sprintf("admin:%d", adminID),
			Note:   payload.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newInventoryItemResponse(item))
	}
}

// InventoryDetail renders the cached counters together with the book's full
// ledger, newest last.
func InventoryDetail(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		bookID, err := parseBookID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.GetItem(r.Context(), bookID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ledger, err := svc.Ledger(r.Context(), bookID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows := make([]ledgerRowResponse, 0, len(ledger))
		for _, row := range ledger {
			rows = append(rows, ledgerRowResponse{
				ID:             row.ID,
				OrderID:        row.OrderID,
				Op:             row.Op,
				Delta:          row.Delta,
				ResultingStock: row.ResultingStock,
				Actor:          row.Actor,
				Note:           row.Note,
				CreatedAt:      row.CreatedAt,
			})
		}
		responses.WriteSuccess(w, inventoryDetailResponse{
			Item:   newInventoryItemResponse(item),
			Ledger: rows,
		})
	}
}

type adjustInventoryRequest struct {
	Delta int    `json:"delta" validate:"required"`
	Note  string `json:"note,omitempty"`
}

type inventoryItemResponse struct {
	BookID          int64     `json:"book_id"`
	StockQty        int       `json:"stock_qty"`
	ReservedQty     int       `json:"reserved_qty"`
	TrackingEnabled bool      `json:"tracking_enabled"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type inventoryDetailResponse struct {
	Item   inventoryItemResponse `json:"item"`
	Ledger []ledgerRowResponse   `json:"ledger"`
}

type ledgerRowResponse struct {
	ID             int64             `json:"id"`
	OrderID        *int64            `json:"order_id,omitempty"`
	Op             enums.InventoryOp `json:"op"`
	Delta          int               `json:"delta"`
	ResultingStock int               `json:"resulting_stock"`
	Actor          string            `json:"actor"`
	Note           *string           `json:"note,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

func newInventoryItemResponse(item *models.InventoryItem) inventoryItemResponse {
	if item == nil {
		return inventoryItemResponse{}
	}
	return inventoryItemResponse{
		BookID:          item.BookID,
		StockQty:        item.StockQty,
		ReservedQty:     item.ReservedQty,
		TrackingEnabled: item.TrackingEnabled,
		UpdatedAt:       item.UpdatedAt,
	}
}

func parseBookID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "bookID"))
	if raw == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "book id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "invalid book id")
	}
	return id, nil
}

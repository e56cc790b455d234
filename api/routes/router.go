package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pagehaven/bookstore-backend/api/controllers"
	"github.com/pagehaven/bookstore-backend/api/middleware"
	"github.com/pagehaven/bookstore-backend/internal/banktransfer"
	"github.com/pagehaven/bookstore-backend/internal/checkout"
	"github.com/pagehaven/bookstore-backend/internal/confirmation"
	"github.com/pagehaven/bookstore-backend/internal/fulfillment"
	"github.com/pagehaven/bookstore-backend/internal/inventory"
	"github.com/pagehaven/bookstore-backend/internal/orders"
	"github.com/pagehaven/bookstore-backend/internal/payments"
	"github.com/pagehaven/bookstore-backend/pkg/config"
	"github.com/pagehaven/bookstore-backend/pkg/enums"
	"github.com/pagehaven/bookstore-backend/pkg/logger"
	pkgredis "github.com/pagehaven/bookstore-backend/pkg/redis"
)

// Deps bundles everything the router mounts.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           controllers.Pinger
	Cache        controllers.Pinger
	Idempotency  pkgredis.IdempotencyStore
	Checkout     checkout.Service
	Orders       orders.Service
	Payments     payments.Service
	BankTransfer banktransfer.Service
	Confirmation confirmation.Service
	Fulfillment  fulfillment.Service
	Inventory    inventory.Service
}

// NewRouter mounts the full HTTP surface: health probes, the provider webhook,
// the authenticated customer API and the admin API.
func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(middleware.Recoverer(logg))
	r.Use(middleware.RequestID(logg))
	r.Use(middleware.Logging(logg))
	r.Use(middleware.CORS())

	r.Get("/health/live", controllers.HealthLive(cfg))
	r.Get("/health/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Cache))

	// Providers sign their deliveries; no bearer auth here.
	r.Post("/api/v1/payments/webhook/{provider}", controllers.PaymentWebhook(deps.Confirmation, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(deps.Checkout, logg))
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Get("/{orderID}", controllers.OrderDetail(deps.Orders, deps.Payments, deps.BankTransfer, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/intent", controllers.CreatePaymentIntent(deps.Payments, logg))
			r.Post("/bank-transfers/{transactionID}/proof", controllers.SubmitTransferProof(deps.BankTransfer, logg))
		})

		r.Get("/library", controllers.Library(deps.Fulfillment, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Get("/bank-transfers", controllers.ListPendingTransferProofs(deps.BankTransfer, logg))
		r.Post("/bank-transfers/{proofID}/review", controllers.ReviewTransferProof(deps.BankTransfer, logg))
		r.Post("/orders/{orderID}/payment-status", controllers.OverridePaymentStatus(deps.Payments, deps.Confirmation, deps.Orders, logg))

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/{bookID}", controllers.InventoryDetail(deps.Inventory, logg))
			r.Post("/{bookID}/adjust", controllers.AdjustInventory(deps.Inventory, logg))
		})
	})

	return r
}

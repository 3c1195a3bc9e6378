/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:        Unique ID per request for tracing
  2. RealIP:           Client address behind proxies
  3. requestLogger:    zap access log line per request
  4. Recoverer:        Panic recovery (500 instead of crash)
  5. CORS:             Cross-origin requests for frontend
  6. serializeWrites:  One mutating request at a time

ROUTE GROUPS:
  /api/products/*           Products, stock, movement trails
  /api/customers/*          Customers, statements, recompute
  /api/suppliers/*          Suppliers, statements, recompute
  /api/sales-invoices/*     Sales invoices
  /api/purchase-invoices/*  Purchase invoices
  /api/receipts, payments   Cash
  /api/returns, adjustments Stock corrections
  /api/delivery-notes/*     Consignment notes and their settlement
  /api/settlements/*        Settlements
  /api/movements            Movement report
  /api/events               Stock-changed event stream
  /api/admin/*              Admin operations
  /api/scenarios/*          Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/ledger"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Use(h.serializeWrites)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Get("/{id}/stock", h.GetStock)
			r.Get("/{id}/movements", h.ProductMovements)
		})

		for path, kind := range map[string]ledger.AccountKind{
			"/customers": ledger.AccountCustomer,
			"/suppliers": ledger.AccountSupplier,
		} {
			r.Route(path, func(r chi.Router) {
				r.Get("/", h.ListAccounts(kind))
				r.Post("/", h.CreateAccount(kind))
				r.Get("/{id}", h.GetAccount(kind))
				r.Get("/{id}/statement", h.GetStatement(kind))
				r.Post("/{id}/recompute", h.RecomputeAccount(kind))
			})
		}

		r.Route("/sales-invoices", func(r chi.Router) {
			r.Get("/", h.ListSalesInvoices)
			r.Post("/", h.CreateSalesInvoice)
			r.Get("/{id}", h.GetSalesInvoice)
			r.Delete("/{id}", h.DeleteSalesInvoice)
			r.Put("/{id}/paid", h.SetSalesInvoicePaid)
			r.Post("/{id}/deliver", h.DeliverSalesInvoice)
			r.Put("/{id}/items", h.ReplaceSalesInvoiceItems)
		})

		r.Route("/purchase-invoices", func(r chi.Router) {
			r.Get("/", h.ListPurchaseInvoices)
			r.Post("/", h.CreatePurchaseInvoice)
			r.Get("/{id}", h.GetPurchaseInvoice)
			r.Delete("/{id}", h.DeletePurchaseInvoice)
			r.Put("/{id}/paid", h.SetPurchaseInvoicePaid)
		})

		r.Route("/receipts", func(r chi.Router) {
			r.Get("/", h.ListReceipts)
			r.Post("/", h.CreateReceipt)
			r.Delete("/{id}", h.DeleteReceipt)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.ListPayments)
			r.Post("/", h.CreatePayment)
			r.Delete("/{id}", h.DeletePayment)
		})

		r.Route("/returns", func(r chi.Router) {
			r.Get("/", h.ListReturns)
			r.Post("/", h.CreateReturn)
			r.Delete("/{id}", h.DeleteReturn)
		})

		r.Route("/adjustments", func(r chi.Router) {
			r.Get("/", h.ListAdjustments)
			r.Post("/", h.CreateAdjustment)
			r.Delete("/{id}", h.DeleteAdjustment)
		})

		r.Route("/delivery-notes", func(r chi.Router) {
			r.Get("/", h.ListNotes)
			r.Post("/", h.CreateNote)
			r.Get("/{id}", h.GetNote)
			r.Put("/{id}", h.EditNote)
			r.Delete("/{id}", h.DeleteNote)
			r.Get("/{id}/settlement", h.GetNoteSettlement)
			r.Post("/{id}/settlement", h.CreateSettlement)
		})

		r.Route("/settlements", func(r chi.Router) {
			r.Get("/{id}", h.GetSettlement)
			r.Delete("/{id}", h.DeleteSettlement)
			r.Get("/{id}/reconcile", h.ReconcileSettlement)
		})

		r.Get("/movements", h.ListMovements)
		r.Get("/events", h.StreamStockEvents)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/recompute", h.RecomputeAll)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// serializeWrites runs mutating requests one at a time.
func (h *Handler) serializeWrites(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		h.mu.Lock()
		defer h.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one zap line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

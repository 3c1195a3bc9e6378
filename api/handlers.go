/*
handlers.go - HTTP API handlers for the consignment ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the trade, consignment and report
  services.

ENDPOINTS:
  Products:
    GET    /api/products                      List products
    POST   /api/products                      Create product
    GET    /api/products/{id}                 Get product
    GET    /api/products/{id}/stock           Cached stock scalar
    GET    /api/products/{id}/movements       Movement trail of one product

  Accounts (customers and suppliers share the shape):
    GET    /api/customers                     List customers
    POST   /api/customers                     Create customer
    GET    /api/customers/{id}                Get customer
    GET    /api/customers/{id}/statement      Statement (?from=&to=&opening=)
    POST   /api/customers/{id}/recompute      Recompute balance

  Documents:
    /api/sales-invoices      GET, POST, GET/DELETE {id}, PUT {id}/paid,
                             POST {id}/deliver, PUT {id}/items
    /api/purchase-invoices   GET, POST, GET/DELETE {id}, PUT {id}/paid
    /api/receipts            GET, POST, DELETE {id}
    /api/payments            GET, POST, DELETE {id}
    /api/returns             GET, POST, DELETE {id}
    /api/adjustments         GET, POST, DELETE {id}

  Consignment:
    /api/delivery-notes      GET, POST, GET/PUT/DELETE {id},
                             GET/POST {id}/settlement
    /api/settlements         GET/DELETE {id}, GET {id}/reconcile

  Reports and events:
    GET    /api/movements                     Movement trail (?product_id=&from=&to=&kind=)
    GET    /api/events                        Server-sent stock-changed events

  Admin and scenarios:
    POST   /api/admin/recompute               Recompute every balance
    GET    /api/scenarios                     List demo scenarios
    POST   /api/scenarios/load                Load a demo scenario
    POST   /api/scenarios/reset               Clear all data

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Record Store (SQLite in production, memory in tests)
  - Services: trade, consignment, report projector
  - Caches of products and accounts, rebuilt by LoadCaches

CONCURRENCY:
  Mutating requests are serialized through one mutex (see serializeWrites
  in server.go). Multi-step document operations are not atomic in the
  Record Store, so two of them must never interleave.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, irreversible movements
  - 404: Record not found
  - 409: State guards (settled, duplicate, pending, locked, linked)
  - 500: Store failures and internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/consignment"
	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/numbering"
	"github.com/warp/consignment-ledger/report"
	"github.com/warp/consignment-ledger/trade"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the Record Store the API runs on. Reset backs the scenario reset.
type Store interface {
	ledger.Store
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Stock    *ledger.StockLedger
	Accounts *ledger.AccountLedger
	Notes    *consignment.Service
	Trade    *trade.Service
	Report   *report.Projector
	Notifier *ledger.Notifier

	products  *ledger.Cache[ledger.Product]
	customers *ledger.Cache[ledger.Account]
	suppliers *ledger.Cache[ledger.Account]

	logger *zap.Logger

	// mu serializes mutating requests and scheduled recomputes.
	mu sync.Mutex

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler wires the engine over store.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	products := ledger.NewCache[ledger.Product](store, ledger.TableProducts)
	customers := ledger.NewCache[ledger.Account](store, ledger.TableCustomers)
	suppliers := ledger.NewCache[ledger.Account](store, ledger.TableSuppliers)

	notifier := ledger.NewNotifier(logger)
	stock := ledger.NewStockLedger(store, products, notifier, logger)
	accounts := ledger.NewAccountLedger(store, customers, suppliers, logger)
	numbers := numbering.New(store, logger)
	notes := consignment.NewService(store, stock, numbers, logger)

	return &Handler{
		Store:    store,
		Stock:    stock,
		Accounts: accounts,
		Notes:    notes,
		Trade: trade.NewService(trade.Deps{
			Store:     store,
			Stock:     stock,
			Accounts:  accounts,
			Notes:     notes,
			Numbers:   numbers,
			Products:  products,
			Customers: customers,
			Suppliers: suppliers,
			Logger:    logger,
		}),
		Report:    report.NewProjector(store, logger),
		Notifier:  notifier,
		products:  products,
		customers: customers,
		suppliers: suppliers,
		logger:    logger.Named("api"),
	}
}

// SetClock overrides the clock used for default dates and timestamps.
func (h *Handler) SetClock(now func() time.Time) {
	h.Trade.SetClock(now)
	h.Notes.SetClock(now)
}

// LoadCaches rebuilds the product and account caches from the store.
func (h *Handler) LoadCaches(ctx context.Context) error {
	if err := h.products.Reload(ctx); err != nil {
		return err
	}
	if err := h.customers.Reload(ctx); err != nil {
		return err
	}
	return h.suppliers.Reload(ctx)
}

// RecomputeReport summarizes a full balance recompute.
type RecomputeReport struct {
	Customers int       `json:"customers"`
	Suppliers int       `json:"suppliers"`
	At        time.Time `json:"at"`
}

// RecomputeBalances reloads the caches and recomputes every account balance.
func (h *Handler) RecomputeBalances(ctx context.Context) (RecomputeReport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recomputeBalances(ctx)
}

// recomputeBalances expects h.mu to be held.
func (h *Handler) recomputeBalances(ctx context.Context) (RecomputeReport, error) {
	rep := RecomputeReport{At: time.Now().UTC()}
	if err := h.LoadCaches(ctx); err != nil {
		return rep, err
	}
	var firstErr error
	n, err := h.Accounts.RecomputeAll(ctx, ledger.AccountCustomer)
	rep.Customers = n
	if err != nil {
		firstErr = err
	}
	n, err = h.Accounts.RecomputeAll(ctx, ledger.AccountSupplier)
	rep.Suppliers = n
	if err != nil && firstErr == nil {
		firstErr = err
	}
	return rep, firstErr
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns all products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Trade.ListProducts(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list products", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// CreateProduct registers a product.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req trade.ProductInput
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Trade.CreateProduct(r.Context(), req)
	if err != nil {
		writeDomainError(w, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	p, err := h.Trade.GetProduct(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetStock returns the cached stock of a product.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	stock, err := h.Stock.Stock(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get stock", err)
		return
	}
	writeJSON(w, http.StatusOK, StockDTO{ProductID: id, Stock: stock})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns every account of kind.
func (h *Handler) ListAccounts(kind ledger.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := h.Trade.ListAccounts(r.Context(), kind)
		if err != nil {
			writeDomainError(w, "Failed to list accounts", err)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
	}
}

// CreateAccount creates a customer or supplier.
func (h *Handler) CreateAccount(kind ledger.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req trade.AccountInput
		if !decode(w, r, &req) {
			return
		}
		var (
			a   *ledger.Account
			err error
		)
		if kind == ledger.AccountSupplier {
			a, err = h.Trade.CreateSupplier(r.Context(), req)
		} else {
			a, err = h.Trade.CreateCustomer(r.Context(), req)
		}
		if err != nil {
			writeDomainError(w, "Failed to create account", err)
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

// GetAccount returns a single account.
func (h *Handler) GetAccount(kind ledger.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		a, err := h.Trade.GetAccount(r.Context(), kind, id)
		if err != nil {
			writeDomainError(w, "Failed to get account", err)
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GetStatement returns the chronological statement of an account.
func (h *Handler) GetStatement(kind ledger.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		q := ledger.StatementQuery{Kind: kind, AccountID: id}
		var err error
		if q.From, err = parseDatePtr("from", r.URL.Query().Get("from")); err != nil {
			writeDomainError(w, "Invalid statement query", err)
			return
		}
		if q.To, err = parseDatePtr("to", r.URL.Query().Get("to")); err != nil {
			writeDomainError(w, "Invalid statement query", err)
			return
		}
		if raw := r.URL.Query().Get("opening"); raw != "" {
			opening, err := decimal.NewFromString(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid opening balance", err)
				return
			}
			q.OpeningBalance = &opening
		}

		st, err := h.Accounts.Statement(r.Context(), q)
		if err != nil {
			writeDomainError(w, "Failed to build statement", err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// RecomputeAccount recomputes one account balance from its transactions.
func (h *Handler) RecomputeAccount(kind ledger.AccountKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idParam(w, r)
		if !ok {
			return
		}
		balance, err := h.Accounts.RecomputeBalance(r.Context(), kind, id)
		if err != nil {
			writeDomainError(w, "Failed to recompute balance", err)
			return
		}
		writeJSON(w, http.StatusOK, RecomputeDTO{Kind: kind, AccountID: id, Balance: balance})
	}
}

// RecomputeAll recomputes every balance. Runs under the write lock.
func (h *Handler) RecomputeAll(w http.ResponseWriter, r *http.Request) {
	rep, err := h.recomputeBalances(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to recompute balances", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// =============================================================================
// SALES INVOICE HANDLERS
// =============================================================================

// ListSalesInvoices returns sales invoices, optionally for one customer.
func (h *Handler) ListSalesInvoices(w http.ResponseWriter, r *http.Request) {
	customerID, ok := queryID(w, r, "customer_id")
	if !ok {
		return
	}
	invoices, err := h.Trade.ListSalesInvoices(r.Context(), customerID)
	if err != nil {
		writeDomainError(w, "Failed to list sales invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// CreateSalesInvoice posts a sales invoice.
func (h *Handler) CreateSalesInvoice(w http.ResponseWriter, r *http.Request) {
	var req SalesInvoiceRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeDomainError(w, "Invalid sales invoice", err)
		return
	}
	inv, err := h.Trade.CreateSalesInvoice(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create sales invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSalesInvoiceDTO(inv))
}

// GetSalesInvoice returns a sales invoice with its lines.
func (h *Handler) GetSalesInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	inv, err := h.Trade.GetSalesInvoice(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get sales invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toSalesInvoiceDTO(inv))
}

// SetSalesInvoicePaid changes the paid amount.
func (h *Handler) SetSalesInvoicePaid(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req PaidRequest
	if !decode(w, r, &req) {
		return
	}
	inv, err := h.Trade.SetSalesInvoicePaid(r.Context(), id, req.Paid)
	if err != nil {
		writeDomainError(w, "Failed to update sales invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toSalesInvoiceDTO(inv))
}

// DeliverSalesInvoice marks a consigned invoice delivered.
func (h *Handler) DeliverSalesInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	inv, err := h.Trade.MarkSalesInvoiceDelivered(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to mark invoice delivered", err)
		return
	}
	writeJSON(w, http.StatusOK, toSalesInvoiceDTO(inv))
}

// ReplaceSalesInvoiceItems rewrites the lines of a sales invoice.
func (h *Handler) ReplaceSalesInvoiceItems(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req ItemsRequest
	if !decode(w, r, &req) {
		return
	}
	inv, err := h.Trade.ReplaceSalesInvoiceItems(r.Context(), id, req.Items)
	if err != nil {
		writeDomainError(w, "Failed to replace invoice items", err)
		return
	}
	writeJSON(w, http.StatusOK, toSalesInvoiceDTO(inv))
}

// DeleteSalesInvoice removes a sales invoice and reverses its stock.
func (h *Handler) DeleteSalesInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Trade.DeleteSalesInvoice(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete sales invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// PURCHASE INVOICE HANDLERS
// =============================================================================

// ListPurchaseInvoices returns purchase invoices, optionally for one supplier.
func (h *Handler) ListPurchaseInvoices(w http.ResponseWriter, r *http.Request) {
	supplierID, ok := queryID(w, r, "supplier_id")
	if !ok {
		return
	}
	invoices, err := h.Trade.ListPurchaseInvoices(r.Context(), supplierID)
	if err != nil {
		writeDomainError(w, "Failed to list purchase invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, invoices)
}

// CreatePurchaseInvoice posts a purchase invoice.
func (h *Handler) CreatePurchaseInvoice(w http.ResponseWriter, r *http.Request) {
	var req PurchaseInvoiceRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeDomainError(w, "Invalid purchase invoice", err)
		return
	}
	inv, err := h.Trade.CreatePurchaseInvoice(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create purchase invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseInvoiceDTO(inv))
}

// GetPurchaseInvoice returns a purchase invoice with its lines.
func (h *Handler) GetPurchaseInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	inv, err := h.Trade.GetPurchaseInvoice(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get purchase invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseInvoiceDTO(inv))
}

// SetPurchaseInvoicePaid changes the paid amount.
func (h *Handler) SetPurchaseInvoicePaid(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req PaidRequest
	if !decode(w, r, &req) {
		return
	}
	inv, err := h.Trade.SetPurchaseInvoicePaid(r.Context(), id, req.Paid)
	if err != nil {
		writeDomainError(w, "Failed to update purchase invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseInvoiceDTO(inv))
}

// DeletePurchaseInvoice removes a purchase invoice and reverses its stock.
func (h *Handler) DeletePurchaseInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Trade.DeletePurchaseInvoice(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete purchase invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// CASH HANDLERS
// =============================================================================

// ListReceipts returns receipts, optionally for one customer.
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	customerID, ok := queryID(w, r, "customer_id")
	if !ok {
		return
	}
	receipts, err := h.Trade.ListReceipts(r.Context(), customerID)
	if err != nil {
		writeDomainError(w, "Failed to list receipts", err)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

// CreateReceipt records money received from a customer.
func (h *Handler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req CashRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeDomainError(w, "Invalid receipt", err)
		return
	}
	rec, err := h.Trade.CreateReceipt(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create receipt", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// DeleteReceipt removes a receipt.
func (h *Handler) DeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Trade.DeleteReceipt(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete receipt", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListPayments returns payments, optionally for one supplier.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	supplierID, ok := queryID(w, r, "supplier_id")
	if !ok {
		return
	}
	payments, err := h.Trade.ListPayments(r.Context(), supplierID)
	if err != nil {
		writeDomainError(w, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

// CreatePayment records money paid to a supplier.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CashRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeDomainError(w, "Invalid payment", err)
		return
	}
	p, err := h.Trade.CreatePayment(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// DeletePayment removes a payment.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Trade.DeletePayment(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete payment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// RETURN AND ADJUSTMENT HANDLERS
// =============================================================================

// ListReturns returns returns, optionally of one type.
func (h *Handler) ListReturns(w http.ResponseWriter, r *http.Request) {
	returns, err := h.Trade.ListReturns(r.Context(), ledger.ReturnType(r.URL.Query().Get("return_type")))
	if err != nil {
		writeDomainError(w, "Failed to list returns", err)
		return
	}
	writeJSON(w, http.StatusOK, returns)
}

// CreateReturn records a return.
func (h *Handler) CreateReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeDomainError(w, "Invalid return", err)
		return
	}
	ret, err := h.Trade.CreateReturn(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create return", err)
		return
	}
	writeJSON(w, http.StatusCreated, ret)
}

// DeleteReturn removes a return.
func (h *Handler) DeleteReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Trade.DeleteReturn(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete return", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListAdjustments returns adjustments, optionally for one product.
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	productID, ok := queryID(w, r, "product_id")
	if !ok {
		return
	}
	adjustments, err := h.Trade.ListAdjustments(r.Context(), productID)
	if err != nil {
		writeDomainError(w, "Failed to list adjustments", err)
		return
	}
	writeJSON(w, http.StatusOK, adjustments)
}

// CreateAdjustment applies a manual stock correction.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeDomainError(w, "Invalid adjustment", err)
		return
	}
	adj, err := h.Trade.CreateAdjustment(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, adj)
}

// DeleteAdjustment undoes a manual stock correction.
func (h *Handler) DeleteAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Trade.DeleteAdjustment(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete adjustment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// DELIVERY NOTE HANDLERS
// =============================================================================

// ListNotes returns delivery notes, optionally of one status.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.Notes.ListNotes(r.Context(), consignment.NoteStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeDomainError(w, "Failed to list delivery notes", err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// CreateNote issues a delivery note.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeDomainError(w, "Invalid delivery note", err)
		return
	}
	note, err := h.Notes.CreateNote(r.Context(), in)
	if err != nil {
		writeDomainError(w, "Failed to create delivery note", err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteDTO(note))
}

// GetNote returns a delivery note with its lines.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	note, err := h.Notes.GetNote(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get delivery note", err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteDTO(note))
}

// EditNote changes an issued, unlinked delivery note.
func (h *Handler) EditNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req EditNoteRequest
	if !decode(w, r, &req) {
		return
	}
	changes, err := req.changes()
	if err != nil {
		writeDomainError(w, "Invalid delivery note", err)
		return
	}
	note, err := h.Notes.EditNote(r.Context(), id, changes)
	if err != nil {
		writeDomainError(w, "Failed to edit delivery note", err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteDTO(note))
}

// DeleteNote removes an unlinked delivery note and its settlement.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Notes.DeleteNote(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete delivery note", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// CreateSettlement settles a delivery note.
func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	noteID, ok := idParam(w, r)
	if !ok {
		return
	}
	var req SettlementRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.input()
	if err != nil {
		writeDomainError(w, "Invalid settlement", err)
		return
	}
	st, err := h.Notes.CreateSettlement(r.Context(), noteID, in)
	if err != nil {
		writeDomainError(w, "Failed to create settlement", err)
		return
	}
	gaps, err := h.Notes.Reconcile(r.Context(), st.ID)
	if err != nil {
		writeDomainError(w, "Failed to reconcile settlement", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSettlementDTO(st, gaps))
}

// GetNoteSettlement returns the settlement of a delivery note.
func (h *Handler) GetNoteSettlement(w http.ResponseWriter, r *http.Request) {
	noteID, ok := idParam(w, r)
	if !ok {
		return
	}
	st, err := h.Notes.SettlementForNote(r.Context(), noteID)
	if err != nil {
		writeDomainError(w, "Failed to get settlement", err)
		return
	}
	h.writeSettlement(w, r, st)
}

// GetSettlement returns a settlement with its lines.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	st, err := h.Notes.GetSettlement(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get settlement", err)
		return
	}
	h.writeSettlement(w, r, st)
}

func (h *Handler) writeSettlement(w http.ResponseWriter, r *http.Request, st *consignment.Settlement) {
	gaps, err := h.Notes.Reconcile(r.Context(), st.ID)
	if err != nil {
		writeDomainError(w, "Failed to reconcile settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettlementDTO(st, gaps))
}

// ReconcileSettlement lists items whose difference is not fully accounted.
func (h *Handler) ReconcileSettlement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	gaps, err := h.Notes.Reconcile(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to reconcile settlement", err)
		return
	}
	if gaps == nil {
		gaps = []consignment.Discrepancy{}
	}
	writeJSON(w, http.StatusOK, gaps)
}

// DeleteSettlement reverses a settlement and reopens its note.
func (h *Handler) DeleteSettlement(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Notes.DeleteSettlement(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// ListMovements returns the movement trail for all or one product.
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	productID, ok := queryID(w, r, "product_id")
	if !ok {
		return
	}
	h.writeMovements(w, r, productID)
}

// ProductMovements returns the movement trail of the product in the path.
func (h *Handler) ProductMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	h.writeMovements(w, r, id)
}

func (h *Handler) writeMovements(w http.ResponseWriter, r *http.Request, productID int64) {
	q := report.MovementQuery{ProductID: productID}
	var err error
	if q.From, err = parseDatePtr("from", r.URL.Query().Get("from")); err != nil {
		writeDomainError(w, "Invalid movement query", err)
		return
	}
	if q.To, err = parseDatePtr("to", r.URL.Query().Get("to")); err != nil {
		writeDomainError(w, "Invalid movement query", err)
		return
	}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			q.Kinds = append(q.Kinds, report.RowKind(strings.TrimSpace(k)))
		}
	}

	rows, err := h.Report.ProjectProductMovements(r.Context(), q)
	if err != nil {
		writeDomainError(w, "Failed to project movements", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// =============================================================================
// EVENT STREAM
// =============================================================================

// StreamStockEvents pushes stock-changed events as server-sent events until
// the client disconnects. Slow clients lose events rather than block writers.
func (h *Handler) StreamStockEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	events := make(chan ledger.StockChanged, 64)
	unsubscribe := h.Notifier.Subscribe(func(_ context.Context, ev ledger.StockChanged) {
		select {
		case events <- ev:
		default:
			h.logger.Warn("stock event dropped", zap.Int64("product_id", ev.ProductID))
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("event stream not flushable", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.Error("encode stock event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: stock_changed\ndata: %s\n\n", ev.EventID, data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// =============================================================================
// RESET
// =============================================================================

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.currentScenario = ""
	return h.LoadCaches(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps an engine error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsStateGuard(err):
		return http.StatusConflict
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError writes err with its mapped status. State guards that
// name conflicting invoices carry their numbers.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Details: err.Error()}

	var pending *ledger.PendingInvoicesError
	var linked *ledger.LinkedError
	switch {
	case errors.As(err, &pending):
		resp.InvoiceNumbers = pending.InvoiceNumbers
	case errors.As(err, &linked):
		resp.InvoiceNumbers = linked.InvoiceNumbers
	}
	writeJSON(w, statusFor(err), resp)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

// queryID reads an optional id filter. Absent yields 0.
func queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", name), err)
		return 0, false
	}
	return id, true
}

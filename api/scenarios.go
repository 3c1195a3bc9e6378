/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	trading data. Each scenario goes through the same services the HTTP
	handlers use, so stock, balances and numbering are exactly what a user
	would get by entering the documents by hand.

AVAILABLE SCENARIOS:

	purchase-sale:       Opening stock 100, purchase 50, sale 30
	consignment:         Delivery note of 20, consigned invoice of 15, settlement
	customer-statement:  Invoice 100 paid 40, then a receipt of 60
	trade-month:         Largest-unit purchases, returns, adjustments, payments

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create products and accounts
 3. Post documents in date order

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "consignment"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to runScenario

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/consignment"
	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/trade"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "purchase-sale",
		Name:        "Purchase then Sale",
		Description: "Product opens at 100, a purchase of 50 and a direct sale of 30 leave 120",
	},
	{
		ID:          "consignment",
		Name:        "Consignment Round Trip",
		Description: "20 units on a delivery note, 15 invoiced and delivered, 5 returned at settlement",
	},
	{
		ID:          "customer-statement",
		Name:        "Customer Statement",
		Description: "Invoice of 100 paid 40, then a receipt of 60 closes the account",
	},
	{
		ID:          "trade-month",
		Name:        "Trading Month",
		Description: "Carton purchases, supplier payments, returns both ways and a stock count",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	if !knownScenario(req.ScenarioID) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func knownScenario(id string) bool {
	for _, s := range scenarios {
		if s.ID == id {
			return true
		}
	}
	return false
}

// loadScenario expects h.mu to be held.
func (h *Handler) loadScenario(ctx context.Context, id string) error {
	if err := h.reset(ctx); err != nil {
		return err
	}

	var err error
	switch id {
	case "purchase-sale":
		err = h.loadPurchaseSaleScenario(ctx)
	case "consignment":
		err = h.loadConsignmentScenario(ctx)
	case "customer-statement":
		err = h.loadCustomerStatementScenario(ctx)
	case "trade-month":
		err = h.loadTradeMonthScenario(ctx)
	default:
		return ledger.Invalid("scenario_id", "unknown scenario "+id)
	}
	if err != nil {
		return err
	}

	h.currentScenario = id
	h.logger.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (h *Handler) loadPurchaseSaleScenario(ctx context.Context) error {
	water, err := h.Trade.CreateProduct(ctx, trade.ProductInput{
		Name:             "Mineral Water 500ml",
		OpeningStock:     dec("100"),
		ConversionFactor: dec("12"),
		SmallestUnitName: "bottle",
		LargestUnitName:  "pack",
	})
	if err != nil {
		return err
	}
	supplier, err := h.Trade.CreateSupplier(ctx, trade.AccountInput{Name: "Blue Spring Bottlers", Phone: "555-0101"})
	if err != nil {
		return err
	}
	customer, err := h.Trade.CreateCustomer(ctx, trade.AccountInput{Name: "Corner Market", Phone: "555-0140"})
	if err != nil {
		return err
	}

	if _, err := h.Trade.CreatePurchaseInvoice(ctx, trade.PurchaseInvoiceInput{
		SupplierID: supplier.ID,
		Date:       ledger.Date(2025, 3, 3),
		Items: []trade.LineInput{
			{ProductID: water.ID, Quantity: dec("50"), Unit: ledger.UnitSmallest, Price: dec("0.40")},
		},
	}); err != nil {
		return err
	}

	_, err = h.Trade.CreateSalesInvoice(ctx, trade.SalesInvoiceInput{
		CustomerID: customer.ID,
		Date:       ledger.Date(2025, 3, 5),
		Paid:       dec("10"),
		Items: []trade.LineInput{
			{ProductID: water.ID, Quantity: dec("30"), Unit: ledger.UnitSmallest, Price: dec("0.75")},
		},
	})
	return err
}

func (h *Handler) loadConsignmentScenario(ctx context.Context) error {
	juice, err := h.Trade.CreateProduct(ctx, trade.ProductInput{
		Name:             "Orange Juice 1L",
		OpeningStock:     dec("150"),
		ConversionFactor: dec("6"),
		SmallestUnitName: "carton",
		LargestUnitName:  "case",
	})
	if err != nil {
		return err
	}
	customer, err := h.Trade.CreateCustomer(ctx, trade.AccountInput{Name: "Harbor Cafe"})
	if err != nil {
		return err
	}

	note, err := h.Notes.CreateNote(ctx, consignment.NoteInput{
		Representative: "Field rep: Route 4",
		Date:           ledger.Date(2025, 4, 1),
		Items: []consignment.NoteItemInput{
			{ProductID: juice.ID, Quantity: dec("20"), Unit: ledger.UnitSmallest},
		},
	})
	if err != nil {
		return err
	}

	inv, err := h.Trade.CreateSalesInvoice(ctx, trade.SalesInvoiceInput{
		CustomerID:     customer.ID,
		Date:           ledger.Date(2025, 4, 3),
		DeliveryNoteID: &note.ID,
		Items: []trade.LineInput{
			{ProductID: juice.ID, Quantity: dec("15"), Unit: ledger.UnitSmallest, Price: dec("2.20")},
		},
	})
	if err != nil {
		return err
	}
	if _, err := h.Trade.MarkSalesInvoiceDelivered(ctx, inv.ID); err != nil {
		return err
	}

	_, err = h.Notes.CreateSettlement(ctx, note.ID, consignment.SettlementInput{
		Date: ledger.Date(2025, 4, 7),
		Lines: []consignment.SettlementLine{
			{ProductID: juice.ID, Unit: ledger.UnitSmallest, Returned: dec("5")},
		},
	})
	return err
}

func (h *Handler) loadCustomerStatementScenario(ctx context.Context) error {
	flour, err := h.Trade.CreateProduct(ctx, trade.ProductInput{
		Name:         "Flour 25kg",
		OpeningStock: dec("40"),
	})
	if err != nil {
		return err
	}
	customer, err := h.Trade.CreateCustomer(ctx, trade.AccountInput{Name: "Golden Crust Bakery"})
	if err != nil {
		return err
	}

	if _, err := h.Trade.CreateSalesInvoice(ctx, trade.SalesInvoiceInput{
		CustomerID: customer.ID,
		Date:       ledger.Date(2025, 5, 1),
		Paid:       dec("40"),
		Items: []trade.LineInput{
			{ProductID: flour.ID, Quantity: dec("4"), Unit: ledger.UnitSmallest, Price: dec("25")},
		},
	}); err != nil {
		return err
	}

	_, err = h.Trade.CreateReceipt(ctx, trade.CashInput{
		AccountID: customer.ID,
		Date:      ledger.Date(2025, 5, 5),
		Amount:    dec("60"),
		Notes:     "Balance settled in cash",
	})
	return err
}

func (h *Handler) loadTradeMonthScenario(ctx context.Context) error {
	soap, err := h.Trade.CreateProduct(ctx, trade.ProductInput{
		Name:             "Olive Soap Bar",
		ConversionFactor: dec("24"),
		SmallestUnitName: "bar",
		LargestUnitName:  "box",
	})
	if err != nil {
		return err
	}
	oil, err := h.Trade.CreateProduct(ctx, trade.ProductInput{
		Name:         "Olive Oil 750ml",
		OpeningStock: dec("36"),
	})
	if err != nil {
		return err
	}
	supplier, err := h.Trade.CreateSupplier(ctx, trade.AccountInput{
		Name:           "Hillside Press",
		OpeningBalance: dec("120"),
	})
	if err != nil {
		return err
	}
	customer, err := h.Trade.CreateCustomer(ctx, trade.AccountInput{Name: "Village Grocer"})
	if err != nil {
		return err
	}

	if _, err := h.Trade.CreatePurchaseInvoice(ctx, trade.PurchaseInvoiceInput{
		SupplierID: supplier.ID,
		Date:       ledger.Date(2025, 6, 2),
		Paid:       dec("100"),
		Items: []trade.LineInput{
			{ProductID: soap.ID, Quantity: dec("5"), Unit: ledger.UnitLargest, Price: dec("30")},
			{ProductID: oil.ID, Quantity: dec("24"), Unit: ledger.UnitSmallest, Price: dec("6.50")},
		},
	}); err != nil {
		return err
	}
	if _, err := h.Trade.CreateSalesInvoice(ctx, trade.SalesInvoiceInput{
		CustomerID: customer.ID,
		Date:       ledger.Date(2025, 6, 9),
		Items: []trade.LineInput{
			{ProductID: soap.ID, Quantity: dec("2"), Unit: ledger.UnitLargest, Price: dec("48")},
			{ProductID: oil.ID, Quantity: dec("12"), Unit: ledger.UnitSmallest, Price: dec("9")},
		},
	}); err != nil {
		return err
	}
	if _, err := h.Trade.CreateReturn(ctx, trade.ReturnInput{
		ReturnType: ledger.ReturnFromCustomer,
		AccountID:  customer.ID,
		ProductID:  oil.ID,
		Quantity:   dec("2"),
		Unit:       ledger.UnitSmallest,
		Amount:     dec("18"),
		Restock:    true,
		Date:       ledger.Date(2025, 6, 12),
	}); err != nil {
		return err
	}
	if _, err := h.Trade.CreateReturn(ctx, trade.ReturnInput{
		ReturnType: ledger.ReturnToSupplier,
		AccountID:  supplier.ID,
		ProductID:  soap.ID,
		Quantity:   dec("6"),
		Unit:       ledger.UnitSmallest,
		Amount:     dec("7.50"),
		Restock:    true,
		Date:       ledger.Date(2025, 6, 14),
	}); err != nil {
		return err
	}
	if _, err := h.Trade.CreatePayment(ctx, trade.CashInput{
		AccountID: supplier.ID,
		Date:      ledger.Date(2025, 6, 20),
		Amount:    dec("150"),
	}); err != nil {
		return err
	}
	if _, err := h.Trade.CreateReceipt(ctx, trade.CashInput{
		AccountID: customer.ID,
		Date:      ledger.Date(2025, 6, 25),
		Amount:    dec("100"),
	}); err != nil {
		return err
	}

	_, err = h.Trade.CreateAdjustment(ctx, trade.AdjustmentInput{
		ProductID: oil.ID,
		Type:      ledger.AdjustSet,
		Quantity:  dec("49"),
		Unit:      ledger.UnitSmallest,
		Date:      ledger.Date(2025, 6, 30),
		Reason:    "Month-end count",
	})
	return err
}

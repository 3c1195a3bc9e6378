/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for HTTP API communication. Request DTOs
  carry dates as YYYY-MM-DD strings and are converted into the engine
  inputs here. Response DTOs reattach line items to their documents.

NAMING CONVENTIONS:
  - *Request: Incoming request body
  - *DTO: Outgoing response object
  - *Response: Wrapper responses (errors, status)

JSON CONVENTIONS:
  - snake_case field names
  - Dates as ISO 8601 strings (YYYY-MM-DD)
  - Quantities and amounts as decimal strings or numbers

SEE ALSO:
  - handlers.go: Uses these DTOs
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/consignment-ledger/consignment"
	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/trade"
)

const dateLayout = "2006-01-02"

// parseDate parses an optional YYYY-MM-DD value. The empty string yields
// the zero time, which the services read as today.
func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, ledger.Invalid(field, fmt.Sprintf("invalid date %q (use YYYY-MM-DD)", s))
	}
	return t, nil
}

// parseDatePtr is parseDate for optional query bounds.
func parseDatePtr(field, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(field, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// =============================================================================
// INVOICES
// =============================================================================

// SalesInvoiceRequest creates a sales invoice.
type SalesInvoiceRequest struct {
	CustomerID     int64                 `json:"customer_id"`
	Date           string                `json:"date"`
	Paid           decimal.Decimal       `json:"paid"`
	DeliveryNoteID *int64                `json:"delivery_note_id,omitempty"`
	DeliveryStatus ledger.DeliveryStatus `json:"delivery_status,omitempty"`
	Items          []trade.LineInput     `json:"items"`
}

func (r SalesInvoiceRequest) input() (trade.SalesInvoiceInput, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return trade.SalesInvoiceInput{}, err
	}
	return trade.SalesInvoiceInput{
		CustomerID:     r.CustomerID,
		Date:           date,
		Paid:           r.Paid,
		DeliveryNoteID: r.DeliveryNoteID,
		DeliveryStatus: r.DeliveryStatus,
		Items:          r.Items,
	}, nil
}

// PurchaseInvoiceRequest creates a purchase invoice.
type PurchaseInvoiceRequest struct {
	SupplierID int64             `json:"supplier_id"`
	Date       string            `json:"date"`
	Paid       decimal.Decimal   `json:"paid"`
	Items      []trade.LineInput `json:"items"`
}

func (r PurchaseInvoiceRequest) input() (trade.PurchaseInvoiceInput, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return trade.PurchaseInvoiceInput{}, err
	}
	return trade.PurchaseInvoiceInput{
		SupplierID: r.SupplierID,
		Date:       date,
		Paid:       r.Paid,
		Items:      r.Items,
	}, nil
}

// PaidRequest sets the paid amount of an invoice.
type PaidRequest struct {
	Paid decimal.Decimal `json:"paid"`
}

// ItemsRequest replaces the lines of a sales invoice.
type ItemsRequest struct {
	Items []trade.LineInput `json:"items"`
}

// SalesInvoiceDTO is a sales invoice with its lines.
type SalesInvoiceDTO struct {
	*ledger.SalesInvoice
	Items []ledger.SalesInvoiceItem `json:"items"`
}

func toSalesInvoiceDTO(inv *ledger.SalesInvoice) SalesInvoiceDTO {
	items := inv.Items
	if items == nil {
		items = []ledger.SalesInvoiceItem{}
	}
	return SalesInvoiceDTO{SalesInvoice: inv, Items: items}
}

// PurchaseInvoiceDTO is a purchase invoice with its lines.
type PurchaseInvoiceDTO struct {
	*ledger.PurchaseInvoice
	Items []ledger.PurchaseInvoiceItem `json:"items"`
}

func toPurchaseInvoiceDTO(inv *ledger.PurchaseInvoice) PurchaseInvoiceDTO {
	items := inv.Items
	if items == nil {
		items = []ledger.PurchaseInvoiceItem{}
	}
	return PurchaseInvoiceDTO{PurchaseInvoice: inv, Items: items}
}

// =============================================================================
// CASH, RETURNS, ADJUSTMENTS
// =============================================================================

// CashRequest records a receipt (customer) or payment (supplier).
type CashRequest struct {
	AccountID int64           `json:"account_id"`
	Date      string          `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes"`
}

func (r CashRequest) input() (trade.CashInput, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return trade.CashInput{}, err
	}
	return trade.CashInput{AccountID: r.AccountID, Date: date, Amount: r.Amount, Notes: r.Notes}, nil
}

// ReturnRequest records goods going back.
type ReturnRequest struct {
	ReturnType ledger.ReturnType `json:"return_type"`
	AccountID  int64             `json:"account_id"`
	ProductID  int64             `json:"product_id"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Unit       ledger.Unit       `json:"unit"`
	Amount     decimal.Decimal   `json:"amount"`
	Restock    bool              `json:"restock"`
	Date       string            `json:"date"`
}

func (r ReturnRequest) input() (trade.ReturnInput, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return trade.ReturnInput{}, err
	}
	return trade.ReturnInput{
		ReturnType: r.ReturnType,
		AccountID:  r.AccountID,
		ProductID:  r.ProductID,
		Quantity:   r.Quantity,
		Unit:       r.Unit,
		Amount:     r.Amount,
		Restock:    r.Restock,
		Date:       date,
	}, nil
}

// AdjustmentRequest is a manual stock correction.
type AdjustmentRequest struct {
	ProductID int64                 `json:"product_id"`
	Type      ledger.AdjustmentType `json:"type"`
	Quantity  decimal.Decimal       `json:"quantity"`
	Unit      ledger.Unit           `json:"unit"`
	Date      string                `json:"date"`
	Reason    string                `json:"reason"`
}

func (r AdjustmentRequest) input() (trade.AdjustmentInput, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return trade.AdjustmentInput{}, err
	}
	return trade.AdjustmentInput{
		ProductID: r.ProductID,
		Type:      r.Type,
		Quantity:  r.Quantity,
		Unit:      r.Unit,
		Date:      date,
		Reason:    r.Reason,
	}, nil
}

// =============================================================================
// DELIVERY NOTES AND SETTLEMENTS
// =============================================================================

// NoteRequest issues a delivery note.
type NoteRequest struct {
	Representative string                      `json:"representative"`
	Date           string                      `json:"date"`
	Notes          string                      `json:"notes"`
	Items          []consignment.NoteItemInput `json:"items"`
}

func (r NoteRequest) input() (consignment.NoteInput, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return consignment.NoteInput{}, err
	}
	return consignment.NoteInput{
		Representative: r.Representative,
		Date:           date,
		Notes:          r.Notes,
		Items:          r.Items,
	}, nil
}

// EditNoteRequest changes an issued note. Absent fields are kept.
type EditNoteRequest struct {
	Representative *string                      `json:"representative,omitempty"`
	Date           *string                      `json:"date,omitempty"`
	Notes          *string                      `json:"notes,omitempty"`
	Items          *[]consignment.NoteItemInput `json:"items,omitempty"`
}

func (r EditNoteRequest) changes() (consignment.NoteChanges, error) {
	c := consignment.NoteChanges{
		Representative: r.Representative,
		Notes:          r.Notes,
		Items:          r.Items,
	}
	if r.Date != nil {
		date, err := parseDate("date", *r.Date)
		if err != nil {
			return consignment.NoteChanges{}, err
		}
		c.Date = &date
	}
	return c, nil
}

// SettlementRequest settles a delivery note.
type SettlementRequest struct {
	Date  string                       `json:"date"`
	Notes string                       `json:"notes"`
	Lines []consignment.SettlementLine `json:"lines"`
}

func (r SettlementRequest) input() (consignment.SettlementInput, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return consignment.SettlementInput{}, err
	}
	return consignment.SettlementInput{Date: date, Notes: r.Notes, Lines: r.Lines}, nil
}

// NoteDTO is a delivery note with its lines.
type NoteDTO struct {
	*consignment.DeliveryNote
	Items []consignment.NoteItem `json:"items"`
}

func toNoteDTO(n *consignment.DeliveryNote) NoteDTO {
	items := n.Items
	if items == nil {
		items = []consignment.NoteItem{}
	}
	return NoteDTO{DeliveryNote: n, Items: items}
}

// SettlementDTO is a settlement with its lines and any reconciliation gaps.
type SettlementDTO struct {
	*consignment.Settlement
	Items         []consignment.SettlementItem `json:"items"`
	Discrepancies []consignment.Discrepancy    `json:"discrepancies"`
}

func toSettlementDTO(s *consignment.Settlement, gaps []consignment.Discrepancy) SettlementDTO {
	items := s.Items
	if items == nil {
		items = []consignment.SettlementItem{}
	}
	if gaps == nil {
		gaps = []consignment.Discrepancy{}
	}
	return SettlementDTO{Settlement: s, Items: items, Discrepancies: gaps}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// RecomputeDTO reports a recomputed balance.
type RecomputeDTO struct {
	Kind      ledger.AccountKind `json:"kind"`
	AccountID int64              `json:"account_id"`
	Balance   decimal.Decimal    `json:"balance"`
}

// StockDTO reports the cached stock of a product.
type StockDTO struct {
	ProductID int64           `json:"product_id"`
	Stock     decimal.Decimal `json:"stock"`
}

// =============================================================================
// SCENARIO DTOs
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request body for loading a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error          string   `json:"error"`
	Details        string   `json:"details,omitempty"`
	InvoiceNumbers []string `json:"invoice_numbers,omitempty"`
}

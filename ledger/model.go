package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRODUCT
// =============================================================================

// Product carries the cached stock scalar. Stock is always in the smallest unit.
type Product struct {
	ID               int64           `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Stock            decimal.Decimal `json:"stock"`
	OpeningStock     decimal.Decimal `json:"opening_stock"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	SmallestUnitName string          `json:"smallest_unit_name,omitempty"`
	LargestUnitName  string          `json:"largest_unit_name,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Factor returns the conversion factor, defaulting to 1.
func (p Product) Factor() decimal.Decimal { return normalizeFactor(p.ConversionFactor) }

// ToSmallest converts qty in unit into the product's smallest unit.
func (p Product) ToSmallest(qty decimal.Decimal, unit Unit) decimal.Decimal {
	return ToSmallest(qty, unit, p.ConversionFactor)
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// AccountKind distinguishes customers from suppliers.
type AccountKind string

const (
	AccountCustomer AccountKind = "customer"
	AccountSupplier AccountKind = "supplier"
)

// Table returns the collection holding accounts of this kind.
func (k AccountKind) Table() Table {
	if k == AccountSupplier {
		return TableSuppliers
	}
	return TableCustomers
}

// Valid reports whether k is a known kind.
func (k AccountKind) Valid() bool { return k == AccountCustomer || k == AccountSupplier }

// Account is a customer or supplier. Balance is a cache of the last recompute.
type Account struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Balance        decimal.Decimal `json:"balance"`
	CreatedAt      time.Time       `json:"created_at"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// TxType tags a transaction for statements and recomputes.
type TxType string

const (
	TxSalesInvoice       TxType = "sales_invoice"
	TxPurchaseInvoice    TxType = "purchase_invoice"
	TxReceipt            TxType = "receipt"
	TxPayment            TxType = "payment"
	TxReturnFromCustomer TxType = "return_from_customer"
	TxReturnToSupplier   TxType = "return_to_supplier"
)

// DeliveryStatus of a sales invoice.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
)

// SalesInvoice is owed by a customer. When DeliveryNoteID is set the goods
// came from a consignment and stock is deducted by the settlement instead.
type SalesInvoice struct {
	ID             int64              `json:"id"`
	InvoiceNumber  string             `json:"invoice_number"`
	CustomerID     int64              `json:"customer_id"`
	Date           time.Time          `json:"date"`
	Total          decimal.Decimal    `json:"total"`
	Paid           decimal.Decimal    `json:"paid"`
	Remaining      decimal.Decimal    `json:"remaining"`
	DeliveryNoteID *int64             `json:"delivery_note_id"`
	DeliveryStatus DeliveryStatus     `json:"delivery_status"`
	CreatedAt      time.Time          `json:"created_at"`
	Items          []SalesInvoiceItem `json:"-"`
}

// SalesInvoiceItem is one invoiced line.
type SalesInvoiceItem struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoice_id"`
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      Unit            `json:"unit"`
	Price     decimal.Decimal `json:"price"`
}

// PurchaseInvoice is owed to a supplier.
type PurchaseInvoice struct {
	ID            int64                 `json:"id"`
	InvoiceNumber string                `json:"invoice_number"`
	SupplierID    int64                 `json:"supplier_id"`
	Date          time.Time             `json:"date"`
	Total         decimal.Decimal       `json:"total"`
	Paid          decimal.Decimal       `json:"paid"`
	Remaining     decimal.Decimal       `json:"remaining"`
	CreatedAt     time.Time             `json:"created_at"`
	Items         []PurchaseInvoiceItem `json:"-"`
}

// PurchaseInvoiceItem is one purchased line.
type PurchaseInvoiceItem struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoice_id"`
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      Unit            `json:"unit"`
	Price     decimal.Decimal `json:"price"`
}

// Receipt is money received from a customer.
type Receipt struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Payment is money paid to a supplier.
type Payment struct {
	ID         int64           `json:"id"`
	SupplierID int64           `json:"supplier_id"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ReturnType tells which side returned the goods.
type ReturnType string

const (
	ReturnFromCustomer ReturnType = "from_customer"
	ReturnToSupplier   ReturnType = "to_supplier"
)

// Return is goods (and their value) going back. Restock moves stock.
type Return struct {
	ID         int64           `json:"id"`
	ReturnType ReturnType      `json:"return_type"`
	CustomerID int64           `json:"customer_id,omitempty"`
	SupplierID int64           `json:"supplier_id,omitempty"`
	ProductID  int64           `json:"product_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Unit       Unit            `json:"unit"`
	Amount     decimal.Decimal `json:"amount"`
	Restock    bool            `json:"restock"`
	Date       time.Time       `json:"date"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TxType returns the statement tag of the return.
func (r Return) TxType() TxType {
	if r.ReturnType == ReturnToSupplier {
		return TxReturnToSupplier
	}
	return TxReturnFromCustomer
}

// AdjustmentType is the kind of manual stock correction.
type AdjustmentType string

const (
	AdjustIncrease AdjustmentType = "increase"
	AdjustDecrease AdjustmentType = "decrease"
	AdjustSet      AdjustmentType = "set"
)

// Adjustment is a manual stock correction. PreviousStock and StockEffect
// are recorded at posting time; StockEffect is what deleting a set undoes.
type Adjustment struct {
	ID              int64           `json:"id"`
	ReferenceNumber string          `json:"reference_number"`
	ProductID       int64           `json:"product_id"`
	Type            AdjustmentType  `json:"type"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            Unit            `json:"unit"`
	PreviousStock   decimal.Decimal `json:"previous_stock"`
	StockEffect     decimal.Decimal `json:"stock_effect"`
	Date            time.Time       `json:"date"`
	Reason          string          `json:"reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Movement returns the stock movement this adjustment posts.
func (a Adjustment) Movement() Movement {
	var m Movement
	switch a.Type {
	case AdjustIncrease:
		m = AdjustmentIncrease(a.Quantity, a.Unit)
	case AdjustDecrease:
		m = AdjustmentDecrease(a.Quantity, a.Unit)
	default:
		m = AdjustmentSet(a.Quantity, a.Unit)
	}
	m.Reference = a.ReferenceNumber
	return m
}

// Posted returns the movement as it was applied, with a set's recorded
// effect attached so it can be reverted.
func (a Adjustment) Posted() Movement {
	m := a.Movement()
	if a.Type == AdjustSet {
		effect := a.StockEffect
		m.Effect = &effect
	}
	return m
}

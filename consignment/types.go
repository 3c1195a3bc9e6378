/*
Package consignment implements the two-phase delivery workflow.

PURPOSE:
  A delivery note hands goods to a representative without touching stock.
  When the representative reports back, a settlement records what was sold
  (derived from the invoices linked to the note), returned, and rejected,
  and applies the one-time stock deduction for the note.

LIFECYCLE:
  issued ──CreateSettlement──► settled
     ▲                           │
     └─────DeleteSettlement──────┘

  "returned" is part of the status vocabulary but no operation moves a
  note into it.

GUARDS (checked in this order by CreateSettlement):
  1. DuplicateSettlement: a settlement already references the note
  2. AlreadySettled:      the note is not issued
  3. PendingInvoices:     a linked invoice is not delivered

STOCK EFFECT PER SETTLEMENT ITEM:
  stock += returned + rejected - sold      (one combined movement)

SEE ALSO:
  - ledger/stock.go: settlement movement
  - numbering: DN-YYYY-NNN and STL-YYYY-NNN
*/
package consignment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/consignment-ledger/ledger"
)

// =============================================================================
// DELIVERY NOTES
// =============================================================================

// NoteStatus is the lifecycle state of a delivery note.
type NoteStatus string

const (
	StatusIssued   NoteStatus = "issued"
	StatusSettled  NoteStatus = "settled"
	StatusReturned NoteStatus = "returned"
)

// DeliveryNote hands goods to a representative. While issued, nothing has
// been deducted from stock.
type DeliveryNote struct {
	ID                 int64      `json:"id"`
	DeliveryNoteNumber string     `json:"delivery_note_number"`
	Representative     string     `json:"representative,omitempty"`
	Date               time.Time  `json:"date"`
	Status             NoteStatus `json:"status"`
	Notes              string     `json:"notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	Items              []NoteItem `json:"-"`
}

// NoteItem is one product line of a note. ReservedQuantity and
// AvailableQuantity track the invoice earmark; AvailableQuantity is what a
// note deletion gives back to stock.
type NoteItem struct {
	ID                int64           `json:"id"`
	DeliveryNoteID    int64           `json:"delivery_note_id"`
	ProductID         int64           `json:"product_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	Unit              ledger.Unit     `json:"unit"`
	ReservedQuantity  decimal.Decimal `json:"reserved_quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
}

// NoteItemInput is a requested note line.
type NoteItemInput struct {
	ProductID         int64           `json:"product_id"`
	Quantity          decimal.Decimal `json:"quantity"`
	Unit              ledger.Unit     `json:"unit"`
	ReservedQuantity  decimal.Decimal `json:"reserved_quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
}

// NoteInput creates a note.
type NoteInput struct {
	Representative string          `json:"representative"`
	Date           time.Time       `json:"date"`
	Notes          string          `json:"notes"`
	Items          []NoteItemInput `json:"items"`
}

// NoteChanges edits a note. Nil fields are left alone; a non-nil Items
// replaces every line.
type NoteChanges struct {
	Representative *string          `json:"representative,omitempty"`
	Date           *time.Time       `json:"date,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
	Items          *[]NoteItemInput `json:"items,omitempty"`
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

// Settlement closes a delivery note. At most one exists per note.
type Settlement struct {
	ID               int64            `json:"id"`
	SettlementNumber string           `json:"settlement_number"`
	DeliveryNoteID   int64            `json:"delivery_note_id"`
	Date             time.Time        `json:"date"`
	Notes            string           `json:"notes,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	Items            []SettlementItem `json:"-"`
}

// SettlementItem reconciles one note line.
// Difference is issued - sold and ignores returned/rejected.
type SettlementItem struct {
	ID               int64           `json:"id"`
	SettlementID     int64           `json:"settlement_id"`
	ProductID        int64           `json:"product_id"`
	Unit             ledger.Unit     `json:"unit"`
	IssuedQuantity   decimal.Decimal `json:"issued_quantity"`
	SoldQuantity     decimal.Decimal `json:"sold_quantity"`
	ReturnedQuantity decimal.Decimal `json:"returned_quantity"`
	RejectedQuantity decimal.Decimal `json:"rejected_quantity"`
	Difference       decimal.Decimal `json:"difference"`
}

// Movement returns the combined stock movement of the item.
func (it SettlementItem) Movement(reference string) ledger.Movement {
	m := ledger.SettlementMovement(it.SoldQuantity, it.ReturnedQuantity, it.RejectedQuantity, it.Unit)
	m.Reference = reference
	return m
}

// Accounted reports whether the unaccounted quantity is fully explained by
// returned and rejected goods.
func (it SettlementItem) Accounted() bool {
	return it.Difference.Equal(it.ReturnedQuantity.Add(it.RejectedQuantity))
}

// SettlementLine carries the user-entered quantities for one note line,
// matched by product and unit.
type SettlementLine struct {
	ProductID int64           `json:"product_id"`
	Unit      ledger.Unit     `json:"unit"`
	Returned  decimal.Decimal `json:"returned"`
	Rejected  decimal.Decimal `json:"rejected"`
}

// SettlementInput creates a settlement.
type SettlementInput struct {
	Date  time.Time        `json:"date"`
	Notes string           `json:"notes"`
	Lines []SettlementLine `json:"lines"`
}

// Discrepancy is a settlement item whose difference does not reconcile.
type Discrepancy struct {
	ProductID  int64           `json:"product_id"`
	Unit       ledger.Unit     `json:"unit"`
	Difference decimal.Decimal `json:"difference"`
	Accounted  decimal.Decimal `json:"accounted"`
	// Gap is difference - (returned + rejected).
	Gap decimal.Decimal `json:"gap"`
}

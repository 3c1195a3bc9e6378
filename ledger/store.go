/*
store.go - Record Store interface consumed by the engine

PURPOSE:
  The engine does not own persistence. It talks to a collection-oriented
  Record Store keyed by table name, with get / getAll / insert / update /
  delete operations. Records travel as JSON documents so that any backend
  (SQLite, in-memory, a remote document store) can serve them.

CONTRACT:
  - Get returns (nil, nil) when the record does not exist.
  - GetAll returns matching records in insertion order.
  - Insert assigns the id and writes it into the document's "id" field.
  - Update replaces the whole document.
  - Delete returns the number of removed records.
  - A non-nil error is a store failure. Nothing is retried here.
  - Read-your-writes within one process. No transactions are assumed.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, for tests and development
  - store/sqlite/sqlite.go: SQLite-backed documents

SEE ALSO:
  - cache.go: in-process cache rebuilt from the store
*/
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// =============================================================================
// TABLES
// =============================================================================

// Table names a record collection.
type Table string

const (
	TableProducts             Table = "products"
	TableCustomers            Table = "customers"
	TableSuppliers            Table = "suppliers"
	TableDeliveryNotes        Table = "delivery_notes"
	TableDeliveryNoteItems    Table = "delivery_note_items"
	TableSettlements          Table = "delivery_settlements"
	TableSettlementItems      Table = "settlement_items"
	TableSalesInvoices        Table = "sales_invoices"
	TableSalesInvoiceItems    Table = "sales_invoice_items"
	TablePurchaseInvoices     Table = "purchase_invoices"
	TablePurchaseInvoiceItems Table = "purchase_invoice_items"
	TableReceipts             Table = "receipts"
	TablePayments             Table = "payments"
	TableReturns              Table = "returns"
	TableAdjustments          Table = "inventory_adjustments"
	TableSequences            Table = "sequences"
)

// Tables lists every table the engine touches.
var Tables = []Table{
	TableProducts, TableCustomers, TableSuppliers,
	TableDeliveryNotes, TableDeliveryNoteItems,
	TableSettlements, TableSettlementItems,
	TableSalesInvoices, TableSalesInvoiceItems,
	TablePurchaseInvoices, TablePurchaseInvoiceItems,
	TableReceipts, TablePayments, TableReturns,
	TableAdjustments, TableSequences,
}

// =============================================================================
// STORE - Interface to the external record collection
// =============================================================================

// Filter selects records whose top-level fields equal the given values.
// A nil value matches an absent or null field. An empty filter matches all.
type Filter map[string]any

// Store is the Record Store the engine is constructed with.
type Store interface {
	Get(ctx context.Context, table Table, id int64) ([]byte, error)
	GetAll(ctx context.Context, table Table, filter Filter) ([][]byte, error)
	Insert(ctx context.Context, table Table, doc []byte) (int64, error)
	Update(ctx context.Context, table Table, id int64, doc []byte) error
	Delete(ctx context.Context, table Table, id int64) (int64, error)
}

// =============================================================================
// TYPED HELPERS
// =============================================================================

// Get loads one record into a T. Returns (nil, nil) when absent.
func Get[T any](ctx context.Context, s Store, table Table, id int64) (*T, error) {
	doc, err := s.Get(ctx, table, id)
	if err != nil {
		return nil, &StoreError{Op: "get", Table: table, Err: err}
	}
	if doc == nil {
		return nil, nil
	}
	var rec T
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, &StoreError{Op: "decode", Table: table, Err: err}
	}
	return &rec, nil
}

// MustGet is Get with a NotFoundError for absent records.
func MustGet[T any](ctx context.Context, s Store, table Table, id int64) (*T, error) {
	rec, err := Get[T](ctx, s, table, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &NotFoundError{Table: table, ID: id}
	}
	return rec, nil
}

// List loads every record matching filter, in insertion order.
func List[T any](ctx context.Context, s Store, table Table, filter Filter) ([]T, error) {
	docs, err := s.GetAll(ctx, table, filter)
	if err != nil {
		return nil, &StoreError{Op: "getAll", Table: table, Err: err}
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var rec T
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, &StoreError{Op: "decode", Table: table, Err: err}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Insert persists rec and writes the assigned id back into its "id" field.
func Insert[T any](ctx context.Context, s Store, table Table, rec *T) (int64, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return 0, &StoreError{Op: "encode", Table: table, Err: err}
	}
	id, err := s.Insert(ctx, table, doc)
	if err != nil {
		return 0, &StoreError{Op: "insert", Table: table, Err: err}
	}
	if err := json.Unmarshal([]byte(fmt.Sprintf(`{"id":%d}`, id)), rec); err != nil {
		return 0, &StoreError{Op: "decode", Table: table, Err: err}
	}
	return id, nil
}

// Update replaces the stored document for id with rec.
func Update[T any](ctx context.Context, s Store, table Table, id int64, rec *T) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return &StoreError{Op: "encode", Table: table, Err: err}
	}
	if err := s.Update(ctx, table, id, doc); err != nil {
		return &StoreError{Op: "update", Table: table, Err: err}
	}
	return nil
}

// Delete removes a record. Deleting an absent record is not an error.
func Delete(ctx context.Context, s Store, table Table, id int64) error {
	if _, err := s.Delete(ctx, table, id); err != nil {
		return &StoreError{Op: "delete", Table: table, Err: err}
	}
	return nil
}

// DocID extracts the "id" field of a stored document.
func DocID(doc []byte) (int64, error) {
	var head struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(doc, &head); err != nil {
		return 0, err
	}
	return head.ID, nil
}

// =============================================================================
// FILTER VALUES
// =============================================================================

// NormalizeValue maps a filter value or decoded JSON field to a canonical
// comparable form: nil, bool, string, int64 for integral numbers, float64
// otherwise. Named string/number types are reduced to their JSON shape.
// Composite values are returned as their JSON text.
func NormalizeValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return NormalizeValue(rv.Elem().Interface())
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	switch x := decoded.(type) {
	case nil, bool, string:
		return x
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	default:
		return string(raw)
	}
}

// Matches reports whether the decoded document fields satisfy filter.
func Matches(fields map[string]json.RawMessage, filter Filter) bool {
	for key, want := range filter {
		var got any
		if raw, ok := fields[key]; ok {
			if err := json.Unmarshal(raw, &got); err != nil {
				return false
			}
		}
		if NormalizeValue(got) != NormalizeValue(want) {
			return false
		}
	}
	return true
}

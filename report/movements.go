/*
Package report projects display-ready movement trails from the Record Store.

PURPOSE:
  The movement report is a full historical replay. It never reads the
  cached product stock: every product is walked from its opening stock
  through every stock-affecting document, in date order, so the trail can
  be compared with the live Stock Ledger.

SOURCES (signed effect, smallest unit):
  purchase invoice items          +q
  direct sales invoice items      -q
  consigned sales invoice items    0   tracking only
  adjustments                     +q / -q / set to |q|
  returns with restock            +q (from customer) / -q (to supplier)
  delivery note items              0   tracking only
  settlement items                -sold, +returned, +rejected

WINDOW AND FILTERS:
  Rows before From still move the running balance but are not emitted.
  Rows after To are ignored. The kind filter only restricts which rows are
  emitted; every row still feeds the running balance.

SEE ALSO:
  - ledger/stock.go: the live counterpart of this replay
*/
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/consignment"
	"github.com/warp/consignment-ledger/ledger"
)

// RowKind labels a movement row.
type RowKind string

const (
	RowPurchase           RowKind = "purchase"
	RowSale               RowKind = "sale"
	RowConsignmentSale    RowKind = "consignment_sale"
	RowAdjustmentIncrease RowKind = "adjustment_increase"
	RowAdjustmentDecrease RowKind = "adjustment_decrease"
	RowAdjustmentSet      RowKind = "adjustment_set"
	RowReturnIn           RowKind = "return_in"
	RowReturnOut          RowKind = "return_out"
	RowDeliveryNote       RowKind = "delivery_note"
	RowSettlementSold     RowKind = "settlement_sold"
	RowSettlementReturned RowKind = "settlement_returned"
	RowSettlementRejected RowKind = "settlement_rejected"
)

// MovementQuery selects the rows to emit. ProductID 0 selects every product.
type MovementQuery struct {
	ProductID int64
	From      *time.Time
	To        *time.Time
	Kinds     []RowKind
}

// MovementRow is one line of the trail. Quantity is the signed effect in
// the smallest unit, except for adjustment_set where it is the new level.
type MovementRow struct {
	Date          time.Time       `json:"date"`
	ProductID     int64           `json:"product_id"`
	ProductCode   string          `json:"product_code"`
	ProductName   string          `json:"product_name"`
	Kind          RowKind         `json:"kind"`
	Reference     string          `json:"reference"`
	Quantity      decimal.Decimal `json:"quantity"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
}

// Projector builds movement trails.
type Projector struct {
	store  ledger.Store
	logger *zap.Logger
}

// NewProjector creates a projector.
func NewProjector(store ledger.Store, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{store: store, logger: logger.Named("report")}
}

type productInfo struct {
	code, name string
	opening    decimal.Decimal
	factor     decimal.Decimal
}

// ProjectProductMovements replays every source and returns the emitted rows
// in date order.
func (p *Projector) ProjectProductMovements(ctx context.Context, q MovementQuery) ([]MovementRow, error) {
	if q.From != nil && q.To != nil && ledger.Day(*q.From).After(ledger.Day(*q.To)) {
		return nil, ledger.Invalid("from", "must not be after to")
	}

	products, err := p.products(ctx)
	if err != nil {
		return nil, err
	}
	info := func(id int64) productInfo {
		if pi, ok := products[id]; ok {
			return pi
		}
		return productInfo{
			name:   fmt.Sprintf("Unknown product #%d", id),
			factor: decimal.NewFromInt(1),
		}
	}

	var rows []MovementRow
	add := func(date time.Time, productID int64, kind RowKind, ref string, qty decimal.Decimal, unit ledger.Unit) {
		if q.ProductID != 0 && productID != q.ProductID {
			return
		}
		pi := info(productID)
		rows = append(rows, MovementRow{
			Date:        ledger.Day(date),
			ProductID:   productID,
			ProductCode: pi.code,
			ProductName: pi.name,
			Kind:        kind,
			Reference:   ref,
			Quantity:    ledger.ToSmallest(qty, unit, pi.factor),
		})
	}

	if err := p.collect(ctx, add); err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })

	kinds := make(map[RowKind]bool, len(q.Kinds))
	for _, k := range q.Kinds {
		kinds[k] = true
	}

	running := make(map[int64]decimal.Decimal)
	out := []MovementRow{}
	for _, r := range rows {
		if q.To != nil && r.Date.After(ledger.Day(*q.To)) {
			continue
		}
		before, ok := running[r.ProductID]
		if !ok {
			before = info(r.ProductID).opening
		}
		after := before.Add(r.Quantity)
		if r.Kind == RowAdjustmentSet {
			after = r.Quantity.Abs()
		}
		running[r.ProductID] = after

		if !ledger.InWindow(r.Date, q.From, q.To) {
			continue
		}
		if len(kinds) > 0 && !kinds[r.Kind] {
			continue
		}
		r.BalanceBefore, r.BalanceAfter = before, after
		out = append(out, r)
	}

	p.logger.Debug("movements projected", zap.Int64("product_id", q.ProductID), zap.Int("rows", len(out)))
	return out, nil
}

func (p *Projector) products(ctx context.Context) (map[int64]productInfo, error) {
	list, err := ledger.List[ledger.Product](ctx, p.store, ledger.TableProducts, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]productInfo, len(list))
	for _, pr := range list {
		out[pr.ID] = productInfo{code: pr.Code, name: pr.Name, opening: pr.OpeningStock, factor: pr.Factor()}
	}
	return out, nil
}

type addFunc func(date time.Time, productID int64, kind RowKind, ref string, qty decimal.Decimal, unit ledger.Unit)

// collect feeds every source row to add, source by source.
func (p *Projector) collect(ctx context.Context, add addFunc) error {
	zero := decimal.Zero

	purchases, err := ledger.List[ledger.PurchaseInvoice](ctx, p.store, ledger.TablePurchaseInvoices, nil)
	if err != nil {
		return err
	}
	for _, inv := range purchases {
		items, err := ledger.List[ledger.PurchaseInvoiceItem](ctx, p.store, ledger.TablePurchaseInvoiceItems,
			ledger.Filter{"invoice_id": inv.ID})
		if err != nil {
			return err
		}
		for _, it := range items {
			add(inv.Date, it.ProductID, RowPurchase, inv.InvoiceNumber, it.Quantity, it.Unit)
		}
	}

	sales, err := ledger.List[ledger.SalesInvoice](ctx, p.store, ledger.TableSalesInvoices, nil)
	if err != nil {
		return err
	}
	for _, inv := range sales {
		items, err := ledger.List[ledger.SalesInvoiceItem](ctx, p.store, ledger.TableSalesInvoiceItems,
			ledger.Filter{"invoice_id": inv.ID})
		if err != nil {
			return err
		}
		for _, it := range items {
			if inv.DeliveryNoteID != nil {
				add(inv.Date, it.ProductID, RowConsignmentSale, inv.InvoiceNumber, zero, it.Unit)
				continue
			}
			add(inv.Date, it.ProductID, RowSale, inv.InvoiceNumber, it.Quantity.Neg(), it.Unit)
		}
	}

	adjustments, err := ledger.List[ledger.Adjustment](ctx, p.store, ledger.TableAdjustments, nil)
	if err != nil {
		return err
	}
	for _, a := range adjustments {
		switch a.Type {
		case ledger.AdjustIncrease:
			add(a.Date, a.ProductID, RowAdjustmentIncrease, a.ReferenceNumber, a.Quantity, a.Unit)
		case ledger.AdjustDecrease:
			add(a.Date, a.ProductID, RowAdjustmentDecrease, a.ReferenceNumber, a.Quantity.Neg(), a.Unit)
		case ledger.AdjustSet:
			add(a.Date, a.ProductID, RowAdjustmentSet, a.ReferenceNumber, a.Quantity.Abs(), a.Unit)
		}
	}

	returns, err := ledger.List[ledger.Return](ctx, p.store, ledger.TableReturns, ledger.Filter{"restock": true})
	if err != nil {
		return err
	}
	for _, r := range returns {
		ref := fmt.Sprintf("RET-%d", r.ID)
		if r.ReturnType == ledger.ReturnToSupplier {
			add(r.Date, r.ProductID, RowReturnOut, ref, r.Quantity.Neg(), r.Unit)
		} else {
			add(r.Date, r.ProductID, RowReturnIn, ref, r.Quantity, r.Unit)
		}
	}

	notes, err := ledger.List[consignment.DeliveryNote](ctx, p.store, ledger.TableDeliveryNotes, nil)
	if err != nil {
		return err
	}
	for _, n := range notes {
		items, err := ledger.List[consignment.NoteItem](ctx, p.store, ledger.TableDeliveryNoteItems,
			ledger.Filter{"delivery_note_id": n.ID})
		if err != nil {
			return err
		}
		for _, it := range items {
			add(n.Date, it.ProductID, RowDeliveryNote, n.DeliveryNoteNumber, zero, it.Unit)
		}
	}

	settlements, err := ledger.List[consignment.Settlement](ctx, p.store, ledger.TableSettlements, nil)
	if err != nil {
		return err
	}
	for _, st := range settlements {
		items, err := ledger.List[consignment.SettlementItem](ctx, p.store, ledger.TableSettlementItems,
			ledger.Filter{"settlement_id": st.ID})
		if err != nil {
			return err
		}
		for _, it := range items {
			if it.SoldQuantity.IsPositive() {
				add(st.Date, it.ProductID, RowSettlementSold, st.SettlementNumber, it.SoldQuantity.Neg(), it.Unit)
			}
			if it.ReturnedQuantity.IsPositive() {
				add(st.Date, it.ProductID, RowSettlementReturned, st.SettlementNumber, it.ReturnedQuantity, it.Unit)
			}
			if it.RejectedQuantity.IsPositive() {
				add(st.Date, it.ProductID, RowSettlementRejected, st.SettlementNumber, it.RejectedQuantity, it.Unit)
			}
		}
	}
	return nil
}

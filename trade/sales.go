package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/consignment"
	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/numbering"
)

// =============================================================================
// SALES INVOICES
// =============================================================================

// SalesInvoiceInput creates a sales invoice. With DeliveryNoteID set the
// goods come from that (issued) note and no stock moves until settlement.
// DeliveryStatus defaults to pending for consigned invoices and delivered
// otherwise.
type SalesInvoiceInput struct {
	CustomerID     int64                 `json:"customer_id"`
	Date           time.Time             `json:"date"`
	Paid           decimal.Decimal       `json:"paid"`
	DeliveryNoteID *int64                `json:"delivery_note_id"`
	DeliveryStatus ledger.DeliveryStatus `json:"delivery_status"`
	Items          []LineInput           `json:"items"`
}

// CreateSalesInvoice posts a sales invoice.
func (s *Service) CreateSalesInvoice(ctx context.Context, in SalesInvoiceInput) (*ledger.SalesInvoice, error) {
	if _, err := s.accounts.Account(ctx, ledger.AccountCustomer, in.CustomerID); err != nil {
		return nil, err
	}
	total, err := s.validateLines(ctx, in.Items)
	if err != nil {
		return nil, err
	}
	if err := validatePaid(in.Paid); err != nil {
		return nil, err
	}

	status := in.DeliveryStatus
	switch {
	case status == "" && in.DeliveryNoteID != nil:
		status = ledger.DeliveryPending
	case status == "":
		status = ledger.DeliveryDelivered
	case status != ledger.DeliveryPending && status != ledger.DeliveryDelivered:
		return nil, ledger.Invalid("delivery_status", "must be pending or delivered")
	}
	if in.DeliveryNoteID != nil {
		if err := s.requireIssuedNote(ctx, *in.DeliveryNoteID); err != nil {
			return nil, err
		}
	}

	date := s.dateOrToday(in.Date)
	number, err := s.numbers.Next(ctx, numbering.SalesInvoice, date)
	if err != nil {
		return nil, err
	}

	inv := &ledger.SalesInvoice{
		InvoiceNumber:  number,
		CustomerID:     in.CustomerID,
		Date:           date,
		Total:          total,
		Paid:           in.Paid,
		Remaining:      total.Sub(in.Paid),
		DeliveryNoteID: in.DeliveryNoteID,
		DeliveryStatus: status,
		CreatedAt:      s.now(),
	}
	if _, err := ledger.Insert(ctx, s.store, ledger.TableSalesInvoices, inv); err != nil {
		return nil, err
	}

	inv.Items, err = s.insertSalesItems(ctx, inv, in.Items)
	if err == nil {
		err = s.postSales(ctx, inv, inv.Items, false)
	}
	if err = s.recompute(ctx, ledger.AccountCustomer, inv.CustomerID, err); err != nil {
		return inv, err
	}

	s.logger.Info("sales invoice posted",
		zap.Int64("invoice_id", inv.ID),
		zap.String("number", number),
		zap.Bool("consigned", inv.DeliveryNoteID != nil),
		zap.String("total", total.String()),
	)
	return inv, nil
}

// requireIssuedNote fails unless the note exists and is still issued.
func (s *Service) requireIssuedNote(ctx context.Context, noteID int64) error {
	note, err := s.notes.GetNote(ctx, noteID)
	if err != nil {
		return err
	}
	if note.Status != consignment.StatusIssued {
		return fmt.Errorf("delivery note %s is %s: %w", note.DeliveryNoteNumber, note.Status, ledger.ErrLocked)
	}
	return nil
}

func (s *Service) insertSalesItems(ctx context.Context, inv *ledger.SalesInvoice, lines []LineInput) ([]ledger.SalesInvoiceItem, error) {
	items := make([]ledger.SalesInvoiceItem, 0, len(lines))
	for _, l := range lines {
		it := ledger.SalesInvoiceItem{
			InvoiceID: inv.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Unit:      l.Unit.Normalize(),
			Price:     l.Price,
		}
		if _, err := ledger.Insert(ctx, s.store, ledger.TableSalesInvoiceItems, &it); err != nil {
			return items, err
		}
		items = append(items, it)
	}
	return items, nil
}

// postSales applies (or with reverse, undoes) the sale movements of a
// direct invoice. Consigned invoices post nothing.
func (s *Service) postSales(ctx context.Context, inv *ledger.SalesInvoice, items []ledger.SalesInvoiceItem, reverse bool) error {
	if inv.DeliveryNoteID != nil {
		return nil
	}
	ids := make([]int64, 0, len(items))
	moves := make([]ledger.Movement, 0, len(items))
	for _, it := range items {
		m := ledger.Sale(it.Quantity, it.Unit)
		m.Reference = inv.InvoiceNumber
		m.Reversed = reverse
		ids = append(ids, it.ProductID)
		moves = append(moves, m)
	}
	return s.postAll(ctx, ids, moves)
}

// GetSalesInvoice loads an invoice with its items.
func (s *Service) GetSalesInvoice(ctx context.Context, id int64) (*ledger.SalesInvoice, error) {
	inv, err := ledger.MustGet[ledger.SalesInvoice](ctx, s.store, ledger.TableSalesInvoices, id)
	if err != nil {
		return nil, err
	}
	inv.Items, err = ledger.List[ledger.SalesInvoiceItem](ctx, s.store, ledger.TableSalesInvoiceItems,
		ledger.Filter{"invoice_id": id})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListSalesInvoices returns invoices in creation order. customerID 0 lists all.
func (s *Service) ListSalesInvoices(ctx context.Context, customerID int64) ([]ledger.SalesInvoice, error) {
	var filter ledger.Filter
	if customerID != 0 {
		filter = ledger.Filter{"customer_id": customerID}
	}
	return ledger.List[ledger.SalesInvoice](ctx, s.store, ledger.TableSalesInvoices, filter)
}

// SetSalesInvoicePaid changes the paid amount, which shifts remaining.
func (s *Service) SetSalesInvoicePaid(ctx context.Context, id int64, paid decimal.Decimal) (*ledger.SalesInvoice, error) {
	if err := validatePaid(paid); err != nil {
		return nil, err
	}
	inv, err := ledger.MustGet[ledger.SalesInvoice](ctx, s.store, ledger.TableSalesInvoices, id)
	if err != nil {
		return nil, err
	}
	inv.Paid = paid
	inv.Remaining = inv.Total.Sub(paid)
	err = ledger.Update(ctx, s.store, ledger.TableSalesInvoices, id, inv)
	if err = s.recompute(ctx, ledger.AccountCustomer, inv.CustomerID, err); err != nil {
		return nil, err
	}
	s.logger.Info("sales invoice paid updated", zap.Int64("invoice_id", id), zap.String("paid", paid.String()))
	return inv, nil
}

// MarkSalesInvoiceDelivered flags the goods of an invoice as handed over.
func (s *Service) MarkSalesInvoiceDelivered(ctx context.Context, id int64) (*ledger.SalesInvoice, error) {
	inv, err := ledger.MustGet[ledger.SalesInvoice](ctx, s.store, ledger.TableSalesInvoices, id)
	if err != nil {
		return nil, err
	}
	if inv.DeliveryStatus == ledger.DeliveryDelivered {
		return inv, nil
	}
	inv.DeliveryStatus = ledger.DeliveryDelivered
	if err := ledger.Update(ctx, s.store, ledger.TableSalesInvoices, id, inv); err != nil {
		return nil, err
	}
	s.logger.Info("sales invoice delivered", zap.Int64("invoice_id", id), zap.String("number", inv.InvoiceNumber))
	return inv, nil
}

// lockedBySettlement fails when the invoice feeds a settled note's sold count.
func (s *Service) lockedBySettlement(ctx context.Context, inv *ledger.SalesInvoice) error {
	if inv.DeliveryNoteID == nil {
		return nil
	}
	note, err := ledger.Get[consignment.DeliveryNote](ctx, s.store, ledger.TableDeliveryNotes, *inv.DeliveryNoteID)
	if err != nil {
		return err
	}
	if note != nil && note.Status != consignment.StatusIssued {
		return fmt.Errorf("invoice %s belongs to %s delivery note %s: %w",
			inv.InvoiceNumber, note.Status, note.DeliveryNoteNumber, ledger.ErrLocked)
	}
	return nil
}

// ReplaceSalesInvoiceItems swaps every line of an invoice: the old sale
// movements are reversed, the new ones applied, and the total rewritten.
func (s *Service) ReplaceSalesInvoiceItems(ctx context.Context, id int64, lines []LineInput) (*ledger.SalesInvoice, error) {
	inv, err := s.GetSalesInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.lockedBySettlement(ctx, inv); err != nil {
		return nil, err
	}
	total, err := s.validateLines(ctx, lines)
	if err != nil {
		return nil, err
	}

	if err := s.postSales(ctx, inv, inv.Items, true); err != nil {
		return nil, err
	}
	for _, it := range inv.Items {
		if err := ledger.Delete(ctx, s.store, ledger.TableSalesInvoiceItems, it.ID); err != nil {
			return nil, err
		}
	}

	inv.Total = total
	inv.Remaining = total.Sub(inv.Paid)
	err = ledger.Update(ctx, s.store, ledger.TableSalesInvoices, id, inv)
	if err == nil {
		inv.Items, err = s.insertSalesItems(ctx, inv, lines)
	}
	if err == nil {
		err = s.postSales(ctx, inv, inv.Items, false)
	}
	if err = s.recompute(ctx, ledger.AccountCustomer, inv.CustomerID, err); err != nil {
		return inv, err
	}
	s.logger.Info("sales invoice items replaced", zap.Int64("invoice_id", id), zap.Int("items", len(inv.Items)))
	return inv, nil
}

// DeleteSalesInvoice reverses the stock effect of an invoice and removes it.
func (s *Service) DeleteSalesInvoice(ctx context.Context, id int64) error {
	inv, err := s.GetSalesInvoice(ctx, id)
	if err != nil {
		return err
	}
	if err := s.lockedBySettlement(ctx, inv); err != nil {
		return err
	}
	if err := s.postSales(ctx, inv, inv.Items, true); err != nil {
		return err
	}

	for _, it := range inv.Items {
		if err := ledger.Delete(ctx, s.store, ledger.TableSalesInvoiceItems, it.ID); err != nil {
			return s.recompute(ctx, ledger.AccountCustomer, inv.CustomerID, err)
		}
	}
	err = ledger.Delete(ctx, s.store, ledger.TableSalesInvoices, id)
	if err = s.recompute(ctx, ledger.AccountCustomer, inv.CustomerID, err); err != nil {
		return err
	}
	s.logger.Info("sales invoice deleted", zap.Int64("invoice_id", id), zap.String("number", inv.InvoiceNumber))
	return nil
}

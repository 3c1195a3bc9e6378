package consignment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/numbering"
)

// =============================================================================
// CREATE SETTLEMENT - The one-time stock deduction for a note
// =============================================================================

// CreateSettlement closes an issued note:
//  1. Guards: one settlement per note, note still issued, linked invoices delivered
//  2. Sold per note line = sum of matching invoice lines (product + unit)
//  3. One settlement movement per line: stock += returned + rejected - sold
//  4. Settlement and its items persisted
//  5. Note moves to settled
//
// Lines in the input are matched to note lines by product and unit; a note
// line without an input line settles with zero returned and rejected.
func (s *Service) CreateSettlement(ctx context.Context, noteID int64, in SettlementInput) (*Settlement, error) {
	note, err := s.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}

	existing, err := ledger.List[Settlement](ctx, s.store, ledger.TableSettlements,
		ledger.Filter{"delivery_note_id": noteID})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("delivery note %s has settlement %s: %w",
			note.DeliveryNoteNumber, existing[0].SettlementNumber, ledger.ErrDuplicateSettlement)
	}
	if note.Status != StatusIssued {
		return nil, fmt.Errorf("delivery note %s is %s: %w", note.DeliveryNoteNumber, note.Status, ledger.ErrAlreadySettled)
	}

	invoices, err := s.LinkedInvoices(ctx, noteID)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, inv := range invoices {
		if inv.DeliveryStatus != ledger.DeliveryDelivered {
			pending = append(pending, inv.InvoiceNumber)
		}
	}
	if len(pending) > 0 {
		return nil, &ledger.PendingInvoicesError{DeliveryNoteID: noteID, InvoiceNumbers: pending}
	}

	if err := validateLines(note, in.Lines); err != nil {
		return nil, err
	}
	lines, err := s.linkedLines(ctx, invoices)
	if err != nil {
		return nil, err
	}

	items := make([]SettlementItem, 0, len(note.Items))
	for _, ni := range note.Items {
		sold := soldQuantity(lines, ni)
		returned, rejected := decimal.Zero, decimal.Zero
		for _, l := range in.Lines {
			if sameLine(l.ProductID, l.Unit, ni) {
				returned, rejected = l.Returned, l.Rejected
				break
			}
		}
		items = append(items, SettlementItem{
			ProductID:        ni.ProductID,
			Unit:             ni.Unit.Normalize(),
			IssuedQuantity:   ni.Quantity,
			SoldQuantity:     sold,
			ReturnedQuantity: returned,
			RejectedQuantity: rejected,
			Difference:       ni.Quantity.Sub(sold),
		})
	}

	date := s.dateOrToday(in.Date)
	number, err := s.numbers.Next(ctx, numbering.Settlement, date)
	if err != nil {
		return nil, err
	}

	for _, it := range items {
		if _, err := s.stock.Apply(ctx, it.ProductID, it.Movement(number)); err != nil {
			return nil, err
		}
	}

	settlement := &Settlement{
		SettlementNumber: number,
		DeliveryNoteID:   noteID,
		Date:             date,
		Notes:            in.Notes,
		CreatedAt:        s.now(),
	}
	if _, err := ledger.Insert(ctx, s.store, ledger.TableSettlements, settlement); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].SettlementID = settlement.ID
		if _, err := ledger.Insert(ctx, s.store, ledger.TableSettlementItems, &items[i]); err != nil {
			settlement.Items = items[:i]
			return settlement, err
		}
	}
	settlement.Items = items

	note.Status = StatusSettled
	if err := ledger.Update(ctx, s.store, ledger.TableDeliveryNotes, noteID, note); err != nil {
		return settlement, err
	}

	for _, it := range items {
		if !it.Accounted() {
			s.logger.Warn("settlement item does not reconcile",
				zap.String("settlement", number),
				zap.Int64("product_id", it.ProductID),
				zap.String("difference", it.Difference.String()),
				zap.String("returned", it.ReturnedQuantity.String()),
				zap.String("rejected", it.RejectedQuantity.String()),
			)
		}
	}
	s.logger.Info("delivery note settled",
		zap.Int64("note_id", noteID),
		zap.String("note", note.DeliveryNoteNumber),
		zap.String("settlement", number),
		zap.Int("invoices", len(invoices)),
	)
	return settlement, nil
}

func validateLines(note *DeliveryNote, lines []SettlementLine) error {
	for i, l := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		if !l.Unit.Valid() {
			return ledger.Invalid(field+".unit", "must be smallest or largest")
		}
		if l.Returned.IsNegative() || l.Rejected.IsNegative() {
			return ledger.Invalid(field, "returned and rejected must not be negative")
		}
		matched := false
		for _, ni := range note.Items {
			if sameLine(l.ProductID, l.Unit, ni) {
				matched = true
				break
			}
		}
		if !matched {
			return ledger.Invalid(field, fmt.Sprintf("product %d (%s) is not on delivery note %s",
				l.ProductID, l.Unit.Normalize(), note.DeliveryNoteNumber))
		}
	}
	return nil
}

// =============================================================================
// DELETE SETTLEMENT - Reverse the deduction and reopen the note
// =============================================================================

// DeleteSettlement applies the inverse of every settlement movement, moves
// the note back to issued, and removes the settlement with its items.
func (s *Service) DeleteSettlement(ctx context.Context, id int64) error {
	settlement, err := s.GetSettlement(ctx, id)
	if err != nil {
		return err
	}

	for _, it := range settlement.Items {
		if _, err := s.stock.Revert(ctx, it.ProductID, it.Movement(settlement.SettlementNumber)); err != nil {
			return err
		}
	}

	note, err := ledger.Get[DeliveryNote](ctx, s.store, ledger.TableDeliveryNotes, settlement.DeliveryNoteID)
	if err != nil {
		return err
	}
	if note != nil {
		note.Status = StatusIssued
		if err := ledger.Update(ctx, s.store, ledger.TableDeliveryNotes, note.ID, note); err != nil {
			return err
		}
	}

	for _, it := range settlement.Items {
		if err := ledger.Delete(ctx, s.store, ledger.TableSettlementItems, it.ID); err != nil {
			return err
		}
	}
	if err := ledger.Delete(ctx, s.store, ledger.TableSettlements, id); err != nil {
		return err
	}

	s.logger.Info("settlement deleted",
		zap.Int64("settlement_id", id),
		zap.String("settlement", settlement.SettlementNumber),
		zap.Int64("note_id", settlement.DeliveryNoteID),
	)
	return nil
}

// =============================================================================
// READ
// =============================================================================

// GetSettlement loads a settlement with its items.
func (s *Service) GetSettlement(ctx context.Context, id int64) (*Settlement, error) {
	settlement, err := ledger.MustGet[Settlement](ctx, s.store, ledger.TableSettlements, id)
	if err != nil {
		return nil, err
	}
	settlement.Items, err = ledger.List[SettlementItem](ctx, s.store, ledger.TableSettlementItems,
		ledger.Filter{"settlement_id": id})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// SettlementForNote returns the settlement of a note, or a NotFoundError.
func (s *Service) SettlementForNote(ctx context.Context, noteID int64) (*Settlement, error) {
	found, err := ledger.List[Settlement](ctx, s.store, ledger.TableSettlements,
		ledger.Filter{"delivery_note_id": noteID})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("no settlement for delivery note #%d: %w", noteID, ledger.ErrNotFound)
	}
	return s.GetSettlement(ctx, found[0].ID)
}

// Reconcile lists the items of a settlement whose difference is not
// explained by returned + rejected.
func (s *Service) Reconcile(ctx context.Context, settlementID int64) ([]Discrepancy, error) {
	settlement, err := s.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	out := []Discrepancy{}
	for _, it := range settlement.Items {
		if it.Accounted() {
			continue
		}
		accounted := it.ReturnedQuantity.Add(it.RejectedQuantity)
		out = append(out, Discrepancy{
			ProductID:  it.ProductID,
			Unit:       it.Unit,
			Difference: it.Difference,
			Accounted:  accounted,
			Gap:        it.Difference.Sub(accounted),
		})
	}
	return out, nil
}

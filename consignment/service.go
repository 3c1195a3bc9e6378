package consignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/numbering"
)

// =============================================================================
// SERVICE - Delivery note and settlement lifecycle
// =============================================================================

// Service runs the consignment workflow against the Record Store.
// Operations are not atomic across records: a failure mid-way leaves the
// writes already made in place.
type Service struct {
	store   ledger.Store
	stock   *ledger.StockLedger
	numbers *numbering.Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a consignment service.
func NewService(store ledger.Store, stock *ledger.StockLedger, numbers *numbering.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		stock:   stock,
		numbers: numbers,
		logger:  logger.Named("consignment"),
		now:     time.Now,
	}
}

// SetClock overrides the time source used for creation timestamps and
// default document dates.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) dateOrToday(d time.Time) time.Time {
	if d.IsZero() {
		return ledger.Day(s.now())
	}
	return ledger.Day(d)
}

// =============================================================================
// CREATE NOTE
// =============================================================================

// CreateNote issues a delivery note. Stock is not touched.
func (s *Service) CreateNote(ctx context.Context, in NoteInput) (*DeliveryNote, error) {
	if err := s.validateItems(ctx, in.Items); err != nil {
		return nil, err
	}

	date := s.dateOrToday(in.Date)
	number, err := s.numbers.Next(ctx, numbering.DeliveryNote, date)
	if err != nil {
		return nil, err
	}

	note := &DeliveryNote{
		DeliveryNoteNumber: number,
		Representative:     in.Representative,
		Date:               date,
		Status:             StatusIssued,
		Notes:              in.Notes,
		CreatedAt:          s.now(),
	}
	if _, err := ledger.Insert(ctx, s.store, ledger.TableDeliveryNotes, note); err != nil {
		return nil, err
	}

	items, err := s.insertItems(ctx, note.ID, in.Items)
	note.Items = items
	if err != nil {
		return note, err
	}

	s.logger.Info("delivery note issued",
		zap.Int64("note_id", note.ID),
		zap.String("number", note.DeliveryNoteNumber),
		zap.Int("items", len(items)),
	)
	return note, nil
}

func (s *Service) validateItems(ctx context.Context, items []NoteItemInput) error {
	if len(items) == 0 {
		return ledger.Invalid("items", "at least one item is required")
	}
	// Settlement matches invoice lines by product and unit, so each pair
	// may appear once per note.
	type lineKey struct {
		productID int64
		unit      ledger.Unit
	}
	seen := make(map[lineKey]int, len(items))
	for i, it := range items {
		field := fmt.Sprintf("items[%d]", i)
		if !it.Unit.Valid() {
			return ledger.Invalid(field+".unit", "must be smallest or largest")
		}
		key := lineKey{it.ProductID, it.Unit.Normalize()}
		if first, dup := seen[key]; dup {
			return ledger.Invalid(field, fmt.Sprintf("duplicates items[%d] (same product and unit)", first))
		}
		seen[key] = i
		if !it.Quantity.IsPositive() {
			return ledger.Invalid(field+".quantity", "must be positive")
		}
		if it.ReservedQuantity.IsNegative() || it.AvailableQuantity.IsNegative() {
			return ledger.Invalid(field, "reserved and available quantities must not be negative")
		}
		if _, err := ledger.MustGet[ledger.Product](ctx, s.store, ledger.TableProducts, it.ProductID); err != nil {
			return err
		}
	}
	return nil
}

// insertItems writes note lines, stopping at the first failure.
func (s *Service) insertItems(ctx context.Context, noteID int64, in []NoteItemInput) ([]NoteItem, error) {
	items := make([]NoteItem, 0, len(in))
	for _, it := range in {
		item := NoteItem{
			DeliveryNoteID:    noteID,
			ProductID:         it.ProductID,
			Quantity:          it.Quantity,
			Unit:              it.Unit.Normalize(),
			ReservedQuantity:  it.ReservedQuantity,
			AvailableQuantity: it.AvailableQuantity,
		}
		if _, err := ledger.Insert(ctx, s.store, ledger.TableDeliveryNoteItems, &item); err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

// =============================================================================
// READ
// =============================================================================

// GetNote loads a note with its items.
func (s *Service) GetNote(ctx context.Context, id int64) (*DeliveryNote, error) {
	note, err := ledger.MustGet[DeliveryNote](ctx, s.store, ledger.TableDeliveryNotes, id)
	if err != nil {
		return nil, err
	}
	note.Items, err = ledger.List[NoteItem](ctx, s.store, ledger.TableDeliveryNoteItems,
		ledger.Filter{"delivery_note_id": id})
	if err != nil {
		return nil, err
	}
	return note, nil
}

// ListNotes returns notes in creation order, optionally restricted to one status.
// Items are not loaded.
func (s *Service) ListNotes(ctx context.Context, status NoteStatus) ([]DeliveryNote, error) {
	var filter ledger.Filter
	if status != "" {
		filter = ledger.Filter{"status": status}
	}
	return ledger.List[DeliveryNote](ctx, s.store, ledger.TableDeliveryNotes, filter)
}

// LinkedInvoices returns the sales invoices that reference the note.
func (s *Service) LinkedInvoices(ctx context.Context, noteID int64) ([]ledger.SalesInvoice, error) {
	return ledger.List[ledger.SalesInvoice](ctx, s.store, ledger.TableSalesInvoices,
		ledger.Filter{"delivery_note_id": noteID})
}

func (s *Service) linkedGuard(ctx context.Context, noteID int64) error {
	invoices, err := s.LinkedInvoices(ctx, noteID)
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		return nil
	}
	numbers := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		numbers = append(numbers, inv.InvoiceNumber)
	}
	return &ledger.LinkedError{DeliveryNoteID: noteID, InvoiceNumbers: numbers}
}

// =============================================================================
// EDIT NOTE
// =============================================================================

// EditNote changes an issued, unlinked note.
func (s *Service) EditNote(ctx context.Context, id int64, changes NoteChanges) (*DeliveryNote, error) {
	note, err := s.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if note.Status != StatusIssued {
		return nil, fmt.Errorf("delivery note %s is %s: %w", note.DeliveryNoteNumber, note.Status, ledger.ErrLocked)
	}
	if err := s.linkedGuard(ctx, id); err != nil {
		return nil, err
	}
	if changes.Items != nil {
		if err := s.validateItems(ctx, *changes.Items); err != nil {
			return nil, err
		}
	}

	if changes.Representative != nil {
		note.Representative = *changes.Representative
	}
	if changes.Date != nil {
		note.Date = ledger.Day(*changes.Date)
	}
	if changes.Notes != nil {
		note.Notes = *changes.Notes
	}
	if err := ledger.Update(ctx, s.store, ledger.TableDeliveryNotes, id, note); err != nil {
		return nil, err
	}

	if changes.Items != nil {
		for _, it := range note.Items {
			if err := ledger.Delete(ctx, s.store, ledger.TableDeliveryNoteItems, it.ID); err != nil {
				return nil, err
			}
		}
		note.Items, err = s.insertItems(ctx, id, *changes.Items)
		if err != nil {
			return note, err
		}
	}

	s.logger.Info("delivery note edited", zap.Int64("note_id", id), zap.Bool("items_replaced", changes.Items != nil))
	return note, nil
}

// =============================================================================
// DELETE NOTE
// =============================================================================

// DeleteNote removes an unlinked note. Its settlement, if any, is deleted
// first (reverting the settlement stock movements), then each item's
// available quantity is released back to stock.
func (s *Service) DeleteNote(ctx context.Context, id int64) error {
	note, err := s.GetNote(ctx, id)
	if err != nil {
		return err
	}
	if err := s.linkedGuard(ctx, id); err != nil {
		return err
	}

	settlement, err := s.SettlementForNote(ctx, id)
	switch {
	case err == nil:
		if err := s.DeleteSettlement(ctx, settlement.ID); err != nil {
			return err
		}
	case !errors.Is(err, ledger.ErrNotFound):
		return err
	}

	for _, it := range note.Items {
		if !it.AvailableQuantity.IsPositive() {
			continue
		}
		m := ledger.Release(it.AvailableQuantity, it.Unit)
		m.Reference = note.DeliveryNoteNumber
		if _, err := s.stock.Apply(ctx, it.ProductID, m); err != nil {
			return err
		}
	}

	for _, it := range note.Items {
		if err := ledger.Delete(ctx, s.store, ledger.TableDeliveryNoteItems, it.ID); err != nil {
			return err
		}
	}
	if err := ledger.Delete(ctx, s.store, ledger.TableDeliveryNotes, id); err != nil {
		return err
	}

	s.logger.Info("delivery note deleted", zap.Int64("note_id", id), zap.String("number", note.DeliveryNoteNumber))
	return nil
}

// sameLine reports whether an invoice or settlement line matches a note line.
func sameLine(productID int64, unit ledger.Unit, item NoteItem) bool {
	return productID == item.ProductID && unit.Normalize() == item.Unit.Normalize()
}

// linkedLines collects the line items of every invoice in invoices.
func (s *Service) linkedLines(ctx context.Context, invoices []ledger.SalesInvoice) ([]ledger.SalesInvoiceItem, error) {
	var out []ledger.SalesInvoiceItem
	for _, inv := range invoices {
		lines, err := ledger.List[ledger.SalesInvoiceItem](ctx, s.store, ledger.TableSalesInvoiceItems,
			ledger.Filter{"invoice_id": inv.ID})
		if err != nil {
			return nil, err
		}
		out = append(out, lines...)
	}
	return out, nil
}

// soldQuantity sums the matching invoice lines of a note line.
func soldQuantity(lines []ledger.SalesInvoiceItem, item NoteItem) decimal.Decimal {
	sold := decimal.Zero
	for _, l := range lines {
		if sameLine(l.ProductID, l.Unit, item) {
			sold = sold.Add(l.Quantity)
		}
	}
	return sold
}

package trade

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/numbering"
)

// =============================================================================
// PURCHASE INVOICES
// =============================================================================

// PurchaseInvoiceInput creates a purchase invoice.
type PurchaseInvoiceInput struct {
	SupplierID int64           `json:"supplier_id"`
	Date       time.Time       `json:"date"`
	Paid       decimal.Decimal `json:"paid"`
	Items      []LineInput     `json:"items"`
}

// CreatePurchaseInvoice posts a purchase invoice and a purchase movement per line.
func (s *Service) CreatePurchaseInvoice(ctx context.Context, in PurchaseInvoiceInput) (*ledger.PurchaseInvoice, error) {
	if _, err := s.accounts.Account(ctx, ledger.AccountSupplier, in.SupplierID); err != nil {
		return nil, err
	}
	total, err := s.validateLines(ctx, in.Items)
	if err != nil {
		return nil, err
	}
	if err := validatePaid(in.Paid); err != nil {
		return nil, err
	}

	date := s.dateOrToday(in.Date)
	number, err := s.numbers.Next(ctx, numbering.PurchaseInvoice, date)
	if err != nil {
		return nil, err
	}

	inv := &ledger.PurchaseInvoice{
		InvoiceNumber: number,
		SupplierID:    in.SupplierID,
		Date:          date,
		Total:         total,
		Paid:          in.Paid,
		Remaining:     total.Sub(in.Paid),
		CreatedAt:     s.now(),
	}
	if _, err := ledger.Insert(ctx, s.store, ledger.TablePurchaseInvoices, inv); err != nil {
		return nil, err
	}

	for _, l := range in.Items {
		it := ledger.PurchaseInvoiceItem{
			InvoiceID: inv.ID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Unit:      l.Unit.Normalize(),
			Price:     l.Price,
		}
		if _, err = ledger.Insert(ctx, s.store, ledger.TablePurchaseInvoiceItems, &it); err != nil {
			break
		}
		inv.Items = append(inv.Items, it)
	}
	if err == nil {
		err = s.postPurchases(ctx, inv, false)
	}
	if err = s.recompute(ctx, ledger.AccountSupplier, inv.SupplierID, err); err != nil {
		return inv, err
	}

	s.logger.Info("purchase invoice posted",
		zap.Int64("invoice_id", inv.ID),
		zap.String("number", number),
		zap.String("total", total.String()),
	)
	return inv, nil
}

func (s *Service) postPurchases(ctx context.Context, inv *ledger.PurchaseInvoice, reverse bool) error {
	ids := make([]int64, 0, len(inv.Items))
	moves := make([]ledger.Movement, 0, len(inv.Items))
	for _, it := range inv.Items {
		m := ledger.Purchase(it.Quantity, it.Unit)
		m.Reference = inv.InvoiceNumber
		m.Reversed = reverse
		ids = append(ids, it.ProductID)
		moves = append(moves, m)
	}
	return s.postAll(ctx, ids, moves)
}

// GetPurchaseInvoice loads an invoice with its items.
func (s *Service) GetPurchaseInvoice(ctx context.Context, id int64) (*ledger.PurchaseInvoice, error) {
	inv, err := ledger.MustGet[ledger.PurchaseInvoice](ctx, s.store, ledger.TablePurchaseInvoices, id)
	if err != nil {
		return nil, err
	}
	inv.Items, err = ledger.List[ledger.PurchaseInvoiceItem](ctx, s.store, ledger.TablePurchaseInvoiceItems,
		ledger.Filter{"invoice_id": id})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// ListPurchaseInvoices returns invoices in creation order. supplierID 0 lists all.
func (s *Service) ListPurchaseInvoices(ctx context.Context, supplierID int64) ([]ledger.PurchaseInvoice, error) {
	var filter ledger.Filter
	if supplierID != 0 {
		filter = ledger.Filter{"supplier_id": supplierID}
	}
	return ledger.List[ledger.PurchaseInvoice](ctx, s.store, ledger.TablePurchaseInvoices, filter)
}

// SetPurchaseInvoicePaid changes the paid amount, which shifts remaining.
func (s *Service) SetPurchaseInvoicePaid(ctx context.Context, id int64, paid decimal.Decimal) (*ledger.PurchaseInvoice, error) {
	if err := validatePaid(paid); err != nil {
		return nil, err
	}
	inv, err := ledger.MustGet[ledger.PurchaseInvoice](ctx, s.store, ledger.TablePurchaseInvoices, id)
	if err != nil {
		return nil, err
	}
	inv.Paid = paid
	inv.Remaining = inv.Total.Sub(paid)
	err = ledger.Update(ctx, s.store, ledger.TablePurchaseInvoices, id, inv)
	if err = s.recompute(ctx, ledger.AccountSupplier, inv.SupplierID, err); err != nil {
		return nil, err
	}
	return inv, nil
}

// DeletePurchaseInvoice reverses the purchase movements and removes the invoice.
func (s *Service) DeletePurchaseInvoice(ctx context.Context, id int64) error {
	inv, err := s.GetPurchaseInvoice(ctx, id)
	if err != nil {
		return err
	}
	if err := s.postPurchases(ctx, inv, true); err != nil {
		return err
	}
	for _, it := range inv.Items {
		if err := ledger.Delete(ctx, s.store, ledger.TablePurchaseInvoiceItems, it.ID); err != nil {
			return s.recompute(ctx, ledger.AccountSupplier, inv.SupplierID, err)
		}
	}
	err = ledger.Delete(ctx, s.store, ledger.TablePurchaseInvoices, id)
	if err = s.recompute(ctx, ledger.AccountSupplier, inv.SupplierID, err); err != nil {
		return err
	}
	s.logger.Info("purchase invoice deleted", zap.Int64("invoice_id", id), zap.String("number", inv.InvoiceNumber))
	return nil
}

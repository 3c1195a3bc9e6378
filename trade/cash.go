package trade

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/consignment-ledger/ledger"
)

// =============================================================================
// RECEIPTS AND PAYMENTS
// =============================================================================

// CashInput records money received from a customer or paid to a supplier.
type CashInput struct {
	AccountID int64           `json:"account_id"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes"`
}

func (s *Service) validateCash(ctx context.Context, kind ledger.AccountKind, in CashInput) error {
	if !in.Amount.IsPositive() {
		return ledger.Invalid("amount", "must be positive")
	}
	_, err := s.accounts.Account(ctx, kind, in.AccountID)
	return err
}

// CreateReceipt records a customer receipt.
func (s *Service) CreateReceipt(ctx context.Context, in CashInput) (*ledger.Receipt, error) {
	if err := s.validateCash(ctx, ledger.AccountCustomer, in); err != nil {
		return nil, err
	}
	r := &ledger.Receipt{
		CustomerID: in.AccountID,
		Date:       s.dateOrToday(in.Date),
		Amount:     in.Amount,
		Notes:      in.Notes,
		CreatedAt:  s.now(),
	}
	if _, err := ledger.Insert(ctx, s.store, ledger.TableReceipts, r); err != nil {
		return nil, err
	}
	if err := s.recompute(ctx, ledger.AccountCustomer, r.CustomerID, nil); err != nil {
		return r, err
	}
	s.logger.Info("receipt recorded", zap.Int64("receipt_id", r.ID), zap.String("amount", r.Amount.String()))
	return r, nil
}

// DeleteReceipt removes a receipt.
func (s *Service) DeleteReceipt(ctx context.Context, id int64) error {
	r, err := ledger.MustGet[ledger.Receipt](ctx, s.store, ledger.TableReceipts, id)
	if err != nil {
		return err
	}
	err = ledger.Delete(ctx, s.store, ledger.TableReceipts, id)
	return s.recompute(ctx, ledger.AccountCustomer, r.CustomerID, err)
}

// ListReceipts returns receipts in creation order. customerID 0 lists all.
func (s *Service) ListReceipts(ctx context.Context, customerID int64) ([]ledger.Receipt, error) {
	var filter ledger.Filter
	if customerID != 0 {
		filter = ledger.Filter{"customer_id": customerID}
	}
	return ledger.List[ledger.Receipt](ctx, s.store, ledger.TableReceipts, filter)
}

// CreatePayment records a supplier payment.
func (s *Service) CreatePayment(ctx context.Context, in CashInput) (*ledger.Payment, error) {
	if err := s.validateCash(ctx, ledger.AccountSupplier, in); err != nil {
		return nil, err
	}
	p := &ledger.Payment{
		SupplierID: in.AccountID,
		Date:       s.dateOrToday(in.Date),
		Amount:     in.Amount,
		Notes:      in.Notes,
		CreatedAt:  s.now(),
	}
	if _, err := ledger.Insert(ctx, s.store, ledger.TablePayments, p); err != nil {
		return nil, err
	}
	if err := s.recompute(ctx, ledger.AccountSupplier, p.SupplierID, nil); err != nil {
		return p, err
	}
	s.logger.Info("payment recorded", zap.Int64("payment_id", p.ID), zap.String("amount", p.Amount.String()))
	return p, nil
}

// DeletePayment removes a payment.
func (s *Service) DeletePayment(ctx context.Context, id int64) error {
	p, err := ledger.MustGet[ledger.Payment](ctx, s.store, ledger.TablePayments, id)
	if err != nil {
		return err
	}
	err = ledger.Delete(ctx, s.store, ledger.TablePayments, id)
	return s.recompute(ctx, ledger.AccountSupplier, p.SupplierID, err)
}

// ListPayments returns payments in creation order. supplierID 0 lists all.
func (s *Service) ListPayments(ctx context.Context, supplierID int64) ([]ledger.Payment, error) {
	var filter ledger.Filter
	if supplierID != 0 {
		filter = ledger.Filter{"supplier_id": supplierID}
	}
	return ledger.List[ledger.Payment](ctx, s.store, ledger.TablePayments, filter)
}

/*
balance.go - Account Balance Ledger

PURPOSE:
  Computes the running balance of a customer or supplier. The balance is
  never adjusted incrementally: every recompute replays all transactions of
  the account, so out-of-order edits and deletions of historical records
  heal on the next run.

BALANCE:
  balance = openingBalance + Σ signedRemaining(tx)

  The sign convention is fixed per transaction type when the record is
  created, not re-derived here:
    sales / purchase invoice   +(total - paid)
    receipt / payment          -amount
    return                     -amount

TRANSACTION TABLES PER ACCOUNT KIND:
  customer: sales_invoices, receipts, returns(from_customer)
  supplier: purchase_invoices, payments, returns(to_supplier)

SEE ALSO:
  - statement.go: chronological replay with old/new balance per line
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// POSTING - One transaction as seen by the account ledger
// =============================================================================

// Posting is a transaction of any table, tagged with its type.
type Posting struct {
	Type      TxType
	RecordID  int64
	Reference string
	Date      time.Time
	// Amount is the invoice total, or the receipt/payment/return amount.
	Amount decimal.Decimal
	// Paid is the paid part of an invoice, or the full amount of a receipt/payment.
	Paid decimal.Decimal
	// SignedRemaining is the contribution to the balance.
	SignedRemaining decimal.Decimal
}

// IsInvoice reports whether p is a sales or purchase invoice.
func (p Posting) IsInvoice() bool {
	return p.Type == TxSalesInvoice || p.Type == TxPurchaseInvoice
}

// IsSettlement reports whether p is a receipt or payment.
func (p Posting) IsSettlement() bool {
	return p.Type == TxReceipt || p.Type == TxPayment
}

// IsReturn reports whether p is a return in either direction.
func (p Posting) IsReturn() bool {
	return p.Type == TxReturnFromCustomer || p.Type == TxReturnToSupplier
}

// =============================================================================
// ACCOUNT LEDGER
// =============================================================================

// AccountLedger recomputes account balances from the Record Store.
type AccountLedger struct {
	store     Store
	customers *Cache[Account]
	suppliers *Cache[Account]
	logger    *zap.Logger
}

// NewAccountLedger creates an account ledger. Caches may be nil.
func NewAccountLedger(store Store, customers, suppliers *Cache[Account], logger *zap.Logger) *AccountLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountLedger{store: store, customers: customers, suppliers: suppliers, logger: logger.Named("accounts")}
}

func (l *AccountLedger) cache(kind AccountKind) *Cache[Account] {
	if kind == AccountSupplier {
		return l.suppliers
	}
	return l.customers
}

// Account loads an account record.
func (l *AccountLedger) Account(ctx context.Context, kind AccountKind, id int64) (*Account, error) {
	if !kind.Valid() {
		return nil, Invalid("account_kind", "must be customer or supplier")
	}
	return MustGet[Account](ctx, l.store, kind.Table(), id)
}

// Postings collects every transaction of the account in table order:
// invoices, then receipts/payments, then returns, each in insertion order.
func (l *AccountLedger) Postings(ctx context.Context, kind AccountKind, id int64) ([]Posting, error) {
	var out []Posting
	switch kind {
	case AccountCustomer:
		invoices, err := List[SalesInvoice](ctx, l.store, TableSalesInvoices, Filter{"customer_id": id})
		if err != nil {
			return nil, err
		}
		for _, inv := range invoices {
			out = append(out, Posting{
				Type: TxSalesInvoice, RecordID: inv.ID, Reference: inv.InvoiceNumber, Date: inv.Date,
				Amount: inv.Total, Paid: inv.Paid, SignedRemaining: inv.Total.Sub(inv.Paid),
			})
		}
		receipts, err := List[Receipt](ctx, l.store, TableReceipts, Filter{"customer_id": id})
		if err != nil {
			return nil, err
		}
		for _, r := range receipts {
			out = append(out, Posting{
				Type: TxReceipt, RecordID: r.ID, Date: r.Date,
				Amount: r.Amount, Paid: r.Amount, SignedRemaining: r.Amount.Neg(),
			})
		}
		returns, err := List[Return](ctx, l.store, TableReturns, Filter{"return_type": ReturnFromCustomer, "customer_id": id})
		if err != nil {
			return nil, err
		}
		out = appendReturns(out, returns)
	case AccountSupplier:
		invoices, err := List[PurchaseInvoice](ctx, l.store, TablePurchaseInvoices, Filter{"supplier_id": id})
		if err != nil {
			return nil, err
		}
		for _, inv := range invoices {
			out = append(out, Posting{
				Type: TxPurchaseInvoice, RecordID: inv.ID, Reference: inv.InvoiceNumber, Date: inv.Date,
				Amount: inv.Total, Paid: inv.Paid, SignedRemaining: inv.Total.Sub(inv.Paid),
			})
		}
		payments, err := List[Payment](ctx, l.store, TablePayments, Filter{"supplier_id": id})
		if err != nil {
			return nil, err
		}
		for _, p := range payments {
			out = append(out, Posting{
				Type: TxPayment, RecordID: p.ID, Date: p.Date,
				Amount: p.Amount, Paid: p.Amount, SignedRemaining: p.Amount.Neg(),
			})
		}
		returns, err := List[Return](ctx, l.store, TableReturns, Filter{"return_type": ReturnToSupplier, "supplier_id": id})
		if err != nil {
			return nil, err
		}
		out = appendReturns(out, returns)
	default:
		return nil, Invalid("account_kind", "must be customer or supplier")
	}
	return out, nil
}

func appendReturns(out []Posting, returns []Return) []Posting {
	for _, r := range returns {
		out = append(out, Posting{
			Type: r.TxType(), RecordID: r.ID, Date: r.Date,
			Amount: r.Amount, SignedRemaining: r.Amount.Neg(),
		})
	}
	return out
}

// RecomputeBalance replays every transaction of the account and writes the
// result back to the account record.
func (l *AccountLedger) RecomputeBalance(ctx context.Context, kind AccountKind, id int64) (decimal.Decimal, error) {
	acct, err := l.Account(ctx, kind, id)
	if err != nil {
		return decimal.Zero, err
	}
	postings, err := l.Postings(ctx, kind, id)
	if err != nil {
		return decimal.Zero, err
	}

	balance := acct.OpeningBalance
	for _, p := range postings {
		balance = balance.Add(p.SignedRemaining)
	}

	acct.Balance = balance
	if err := Update(ctx, l.store, kind.Table(), id, acct); err != nil {
		return decimal.Zero, err
	}
	if c := l.cache(kind); c != nil {
		c.Upsert(id, *acct)
	}

	l.logger.Debug("balance recomputed",
		zap.String("kind", string(kind)),
		zap.Int64("account_id", id),
		zap.Int("transactions", len(postings)),
		zap.String("balance", balance.String()),
	)
	return balance, nil
}

// RecomputeAll recomputes every account of kind. A failing account does not
// stop the others; the first error is returned.
func (l *AccountLedger) RecomputeAll(ctx context.Context, kind AccountKind) (int, error) {
	accounts, err := List[Account](ctx, l.store, kind.Table(), nil)
	if err != nil {
		return 0, err
	}
	var firstErr error
	done := 0
	for _, a := range accounts {
		if _, err := l.RecomputeBalance(ctx, kind, a.ID); err != nil {
			l.logger.Warn("balance recompute failed",
				zap.String("kind", string(kind)), zap.Int64("account_id", a.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		done++
	}
	return done, firstErr
}

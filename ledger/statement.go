package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATEMENT - Chronological replay of one account
// =============================================================================

// StatementQuery selects an account and an optional date window.
// When OpeningBalance is nil the walk starts from the account's opening
// balance plus the net effect of every transaction dated before From.
type StatementQuery struct {
	Kind           AccountKind
	AccountID      int64
	From           *time.Time
	To             *time.Time
	OpeningBalance *decimal.Decimal
}

// StatementLine is one walked transaction.
type StatementLine struct {
	Type       TxType          `json:"type"`
	RecordID   int64           `json:"record_id"`
	Reference  string          `json:"reference,omitempty"`
	Date       time.Time       `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Paid       decimal.Decimal `json:"paid"`
	OldBalance decimal.Decimal `json:"old_balance"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// StatementSummary is derived from the walked lines.
type StatementSummary struct {
	// TotalInvoiced is the sum of sales (customer) or purchase (supplier) invoice totals.
	TotalInvoiced decimal.Decimal `json:"total_invoiced"`
	// TotalPaidOnInvoices is the sum of amounts paid at invoice time.
	TotalPaidOnInvoices decimal.Decimal `json:"total_paid_on_invoices"`
	// TotalReceipts is the sum of receipts (customer) or payments (supplier).
	TotalReceipts  decimal.Decimal `json:"total_receipts"`
	TotalReturns   decimal.Decimal `json:"total_returns"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	FirstDate      *time.Time      `json:"first_date,omitempty"`
	LastDate       *time.Time      `json:"last_date,omitempty"`
}

// Statement is the result of a statement walk.
type Statement struct {
	Kind      AccountKind      `json:"kind"`
	AccountID int64            `json:"account_id"`
	Name      string           `json:"name"`
	Lines     []StatementLine  `json:"lines"`
	Summary   StatementSummary `json:"summary"`
}

// statementDelta applies a posting's type-specific effect to balance.
// Invoices add the total then subtract the paid part.
func statementDelta(balance decimal.Decimal, p Posting) decimal.Decimal {
	switch {
	case p.IsInvoice():
		return balance.Add(p.Amount).Sub(p.Paid)
	default:
		return balance.Sub(p.Amount)
	}
}

// Statement walks the account's transactions inside the window in date order.
// Ties keep table order: invoices, then receipts/payments, then returns.
func (l *AccountLedger) Statement(ctx context.Context, q StatementQuery) (*Statement, error) {
	acct, err := l.Account(ctx, q.Kind, q.AccountID)
	if err != nil {
		return nil, err
	}
	if q.From != nil && q.To != nil && Day(*q.From).After(Day(*q.To)) {
		return nil, Invalid("from", "must not be after to")
	}

	postings, err := l.Postings(ctx, q.Kind, q.AccountID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(postings, func(i, j int) bool {
		return Day(postings[i].Date).Before(Day(postings[j].Date))
	})

	opening := acct.OpeningBalance
	if q.OpeningBalance != nil {
		opening = *q.OpeningBalance
	} else if q.From != nil {
		from := Day(*q.From)
		for _, p := range postings {
			if Day(p.Date).Before(from) {
				opening = statementDelta(opening, p)
			}
		}
	}

	st := &Statement{
		Kind:      q.Kind,
		AccountID: acct.ID,
		Name:      acct.Name,
		Lines:     []StatementLine{},
	}
	sum := StatementSummary{OpeningBalance: opening}

	running := opening
	for _, p := range postings {
		if !InWindow(p.Date, q.From, q.To) {
			continue
		}
		line := StatementLine{
			Type:       p.Type,
			RecordID:   p.RecordID,
			Reference:  p.Reference,
			Date:       p.Date,
			Amount:     p.Amount,
			Paid:       p.Paid,
			OldBalance: running,
		}
		running = statementDelta(running, p)
		line.NewBalance = running
		st.Lines = append(st.Lines, line)

		switch {
		case p.IsInvoice():
			sum.TotalInvoiced = sum.TotalInvoiced.Add(p.Amount)
			sum.TotalPaidOnInvoices = sum.TotalPaidOnInvoices.Add(p.Paid)
		case p.IsSettlement():
			sum.TotalReceipts = sum.TotalReceipts.Add(p.Amount)
		case p.IsReturn():
			sum.TotalReturns = sum.TotalReturns.Add(p.Amount)
		}
	}

	sum.ClosingBalance = running
	if n := len(st.Lines); n > 0 {
		first, last := Day(st.Lines[0].Date), Day(st.Lines[n-1].Date)
		sum.FirstDate, sum.LastDate = &first, &last
	}
	st.Summary = sum
	return st, nil
}

package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type accountFixture struct {
	ctx       context.Context
	mem       *store.Memory
	accounts  *ledger.AccountLedger
	customers *ledger.Cache[ledger.Account]
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	mem := store.NewMemory()
	customers := ledger.NewCache[ledger.Account](mem, ledger.TableCustomers)
	suppliers := ledger.NewCache[ledger.Account](mem, ledger.TableSuppliers)
	return &accountFixture{
		ctx:       context.Background(),
		mem:       mem,
		accounts:  ledger.NewAccountLedger(mem, customers, suppliers, nil),
		customers: customers,
	}
}

func (f *accountFixture) account(t *testing.T, kind ledger.AccountKind, opening string) int64 {
	t.Helper()
	id, err := ledger.Insert(f.ctx, f.mem, kind.Table(), &ledger.Account{Name: "Acme", OpeningBalance: dec(opening)})
	require.NoError(t, err)
	return id
}

func (f *accountFixture) salesInvoice(t *testing.T, customerID int64, day int, total, paid string) int64 {
	t.Helper()
	inv := &ledger.SalesInvoice{
		InvoiceNumber:  "INV-2025-00" + string(rune('0'+day%10)),
		CustomerID:     customerID,
		Date:           ledger.Date(2025, 3, day),
		Total:          dec(total),
		Paid:           dec(paid),
		Remaining:      dec(total).Sub(dec(paid)),
		DeliveryStatus: ledger.DeliveryDelivered,
	}
	id, err := ledger.Insert(f.ctx, f.mem, ledger.TableSalesInvoices, inv)
	require.NoError(t, err)
	return id
}

func (f *accountFixture) receipt(t *testing.T, customerID int64, day int, amount string) int64 {
	t.Helper()
	id, err := ledger.Insert(f.ctx, f.mem, ledger.TableReceipts, &ledger.Receipt{
		CustomerID: customerID,
		Date:       ledger.Date(2025, 3, day),
		Amount:     dec(amount),
	})
	require.NoError(t, err)
	return id
}

// =============================================================================
// RECOMPUTE
// =============================================================================

func TestRecomputeBalance_Customer(t *testing.T) {
	f := newAccountFixture(t)
	id := f.account(t, ledger.AccountCustomer, "10")

	f.salesInvoice(t, id, 1, "100", "40")
	f.receipt(t, id, 2, "25")
	_, err := ledger.Insert(f.ctx, f.mem, ledger.TableReturns, &ledger.Return{
		ReturnType: ledger.ReturnFromCustomer,
		CustomerID: id,
		Quantity:   dec("1"),
		Amount:     dec("5"),
		Date:       ledger.Date(2025, 3, 3),
	})
	require.NoError(t, err)

	balance, err := f.accounts.RecomputeBalance(f.ctx, ledger.AccountCustomer, id)
	require.NoError(t, err)

	// 10 + (100 - 40) - 25 - 5
	assertDec(t, "40", balance)

	stored, err := ledger.MustGet[ledger.Account](f.ctx, f.mem, ledger.TableCustomers, id)
	require.NoError(t, err)
	assertDec(t, "40", stored.Balance)

	cached, ok := f.customers.Peek(id)
	require.True(t, ok)
	assertDec(t, "40", cached.Balance)
}

func TestRecomputeBalance_Supplier(t *testing.T) {
	f := newAccountFixture(t)
	id := f.account(t, ledger.AccountSupplier, "0")
	other := f.account(t, ledger.AccountSupplier, "0")

	_, err := ledger.Insert(f.ctx, f.mem, ledger.TablePurchaseInvoices, &ledger.PurchaseInvoice{
		SupplierID: id, Date: ledger.Date(2025, 3, 1), Total: dec("300"), Paid: dec("100"),
	})
	require.NoError(t, err)
	_, err = ledger.Insert(f.ctx, f.mem, ledger.TablePayments, &ledger.Payment{
		SupplierID: id, Date: ledger.Date(2025, 3, 4), Amount: dec("50"),
	})
	require.NoError(t, err)
	_, err = ledger.Insert(f.ctx, f.mem, ledger.TableReturns, &ledger.Return{
		ReturnType: ledger.ReturnToSupplier, SupplierID: id, Amount: dec("20"), Date: ledger.Date(2025, 3, 5),
	})
	require.NoError(t, err)
	_, err = ledger.Insert(f.ctx, f.mem, ledger.TablePayments, &ledger.Payment{
		SupplierID: other, Date: ledger.Date(2025, 3, 4), Amount: dec("999"),
	})
	require.NoError(t, err)

	balance, err := f.accounts.RecomputeBalance(f.ctx, ledger.AccountSupplier, id)
	require.NoError(t, err)
	assertDec(t, "130", balance)
}

func TestRecomputeBalance_Deterministic(t *testing.T) {
	f := newAccountFixture(t)
	id := f.account(t, ledger.AccountCustomer, "0")
	f.salesInvoice(t, id, 1, "80", "30")

	first, err := f.accounts.RecomputeBalance(f.ctx, ledger.AccountCustomer, id)
	require.NoError(t, err)
	second, err := f.accounts.RecomputeBalance(f.ctx, ledger.AccountCustomer, id)
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
}

func TestRecomputeBalance_DeltaPerTransaction(t *testing.T) {
	// GIVEN: a recomputed balance
	// WHEN: an invoice with remaining R is added, then a receipt of A
	// THEN: the balance moves by +R, then by -A
	f := newAccountFixture(t)
	id := f.account(t, ledger.AccountCustomer, "0")
	f.salesInvoice(t, id, 1, "50", "0")

	before, err := f.accounts.RecomputeBalance(f.ctx, ledger.AccountCustomer, id)
	require.NoError(t, err)

	f.salesInvoice(t, id, 2, "120", "20")
	afterInvoice, err := f.accounts.RecomputeBalance(f.ctx, ledger.AccountCustomer, id)
	require.NoError(t, err)
	assertDec(t, "100", afterInvoice.Sub(before))

	f.receipt(t, id, 3, "35")
	afterReceipt, err := f.accounts.RecomputeBalance(f.ctx, ledger.AccountCustomer, id)
	require.NoError(t, err)
	assertDec(t, "-35", afterReceipt.Sub(afterInvoice))
}

func TestRecomputeBalance_Errors(t *testing.T) {
	f := newAccountFixture(t)

	_, err := f.accounts.RecomputeBalance(f.ctx, ledger.AccountCustomer, 42)
	assert.True(t, ledger.IsNotFound(err))

	_, err = f.accounts.RecomputeBalance(f.ctx, ledger.AccountKind("partner"), 1)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	id := f.account(t, ledger.AccountCustomer, "0")
	f.mem.FailOn(ledger.TableReceipts, "getAll", 0)
	_, err = f.accounts.RecomputeBalance(f.ctx, ledger.AccountCustomer, id)
	assert.ErrorIs(t, err, ledger.ErrStoreFailure)
}

func TestRecomputeAll_ContinuesPastFailures(t *testing.T) {
	f := newAccountFixture(t)
	f.account(t, ledger.AccountCustomer, "5")
	b := f.account(t, ledger.AccountCustomer, "7")
	f.salesInvoice(t, b, 1, "10", "0")

	// every account update fails; both accounts are still attempted
	f.mem.FailOn(ledger.TableCustomers, "update", 0)
	n, err := f.accounts.RecomputeAll(f.ctx, ledger.AccountCustomer)
	assert.Error(t, err)
	assert.Equal(t, 0, n)

	f.mem.FailOn(ledger.TableCustomers, "update", 100)
	n, err = f.accounts.RecomputeAll(f.ctx, ledger.AccountCustomer)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := ledger.MustGet[ledger.Account](f.ctx, f.mem, ledger.TableCustomers, b)
	require.NoError(t, err)
	assertDec(t, "17", got.Balance)
}

// =============================================================================
// STATEMENT
// =============================================================================

func TestStatement_InvoiceThenReceipt(t *testing.T) {
	// GIVEN: opening 0, invoice total 100 paid 40 on day 1, receipt 60 on day 5
	// THEN: lines go 0 -> 60 -> 0 and the closing balance is 0
	f := newAccountFixture(t)
	id := f.account(t, ledger.AccountCustomer, "0")
	f.receipt(t, id, 5, "60")
	f.salesInvoice(t, id, 1, "100", "40")

	st, err := f.accounts.Statement(f.ctx, ledger.StatementQuery{Kind: ledger.AccountCustomer, AccountID: id})
	require.NoError(t, err)
	require.Len(t, st.Lines, 2)

	inv := st.Lines[0]
	assert.Equal(t, ledger.TxSalesInvoice, inv.Type)
	assertDec(t, "0", inv.OldBalance)
	assertDec(t, "60", inv.NewBalance)

	rec := st.Lines[1]
	assert.Equal(t, ledger.TxReceipt, rec.Type)
	assertDec(t, "60", rec.OldBalance)
	assertDec(t, "0", rec.NewBalance)

	assertDec(t, "0", st.Summary.ClosingBalance)
	assertDec(t, "100", st.Summary.TotalInvoiced)
	assertDec(t, "40", st.Summary.TotalPaidOnInvoices)
	assertDec(t, "60", st.Summary.TotalReceipts)
	require.NotNil(t, st.Summary.FirstDate)
	assert.Equal(t, ledger.Date(2025, 3, 1), *st.Summary.FirstDate)
	assert.Equal(t, ledger.Date(2025, 3, 5), *st.Summary.LastDate)
}

func TestStatement_WindowCarriesOpeningBalance(t *testing.T) {
	f := newAccountFixture(t)
	id := f.account(t, ledger.AccountCustomer, "10")
	f.salesInvoice(t, id, 1, "100", "40")
	f.receipt(t, id, 5, "20")
	f.salesInvoice(t, id, 9, "30", "0")

	from := ledger.Date(2025, 3, 4)
	to := ledger.Date(2025, 3, 6)
	st, err := f.accounts.Statement(f.ctx, ledger.StatementQuery{
		Kind: ledger.AccountCustomer, AccountID: id, From: &from, To: &to,
	})
	require.NoError(t, err)

	// opening = 10 + 60 from the invoice before the window
	assertDec(t, "70", st.Summary.OpeningBalance)
	require.Len(t, st.Lines, 1)
	assertDec(t, "50", st.Lines[0].NewBalance)
	assertDec(t, "50", st.Summary.ClosingBalance)

	explicit := dec("0")
	st, err = f.accounts.Statement(f.ctx, ledger.StatementQuery{
		Kind: ledger.AccountCustomer, AccountID: id, From: &from, To: &to, OpeningBalance: &explicit,
	})
	require.NoError(t, err)
	assertDec(t, "-20", st.Summary.ClosingBalance)
}

func TestStatement_EmptyAndInvalidWindow(t *testing.T) {
	f := newAccountFixture(t)
	id := f.account(t, ledger.AccountCustomer, "15")

	st, err := f.accounts.Statement(f.ctx, ledger.StatementQuery{Kind: ledger.AccountCustomer, AccountID: id})
	require.NoError(t, err)
	assert.Empty(t, st.Lines)
	assertDec(t, "15", st.Summary.ClosingBalance)
	assert.Nil(t, st.Summary.FirstDate)

	from, to := ledger.Date(2025, 3, 9), ledger.Date(2025, 3, 1)
	_, err = f.accounts.Statement(f.ctx, ledger.StatementQuery{
		Kind: ledger.AccountCustomer, AccountID: id, From: &from, To: &to,
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

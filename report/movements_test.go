package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/consignment-ledger/consignment"
	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/ledger/store"
	"github.com/warp/consignment-ledger/numbering"
	"github.com/warp/consignment-ledger/report"
	"github.com/warp/consignment-ledger/trade"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func march(day int) time.Time { return ledger.Date(2025, time.March, day) }

// seedMonth posts a month of activity against one product (opening 100,
// 12 per pack) and returns the product id and the live stock.
func seedMonth(t *testing.T, mem *store.Memory) (int64, decimal.Decimal) {
	t.Helper()
	ctx := context.Background()
	stock := ledger.NewStockLedger(mem, nil, nil, nil)
	numbers := numbering.New(mem, nil)
	notes := consignment.NewService(mem, stock, numbers, nil)
	svc := trade.NewService(trade.Deps{
		Store:    mem,
		Stock:    stock,
		Accounts: ledger.NewAccountLedger(mem, nil, nil, nil),
		Notes:    notes,
		Numbers:  numbers,
	})

	p, err := svc.CreateProduct(ctx, trade.ProductInput{Name: "Water", OpeningStock: dec("100"), ConversionFactor: dec("12")})
	require.NoError(t, err)
	c, err := svc.CreateCustomer(ctx, trade.AccountInput{Name: "Shop"})
	require.NoError(t, err)
	s, err := svc.CreateSupplier(ctx, trade.AccountInput{Name: "Springs"})
	require.NoError(t, err)
	line := func(q string, u ledger.Unit) []trade.LineInput {
		return []trade.LineInput{{ProductID: p.ID, Quantity: dec(q), Unit: u, Price: dec("1")}}
	}

	_, err = svc.CreatePurchaseInvoice(ctx, trade.PurchaseInvoiceInput{SupplierID: s.ID, Date: march(1), Items: line("50", ledger.UnitSmallest)})
	require.NoError(t, err)
	_, err = svc.CreateSalesInvoice(ctx, trade.SalesInvoiceInput{CustomerID: c.ID, Date: march(5), Items: line("30", ledger.UnitSmallest)})
	require.NoError(t, err)
	_, err = svc.CreateAdjustment(ctx, trade.AdjustmentInput{ProductID: p.ID, Type: ledger.AdjustSet, Quantity: dec("110"), Unit: ledger.UnitSmallest, Date: march(7)})
	require.NoError(t, err)
	_, err = svc.CreateReturn(ctx, trade.ReturnInput{
		ReturnType: ledger.ReturnFromCustomer, AccountID: c.ID, ProductID: p.ID,
		Quantity: dec("1"), Unit: ledger.UnitLargest, Amount: dec("12"), Restock: true, Date: march(8),
	})
	require.NoError(t, err)

	note, err := notes.CreateNote(ctx, consignment.NoteInput{
		Date:  march(10),
		Items: []consignment.NoteItemInput{{ProductID: p.ID, Quantity: dec("20"), Unit: ledger.UnitSmallest}},
	})
	require.NoError(t, err)
	noteID := note.ID
	_, err = svc.CreateSalesInvoice(ctx, trade.SalesInvoiceInput{
		CustomerID: c.ID, Date: march(11), DeliveryNoteID: &noteID,
		DeliveryStatus: ledger.DeliveryDelivered, Items: line("15", ledger.UnitSmallest),
	})
	require.NoError(t, err)
	_, err = notes.CreateSettlement(ctx, note.ID, consignment.SettlementInput{
		Date:  march(12),
		Lines: []consignment.SettlementLine{{ProductID: p.ID, Unit: ledger.UnitSmallest, Returned: dec("5")}},
	})
	require.NoError(t, err)

	live, err := stock.Stock(ctx, p.ID)
	require.NoError(t, err)
	return p.ID, live
}

func TestProjectProductMovements_FullReplay(t *testing.T) {
	// GIVEN: a month of activity
	mem := store.NewMemory()
	productID, live := seedMonth(t, mem)

	// WHEN: the full trail is projected
	rows, err := report.NewProjector(mem, nil).ProjectProductMovements(context.Background(),
		report.MovementQuery{ProductID: productID})
	require.NoError(t, err)

	// THEN: every source appears in date order and the replay ends at the live stock
	want := []struct {
		kind              report.RowKind
		qty, before, after string
	}{
		{report.RowPurchase, "50", "100", "150"},
		{report.RowSale, "-30", "150", "120"},
		{report.RowAdjustmentSet, "110", "120", "110"},
		{report.RowReturnIn, "12", "110", "122"},
		{report.RowDeliveryNote, "0", "122", "122"},
		{report.RowConsignmentSale, "0", "122", "122"},
		{report.RowSettlementSold, "-15", "122", "107"},
		{report.RowSettlementReturned, "5", "107", "112"},
	}
	require.Len(t, rows, len(want))
	for i, w := range want {
		assert.Equal(t, w.kind, rows[i].Kind, "row %d", i)
		assertDec(t, w.qty, rows[i].Quantity)
		assertDec(t, w.before, rows[i].BalanceBefore)
		assertDec(t, w.after, rows[i].BalanceAfter)
	}
	assertDec(t, "112", live)
	assertDec(t, live.String(), rows[len(rows)-1].BalanceAfter)
	assert.Equal(t, "Water", rows[0].ProductName)
	assert.Equal(t, "PUR-2025-001", rows[0].Reference)
}

func TestProjectProductMovements_Window(t *testing.T) {
	mem := store.NewMemory()
	productID, _ := seedMonth(t, mem)
	from, to := march(6), march(9)

	rows, err := report.NewProjector(mem, nil).ProjectProductMovements(context.Background(),
		report.MovementQuery{ProductID: productID, From: &from, To: &to})
	require.NoError(t, err)

	// earlier rows still move the running balance
	require.Len(t, rows, 2)
	assert.Equal(t, report.RowAdjustmentSet, rows[0].Kind)
	assertDec(t, "120", rows[0].BalanceBefore)
	assert.Equal(t, report.RowReturnIn, rows[1].Kind)
	assertDec(t, "122", rows[1].BalanceAfter)
}

func TestProjectProductMovements_KindFilter(t *testing.T) {
	mem := store.NewMemory()
	productID, _ := seedMonth(t, mem)

	rows, err := report.NewProjector(mem, nil).ProjectProductMovements(context.Background(),
		report.MovementQuery{ProductID: productID, Kinds: []report.RowKind{report.RowSale, report.RowSettlementSold}})
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assertDec(t, "150", rows[0].BalanceBefore)
	assertDec(t, "120", rows[0].BalanceAfter)
	assertDec(t, "122", rows[1].BalanceBefore)
	assertDec(t, "107", rows[1].BalanceAfter)
}

func TestProjectProductMovements_UnknownProduct(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	inv := &ledger.PurchaseInvoice{InvoiceNumber: "PUR-2025-009", Date: march(2)}
	_, err := ledger.Insert(ctx, mem, ledger.TablePurchaseInvoices, inv)
	require.NoError(t, err)
	_, err = ledger.Insert(ctx, mem, ledger.TablePurchaseInvoiceItems, &ledger.PurchaseInvoiceItem{
		InvoiceID: inv.ID, ProductID: 999, Quantity: dec("4"), Unit: ledger.UnitLargest,
	})
	require.NoError(t, err)

	rows, err := report.NewProjector(mem, nil).ProjectProductMovements(ctx, report.MovementQuery{})
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, "Unknown product #999", rows[0].ProductName)
	assertDec(t, "4", rows[0].Quantity)
	assertDec(t, "4", rows[0].BalanceAfter)
}

func TestProjectProductMovements_InvalidWindow(t *testing.T) {
	from, to := march(9), march(1)
	_, err := report.NewProjector(store.NewMemory(), nil).ProjectProductMovements(context.Background(),
		report.MovementQuery{From: &from, To: &to})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

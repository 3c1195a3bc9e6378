package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func seedProduct(t *testing.T, s ledger.Store, stock, factor string) int64 {
	t.Helper()
	p := &ledger.Product{
		Name:             "Test product",
		Stock:            dec(stock),
		OpeningStock:     dec(stock),
		ConversionFactor: dec(factor),
	}
	id, err := ledger.Insert(context.Background(), s, ledger.TableProducts, p)
	require.NoError(t, err)
	return id
}

func newStockLedger(t *testing.T) (*ledger.StockLedger, *store.Memory, *ledger.Notifier) {
	t.Helper()
	mem := store.NewMemory()
	notifier := ledger.NewNotifier(nil)
	products := ledger.NewCache[ledger.Product](mem, ledger.TableProducts)
	return ledger.NewStockLedger(mem, products, notifier, nil), mem, notifier
}

// =============================================================================
// APPLY
// =============================================================================

func TestStockLedger_PurchaseAndSale(t *testing.T) {
	l, mem, _ := newStockLedger(t)
	ctx := context.Background()
	id := seedProduct(t, mem, "100", "12")

	change, err := l.Apply(ctx, id, ledger.Purchase(dec("50"), ledger.UnitSmallest))
	require.NoError(t, err)
	assertDec(t, "100", change.Before)
	assertDec(t, "150", change.After)

	change, err = l.Apply(ctx, id, ledger.Sale(dec("30"), ledger.UnitSmallest))
	require.NoError(t, err)
	assertDec(t, "120", change.After)

	stock, err := l.Stock(ctx, id)
	require.NoError(t, err)
	assertDec(t, "120", stock)
}

func TestStockLedger_LargestUnitUsesConversionFactor(t *testing.T) {
	l, mem, _ := newStockLedger(t)
	ctx := context.Background()
	id := seedProduct(t, mem, "100", "12")

	// 2 packs of 12 in, 1 pack out
	_, err := l.Apply(ctx, id, ledger.Purchase(dec("2"), ledger.UnitLargest))
	require.NoError(t, err)
	change, err := l.Apply(ctx, id, ledger.Sale(dec("1"), ledger.UnitLargest))
	require.NoError(t, err)

	assertDec(t, "112", change.After)
}

func TestStockLedger_MissingFactorDefaultsToOne(t *testing.T) {
	l, mem, _ := newStockLedger(t)
	id := seedProduct(t, mem, "10", "0")

	change, err := l.Apply(context.Background(), id, ledger.Purchase(dec("3"), ledger.UnitLargest))
	require.NoError(t, err)
	assertDec(t, "13", change.After)
}

func TestStockLedger_ClampsAtZero(t *testing.T) {
	// GIVEN: 10 units in stock
	// WHEN: 25 are sold
	// THEN: stock is 0, not -15, and the change is flagged clamped
	l, mem, _ := newStockLedger(t)
	id := seedProduct(t, mem, "10", "1")

	change, err := l.Apply(context.Background(), id, ledger.Sale(dec("25"), ledger.UnitSmallest))
	require.NoError(t, err)
	assertDec(t, "0", change.After)
	assert.True(t, change.Clamped)
}

func TestStockLedger_NeverNegative(t *testing.T) {
	l, mem, _ := newStockLedger(t)
	ctx := context.Background()
	id := seedProduct(t, mem, "5", "6")

	moves := []ledger.Movement{
		ledger.Sale(dec("3"), ledger.UnitSmallest),
		ledger.Sale(dec("1"), ledger.UnitLargest),
		ledger.Purchase(dec("4"), ledger.UnitSmallest),
		ledger.AdjustmentDecrease(dec("9"), ledger.UnitSmallest),
		ledger.SettlementMovement(dec("20"), dec("1"), dec("0"), ledger.UnitSmallest),
		ledger.ReturnOut(dec("2"), ledger.UnitLargest),
		ledger.ReturnIn(dec("1"), ledger.UnitSmallest),
		ledger.AdjustmentSet(dec("-3"), ledger.UnitSmallest),
		ledger.Sale(dec("100"), ledger.UnitSmallest),
	}
	for i, m := range moves {
		change, err := l.Apply(ctx, id, m)
		require.NoError(t, err, "move %d", i)
		assert.False(t, change.After.IsNegative(), "move %d left stock at %s", i, change.After)
	}
}

func TestStockLedger_SettlementMovement(t *testing.T) {
	// sold 15, returned 5, rejected 2 from 150
	l, mem, _ := newStockLedger(t)
	id := seedProduct(t, mem, "150", "1")

	change, err := l.Apply(context.Background(), id,
		ledger.SettlementMovement(dec("15"), dec("5"), dec("2"), ledger.UnitSmallest))
	require.NoError(t, err)
	assertDec(t, "142", change.After)
}

func TestStockLedger_AdjustmentSetUsesAbsoluteValue(t *testing.T) {
	l, mem, _ := newStockLedger(t)
	id := seedProduct(t, mem, "40", "1")

	change, err := l.Apply(context.Background(), id, ledger.AdjustmentSet(dec("-7"), ledger.UnitSmallest))
	require.NoError(t, err)
	assertDec(t, "7", change.After)
}

// =============================================================================
// REVERSAL
// =============================================================================

func TestStockLedger_RevertRestoresStock(t *testing.T) {
	cases := map[string]ledger.Movement{
		"purchase":            ledger.Purchase(dec("50"), ledger.UnitSmallest),
		"sale":                ledger.Sale(dec("30"), ledger.UnitSmallest),
		"sale largest":        ledger.Sale(dec("2"), ledger.UnitLargest),
		"adjustment increase": ledger.AdjustmentIncrease(dec("7"), ledger.UnitSmallest),
		"adjustment decrease": ledger.AdjustmentDecrease(dec("7"), ledger.UnitSmallest),
		"settlement":          ledger.SettlementMovement(dec("15"), dec("5"), dec("1"), ledger.UnitSmallest),
		"return in":           ledger.ReturnIn(dec("3"), ledger.UnitLargest),
		"return out":          ledger.ReturnOut(dec("3"), ledger.UnitSmallest),
		"release":             ledger.Release(dec("4"), ledger.UnitSmallest),
	}

	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			l, mem, _ := newStockLedger(t)
			ctx := context.Background()
			id := seedProduct(t, mem, "100", "12")

			_, err := l.Apply(ctx, id, m)
			require.NoError(t, err)
			change, err := l.Revert(ctx, id, m)
			require.NoError(t, err)

			assertDec(t, "100", change.After)
		})
	}
}

func TestStockLedger_RevertAdjustmentSet(t *testing.T) {
	// GIVEN: stock 40 counted down to 25
	// WHEN: the recorded set is reverted
	// THEN: stock goes back to 40
	l, mem, _ := newStockLedger(t)
	ctx := context.Background()
	id := seedProduct(t, mem, "40", "1")

	change, err := l.Apply(ctx, id, ledger.AdjustmentSet(dec("25"), ledger.UnitSmallest))
	require.NoError(t, err)
	assertDec(t, "25", change.After)

	reverted, err := l.Revert(ctx, id, change.Recorded())
	require.NoError(t, err)
	assertDec(t, "40", reverted.After)
}

func TestStockLedger_RevertSetKeepsLaterMovements(t *testing.T) {
	// GIVEN: stock 100 counted down to 50, then 10 sold
	// WHEN: the set is reverted, then the sale
	// THEN: the sale survives the first revert and stock ends back at 100
	l, mem, _ := newStockLedger(t)
	ctx := context.Background()
	id := seedProduct(t, mem, "100", "1")

	set, err := l.Apply(ctx, id, ledger.AdjustmentSet(dec("50"), ledger.UnitSmallest))
	require.NoError(t, err)
	sale, err := l.Apply(ctx, id, ledger.Sale(dec("10"), ledger.UnitSmallest))
	require.NoError(t, err)
	assertDec(t, "40", sale.After)

	change, err := l.Revert(ctx, id, set.Recorded())
	require.NoError(t, err)
	assertDec(t, "90", change.After)

	change, err = l.Revert(ctx, id, sale.Recorded())
	require.NoError(t, err)
	assertDec(t, "100", change.After)
}

func TestStockLedger_SetWithoutEffectIsIrreversible(t *testing.T) {
	l, mem, _ := newStockLedger(t)
	id := seedProduct(t, mem, "40", "1")

	_, err := l.Revert(context.Background(), id, ledger.AdjustmentSet(dec("25"), ledger.UnitSmallest))
	assert.ErrorIs(t, err, ledger.ErrIrreversible)
}

func TestMovement_DoubleInverseIsIdentity(t *testing.T) {
	m := ledger.Sale(dec("4"), ledger.UnitSmallest)
	inv, err := m.Inverse()
	require.NoError(t, err)
	back, err := inv.Inverse()
	require.NoError(t, err)

	assertDec(t, "-4", m.Delta())
	assertDec(t, "4", inv.Delta())
	assertDec(t, "-4", back.Delta())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestStockLedger_RejectsInvalidMovements(t *testing.T) {
	l, mem, _ := newStockLedger(t)
	ctx := context.Background()
	id := seedProduct(t, mem, "10", "1")

	_, err := l.Apply(ctx, id, ledger.Sale(dec("-1"), ledger.UnitSmallest))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.Apply(ctx, id, ledger.Sale(dec("1"), ledger.Unit("dozen")))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.Apply(ctx, id, ledger.Movement{Kind: "teleport", Quantity: dec("1")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	stock, err := l.Stock(ctx, id)
	require.NoError(t, err)
	assertDec(t, "10", stock)
}

func TestStockLedger_UnknownProduct(t *testing.T) {
	l, _, _ := newStockLedger(t)

	_, err := l.Apply(context.Background(), 99, ledger.Purchase(dec("1"), ledger.UnitSmallest))
	assert.True(t, ledger.IsNotFound(err))
}

func TestStockLedger_StoreFailurePropagates(t *testing.T) {
	l, mem, _ := newStockLedger(t)
	id := seedProduct(t, mem, "10", "1")
	mem.FailOn(ledger.TableProducts, "update", 0)

	_, err := l.Apply(context.Background(), id, ledger.Purchase(dec("1"), ledger.UnitSmallest))
	assert.ErrorIs(t, err, ledger.ErrStoreFailure)
	assert.ErrorIs(t, err, store.ErrInjected)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func TestStockLedger_PublishesStockChanged(t *testing.T) {
	l, mem, notifier := newStockLedger(t)
	ctx := context.Background()
	id := seedProduct(t, mem, "10", "1")

	var events []ledger.StockChanged
	unsubscribe := notifier.Subscribe(func(_ context.Context, ev ledger.StockChanged) {
		events = append(events, ev)
	})

	_, err := l.Apply(ctx, id, ledger.Purchase(dec("5"), ledger.UnitSmallest))
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ProductID)
	assertDec(t, "15", events[0].Stock)

	unsubscribe()
	_, err = l.Apply(ctx, id, ledger.Purchase(dec("5"), ledger.UnitSmallest))
	require.NoError(t, err)
	assert.Len(t, events, 1, "no delivery after unsubscribe")
}

func TestNotifier_PanickingSubscriberIsIsolated(t *testing.T) {
	notifier := ledger.NewNotifier(nil)
	delivered := 0
	notifier.Subscribe(func(context.Context, ledger.StockChanged) { panic("boom") })
	notifier.Subscribe(func(context.Context, ledger.StockChanged) { delivered++ })

	assert.NotPanics(t, func() {
		notifier.Publish(context.Background(), ledger.NewStockChanged(1, dec("3"), ledger.Date(2025, 1, 1)))
	})
	assert.Equal(t, 1, delivered)
}

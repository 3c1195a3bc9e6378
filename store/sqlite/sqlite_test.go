package sqlite

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/consignment-ledger/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_InsertWritesIDBack(t *testing.T) {
	// GIVEN: an empty store
	s := newTestStore(t)
	ctx := context.Background()

	// WHEN: a typed record is inserted
	p := &ledger.Product{Name: "Water", ConversionFactor: decimal.NewFromInt(1)}
	id, err := ledger.Insert(ctx, s, ledger.TableProducts, p)
	require.NoError(t, err)

	// THEN: both the struct and the stored body carry the id
	assert.Equal(t, id, p.ID)
	got, err := ledger.MustGet[ledger.Product](ctx, s, ledger.TableProducts, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Water", got.Name)
}

func TestStore_GetMissingAndWrongTable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, ledger.TableCustomers, []byte(`{"name":"Acme"}`))
	require.NoError(t, err)

	doc, err := s.Get(ctx, ledger.TableSuppliers, id)
	require.NoError(t, err)
	assert.Nil(t, doc)

	_, err = ledger.MustGet[ledger.Account](ctx, s, ledger.TableCustomers, id+100)
	assert.True(t, ledger.IsNotFound(err))
}

func TestStore_GetAllFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	returns := []ledger.Return{
		{ReturnType: ledger.ReturnFromCustomer, CustomerID: 1, Restock: true},
		{ReturnType: ledger.ReturnToSupplier, SupplierID: 2},
		{ReturnType: ledger.ReturnFromCustomer, CustomerID: 1},
		{ReturnType: ledger.ReturnFromCustomer, CustomerID: 3, Restock: true},
	}
	for i := range returns {
		_, err := ledger.Insert(ctx, s, ledger.TableReturns, &returns[i])
		require.NoError(t, err)
	}

	all, err := ledger.List[ledger.Return](ctx, s, ledger.TableReturns, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Less(t, all[0].ID, all[3].ID, "insertion order")

	fromCustomer, err := ledger.List[ledger.Return](ctx, s, ledger.TableReturns, ledger.Filter{
		"return_type": ledger.ReturnFromCustomer,
		"customer_id": int64(1),
	})
	require.NoError(t, err)
	assert.Len(t, fromCustomer, 2)

	restocked, err := ledger.List[ledger.Return](ctx, s, ledger.TableReturns, ledger.Filter{"restock": true})
	require.NoError(t, err)
	assert.Len(t, restocked, 2)

	// customer_id is omitted on supplier returns
	noCustomer, err := ledger.List[ledger.Return](ctx, s, ledger.TableReturns, ledger.Filter{"customer_id": nil})
	require.NoError(t, err)
	require.Len(t, noCustomer, 1)
	assert.Equal(t, ledger.ReturnToSupplier, noCustomer[0].ReturnType)
}

func TestStore_RejectsUnsafeFilterField(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAll(context.Background(), ledger.TableReturns, ledger.Filter{"x') OR 1=1 --": 1})
	assert.Error(t, err)
}

func TestStore_UpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct := &ledger.Account{Name: "Acme"}
	id, err := ledger.Insert(ctx, s, ledger.TableCustomers, acct)
	require.NoError(t, err)

	acct.Name = "Acme Ltd"
	require.NoError(t, ledger.Update(ctx, s, ledger.TableCustomers, id, acct))
	got, err := ledger.MustGet[ledger.Account](ctx, s, ledger.TableCustomers, id)
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", got.Name)

	err = s.Update(ctx, ledger.TableCustomers, id+100, []byte(`{}`))
	assert.Error(t, err)

	n, err := s.Delete(ctx, ledger.TableCustomers, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Delete(ctx, ledger.TableCustomers, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestStore_ResetAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Insert(ctx, ledger.TableReceipts, []byte(`{"amount":"1"}`))
		require.NoError(t, err)
	}
	_, err := s.Insert(ctx, ledger.TablePayments, []byte(`{"amount":"1"}`))
	require.NoError(t, err)

	counts, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[ledger.TableReceipts])
	assert.Equal(t, 1, counts[ledger.TablePayments])

	require.NoError(t, s.Reset(ctx))
	counts, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/ledger/store"
)

func insertDoc(t *testing.T, m *store.Memory, table ledger.Table, doc string) int64 {
	t.Helper()
	id, err := m.Insert(context.Background(), table, []byte(doc))
	require.NoError(t, err)
	return id
}

func TestMemory_InsertStampsID(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	id := insertDoc(t, m, ledger.TableProducts, `{"id":0,"name":"water"}`)
	assert.Equal(t, int64(1), id)

	doc, err := m.Get(ctx, ledger.TableProducts, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"name":"water"}`, string(doc))

	// ids are per table
	other := insertDoc(t, m, ledger.TableCustomers, `{"name":"acme"}`)
	assert.Equal(t, int64(1), other)

	missing, err := m.Get(ctx, ledger.TableProducts, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemory_GetAllFiltersInInsertionOrder(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	insertDoc(t, m, ledger.TableSalesInvoices, `{"customer_id":1,"delivery_note_id":null,"n":"a"}`)
	insertDoc(t, m, ledger.TableSalesInvoices, `{"customer_id":2,"delivery_note_id":7,"n":"b"}`)
	insertDoc(t, m, ledger.TableSalesInvoices, `{"customer_id":1,"delivery_note_id":7,"n":"c"}`)

	all, err := m.GetAll(ctx, ledger.TableSalesInvoices, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byCustomer, err := m.GetAll(ctx, ledger.TableSalesInvoices, ledger.Filter{"customer_id": int64(1)})
	require.NoError(t, err)
	require.Len(t, byCustomer, 2)
	assert.Contains(t, string(byCustomer[0]), `"n":"a"`)
	assert.Contains(t, string(byCustomer[1]), `"n":"c"`)

	linked, err := m.GetAll(ctx, ledger.TableSalesInvoices, ledger.Filter{"delivery_note_id": 7, "customer_id": 2})
	require.NoError(t, err)
	require.Len(t, linked, 1)

	unlinked, err := m.GetAll(ctx, ledger.TableSalesInvoices, ledger.Filter{"delivery_note_id": nil})
	require.NoError(t, err)
	assert.Len(t, unlinked, 1)
}

func TestMemory_UpdateAndDelete(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	id := insertDoc(t, m, ledger.TableReceipts, `{"amount":"10"}`)

	require.NoError(t, m.Update(ctx, ledger.TableReceipts, id, []byte(`{"amount":"20"}`)))
	doc, err := m.Get(ctx, ledger.TableReceipts, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"amount":"20"}`, string(doc))

	assert.Error(t, m.Update(ctx, ledger.TableReceipts, 42, []byte(`{}`)))

	n, err := m.Delete(ctx, ledger.TableReceipts, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = m.Delete(ctx, ledger.TableReceipts, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, 0, m.Count(ledger.TableReceipts))

	// ids are never reused
	assert.Equal(t, int64(2), insertDoc(t, m, ledger.TableReceipts, `{}`))
}

func TestMemory_FailOn(t *testing.T) {
	// GIVEN: inserts on a table allowed once
	// WHEN: inserting twice
	// THEN: the second insert fails with ErrInjected and stores nothing
	m := store.NewMemory()
	ctx := context.Background()
	m.FailOn(ledger.TablePayments, "insert", 1)

	insertDoc(t, m, ledger.TablePayments, `{}`)
	_, err := m.Insert(ctx, ledger.TablePayments, []byte(`{}`))
	assert.ErrorIs(t, err, store.ErrInjected)
	assert.Equal(t, 1, m.Count(ledger.TablePayments))

	// other tables and ops are unaffected
	insertDoc(t, m, ledger.TableReceipts, `{}`)
	_, err = m.GetAll(ctx, ledger.TablePayments, nil)
	assert.NoError(t, err)
}

func TestMemory_SnapshotRestoreAndReset(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	insertDoc(t, m, ledger.TableProducts, `{"name":"a"}`)

	snap := m.Snapshot()
	insertDoc(t, m, ledger.TableProducts, `{"name":"b"}`)
	assert.Equal(t, 2, m.Count(ledger.TableProducts))

	m.Restore(snap)
	assert.Equal(t, 1, m.Count(ledger.TableProducts))

	require.NoError(t, m.Reset(ctx))
	assert.Equal(t, 0, m.Count(ledger.TableProducts))
	assert.Equal(t, int64(1), insertDoc(t, m, ledger.TableProducts, `{}`))
}

func TestMemory_RejectsNonObjectDocuments(t *testing.T) {
	m := store.NewMemory()
	_, err := m.Insert(context.Background(), ledger.TableProducts, []byte(`[1,2]`))
	assert.Error(t, err)
}

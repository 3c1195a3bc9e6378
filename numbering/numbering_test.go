package numbering

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/ledger/store"
)

func TestConfig_FormatAndParse(t *testing.T) {
	assert.Equal(t, "DN-2025-007", DeliveryNote.Format(2025, 7))
	assert.Equal(t, "STL-2025-1234", Settlement.Format(2025, 1234))
	assert.Equal(t, "PRD-00042", Product.Format(2025, 42))

	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"DN-2025-007", 7, true},
		{"DN-2025-1000", 1000, true},
		{"DN-2024-007", 0, false},
		{"STL-2025-001", 0, false},
		{"DN-2025-", 0, false},
		{"DN-2025-abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := DeliveryNote.Parse(2025, tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNext_Sequence(t *testing.T) {
	ctx := context.Background()
	svc := New(store.NewMemory(), nil)
	at := ledger.Date(2025, 6, 1)

	first, err := svc.Next(ctx, DeliveryNote, at)
	require.NoError(t, err)
	second, err := svc.Next(ctx, DeliveryNote, at)
	require.NoError(t, err)

	assert.Equal(t, "DN-2025-001", first)
	assert.Equal(t, "DN-2025-002", second)

	// sequences are independent per document type
	stl, err := svc.Next(ctx, Settlement, at)
	require.NoError(t, err)
	assert.Equal(t, "STL-2025-001", stl)
}

func TestNext_FollowsExistingDocuments(t *testing.T) {
	// GIVEN: a note numbered DN-2025-041 written without the service
	ctx := context.Background()
	mem := store.NewMemory()
	_, err := mem.Insert(ctx, ledger.TableDeliveryNotes, []byte(`{"delivery_note_number":"DN-2025-041"}`))
	require.NoError(t, err)

	// WHEN: the next number is requested
	got, err := New(mem, nil).Next(ctx, DeliveryNote, ledger.Date(2025, 2, 3))
	require.NoError(t, err)

	// THEN: it continues past the highest existing number
	assert.Equal(t, "DN-2025-042", got)
}

func TestNext_NoReuseAfterDelete(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := New(mem, nil)
	at := ledger.Date(2025, 1, 10)

	var lastID int64
	for i := 0; i < 3; i++ {
		n, err := svc.Next(ctx, SalesInvoice, at)
		require.NoError(t, err)
		lastID, err = mem.Insert(ctx, ledger.TableSalesInvoices, []byte(`{"invoice_number":"`+n+`"}`))
		require.NoError(t, err)
	}
	_, err := mem.Delete(ctx, ledger.TableSalesInvoices, lastID)
	require.NoError(t, err)

	got, err := svc.Next(ctx, SalesInvoice, at)
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-004", got)
}

func TestNext_YearScoped(t *testing.T) {
	ctx := context.Background()
	svc := New(store.NewMemory(), nil)

	_, err := svc.Next(ctx, Adjustment, ledger.Date(2025, 12, 31))
	require.NoError(t, err)
	got, err := svc.Next(ctx, Adjustment, ledger.Date(2026, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, "ADJ-2026-001", got)

	p1, err := svc.Next(ctx, Product, ledger.Date(2025, 12, 31))
	require.NoError(t, err)
	p2, err := svc.Next(ctx, Product, ledger.Date(2026, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, "PRD-00001", p1)
	assert.Equal(t, "PRD-00002", p2)
}

func TestNext_StoreFailure(t *testing.T) {
	mem := store.NewMemory()
	mem.FailOn(ledger.TableSequences, "insert", 0)

	_, err := New(mem, nil).Next(context.Background(), DeliveryNote, ledger.Date(2025, 1, 1))
	assert.ErrorIs(t, err, ledger.ErrStoreFailure)
}

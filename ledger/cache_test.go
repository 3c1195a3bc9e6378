package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/consignment-ledger/ledger"
	"github.com/warp/consignment-ledger/ledger/store"
)

func TestCache_GetFallsThroughToStore(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	id := seedProduct(t, mem, "12", "1")
	cache := ledger.NewCache[ledger.Product](mem, ledger.TableProducts)

	_, ok := cache.Peek(id)
	assert.False(t, ok, "nothing cached yet")

	p, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assertDec(t, "12", p.Stock)

	_, ok = cache.Peek(id)
	assert.True(t, ok, "miss populated the cache")

	_, ok, err = cache.Get(ctx, 404)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_InvalidateAndReload(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	cache := ledger.NewCache[ledger.Product](mem, ledger.TableProducts)
	first := seedProduct(t, mem, "1", "1")
	second := seedProduct(t, mem, "2", "1")

	require.NoError(t, cache.Reload(ctx))
	assert.Equal(t, 2, cache.Len())

	// stale cached copy until invalidated
	cache.Upsert(first, ledger.Product{ID: first, Stock: dec("99")})
	p, _, err := cache.Get(ctx, first)
	require.NoError(t, err)
	assertDec(t, "99", p.Stock)

	cache.Invalidate(first)
	p, _, err = cache.Get(ctx, first)
	require.NoError(t, err)
	assertDec(t, "1", p.Stock)

	require.NoError(t, ledger.Delete(ctx, mem, ledger.TableProducts, second))
	require.NoError(t, cache.Reload(ctx))
	assert.Equal(t, 1, cache.Len())
}

func TestCache_AllOrderedByID(t *testing.T) {
	mem := store.NewMemory()
	cache := ledger.NewCache[ledger.Account](mem, ledger.TableCustomers)
	cache.Upsert(3, ledger.Account{ID: 3, Name: "c"})
	cache.Upsert(1, ledger.Account{ID: 1, Name: "a"})
	cache.Upsert(2, ledger.Account{ID: 2, Name: "b"})

	var names []string
	for _, a := range cache.All() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestCache_ReloadStoreFailure(t *testing.T) {
	mem := store.NewMemory()
	cache := ledger.NewCache[ledger.Product](mem, ledger.TableProducts)
	mem.FailOn(ledger.TableProducts, "getAll", 0)

	err := cache.Reload(context.Background())
	assert.ErrorIs(t, err, ledger.ErrStoreFailure)
}

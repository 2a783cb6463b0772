package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	d "github.com/fjod/photo_checkout/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*SessionStore, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewSessionStore(client, time.Hour)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return store, mr, cleanup
}

func item(id string, amount int64) d.CartItem {
	return d.CartItem{ItemID: id, UnitPrice: d.NewMoney(amount, "USD")}
}

func TestSessionStore_ReadMissing(t *testing.T) {
	store, _, cleanup := setupTestRedis(t)
	defer cleanup()

	items, err := store.ReadCart(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSessionStore_AddKeepsOrderAndFirstPrice(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "s1", item("b", 1500)))
	require.NoError(t, store.AddItem(ctx, "s1", item("a", 1000)))
	require.NoError(t, store.AddItem(ctx, "s1", item("b", 9999)))

	items, err := store.ReadCart(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ItemID)
	assert.Equal(t, int64(1500), items[0].UnitPrice.Amount)
	assert.Equal(t, "a", items[1].ItemID)
	assert.Equal(t, d.CartSourceSession, items[0].Source)
	assert.False(t, items[0].AddedAt.IsZero())

	ttl := mr.TTL(sessionKey("s1"))
	assert.GreaterOrEqual(t, ttl, time.Hour)
	assert.Less(t, ttl, time.Hour+5*time.Minute)
}

func TestSessionStore_RemoveItem(t *testing.T) {
	store, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "s1", item("a", 1000)))
	require.NoError(t, store.AddItem(ctx, "s1", item("b", 1500)))

	require.NoError(t, store.RemoveItem(ctx, "s1", "a"))
	assert.ErrorIs(t, store.RemoveItem(ctx, "s1", "a"), ErrItemNotFound)

	items, err := store.ReadCart(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].ItemID)
}

func TestSessionStore_Clear(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "s1", item("a", 1000)))
	require.NoError(t, store.ClearCart(ctx, "s1"))
	assert.False(t, mr.Exists(sessionKey("s1")))

	// clearing twice is fine
	require.NoError(t, store.ClearCart(ctx, "s1"))
}

func TestSessionStore_ConcurrentAdds(t *testing.T) {
	store, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, store.AddItem(ctx, "s1", item(id, 100)))
		}(id)
	}
	wg.Wait()

	items, err := store.ReadCart(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, items, 4)
}

func TestSessionStore_InvalidJSON(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, mr.Set(sessionKey("s1"), "{not json"))

	_, err := store.ReadCart(context.Background(), "s1")
	assert.Error(t, err)
}

func TestSessionStore_RedisDown(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.Close()

	_, err := store.ReadCart(context.Background(), "s1")
	assert.Error(t, err)
}

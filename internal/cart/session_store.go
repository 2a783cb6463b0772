package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/redis/go-redis/v9"
)

const maxWatchRetries = 10

// SessionStore keeps guest carts in Redis as a JSON list with a sliding TTL.
type SessionStore struct {
	client  *redis.Client
	baseTTL time.Duration
}

var _ Store = (*SessionStore)(nil)

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{client: client, baseTTL: ttl}
}

func (s *SessionStore) ReadCart(ctx context.Context, sessionID string) ([]d.CartItem, error) {
	return s.read(ctx, s.client, sessionKey(sessionID))
}

func (s *SessionStore) AddItem(ctx context.Context, sessionID string, item d.CartItem) error {
	item.Source = d.CartSourceSession
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}
	return s.update(ctx, sessionKey(sessionID), func(items []d.CartItem) ([]d.CartItem, error) {
		if containsItem(items, item.ItemID) {
			return items, nil
		}
		return append(items, item), nil
	})
}

func (s *SessionStore) RemoveItem(ctx context.Context, sessionID, itemID string) error {
	return s.update(ctx, sessionKey(sessionID), func(items []d.CartItem) ([]d.CartItem, error) {
		out := items[:0]
		for _, it := range items {
			if it.ItemID != itemID {
				out = append(out, it)
			}
		}
		if len(out) == len(items) {
			return nil, ErrItemNotFound
		}
		return out, nil
	})
}

func (s *SessionStore) ClearCart(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// update runs a read-modify-write under WATCH so concurrent adds from two
// tabs of the same session do not lose items.
func (s *SessionStore) update(ctx context.Context, key string, fn func([]d.CartItem) ([]d.CartItem, error)) error {
	txf := func(tx *redis.Tx) error {
		items, err := s.read(ctx, tx, key)
		if err != nil {
			return err
		}
		items, err = fn(items)
		if err != nil {
			return err
		}
		data, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("marshal cart failed: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl())
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrItemNotFound) {
			return fmt.Errorf("redis cart update failed: %w", err)
		}
		return err
	}
	return fmt.Errorf("redis cart update failed: too much contention on %s", key)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *SessionStore) read(ctx context.Context, c getter, key string) ([]d.CartItem, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []d.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return items, nil
}

func (s *SessionStore) ttl() time.Duration {
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return s.baseTTL + jitter
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("cart:session:%s", sessionID)
}

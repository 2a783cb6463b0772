// Package cart stores the buyer's pending selection: anonymous session carts
// in Redis and account carts in MongoDB.
package cart

import (
	"context"
	"errors"

	d "github.com/fjod/photo_checkout/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// Store is the CRUD surface shared by session and account carts. Adding an
// item that is already present keeps the original entry and its price.
type Store interface {
	ReadCart(ctx context.Context, ownerID string) ([]d.CartItem, error)
	AddItem(ctx context.Context, ownerID string, item d.CartItem) error
	RemoveItem(ctx context.Context, ownerID, itemID string) error
	ClearCart(ctx context.Context, ownerID string) error
}

func containsItem(items []d.CartItem, itemID string) bool {
	for _, it := range items {
		if it.ItemID == itemID {
			return true
		}
	}
	return false
}

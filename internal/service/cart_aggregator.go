package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/cart"
	"github.com/fjod/photo_checkout/internal/catalog"
	"github.com/fjod/photo_checkout/internal/logging"
	"golang.org/x/sync/singleflight"
)

const cartLoadTimeout = 5 * time.Second

// CartAggregator presents the session cart and the account cart of a buyer
// as one priced list. Either store may be nil when that backend is disabled.
type CartAggregator struct {
	session  cart.Store
	account  cart.Store
	catalog  Catalog
	currency string
	sfg      singleflight.Group // collapses concurrent reads of the same owner
	log      *slog.Logger
}

func NewCartAggregator(session, account cart.Store, catalog Catalog, currency string) *CartAggregator {
	return &CartAggregator{
		session:  session,
		account:  account,
		catalog:  catalog,
		currency: currency,
		log:      logging.New("cart"),
	}
}

// GetCart merges session entries first, then account entries, drops
// duplicates and re-prices every item. Unavailable items are left out.
func (a *CartAggregator) GetCart(ctx context.Context, owner d.OwnerRef) (*d.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	// The shared load outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := a.sfg.DoChan(flightKey(owner), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cartLoadTimeout)
		defer cancel()
		return a.load(loadCtx, owner)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*d.Cart).Clone(), nil
	}
}

func (a *CartAggregator) load(ctx context.Context, owner d.OwnerRef) (c *d.Cart, err error) {
	ctx, span := tracer.Start(ctx, "CartAggregator.GetCart")
	defer func() { endSpan(span, err) }()

	var raw []d.CartItem
	if owner.SessionID != "" && a.session != nil {
		items, err := a.session.ReadCart(ctx, owner.SessionID)
		if err != nil && !errors.Is(err, cart.ErrCartNotFound) {
			return nil, fmt.Errorf("read session cart: %w", err)
		}
		raw = append(raw, items...)
	}
	if owner.AccountID != "" && a.account != nil {
		items, err := a.account.ReadCart(ctx, owner.AccountID)
		if err != nil && !errors.Is(err, cart.ErrCartNotFound) {
			return nil, fmt.Errorf("read account cart: %w", err)
		}
		raw = append(raw, items...)
	}

	c = &d.Cart{Owner: owner, Items: make([]d.CartItem, 0, len(raw)), Total: d.Zero(a.currency)}
	seen := make(map[string]struct{}, len(raw))
	for _, it := range raw {
		if _, dup := seen[it.ItemID]; dup {
			continue
		}
		seen[it.ItemID] = struct{}{}

		price, err := a.catalog.ResolvePrice(ctx, it.ItemID)
		if errors.Is(err, catalog.ErrNotAvailable) || (err == nil && price.Currency != a.currency) {
			a.log.DebugContext(ctx, "dropping unavailable cart item", "item_id", it.ItemID, "owner", owner.Key())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve price of %s: %w", it.ItemID, err)
		}

		it.UnitPrice = price
		c.Items = append(c.Items, it)
		if c.Total, err = c.Total.Add(price); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddItem puts an item in the account cart when the buyer is signed in,
// otherwise in the session cart. The price is captured at add time.
func (a *CartAggregator) AddItem(ctx context.Context, owner d.OwnerRef, itemID string) (*d.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	price, err := a.catalog.ResolvePrice(ctx, itemID)
	if errors.Is(err, catalog.ErrNotAvailable) || (err == nil && price.Currency != a.currency) {
		return nil, &ItemUnavailableError{ItemID: itemID}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve price of %s: %w", itemID, err)
	}

	store, ownerID, source := a.session, owner.SessionID, d.CartSourceSession
	if owner.AccountID != "" {
		store, ownerID, source = a.account, owner.AccountID, d.CartSourceAccount
	}
	if store == nil {
		return nil, fmt.Errorf("no %s cart store configured", source)
	}

	item := d.CartItem{ItemID: itemID, UnitPrice: price, Source: source, AddedAt: time.Now().UTC()}
	if err := store.AddItem(ctx, ownerID, item); err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}
	a.sfg.Forget(flightKey(owner))
	return a.GetCart(ctx, owner)
}

// RemoveItem removes the item from every cart the owner has.
func (a *CartAggregator) RemoveItem(ctx context.Context, owner d.OwnerRef, itemID string) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	defer a.sfg.Forget(flightKey(owner))

	removed := false
	for _, t := range a.targets(owner) {
		err := t.store.RemoveItem(ctx, t.ownerID, itemID)
		switch {
		case err == nil:
			removed = true
		case errors.Is(err, cart.ErrItemNotFound), errors.Is(err, cart.ErrCartNotFound):
		default:
			return fmt.Errorf("remove item: %w", err)
		}
	}
	if !removed {
		return cart.ErrItemNotFound
	}
	return nil
}

// Clear empties every cart the owner has. It keeps going past a failing
// store and reports all failures together.
func (a *CartAggregator) Clear(ctx context.Context, owner d.OwnerRef) error {
	defer a.sfg.Forget(flightKey(owner))

	var errs []error
	for _, t := range a.targets(owner) {
		if err := t.store.ClearCart(ctx, t.ownerID); err != nil {
			errs = append(errs, fmt.Errorf("clear %s cart: %w", t.source, err))
		}
	}
	return errors.Join(errs...)
}

// clearBestEffort is used after an order commits; failure is only logged.
func (a *CartAggregator) clearBestEffort(ctx context.Context, owner d.OwnerRef) {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := a.Clear(ctx, owner); err != nil {
		a.log.WarnContext(ctx, "cart clear failed", "owner", owner.Key(), "error", err)
	}
}

type cartTarget struct {
	store   cart.Store
	ownerID string
	source  d.CartSource
}

func (a *CartAggregator) targets(owner d.OwnerRef) []cartTarget {
	var out []cartTarget
	if owner.SessionID != "" && a.session != nil {
		out = append(out, cartTarget{a.session, owner.SessionID, d.CartSourceSession})
	}
	if owner.AccountID != "" && a.account != nil {
		out = append(out, cartTarget{a.account, owner.AccountID, d.CartSourceAccount})
	}
	return out
}

func flightKey(owner d.OwnerRef) string {
	return owner.SessionID + "|" + owner.AccountID
}

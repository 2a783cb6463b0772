package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/catalog"
	"github.com/fjod/photo_checkout/internal/idempotency"
	"github.com/fjod/photo_checkout/internal/logging"
	"github.com/fjod/photo_checkout/internal/metrics"
	r "github.com/fjod/photo_checkout/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const checkoutScope = "checkout"

// Ledger turns cart snapshots into persisted orders.
type Ledger struct {
	repo     r.RepoInterface
	catalog  Catalog
	carts    *CartAggregator
	idem     idempotency.Store // optional fast path in front of the orders table
	currency string
	taxRate  decimal.Decimal
	log      *slog.Logger
}

type LedgerConfig struct {
	Currency string
	TaxRate  decimal.Decimal
}

func NewLedger(repo r.RepoInterface, catalog Catalog, carts *CartAggregator, idem idempotency.Store, cfg LedgerConfig) *Ledger {
	return &Ledger{
		repo:     repo,
		catalog:  catalog,
		carts:    carts,
		idem:     idem,
		currency: strings.ToUpper(cfg.Currency),
		taxRate:  cfg.TaxRate,
		log:      logging.New("ledger"),
	}
}

// NewCheckoutToken issues the idempotency token a client sends with checkout.
func (l *Ledger) NewCheckoutToken() string {
	return uuid.NewString()
}

// CreateOrder prices the snapshot from the catalog and persists the order with
// its lines in one transaction. A repeated call with the same token returns
// the order created by the first one, provided the cart is the same or the
// retry carries no items.
func (l *Ledger) CreateOrder(
	ctx context.Context,
	owner d.OwnerRef,
	contact d.BuyerContact,
	checkoutToken string,
	snapshot d.CartSnapshot) (order *d.Order, err error) {

	ctx, span := tracer.Start(ctx, "Ledger.CreateOrder")
	defer func() { endSpan(span, err) }()

	if err := owner.Validate(); err != nil {
		return nil, err
	}
	checkoutToken = strings.TrimSpace(checkoutToken)
	if checkoutToken == "" {
		return nil, ErrCheckoutTokenMissing
	}
	snap := snapshot.Normalized()
	ownerKey := owner.Key()
	lockKey := ownerKey + ":" + checkoutToken
	span.SetAttributes(attribute.String("owner", ownerKey), attribute.Int("items", len(snap.ItemIDs)))

	existing, err := l.findExisting(ctx, ownerKey, checkoutToken, lockKey)
	if err != nil {
		metrics.OrdersCreated.WithLabelValues("failed").Inc()
		return nil, err
	}
	if existing != nil {
		return l.replay(ctx, existing, snap)
	}

	if snap.IsEmpty() {
		metrics.OrdersCreated.WithLabelValues("rejected").Inc()
		return nil, ErrEmptyCart
	}

	if l.idem != nil {
		locked, lockErr := l.idem.TryLock(ctx, checkoutScope, lockKey)
		if lockErr != nil {
			// the unique key on the orders table still guards us
			l.log.WarnContext(ctx, "idempotency lock unavailable", "owner", ownerKey, "error", lockErr)
		} else if !locked {
			metrics.OrdersCreated.WithLabelValues("rejected").Inc()
			return nil, ErrCheckoutInProgress
		}
		defer func() {
			if err != nil && lockErr == nil {
				if relErr := l.idem.Release(context.WithoutCancel(ctx), checkoutScope, lockKey); relErr != nil {
					l.log.WarnContext(ctx, "idempotency lock release failed", "owner", ownerKey, "error", relErr)
				}
			}
		}()
	}

	order, err = l.buildOrder(ctx, owner, contact, checkoutToken, snap)
	if err != nil {
		metrics.OrdersCreated.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if err = l.repo.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, r.ErrDuplicateCheckout) {
			// lost a race with a concurrent submit of the same token
			winner, getErr := l.repo.GetOrderByCheckoutToken(ctx, ownerKey, checkoutToken)
			if getErr != nil {
				metrics.OrdersCreated.WithLabelValues("failed").Inc()
				return nil, persistence("reload order", getErr)
			}
			return l.replay(ctx, winner, snap)
		}
		metrics.OrdersCreated.WithLabelValues("failed").Inc()
		return nil, persistence("create order", err)
	}

	if l.idem != nil {
		if remErr := l.idem.Remember(ctx, checkoutScope, lockKey, order.ID.String()); remErr != nil {
			l.log.WarnContext(ctx, "idempotency remember failed", "order_id", order.ID, "error", remErr)
		}
	}

	metrics.OrdersCreated.WithLabelValues("created").Inc()
	l.log.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"owner", ownerKey,
		"lines", len(order.Lines),
		"total", order.Total.String())

	l.carts.clearBestEffort(ctx, owner)
	return order, nil
}

// findExisting looks for an order already created with this token, first in
// the idempotency store and then in the orders table.
func (l *Ledger) findExisting(ctx context.Context, ownerKey, token, lockKey string) (*d.Order, error) {
	if l.idem != nil {
		id, ok, err := l.idem.Recall(ctx, checkoutScope, lockKey)
		if err != nil {
			l.log.WarnContext(ctx, "idempotency recall failed", "owner", ownerKey, "error", err)
		}
		if ok {
			if orderID, parseErr := uuid.Parse(id); parseErr == nil {
				order, err := l.repo.GetOrder(ctx, orderID)
				if err == nil {
					return order, nil
				}
				if !errors.Is(err, r.ErrOrderNotFound) {
					return nil, persistence("get order", err)
				}
			}
		}
	}

	order, err := l.repo.GetOrderByCheckoutToken(ctx, ownerKey, token)
	if errors.Is(err, r.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistence("look up checkout token", err)
	}
	return order, nil
}

func (l *Ledger) replay(ctx context.Context, existing *d.Order, snap d.CartSnapshot) (*d.Order, error) {
	if !snap.IsEmpty() && snap.Fingerprint() != existing.CartFingerprint {
		metrics.OrdersCreated.WithLabelValues("rejected").Inc()
		l.log.WarnContext(ctx, "checkout token reused with a different cart",
			"order_id", existing.ID, "token", existing.CheckoutToken)
		return nil, ErrCheckoutTokenReused
	}
	metrics.OrdersCreated.WithLabelValues("replayed").Inc()
	l.log.InfoContext(ctx, "duplicate checkout detected",
		"order_id", existing.ID, "token", existing.CheckoutToken, "status", existing.Status)
	return existing, nil
}

func (l *Ledger) buildOrder(
	ctx context.Context,
	owner d.OwnerRef,
	contact d.BuyerContact,
	token string,
	snap d.CartSnapshot) (*d.Order, error) {

	now := time.Now().UTC()
	order := &d.Order{
		ID:              uuid.New(),
		Owner:           owner,
		Contact:         contact,
		CheckoutToken:   token,
		CartFingerprint: snap.Fingerprint(),
		Status:          d.OrderStatusPending,
		Lines:           make([]d.OrderLine, 0, len(snap.ItemIDs)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	prices := make([]d.Money, 0, len(snap.ItemIDs))
	for _, itemID := range snap.ItemIDs {
		price, err := l.catalog.ResolvePrice(ctx, itemID)
		if errors.Is(err, catalog.ErrNotAvailable) || (err == nil && price.Currency != l.currency) {
			return nil, &ItemUnavailableError{ItemID: itemID}
		}
		if err != nil {
			return nil, persistence("resolve price", err)
		}
		prices = append(prices, price)
		order.Lines = append(order.Lines, d.OrderLine{OrderID: order.ID, ItemID: itemID, Price: price})
	}

	subtotal, err := d.Sum(l.currency, prices...)
	if err != nil {
		return nil, err
	}
	order.Subtotal = subtotal
	order.Tax = subtotal.ApplyRate(l.taxRate)
	if order.Total, err = subtotal.Add(order.Tax); err != nil {
		return nil, err
	}
	return order, nil
}

func (l *Ledger) GetOrder(ctx context.Context, id uuid.UUID) (*d.Order, error) {
	order, err := l.repo.GetOrder(ctx, id)
	if errors.Is(err, r.ErrOrderNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, persistence("get order", err)
	}
	return order, nil
}

// MarkRefunded moves a completed order to refunded. The money movement itself
// happens outside this system.
func (l *Ledger) MarkRefunded(ctx context.Context, id uuid.UUID) (*d.Order, error) {
	order, err := l.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.CanTransitionTo(order.Status, d.OrderStatusRefunded) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, d.OrderStatusRefunded)
	}

	ok, err := l.repo.UpdateOrderStatusIf(ctx, id, d.OrderStatusCompleted, d.OrderStatusRefunded)
	if errors.Is(err, r.ErrIllegalTransition) {
		return nil, ErrIllegalTransition
	}
	if err != nil {
		return nil, persistence("mark refunded", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: order changed concurrently", ErrIllegalTransition)
	}

	l.log.InfoContext(ctx, "order refunded", "order_id", id)
	return l.GetOrder(ctx, id)
}

package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/cart"
	"github.com/fjod/photo_checkout/internal/catalog"
	"github.com/fjod/photo_checkout/internal/gateway"
	r "github.com/fjod/photo_checkout/internal/repository"
	"github.com/google/uuid"
)

// MockRepository is an in-memory r.RepoInterface with the same transition
// rules as the Postgres repository.
type MockRepository struct {
	mu       sync.Mutex
	orders   map[uuid.UUID]*d.Order
	byToken  map[string]uuid.UUID
	attempts map[string]*d.PaymentAttempt
	events   []*r.OutboxEvent

	CreateErr  error
	GetErr     error
	ResolveErr error
}

var _ r.RepoInterface = (*MockRepository)(nil)

func NewMockRepository() *MockRepository {
	return &MockRepository{
		orders:   make(map[uuid.UUID]*d.Order),
		byToken:  make(map[string]uuid.UUID),
		attempts: make(map[string]*d.PaymentAttempt),
	}
}

func (m *MockRepository) Close() error                       { return nil }
func (m *MockRepository) RunMigrations(*r.Credentials) error { return nil }
func (m *MockRepository) Ping(context.Context) error         { return nil }

func (m *MockRepository) CreateOrder(_ context.Context, order *d.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	key := order.Owner.Key() + "|" + order.CheckoutToken
	if _, ok := m.byToken[key]; ok {
		return r.ErrDuplicateCheckout
	}
	m.byToken[key] = order.ID
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MockRepository) GetOrder(_ context.Context, id uuid.UUID) (*d.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *MockRepository) GetOrderByCheckoutToken(_ context.Context, ownerKey, token string) (*d.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	id, ok := m.byToken[ownerKey+"|"+token]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	return cloneOrder(m.orders[id]), nil
}

func (m *MockRepository) UpdateOrderStatusIf(_ context.Context, id uuid.UUID, from, to d.OrderStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !d.CanTransitionTo(from, to) {
		return false, r.ErrIllegalTransition
	}
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *MockRepository) CreateAttempt(_ context.Context, orderID uuid.UUID, build r.AttemptBuilder) (*d.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, r.ErrOrderNotFound
	}
	if o.Status != d.OrderStatusPending {
		return nil, r.ErrOrderNotPending
	}

	seq := 0
	now := time.Now().UTC()
	for _, a := range m.attempts {
		if a.OrderID != orderID {
			continue
		}
		if a.Status == d.AttemptStatusInitiated {
			a.Status = d.AttemptStatusFailed
			a.ResolvedAt = &now
		}
		if a.Seq > seq {
			seq = a.Seq
		}
	}

	a, err := build(cloneOrder(o), seq+1)
	if err != nil {
		return nil, err
	}
	a.OrderID = orderID
	a.Seq = seq + 1
	a.Status = d.AttemptStatusInitiated
	stored := *a
	m.attempts[a.ProcessID] = &stored
	pid := a.ProcessID
	o.GatewayProcessID = &pid
	return a, nil
}

func (m *MockRepository) GetAttempt(_ context.Context, processID string) (*d.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[processID]
	if !ok {
		return nil, r.ErrAttemptNotFound
	}
	out := *a
	return &out, nil
}

func (m *MockRepository) ResolveAttempt(_ context.Context, processID string, res r.Resolution) (*d.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ResolveErr != nil {
		return nil, false, m.ResolveErr
	}
	a, ok := m.attempts[processID]
	if !ok {
		return nil, false, r.ErrAttemptNotFound
	}
	o := m.orders[a.OrderID]
	if a.Status.IsResolved() {
		return cloneOrder(o), false, nil
	}
	if !d.CanTransitionTo(o.Status, res.OrderStatus) {
		return cloneOrder(o), false, r.ErrIllegalTransition
	}

	now := time.Now().UTC()
	a.Status = res.AttemptStatus
	a.ResolvedAt = &now
	o.Status = res.OrderStatus
	o.UpdatedAt = now
	if res.EventType != "" {
		payload, _ := json.Marshal(d.NewOrderNotification(o, processID, res.OrderStatus, now))
		m.events = append(m.events, &r.OutboxEvent{
			ID:          int64(len(m.events) + 1),
			AggregateId: o.ID.String(),
			EventType:   res.EventType,
			Payload:     payload,
			CreatedAt:   now,
		})
	}
	return cloneOrder(o), true, nil
}

func (m *MockRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*r.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) > limit {
		return m.events[:limit], nil
	}
	return m.events, nil
}

func (m *MockRepository) MarkEventAsProcessed(context.Context, int64) error { return nil }

func (m *MockRepository) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *MockRepository) Events() []*r.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*r.OutboxEvent(nil), m.events...)
}

func (m *MockRepository) AttemptsFor(orderID uuid.UUID) map[int]d.AttemptStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]d.AttemptStatus)
	for _, a := range m.attempts {
		if a.OrderID == orderID {
			out[a.Seq] = a.Status
		}
	}
	return out
}

func cloneOrder(o *d.Order) *d.Order {
	c := *o
	c.Lines = append([]d.OrderLine(nil), o.Lines...)
	return &c
}

// MockCatalog prices items from a map; missing entries are not available.
type MockCatalog struct {
	mu     sync.Mutex
	Prices map[string]d.Money
	Err    error
}

func NewMockCatalog(prices map[string]int64) *MockCatalog {
	m := &MockCatalog{Prices: make(map[string]d.Money)}
	for id, amount := range prices {
		m.Prices[id] = d.NewMoney(amount, "USD")
	}
	return m
}

func (m *MockCatalog) ResolvePrice(_ context.Context, itemID string) (d.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return d.Money{}, m.Err
	}
	p, ok := m.Prices[itemID]
	if !ok {
		return d.Money{}, catalog.ErrNotAvailable
	}
	return p, nil
}

func (m *MockCatalog) Withdraw(itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Prices, itemID)
}

// MockCartStore implements cart.Store in memory.
type MockCartStore struct {
	mu       sync.Mutex
	carts    map[string][]d.CartItem
	ClearErr error
}

var _ cart.Store = (*MockCartStore)(nil)

func NewMockCartStore() *MockCartStore {
	return &MockCartStore{carts: make(map[string][]d.CartItem)}
}

func (m *MockCartStore) ReadCart(_ context.Context, ownerID string) ([]d.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]d.CartItem(nil), m.carts[ownerID]...), nil
}

func (m *MockCartStore) AddItem(_ context.Context, ownerID string, item d.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.carts[ownerID] {
		if it.ItemID == item.ItemID {
			return nil
		}
	}
	m.carts[ownerID] = append(m.carts[ownerID], item)
	return nil
}

func (m *MockCartStore) RemoveItem(_ context.Context, ownerID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.carts[ownerID]
	for i, it := range items {
		if it.ItemID == itemID {
			m.carts[ownerID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return cart.ErrItemNotFound
}

func (m *MockCartStore) ClearCart(_ context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearErr != nil {
		return m.ClearErr
	}
	delete(m.carts, ownerID)
	return nil
}

func (m *MockCartStore) Put(ownerID string, source d.CartSource, ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.carts[ownerID] = append(m.carts[ownerID], d.CartItem{ItemID: id, Source: source, AddedAt: time.Now()})
	}
}

// MockGateway records calls and answers from its fields.
type MockGateway struct {
	mu             sync.Mutex
	AuthorizeErr   error
	Status         *gateway.StatusResponse
	StatusErr      error
	AuthorizeCalls []string
	StatusCalls    int
}

func (m *MockGateway) Authorize(_ context.Context, processID string, _ d.Money, _ string) (*gateway.AuthorizeResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AuthorizeCalls = append(m.AuthorizeCalls, processID)
	if m.AuthorizeErr != nil {
		return nil, m.AuthorizeErr
	}
	return &gateway.AuthorizeResponse{ProcessID: processID, RedirectURL: "https://pay.test/pay/" + processID}, nil
}

func (m *MockGateway) QueryStatus(_ context.Context, processID string) (*gateway.StatusResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatusCalls++
	if m.StatusErr != nil {
		return nil, m.StatusErr
	}
	if m.Status != nil {
		s := *m.Status
		s.ProcessID = processID
		return &s, nil
	}
	return nil, &gateway.Error{Op: "status", Kind: gateway.ErrNotFound}
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

type BuyerContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type OrderLine struct {
	OrderID uuid.UUID `json:"order_id"`
	ItemID  string    `json:"item_id"`
	Price   Money     `json:"price"`
}

type Order struct {
	ID               uuid.UUID    `json:"id"`
	Owner            OwnerRef     `json:"owner"`
	Contact          BuyerContact `json:"contact"`
	CheckoutToken    string       `json:"checkout_token"`
	CartFingerprint  string       `json:"cart_fingerprint"`
	Subtotal         Money        `json:"subtotal"`
	Tax              Money        `json:"tax"`
	Total            Money        `json:"total"`
	Status           OrderStatus  `json:"status"`
	GatewayProcessID *string      `json:"gateway_process_id,omitempty"`
	Lines            []OrderLine  `json:"lines"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// OrderNotification is the payload handed to the notification sink.
type OrderNotification struct {
	OrderID   string       `json:"order_id"`
	Owner     OwnerRef     `json:"owner"`
	Contact   BuyerContact `json:"contact"`
	ItemIDs   []string     `json:"item_ids"`
	Total     string       `json:"total"`
	Currency  string       `json:"currency"`
	Status    OrderStatus  `json:"status"`
	ProcessID string       `json:"process_id"`
	At        time.Time    `json:"at"`
}

const (
	EventOrderCompleted = "OrderCompleted"
	EventOrderCancelled = "OrderCancelled"
)

func NewOrderNotification(o *Order, processID string, status OrderStatus, at time.Time) OrderNotification {
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		ids = append(ids, l.ItemID)
	}
	return OrderNotification{
		OrderID:   o.ID.String(),
		Owner:     o.Owner,
		Contact:   o.Contact,
		ItemIDs:   ids,
		Total:     o.Total.GatewayString(),
		Currency:  o.Total.Currency,
		Status:    status,
		ProcessID: processID,
		At:        at,
	}
}

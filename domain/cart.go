package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

type CartSource string

const (
	CartSourceSession CartSource = "session"
	CartSourceAccount CartSource = "account"
)

type CartItem struct {
	ItemID    string     `json:"item_id" bson:"item_id"`
	UnitPrice Money      `json:"unit_price" bson:"unit_price"`
	Source    CartSource `json:"source" bson:"source"`
	AddedAt   time.Time  `json:"added_at" bson:"added_at"`
}

type Cart struct {
	Owner OwnerRef   `json:"owner"`
	Items []CartItem `json:"items"`
	Total Money      `json:"total"`
}

// Clone copies the item list so callers sharing one loaded cart cannot
// see each other's edits.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = append([]CartItem(nil), c.Items...)
	return &cp
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Snapshot captures the item identities a buyer saw when submitting checkout.
// Prices are deliberately absent: the ledger reprices every line.
func (c *Cart) Snapshot() CartSnapshot {
	if c == nil {
		return CartSnapshot{}
	}
	ids := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ItemID)
	}
	return CartSnapshot{ItemIDs: ids, CapturedAt: time.Now().UTC()}
}

// CartSnapshot represents the cart contents at checkout time
type CartSnapshot struct {
	ItemIDs    []string  `json:"item_ids"`
	CapturedAt time.Time `json:"captured_at"`
}

// Normalized drops blanks and duplicates while keeping first-seen order.
func (s CartSnapshot) Normalized() CartSnapshot {
	seen := make(map[string]struct{}, len(s.ItemIDs))
	out := make([]string, 0, len(s.ItemIDs))
	for _, id := range s.ItemIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return CartSnapshot{ItemIDs: out, CapturedAt: s.CapturedAt}
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.ItemIDs) == 0
}

// Fingerprint identifies the set of items in the order they were shown.
func (s CartSnapshot) Fingerprint() string {
	h := sha256.New()
	for _, id := range s.ItemIDs {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

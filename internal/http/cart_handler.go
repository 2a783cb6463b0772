package http

import (
	"encoding/json"
	"net/http"
	"strings"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	carts  CartService
	orders OrderService
}

func NewCartHandler(carts CartService, orders OrderService) *CartHandler {
	return &CartHandler{carts: carts, orders: orders}
}

type AddItemRequestDTO struct {
	ItemID string `json:"item_id"`
}

type CartResponseDTO struct {
	Items         []d.CartItem `json:"items"`
	Total         string       `json:"total"`
	Currency      string       `json:"currency"`
	CheckoutToken string       `json:"checkout_token,omitempty"`
}

func toCartDTO(c *d.Cart) CartResponseDTO {
	return CartResponseDTO{Items: c.Items, Total: c.Total.GatewayString(), Currency: c.Total.Currency}
}

// GetCart returns the merged cart and a fresh token for the next checkout.
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.GetCart(r.Context(), ownerFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	resp := toCartDTO(c)
	resp.CheckoutToken = h.orders.NewCheckoutToken()
	respondJSON(w, http.StatusOK, resp)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.ItemID = strings.TrimSpace(req.ItemID)
	if req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}

	c, err := h.carts.AddItem(r.Context(), ownerFromContext(r.Context()), req.ItemID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartDTO(c))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	if itemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "item_id is required")
		return
	}
	if err := h.carts.RemoveItem(r.Context(), ownerFromContext(r.Context()), itemID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

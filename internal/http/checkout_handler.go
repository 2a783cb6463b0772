package http

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"

	d "github.com/fjod/photo_checkout/domain"
)

type CheckoutHandler struct {
	carts    CartService
	orders   OrderService
	payments PaymentService
}

func NewCheckoutHandler(carts CartService, orders OrderService, payments PaymentService) *CheckoutHandler {
	return &CheckoutHandler{carts: carts, orders: orders, payments: payments}
}

type ContactDTO struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type CheckoutRequestDTO struct {
	CheckoutToken string     `json:"checkout_token"`
	Contact       ContactDTO `json:"contact"`
	// Items pins the snapshot the buyer saw; when absent the current cart is used.
	Items []string `json:"items,omitempty"`
}

type CheckoutResponseDTO struct {
	CheckoutToken string             `json:"checkout_token"`
	Order         *d.Order           `json:"order"`
	Payment       *d.PaymentRedirect `json:"payment,omitempty"`
}

// Checkout creates the order and starts payment in one call. A payment
// failure still reports the order id so the client can retry just the payment.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	contact := d.BuyerContact{
		Name:  strings.TrimSpace(req.Contact.Name),
		Email: strings.TrimSpace(req.Contact.Email),
		Phone: strings.TrimSpace(req.Contact.Phone),
	}
	if contact.Name == "" {
		respondError(w, http.StatusBadRequest, "invalid_contact", "contact name is required")
		return
	}
	if _, err := mail.ParseAddress(contact.Email); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_contact", "contact email is invalid")
		return
	}

	owner := ownerFromContext(r.Context())
	token := strings.TrimSpace(req.CheckoutToken)
	if token == "" {
		token = h.orders.NewCheckoutToken()
	}

	snapshot := d.CartSnapshot{ItemIDs: req.Items, CapturedAt: time.Now().UTC()}
	if req.Items == nil {
		c, err := h.carts.GetCart(r.Context(), owner)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		snapshot = c.Snapshot()
	}

	order, err := h.orders.CreateOrder(r.Context(), owner, contact, token, snapshot)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp := CheckoutResponseDTO{CheckoutToken: token, Order: order}
	if order.Status != d.OrderStatusPending {
		// a replay of a checkout that already settled
		respondJSON(w, http.StatusOK, resp)
		return
	}

	redirect, err := h.payments.InitiatePayment(r.Context(), order.ID)
	if err != nil {
		respondServiceErrorFor(w, r, err, order.ID.String())
		return
	}
	resp.Payment = redirect
	respondJSON(w, http.StatusCreated, resp)
}

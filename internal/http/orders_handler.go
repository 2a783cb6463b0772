package http

import (
	"net/http"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrdersHandler struct {
	orders   OrderService
	payments PaymentService
}

func NewOrdersHandler(orders OrderService, payments PaymentService) *OrdersHandler {
	return &OrdersHandler{orders: orders, payments: payments}
}

func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// RetryPayment starts a new payment attempt, superseding any earlier one.
func (h *OrdersHandler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	order, ok := h.loadOwnedOrder(w, r)
	if !ok {
		return
	}
	redirect, err := h.payments.InitiatePayment(r.Context(), order.ID)
	if err != nil {
		respondServiceErrorFor(w, r, err, order.ID.String())
		return
	}
	respondJSON(w, http.StatusCreated, redirect)
}

func (h *OrdersHandler) loadOwnedOrder(w http.ResponseWriter, r *http.Request) (*d.Order, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return nil, false
	}
	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return nil, false
	}
	// other buyers' orders are reported as missing
	if !ownsOrder(ownerFromContext(r.Context()), order) {
		respondServiceError(w, r, service.ErrOrderNotFound)
		return nil, false
	}
	return order, true
}

func ownsOrder(owner d.OwnerRef, order *d.Order) bool {
	if order.Owner.AccountID != "" {
		return owner.AccountID == order.Owner.AccountID
	}
	return owner.SessionID != "" && owner.SessionID == order.Owner.SessionID
}

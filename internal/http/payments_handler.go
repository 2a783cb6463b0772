package http

import (
	"encoding/json"
	"net/http"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/gateway"
)

type PaymentsHandler struct {
	callbacks CallbackService
}

func NewPaymentsHandler(callbacks CallbackService) *PaymentsHandler {
	return &PaymentsHandler{callbacks: callbacks}
}

// Callback is the server-to-server webhook. Non-2xx answers make the
// gateway redeliver.
func (h *PaymentsHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var payload gateway.CallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	h.handle(w, r, payload)
}

// Return is where the buyer's browser lands after the payment page.
func (h *PaymentsHandler) Return(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.handle(w, r, gateway.CallbackPayload{
		ProcessID: q.Get("processId"),
		Outcome:   q.Get("outcome"),
		Token:     q.Get("token"),
	})
}

func (h *PaymentsHandler) handle(w http.ResponseWriter, r *http.Request, payload gateway.CallbackPayload) {
	// shape problems are judged by the reconciler, which answers them as
	// unknown attempts or failed verifications
	outcome := d.CallbackOutcome(payload.Outcome)
	if o, ok := d.ParseOutcome(payload.Outcome); ok {
		outcome = o
	}

	ack, err := h.callbacks.HandleCallback(r.Context(), d.Callback{
		ProcessID: payload.ProcessID,
		Outcome:   outcome,
		Token:     payload.Token,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ack)
}

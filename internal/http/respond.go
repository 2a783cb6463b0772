package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/cart"
	"github.com/fjod/photo_checkout/internal/logging"
	"github.com/fjod/photo_checkout/internal/service"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
	OrderID   string `json:"order_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// errorMapping is matched top to bottom with errors.Is.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{service.ErrCheckoutTokenMissing, http.StatusBadRequest, "invalid_request"},
	{d.ErrNoOwner, http.StatusUnauthorized, "missing_owner"},
	{service.ErrItemUnavailable, http.StatusConflict, "item_unavailable"},
	{service.ErrCheckoutTokenReused, http.StatusConflict, "checkout_conflict"},
	{service.ErrCheckoutInProgress, http.StatusConflict, "checkout_in_progress"},
	{service.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
	{service.ErrConfirmationMismatch, http.StatusConflict, "confirmation_mismatch"},
	{service.ErrVerificationFailed, http.StatusForbidden, "verification_failed"},
	{service.ErrOrderNotFound, http.StatusNotFound, "not_found"},
	{service.ErrUnknownAttempt, http.StatusNotFound, "unknown_attempt"},
	{cart.ErrItemNotFound, http.StatusNotFound, "not_found"},
	{service.ErrConfirmationPending, http.StatusServiceUnavailable, "confirmation_pending"},
	{service.ErrPersistenceFailure, http.StatusServiceUnavailable, "persistence_failure"},
	{service.ErrGatewayTimeout, http.StatusGatewayTimeout, "gateway_timeout"},
	{service.ErrGatewayUnreachable, http.StatusBadGateway, "gateway_unreachable"},
	{service.ErrGatewayRejected, http.StatusBadGateway, "gateway_rejected"},
}

// respondServiceError maps a service error to a status and a stable code.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	respondServiceErrorFor(w, r, err, "")
}

func respondServiceErrorFor(w http.ResponseWriter, r *http.Request, err error, orderID string) {
	resp := ErrorResponse{
		Error:     "internal server error",
		Code:      "internal_error",
		Retryable: service.Retryable(err),
		OrderID:   orderID,
	}
	status := http.StatusInternalServerError
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			status, resp.Code, resp.Error = m.status, m.code, m.err.Error()
			break
		}
	}

	var unavailable *service.ItemUnavailableError
	if errors.As(err, &unavailable) {
		resp.Details = unavailable.ItemID
	}

	log := logging.FromCtx(r.Context())
	if status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		log.InfoContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	respondJSON(w, status, resp)
}

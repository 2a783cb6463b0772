// Package http exposes the checkout pipeline over a chi router.
package http

import (
	"net/http"
	"time"

	"github.com/fjod/photo_checkout/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Services struct {
	Carts     CartService
	Orders    OrderService
	Payments  PaymentService
	Callbacks CallbackService
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(r *http.Request) error
}

type RouterOptions struct {
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

func NewRouter(s Services, opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	cartHandler := NewCartHandler(s.Carts, s.Orders)
	checkoutHandler := NewCheckoutHandler(s.Carts, s.Orders, s.Payments)
	ordersHandler := NewOrdersHandler(s.Orders, s.Payments)
	paymentsHandler := NewPaymentsHandler(s.Callbacks)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(middleware.RequestSize(opts.MaxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if s.Ready != nil {
			if err := s.Ready(r); err != nil {
				respondError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(OwnerMiddleware)
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Post("/items", cartHandler.AddItem)
				r.Delete("/items/{item_id}", cartHandler.RemoveItem)
			})
			r.Post("/checkout", checkoutHandler.Checkout)
			r.Get("/orders/{order_id}", ordersHandler.GetOrder)
			r.Post("/orders/{order_id}/payment", ordersHandler.RetryPayment)
		})

		// called by the gateway and by the buyer's browser, no owner headers
		r.Post("/payments/callback", paymentsHandler.Callback)
		r.Get("/payments/return", paymentsHandler.Return)
	})

	return otelhttp.NewHandler(r, "photo-checkout",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

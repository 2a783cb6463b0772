package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	headerSessionID = "X-Session-ID"
	headerAccountID = "X-Account-ID"
)

type ownerKey struct{}

// OwnerMiddleware reads the buyer identity the upstream auth proxy put in
// the request headers.
func OwnerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := d.OwnerRef{
			SessionID: strings.TrimSpace(r.Header.Get(headerSessionID)),
			AccountID: strings.TrimSpace(r.Header.Get(headerAccountID)),
		}
		if owner.IsEmpty() {
			respondError(w, http.StatusUnauthorized, "missing_owner", "session or account header required")
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFromContext(ctx context.Context) d.OwnerRef {
	owner, _ := ctx.Value(ownerKey{}).(d.OwnerRef)
	return owner
}

// AccessLog writes one structured line per request and puts a request-scoped
// logger into the context.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqLog := logging.Base().With("request_id", middleware.GetReqID(r.Context()))
		ctx := logging.WithCtx(r.Context(), reqLog)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		reqLog.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

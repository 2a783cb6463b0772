package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/gateway/fakeprocessor"
	"github.com/fjod/photo_checkout/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	log := logging.Init("fakegateway", getEnv("LOG_FILE", ""), getEnv("LOG_LEVEL", "info"))

	addr := getEnv("FAKEGW_ADDR", ":9090")
	var outcomes fakeprocessor.OutcomeSource = fakeprocessor.RandomOutcome{}
	if o, ok := d.ParseOutcome(getEnv("FAKEGW_OUTCOME", "")); ok {
		outcomes = fakeprocessor.FixedOutcome(o)
	}

	processor := fakeprocessor.New(fakeprocessor.Options{
		PublicKey:  getEnv("FAKEGW_PUBLIC_KEY", "pk_test_photo"),
		SecretKey:  getEnv("FAKEGW_SECRET_KEY", "change-me"),
		BaseURL:    getEnv("FAKEGW_BASE_URL", "http://localhost:9090"),
		WebhookURL: getEnv("FAKEGW_WEBHOOK_URL", "http://localhost:8080/api/v1/payments/callback"),
		Outcomes:   outcomes,
		Logger:     log,
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Mount("/", processor.Routes())

	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("fake payment gateway listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	log.Info("fake payment gateway stopped")
}

// Package fakeprocessor is an in-process payment processor that speaks the
// gateway wire contract. It backs local development and tests.
package fakeprocessor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/gateway"
	"github.com/go-chi/chi/v5"
)

var (
	ErrUnknownPayment = errors.New("unknown payment")
	ErrAlreadySettled = errors.New("payment already settled")
)

var payPage = template.Must(template.New("pay").Parse(`<!doctype html>
<html>
<head><title>Pay {{.Amount}} {{.Currency}}</title></head>
<body>
<h1>Payment {{.ProcessID}}</h1>
<p>Amount due: {{.Amount}} {{.Currency}}</p>
<form method="post" action="{{.CompleteURL}}?outcome=success"><button type="submit">Pay</button></form>
<form method="post" action="{{.CompleteURL}}?outcome=cancel"><button type="submit">Cancel</button></form>
</body>
</html>
`))

// OutcomeSource decides how a buyer's visit to the payment page ends.
type OutcomeSource interface {
	Outcome() d.CallbackOutcome
}

// RandomOutcome approves most payments and cancels the rest.
type RandomOutcome struct{}

func (RandomOutcome) Outcome() d.CallbackOutcome {
	return calcOutcome(rand.Intn(101))
}

func calcOutcome(roll int) d.CallbackOutcome {
	if roll < 95 {
		return d.OutcomeSuccess
	}
	return d.OutcomeCancel
}

// FixedOutcome always yields the same outcome.
type FixedOutcome d.CallbackOutcome

func (f FixedOutcome) Outcome() d.CallbackOutcome {
	return d.CallbackOutcome(f)
}

type payment struct {
	req    gateway.AuthorizeRequest
	amount d.Money
	status string
}

type Options struct {
	PublicKey  string
	SecretKey  string
	BaseURL    string // public address used to build redirect URLs
	WebhookURL string // optional server-to-server callback target
	Outcomes   OutcomeSource
	Logger     *slog.Logger
}

type Processor struct {
	opts   Options
	signer gateway.Signer
	client *http.Client

	mu          sync.Mutex
	payments    map[string]*payment
	unavailable bool
	delay       time.Duration
}

func New(opts Options) *Processor {
	if opts.Outcomes == nil {
		opts.Outcomes = RandomOutcome{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Processor{
		opts:     opts,
		signer:   gateway.NewSigner(opts.SecretKey),
		client:   &http.Client{Timeout: 5 * time.Second},
		payments: make(map[string]*payment),
	}
}

func (p *Processor) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/payments/authorize", p.handleAuthorize)
	r.Get("/api/payments/{process_id}", p.handleStatus)
	r.Get("/pay/{process_id}", p.handlePayPage)
	r.Post("/pay/{process_id}/complete", p.handleComplete)
	return r
}

// SetBaseURL sets the address redirect URLs point at, for servers whose
// address is only known after they start.
func (p *Processor) SetBaseURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts.BaseURL = u
}

// SetUnavailable makes every API call answer 503.
func (p *Processor) SetUnavailable(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = v
}

// SetDelay stalls every API call, to exercise client timeouts.
func (p *Processor) SetDelay(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = delay
}

// SetStatus overrides the recorded status of a payment.
func (p *Processor) SetStatus(processID, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pay, ok := p.payments[processID]
	if !ok {
		return ErrUnknownPayment
	}
	pay.status = status
	return nil
}

func (p *Processor) Status(processID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pay, ok := p.payments[processID]
	if !ok {
		return "", false
	}
	return pay.status, true
}

// Settle ends a pending payment with the given outcome and returns the signed
// callback. The webhook, when configured, is fired before returning.
func (p *Processor) Settle(ctx context.Context, processID string, outcome d.CallbackOutcome) (gateway.CallbackPayload, error) {
	p.mu.Lock()
	pay, ok := p.payments[processID]
	if !ok {
		p.mu.Unlock()
		return gateway.CallbackPayload{}, ErrUnknownPayment
	}
	if pay.status != gateway.StatusPending {
		p.mu.Unlock()
		return gateway.CallbackPayload{}, ErrAlreadySettled
	}
	if outcome == d.OutcomeSuccess {
		pay.status = gateway.StatusApproved
	} else {
		pay.status = gateway.StatusCancelled
	}
	amount := pay.amount
	p.mu.Unlock()

	cb := gateway.CallbackPayload{
		ProcessID: processID,
		Outcome:   string(outcome),
		Token:     p.signer.CallbackToken(processID, amount, outcome),
	}
	if p.opts.WebhookURL != "" {
		if err := p.fireWebhook(ctx, cb); err != nil {
			p.opts.Logger.WarnContext(ctx, "webhook delivery failed", "process_id", processID, "error", err)
		}
	}
	return cb, nil
}

// ReturnURL is where the buyer's browser lands after Settle.
func (p *Processor) ReturnURL(processID string, cb gateway.CallbackPayload) (string, error) {
	p.mu.Lock()
	pay, ok := p.payments[processID]
	p.mu.Unlock()
	if !ok {
		return "", ErrUnknownPayment
	}

	target := pay.req.ReturnURL
	if d.CallbackOutcome(cb.Outcome) == d.OutcomeCancel && pay.req.CancelURL != "" {
		target = pay.req.CancelURL
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("processId", cb.ProcessID)
	q.Set("outcome", cb.Outcome)
	q.Set("token", cb.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Processor) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if !p.gate(w) {
		return
	}
	var req gateway.AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.PublicKey != p.opts.PublicKey {
		respondError(w, http.StatusUnauthorized, "unknown public key")
		return
	}
	amount, err := d.ParseGatewayAmount(req.Amount, req.CurrencyCode)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !p.signer.VerifyRequest(req.ProcessID, amount, req.SignatureToken) {
		respondError(w, http.StatusBadRequest, "signature mismatch")
		return
	}

	p.mu.Lock()
	if existing, ok := p.payments[req.ProcessID]; ok && existing.status != gateway.StatusPending {
		p.mu.Unlock()
		respondError(w, http.StatusConflict, ErrAlreadySettled.Error())
		return
	}
	p.payments[req.ProcessID] = &payment{req: req, amount: amount, status: gateway.StatusPending}
	base := strings.TrimRight(p.opts.BaseURL, "/")
	p.mu.Unlock()

	respondJSON(w, http.StatusOK, gateway.AuthorizeResponse{
		ProcessID:   req.ProcessID,
		RedirectURL: fmt.Sprintf("%s/pay/%s", base, url.PathEscape(req.ProcessID)),
	})
}

func (p *Processor) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !p.gate(w) {
		return
	}
	processID := chi.URLParam(r, "process_id")

	p.mu.Lock()
	pay, ok := p.payments[processID]
	var resp gateway.StatusResponse
	if ok {
		resp = gateway.StatusResponse{
			ProcessID:    processID,
			Status:       pay.status,
			Amount:       pay.req.Amount,
			CurrencyCode: pay.req.CurrencyCode,
		}
	}
	p.mu.Unlock()

	if !ok {
		respondError(w, http.StatusNotFound, ErrUnknownPayment.Error())
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handlePayPage is the hosted page the buyer is redirected to.
func (p *Processor) handlePayPage(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "process_id")

	p.mu.Lock()
	pay, ok := p.payments[processID]
	var status string
	var amount d.Money
	if ok {
		status, amount = pay.status, pay.amount
	}
	p.mu.Unlock()

	if !ok {
		respondError(w, http.StatusNotFound, ErrUnknownPayment.Error())
		return
	}
	if status != gateway.StatusPending {
		respondError(w, http.StatusConflict, ErrAlreadySettled.Error())
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := payPage.Execute(w, map[string]string{
		"ProcessID":   processID,
		"Amount":      amount.GatewayString(),
		"Currency":    amount.Currency,
		"CompleteURL": "/pay/" + url.PathEscape(processID) + "/complete",
	})
	if err != nil {
		p.opts.Logger.ErrorContext(r.Context(), "render payment page", "process_id", processID, "error", err)
	}
}

// handleComplete stands in for the buyer finishing the hosted payment page.
func (p *Processor) handleComplete(w http.ResponseWriter, r *http.Request) {
	processID := chi.URLParam(r, "process_id")
	outcome := p.opts.Outcomes.Outcome()
	if o, ok := d.ParseOutcome(r.URL.Query().Get("outcome")); ok {
		outcome = o
	}

	cb, err := p.Settle(r.Context(), processID, outcome)
	switch {
	case errors.Is(err, ErrUnknownPayment):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, ErrAlreadySettled):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	target, err := p.ReturnURL(processID, cb)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (p *Processor) gate(w http.ResponseWriter) bool {
	p.mu.Lock()
	unavailable, delay := p.unavailable, p.delay
	p.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if unavailable {
		respondError(w, http.StatusServiceUnavailable, "processor unavailable")
		return false
	}
	return true
}

func (p *Processor) fireWebhook(ctx context.Context, cb gateway.CallbackPayload) error {
	body, err := json.Marshal(cb)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook answered %d", resp.StatusCode)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

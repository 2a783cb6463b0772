package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/fjod/photo_checkout/internal/metrics"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	BaseURL          string
	PublicKey        string
	ReturnURL        string
	CancelURL        string
	Timeout          time.Duration
	MaxRequests      uint32
	Interval         time.Duration
	OpenTimeout      time.Duration
	FailureThreshold uint32
}

// Client talks to the payment processor. Every call is bounded by Timeout and
// guarded by a circuit breaker that opens after consecutive transport failures.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(cfg Config) *Client {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	threshold := cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// a rejection proves the gateway is up
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
	})

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		breaker: cb,
	}
}

// Authorize asks the gateway to start a payment and returns where to send the buyer.
func (c *Client) Authorize(ctx context.Context, processID string, amount d.Money, token string) (*AuthorizeResponse, error) {
	req := AuthorizeRequest{
		PublicKey:      c.cfg.PublicKey,
		ProcessID:      processID,
		CurrencyCode:   amount.Currency,
		Amount:         amount.GatewayString(),
		SignatureToken: token,
		ReturnURL:      c.cfg.ReturnURL,
		CancelURL:      c.cfg.CancelURL,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal authorize request: %w", err)
	}

	raw, err := c.do(ctx, "authorize", http.MethodPost, "/api/payments/authorize", body)
	if err != nil {
		return nil, err
	}

	var resp AuthorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Op: "authorize", Kind: ErrRejected, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.RedirectURL == "" {
		return nil, &Error{Op: "authorize", Kind: ErrRejected, Err: errors.New("empty redirect url")}
	}
	if resp.ProcessID != "" && resp.ProcessID != processID {
		return nil, &Error{Op: "authorize", Kind: ErrRejected,
			Err: fmt.Errorf("process id mismatch: sent %s, got %s", processID, resp.ProcessID)}
	}
	return &resp, nil
}

// QueryStatus fetches the gateway's own record of a payment.
func (c *Client) QueryStatus(ctx context.Context, processID string) (*StatusResponse, error) {
	raw, err := c.do(ctx, "status", http.MethodGet, "/api/payments/"+url.PathEscape(processID), nil)
	if err != nil {
		return nil, err
	}

	var resp StatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &Error{Op: "status", Kind: ErrRejected, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, op, method, path, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &Error{Op: op, Kind: ErrUnreachable, Err: err}
	}
	metrics.GatewayCalls.WithLabelValues(op, resultLabel(err)).Inc()
	return raw, err
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, strings.TrimRight(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, &Error{Op: op, Kind: ErrRejected, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Public-Key", c.cfg.PublicKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Kind: classify(callCtx, err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Op: op, Kind: classify(callCtx, err), Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{Op: op, Status: resp.StatusCode, Kind: ErrNotFound, Err: bodyError(raw)}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return nil, &Error{Op: op, Status: resp.StatusCode, Kind: ErrTimeout, Err: bodyError(raw)}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Op: op, Status: resp.StatusCode, Kind: ErrUnreachable, Err: bodyError(raw)}
	default:
		return nil, &Error{Op: op, Status: resp.StatusCode, Kind: ErrRejected, Err: bodyError(raw)}
	}
}

func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUnreachable
}

func bodyError(raw []byte) error {
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		return errors.New(eb.Error)
	}
	if len(raw) == 0 {
		return nil
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return errors.New(string(raw))
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "rejected"
	}
}

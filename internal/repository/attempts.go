package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/google/uuid"
)

// CreateAttempt locks the order, invalidates any live attempt by marking it
// failed, and inserts the attempt produced by build. The order must be pending.
func (r *Repository) CreateAttempt(ctx context.Context, orderID uuid.UUID, build AttemptBuilder) (*d.PaymentAttempt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	order, err := getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != d.OrderStatusPending {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotPending, order.Status)
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE payment_attempts SET status = $2, resolved_at = NOW()
		WHERE order_id = $1 AND status = $3`,
		orderID, d.AttemptStatusFailed, d.AttemptStatusInitiated); err != nil {
		return nil, fmt.Errorf("failed to invalidate live attempt: %w", err)
	}

	var seq int
	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM payment_attempts WHERE order_id = $1`, orderID).Scan(&seq); err != nil {
		return nil, fmt.Errorf("failed to read attempt sequence: %w", err)
	}

	attempt, err := build(order, seq+1)
	if err != nil {
		return nil, err
	}
	attempt.OrderID = orderID
	attempt.Seq = seq + 1
	attempt.Status = d.AttemptStatusInitiated
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO payment_attempts (process_id, order_id, seq, token, amount_minor, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		attempt.ProcessID, orderID, attempt.Seq, attempt.Token, attempt.Amount.Amount, attempt.Amount.Currency,
		attempt.Status, attempt.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert payment attempt: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE orders SET gateway_process_id = $2, updated_at = NOW() WHERE id = $1`,
		orderID, attempt.ProcessID); err != nil {
		return nil, fmt.Errorf("failed to link attempt to order: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment attempt: %w", err)
	}
	return attempt, nil
}

const attemptColumns = `process_id, order_id, seq, token, amount_minor, currency, status, created_at, resolved_at`

func (r *Repository) GetAttempt(ctx context.Context, processID string) (*d.PaymentAttempt, error) {
	return scanAttempt(r.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE process_id = $1`, processID))
}

// ResolveAttempt settles a live attempt and transitions its order atomically.
// Locks are taken order first, then attempt, matching CreateAttempt.
// It reports applied=false when the attempt was already resolved; the
// returned order then reflects its current state.
func (r *Repository) ResolveAttempt(ctx context.Context, processID string, res Resolution) (*d.Order, bool, error) {
	var orderID uuid.UUID
	err := r.db.QueryRowContext(ctx,
		`SELECT order_id FROM payment_attempts WHERE process_id = $1`, processID).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrAttemptNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up attempt: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	order, err := getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID)
	if err != nil {
		return nil, false, err
	}
	attempt, err := scanAttempt(tx.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE process_id = $1 FOR UPDATE`, processID))
	if err != nil {
		return nil, false, err
	}

	if attempt.Status.IsResolved() {
		return order, false, nil
	}
	if !d.CanTransitionTo(order.Status, res.OrderStatus) {
		return order, false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, res.OrderStatus)
	}

	now := time.Now().UTC()
	if _, err = tx.ExecContext(ctx,
		`UPDATE payment_attempts SET status = $2, resolved_at = $3 WHERE process_id = $1`,
		processID, res.AttemptStatus, now); err != nil {
		return nil, false, fmt.Errorf("failed to resolve attempt: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		orderID, res.OrderStatus, now); err != nil {
		return nil, false, fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = res.OrderStatus
	order.UpdatedAt = now

	if res.EventType != "" {
		payload, err := json.Marshal(d.NewOrderNotification(order, processID, res.OrderStatus, now))
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal order event: %w", err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO order_events (aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4)`,
			orderID.String(), res.EventType, string(payload), now); err != nil {
			return nil, false, fmt.Errorf("failed to insert order event: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit resolution: %w", err)
	}
	return order, true, nil
}

func scanAttempt(row *sql.Row) (*d.PaymentAttempt, error) {
	var (
		a        d.PaymentAttempt
		amount   int64
		currency string
		resolved sql.NullTime
	)
	err := row.Scan(&a.ProcessID, &a.OrderID, &a.Seq, &a.Token, &amount, &currency, &a.Status, &a.CreatedAt, &resolved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment attempt: %w", err)
	}
	a.Amount = d.NewMoney(amount, currency)
	if resolved.Valid {
		a.ResolvedAt = &resolved.Time
	}
	return &a, nil
}

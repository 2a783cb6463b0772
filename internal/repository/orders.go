package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/google/uuid"
)

const orderColumns = `id, owner_session_id, owner_account_id, contact_name, contact_email, contact_phone,
	checkout_token, cart_fingerprint, currency, subtotal_minor, tax_minor, total_minor, status,
	gateway_process_id, created_at, updated_at`

// CreateOrder inserts the order and all of its lines in one transaction.
// A second order for the same owner and checkout token yields ErrDuplicateCheckout.
func (r *Repository) CreateOrder(ctx context.Context, o *d.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, owner_key, owner_session_id, owner_account_id, contact_name, contact_email,
			contact_phone, checkout_token, cart_fingerprint, currency, subtotal_minor, tax_minor, total_minor,
			status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)`,
		o.ID,
		o.Owner.Key(),
		nullString(o.Owner.SessionID),
		nullString(o.Owner.AccountID),
		o.Contact.Name,
		o.Contact.Email,
		o.Contact.Phone,
		o.CheckoutToken,
		o.CartFingerprint,
		o.Total.Currency,
		o.Subtotal.Amount,
		o.Tax.Amount,
		o.Total.Amount,
		o.Status,
		o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "orders_owner_checkout_token_key") {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for i, line := range o.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, position, item_id, price_minor, currency)
			VALUES ($1, $2, $3, $4, $5)`,
			o.ID, i, line.ItemID, line.Price.Amount, line.Price.Currency)
		if err != nil {
			return fmt.Errorf("failed to insert order line %s: %w", line.ItemID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		if isUniqueViolation(err, "orders_owner_checkout_token_key") {
			return ErrDuplicateCheckout
		}
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*d.Order, error) {
	return getOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (r *Repository) GetOrderByCheckoutToken(ctx context.Context, ownerKey, token string) (*d.Order, error) {
	return getOrder(ctx, r.db,
		`SELECT `+orderColumns+` FROM orders WHERE owner_key = $1 AND checkout_token = $2`, ownerKey, token)
}

// UpdateOrderStatusIf moves an order from one status to another only if it is
// still in the expected status and the move is legal.
func (r *Repository) UpdateOrderStatusIf(ctx context.Context, id uuid.UUID, from, to d.OrderStatus) (bool, error) {
	if !d.CanTransitionTo(from, to) {
		return false, ErrIllegalTransition
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func getOrder(ctx context.Context, q querier, query string, args ...any) (*d.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	if o.Lines, err = getOrderLines(ctx, q, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func scanOrder(row *sql.Row) (*d.Order, error) {
	var (
		o                  d.Order
		sessionID, account sql.NullString
		processID          sql.NullString
		currency           string
		subtotal, tax, tot int64
	)
	err := row.Scan(
		&o.ID,
		&sessionID,
		&account,
		&o.Contact.Name,
		&o.Contact.Email,
		&o.Contact.Phone,
		&o.CheckoutToken,
		&o.CartFingerprint,
		&currency,
		&subtotal,
		&tax,
		&tot,
		&o.Status,
		&processID,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	o.Owner = d.OwnerRef{SessionID: sessionID.String, AccountID: account.String}
	o.Subtotal = d.NewMoney(subtotal, currency)
	o.Tax = d.NewMoney(tax, currency)
	o.Total = d.NewMoney(tot, currency)
	if processID.Valid {
		o.GatewayProcessID = &processID.String
	}
	return &o, nil
}

func getOrderLines(ctx context.Context, q querier, orderID uuid.UUID) ([]d.OrderLine, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT item_id, price_minor, currency FROM order_lines WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	var lines []d.OrderLine
	for rows.Next() {
		var (
			line     d.OrderLine
			amount   int64
			currency string
		)
		if err := rows.Scan(&line.ItemID, &amount, &currency); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		line.OrderID = orderID
		line.Price = d.NewMoney(amount, currency)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Package catalog resolves the current purchasable price of a photo.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

var ErrNotAvailable = errors.New("item is not available for purchase")

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

// ResolvePrice returns the current price of a purchasable photo, or
// ErrNotAvailable if it does not exist or has been withdrawn.
func (r *Repository) ResolvePrice(ctx context.Context, itemID string) (d.Money, error) {
	var (
		amount      int64
		currency    string
		purchasable bool
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT price_minor, currency, purchasable FROM photos WHERE id = ?`, itemID).
		Scan(&amount, &currency, &purchasable)
	if errors.Is(err, sql.ErrNoRows) {
		return d.Money{}, ErrNotAvailable
	}
	if err != nil {
		return d.Money{}, fmt.Errorf("failed to query photo %s: %w", itemID, err)
	}
	if !purchasable {
		return d.Money{}, ErrNotAvailable
	}
	return d.NewMoney(amount, currency), nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	d "github.com/fjod/photo_checkout/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
	MaxOpenConns      int
	MaxIdleConns      int
}

type Repository struct {
	db *sql.DB
}

// AttemptBuilder produces the next payment attempt for a locked, pending order.
type AttemptBuilder func(order *d.Order, seq int) (*d.PaymentAttempt, error)

// Resolution describes how a callback settles an attempt and its order.
// EventType, when set, is written to the outbox in the same transaction.
type Resolution struct {
	AttemptStatus d.AttemptStatus
	OrderStatus   d.OrderStatus
	EventType     string
}

type RepoInterface interface {
	Close() error
	RunMigrations(*Credentials) error
	Ping(ctx context.Context) error

	CreateOrder(ctx context.Context, order *d.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*d.Order, error)
	GetOrderByCheckoutToken(ctx context.Context, ownerKey, token string) (*d.Order, error)
	UpdateOrderStatusIf(ctx context.Context, id uuid.UUID, from, to d.OrderStatus) (bool, error)

	CreateAttempt(ctx context.Context, orderID uuid.UUID, build AttemptBuilder) (*d.PaymentAttempt, error)
	GetAttempt(ctx context.Context, processID string) (*d.PaymentAttempt, error)
	ResolveAttempt(ctx context.Context, processID string, res Resolution) (*d.Order, bool, error)

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

var _ RepoInterface = (*Repository)(nil)

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	maxOpen, maxIdle := cred.MaxOpenConns, cred.MaxIdleConns
	if maxOpen <= 0 {
		maxOpen = 100
	}
	if maxIdle <= 0 {
		maxIdle = 10
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func rollback(tx *sql.Tx) {
	_ = tx.Rollback()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/promo-checkout/internal/domain/checkout"
	"github.com/example/promo-checkout/internal/domain/order"
	"github.com/example/promo-checkout/internal/domain/pricing"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresOrderStore persists orders in PostgreSQL
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

const orderColumns = `id, songs, campaign_tiers, selected_addons, user_email,
	user_first_name, user_last_name, total_amount, stripe_payment_intent_id,
	status, created_at, updated_at`

func (s *PostgresOrderStore) Insert(ctx context.Context, o *order.Order) (string, error) {
	songs, err := json.Marshal(o.Songs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal songs: %w", err)
	}
	tiers, err := json.Marshal(o.Tiers)
	if err != nil {
		return "", fmt.Errorf("failed to marshal tiers: %w", err)
	}
	addons, err := json.Marshal(o.Addons)
	if err != nil {
		return "", fmt.Errorf("failed to marshal addons: %w", err)
	}

	id := uuid.New().String()
	now := time.Now()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (id, songs, campaign_tiers, selected_addons, user_email,
			user_first_name, user_last_name, total_amount, stripe_payment_intent_id,
			status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9, $10, $10)`,
		id,
		songs,
		tiers,
		addons,
		o.Contact.Email,
		o.Contact.FirstName,
		o.Contact.LastName,
		o.TotalAmount,
		order.StatusPending,
		now,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert order: %w", err)
	}
	return id, nil
}

func (s *PostgresOrderStore) AttachPaymentIntent(ctx context.Context, orderID, intentID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET stripe_payment_intent_id = $2, updated_at = NOW() WHERE id = $1`,
		orderID, intentID,
	)
	if err != nil {
		return fmt.Errorf("failed to attach payment intent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return order.ErrNotFound
	}
	return nil
}

// UpdateStatusByIntentID performs a conditional, last-write-wins transition.
// Rows already at the target status are untouched, which makes webhook
// replays observable as zero affected rows.
func (s *PostgresOrderStore) UpdateStatusByIntentID(ctx context.Context, intentID string, status order.Status) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW()
		 WHERE stripe_payment_intent_id = $1 AND status <> $2`,
		intentID, status,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update order status: %w", err)
	}
	return result.RowsAffected()
}

func (s *PostgresOrderStore) GetByPaymentIntentID(ctx context.Context, intentID string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE stripe_payment_intent_id = $1`,
		intentID,
	)
	return scanOrder(row)
}

func (s *PostgresOrderStore) GetByID(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		id,
	)
	return scanOrder(row)
}

func (s *PostgresOrderStore) List(ctx context.Context) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o        order.Order
		songs    []byte
		tiers    []byte
		addons   []byte
		intentID sql.NullString
	)

	err := row.Scan(
		&o.ID,
		&songs,
		&tiers,
		&addons,
		&o.Contact.Email,
		&o.Contact.FirstName,
		&o.Contact.LastName,
		&o.TotalAmount,
		&intentID,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if err := json.Unmarshal(songs, &o.Songs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal songs: %w", err)
	}
	if err := json.Unmarshal(tiers, &o.Tiers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tiers: %w", err)
	}
	if err := json.Unmarshal(addons, &o.Addons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal addons: %w", err)
	}
	if o.Songs == nil {
		o.Songs = []checkout.LineItem{}
	}
	if o.Tiers == nil {
		o.Tiers = map[string]pricing.Tier{}
	}
	o.PaymentIntentID = intentID.String

	return &o, nil
}

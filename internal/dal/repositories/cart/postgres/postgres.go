package postgresrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/trendora/order-svc/internal/dal/postgres"
	"github.com/trendora/order-svc/internal/service/models/cart"
)

type PostgresCartRepository struct {
	conn postgres.Querier
}

func NewPostgresCartRepository(conn postgres.Querier) *PostgresCartRepository {
	return &PostgresCartRepository{
		conn: conn,
	}
}

// Get returns the owner's cart snapshot. A missing row reads as an empty cart.
func (r *PostgresCartRepository) Get(ctx context.Context, ownerID string) (cart.Snapshot, error) {
	query, args, err := sq.Select("data").
		From("carts").
		Where(sq.Eq{"owner_id": ownerID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var raw []byte
	if err := r.conn.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return cart.Snapshot{}, nil
		}

		return nil, fmt.Errorf("failed to query cart: %w", err)
	}

	var snapshot cart.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart snapshot: %w", err)
	}

	return snapshot, nil
}

// Clear wipes the owner's cart snapshot. Clearing an absent or already empty
// cart succeeds, which keeps the confirming transaction retry-safe.
func (r *PostgresCartRepository) Clear(ctx context.Context, ownerID string) error {
	query, args, err := sq.Update("carts").
		Set("data", []byte("{}")).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"owner_id": ownerID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return nil
}

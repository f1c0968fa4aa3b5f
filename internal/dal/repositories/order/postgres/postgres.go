package postgresrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/trendora/order-svc/internal/dal/postgres"
	"github.com/trendora/order-svc/internal/service/models/currency"
	"github.com/trendora/order-svc/internal/service/models/order"
)

var orderColumns = []string{
	"id",
	"owner_id",
	"line_items",
	"shipping_address",
	"total_price_cents",
	"currency",
	"payment_method",
	"payment_confirmed",
	"status",
	"gateway_session_ref",
	"resolved_by",
	"created_at",
	"updated_at",
}

// OrderDal represents the order data access layer model.
type OrderDal struct {
	Id                uuid.UUID
	OwnerId           string
	LineItems         []byte
	ShippingAddress   []byte
	TotalPriceCents   int64
	Currency          string
	PaymentMethod     string
	PaymentConfirmed  bool
	Status            string
	GatewaySessionRef *string
	ResolvedBy        *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ToModel converts OrderDal to the service layer Order model.
func (o *OrderDal) ToModel() (*order.Order, error) {
	cur, err := currency.ParseCurrency(o.Currency)
	if err != nil {
		return nil, err
	}
	method, err := order.ParsePaymentMethod(o.PaymentMethod)
	if err != nil {
		return nil, err
	}
	status, err := order.ParseStatus(o.Status)
	if err != nil {
		return nil, err
	}

	var items []order.LineItem
	if err := json.Unmarshal(o.LineItems, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal line items: %w", err)
	}

	return &order.Order{
		ID:                o.Id,
		OwnerID:           o.OwnerId,
		LineItems:         items,
		ShippingAddress:   json.RawMessage(o.ShippingAddress),
		TotalPriceCents:   o.TotalPriceCents,
		Currency:          cur,
		PaymentMethod:     method,
		PaymentConfirmed:  o.PaymentConfirmed,
		Status:            status,
		GatewaySessionRef: o.GatewaySessionRef,
		ResolvedBy:        o.ResolvedBy,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}, nil
}

type PostgresOrderRepository struct {
	conn postgres.Querier
}

func NewPostgresOrderRepository(conn postgres.Querier) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		conn: conn,
	}
}

// Insert stores a new order and returns it with the assigned identifier.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o order.Order) (order.Order, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}

	items, err := json.Marshal(o.LineItems)
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to marshal line items: %w", err)
	}
	address := []byte(o.ShippingAddress)
	if len(address) == 0 {
		address = []byte("{}")
	}

	query, args, err := sq.Insert("orders").
		Columns(orderColumns...).
		Values(
			o.ID,
			o.OwnerID,
			items,
			address,
			o.TotalPriceCents,
			o.Currency.String(),
			o.PaymentMethod.String(),
			o.PaymentConfirmed,
			o.Status.String(),
			o.GatewaySessionRef,
			o.ResolvedBy,
			o.CreatedAt,
			o.UpdatedAt,
		).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return order.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	return o, nil
}

// GetByID returns the order or nil when it does not exist.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	query, args, err := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var dal OrderDal
	err = r.conn.QueryRow(ctx, query, args...).Scan(
		&dal.Id,
		&dal.OwnerId,
		&dal.LineItems,
		&dal.ShippingAddress,
		&dal.TotalPriceCents,
		&dal.Currency,
		&dal.PaymentMethod,
		&dal.PaymentConfirmed,
		&dal.Status,
		&dal.GatewaySessionRef,
		&dal.ResolvedBy,
		&dal.CreatedAt,
		&dal.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	return dal.ToModel()
}

// Query retrieves orders based on filter criteria.
func (r *PostgresOrderRepository) Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	builder := sq.Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC").
		PlaceholderFormat(sq.Dollar)

	if len(filter.IDs) > 0 {
		builder = builder.Where(sq.Eq{"id": filter.IDs})
	}
	if len(filter.OwnerIDs) > 0 {
		builder = builder.Where(sq.Eq{"owner_id": filter.OwnerIDs})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = s.String()
		}
		builder = builder.Where(sq.Eq{"status": statuses})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	result := []order.Order{}
	for rows.Next() {
		var dal OrderDal
		err := rows.Scan(
			&dal.Id,
			&dal.OwnerId,
			&dal.LineItems,
			&dal.ShippingAddress,
			&dal.TotalPriceCents,
			&dal.Currency,
			&dal.PaymentMethod,
			&dal.PaymentConfirmed,
			&dal.Status,
			&dal.GatewaySessionRef,
			&dal.ResolvedBy,
			&dal.CreatedAt,
			&dal.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, fmt.Errorf("failed to convert order dal to model: %w", err)
		}
		result = append(result, *model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// ConfirmPayment performs the compare-and-set confirming write. The WHERE
// clause on payment_confirmed is what guarantees at most one winner per order
// regardless of how many coordinators race.
func (r *PostgresOrderRepository) ConfirmPayment(ctx context.Context, id uuid.UUID, resolvedBy string) (bool, error) {
	query, args, err := sq.Update("orders").
		Set("payment_confirmed", true).
		Set("resolved_by", resolvedBy).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"payment_confirmed": false}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to confirm payment: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// CancelIfUnconfirmed cancels the order only while the asynchronous channel
// has not confirmed it. A lost race means confirmation won.
func (r *PostgresOrderRepository) CancelIfUnconfirmed(ctx context.Context, id uuid.UUID) (bool, error) {
	query, args, err := sq.Update("orders").
		Set("status", order.StatusCancelled.String()).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"payment_confirmed": false}).
		Where(sq.NotEq{"status": []string{
			order.StatusDelivered.String(),
			order.StatusCancelled.String(),
		}}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// UpdateStatus moves the order between fulfillment statuses, conditioned on
// the status still being the one the caller validated against.
func (r *PostgresOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to order.Status) (bool, error) {
	query, args, err := sq.Update("orders").
		Set("status", to.String()).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"status": from.String()}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build update query: %w", err)
	}

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// SetGatewaySessionRef stores the checkout session reference.
func (r *PostgresOrderRepository) SetGatewaySessionRef(ctx context.Context, id uuid.UUID, ref string) error {
	query, args, err := sq.Update("orders").
		Set("gateway_session_ref", ref).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	if _, err := r.conn.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set gateway session ref: %w", err)
	}

	return nil
}

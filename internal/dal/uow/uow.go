package uow

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/trendora/order-svc/internal/dal/interfaces/icartrepo"
	"github.com/trendora/order-svc/internal/dal/interfaces/iorderrepo"
	"github.com/trendora/order-svc/internal/dal/interfaces/ioutboxrepo"
	"github.com/trendora/order-svc/internal/dal/postgres"
	cartrepo "github.com/trendora/order-svc/internal/dal/repositories/cart/postgres"
	orderrepo "github.com/trendora/order-svc/internal/dal/repositories/order/postgres"
	outboxrepo "github.com/trendora/order-svc/internal/dal/repositories/outbox/postgres"
)

// unitOfWork scopes repositories to one transaction so that a payment
// confirmation, the cart wipe, and the outbox record commit or roll back
// together.
type unitOfWork struct {
	client     *postgres.Client
	tx         pgx.Tx
	orderRepo  iorderrepo.Repository
	cartRepo   icartrepo.Repository
	outboxRepo ioutboxrepo.Repository
}

func NewUnitOfWork(client *postgres.Client) *unitOfWork {
	return &unitOfWork{
		client:     client,
		orderRepo:  orderrepo.NewPostgresOrderRepository(client.Pool()),
		cartRepo:   cartrepo.NewPostgresCartRepository(client.Pool()),
		outboxRepo: outboxrepo.NewOutboxRepository(client.Pool()),
	}
}

func (u *unitOfWork) OrderRepository() iorderrepo.Repository {
	return u.orderRepo
}

func (u *unitOfWork) CartRepository() icartrepo.Repository {
	return u.cartRepo
}

func (u *unitOfWork) OutboxRepository() ioutboxrepo.Repository {
	return u.outboxRepo
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	tx, err := u.client.Begin(ctx)
	if err != nil {
		return err
	}

	u.tx = tx
	u.orderRepo = orderrepo.NewPostgresOrderRepository(tx)
	u.cartRepo = cartrepo.NewPostgresCartRepository(tx)
	u.outboxRepo = outboxrepo.NewOutboxRepository(tx)

	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	return u.tx.Commit(ctx)
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	if u.tx == nil {
		return nil
	}
	return u.tx.Rollback(ctx)
}

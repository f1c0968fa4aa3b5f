// Package reconciler merges the two independently-arriving payment
// confirmation signals (client redirect and gateway notification) into one
// consistent order state. Correctness rests on the repository's conditional
// writes, not on in-process locking: any number of invocations may race for
// the same order and exactly one performs the confirming transition.
package reconciler

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/trendora/order-svc/internal/dal/interfaces/icartrepo"
	"github.com/trendora/order-svc/internal/dal/interfaces/iorderrepo"
	"github.com/trendora/order-svc/internal/dal/interfaces/ioutboxrepo"
	"github.com/trendora/order-svc/internal/dal/postgres"
	"github.com/trendora/order-svc/internal/dal/uow"
	"github.com/trendora/order-svc/internal/gateway"
	"github.com/trendora/order-svc/internal/service/models/apperrors"
	"github.com/trendora/order-svc/internal/service/models/order"
	"github.com/trendora/order-svc/internal/service/models/outbox"
	"github.com/trendora/order-svc/internal/service/models/principal"
	"go.opentelemetry.io/otel"
)

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.Repository
	CartRepository() icartrepo.Repository
	OutboxRepository() ioutboxrepo.Repository
}

// Reconciler is the coordinator applying at-most-once payment confirmation.
type Reconciler struct {
	pgClient *postgres.Client
	newUOW   func() unitOfWork
}

// option is a function that configures the Reconciler.
type option func(*Reconciler)

// MustNewReconciler creates a new Reconciler.
func MustNewReconciler(opts ...option) *Reconciler {
	r := &Reconciler{}
	for _, opt := range opts {
		opt(r)
	}
	if r.newUOW == nil {
		panic("reconciler requires a postgres client or a unit of work factory")
	}

	return r
}

// WithPostgresClient sets the Postgres client for the Reconciler.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(r *Reconciler) {
		r.pgClient = pgClient
		r.newUOW = func() unitOfWork { return uow.NewUnitOfWork(pgClient) }
	}
}

// WithUnitOfWorkFactory overrides how units of work are created.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWorkFactory(factory func() unitOfWork) option {
	return func(r *Reconciler) {
		r.newUOW = factory
	}
}

// ConfirmViaRedirect handles the buyer's return from the gateway. The client
// assertion is advisory for success (it attempts the same conditional
// confirmation as the notification path) but authoritative for explicit
// failure: a failure assertion cancels the order only while the asynchronous
// channel has not confirmed it. Confirmation always wins over a late
// redirect-side cancellation.
func (r *Reconciler) ConfirmViaRedirect(
	ctx context.Context,
	p principal.Principal,
	orderID uuid.UUID,
	success bool,
) (*order.Order, error) {
	ctx, span := otel.Tracer("order-svc").Start(ctx, "reconciler.ConfirmViaRedirect")
	defer span.End()

	reader := r.newUOW()
	ord, err := reader.OrderRepository().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, apperrors.NotFound("order %s", orderID)
	}
	if p.Role == principal.RoleOwner && ord.OwnerID != p.ID {
		// Not the caller's order; indistinguishable from absent.
		return nil, apperrors.NotFound("order %s", orderID)
	}

	if !success {
		return r.cancelUnconfirmed(ctx, ord)
	}

	if ord.PaymentConfirmed {
		return ord, nil
	}

	won, err := r.confirm(ctx, ord, order.ResolvedByRedirect)
	if err != nil {
		return nil, err
	}
	if !won {
		// The notification channel got there first; re-read the winning state.
		return r.newUOW().OrderRepository().GetByID(ctx, orderID)
	}

	resolved := order.ResolvedByRedirect
	ord.PaymentConfirmed = true
	ord.ResolvedBy = &resolved

	return ord, nil
}

// ConfirmViaNotification handles a verified asynchronous gateway event. The
// entry point is idempotent and safe to retry: the gateway redelivers on any
// non-2xx response, and a redelivery for an already-confirmed order returns
// success without touching the datastore again.
func (r *Reconciler) ConfirmViaNotification(ctx context.Context, conf gateway.Confirmation) error {
	ctx, span := otel.Tracer("order-svc").Start(ctx, "reconciler.ConfirmViaNotification")
	defer span.End()

	if !conf.Succeeded {
		slog.Info("Ignoring non-successful gateway event", "order_id", conf.OrderID)

		return nil
	}

	orderID, err := uuid.Parse(conf.OrderID)
	if err != nil {
		return apperrors.Validation("malformed order id %q in gateway event", conf.OrderID)
	}

	reader := r.newUOW()
	ord, err := reader.OrderRepository().GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if ord == nil {
		// The notification may outrun order creation; rejecting lets the
		// gateway redeliver once the order has committed.
		return apperrors.NotFound("order %s", orderID)
	}
	if ord.PaymentConfirmed {
		return nil
	}

	won, err := r.confirm(ctx, ord, order.ResolvedByNotification)
	if err != nil {
		return err
	}
	if !won {
		slog.Info("Payment already confirmed by another channel", "order_id", orderID)
	}

	return nil
}

// confirm runs the conditional confirming transition and its side effects in
// one transaction: flip payment_confirmed, wipe the owner's cart, enqueue the
// outbox event. Losing the compare-and-set skips the side effects; the winner
// already performed them.
func (r *Reconciler) confirm(ctx context.Context, ord *order.Order, channel string) (bool, error) {
	work := r.newUOW()
	if err := work.Begin(ctx); err != nil {
		return false, err
	}
	defer func() { _ = work.Rollback(ctx) }()

	won, err := work.OrderRepository().ConfirmPayment(ctx, ord.ID, channel)
	if err != nil {
		return false, err
	}
	if !won {
		return false, nil
	}

	if err := work.CartRepository().Clear(ctx, ord.OwnerID); err != nil {
		return false, err
	}

	confirmed := *ord
	confirmed.PaymentConfirmed = true
	confirmed.ResolvedBy = &channel
	msg, err := outbox.NewPaymentConfirmedMessage(confirmed)
	if err != nil {
		return false, err
	}
	if err := work.OutboxRepository().Insert(ctx, msg); err != nil {
		return false, err
	}

	if err := work.Commit(ctx); err != nil {
		return false, err
	}

	slog.Info("Payment confirmed", "order_id", ord.ID, "resolved_by", channel)

	return true, nil
}

// cancelUnconfirmed applies a redirect-side failure assertion. The write is
// conditioned on the payment still being unconfirmed, so a notification that
// landed in the meantime keeps the order confirmed.
func (r *Reconciler) cancelUnconfirmed(ctx context.Context, ord *order.Order) (*order.Order, error) {
	if ord.PaymentConfirmed {
		return nil, apperrors.StateConflict("payment for order %s is already confirmed", ord.ID)
	}
	if ord.Status.IsTerminal() {
		return nil, apperrors.StateConflict("order %s is already in status %s", ord.ID, ord.Status)
	}

	work := r.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = work.Rollback(ctx) }()

	won, err := work.OrderRepository().CancelIfUnconfirmed(ctx, ord.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, apperrors.StateConflict("payment for order %s is already confirmed", ord.ID)
	}

	cancelled := *ord
	cancelled.Status = order.StatusCancelled
	msg, err := outbox.NewStatusChangedMessage(cancelled)
	if err != nil {
		return nil, err
	}
	if err := work.OutboxRepository().Insert(ctx, msg); err != nil {
		return nil, err
	}

	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	slog.Info("Order cancelled after failed redirect", "order_id", ord.ID)

	return &cancelled, nil
}

package iorderrepo

import (
	"context"

	"github.com/google/uuid"
	"github.com/trendora/order-svc/internal/service/models/order"
)

// Repository is the order storage contract. The conditional mutations
// (ConfirmPayment, CancelIfUnconfirmed, UpdateStatus) are compare-and-set
// writes: they report whether this caller performed the transition, and the
// datastore, not the application, serializes concurrent attempts.
type Repository interface {
	Insert(ctx context.Context, o order.Order) (order.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error)
	Query(ctx context.Context, filter *order.QueryOrdersModel) ([]order.Order, error)

	// ConfirmPayment flips payment_confirmed false -> true and records the
	// resolving channel, conditioned on the flag still being false at write
	// time. Returns true only for the single winning caller.
	ConfirmPayment(ctx context.Context, id uuid.UUID, resolvedBy string) (bool, error)

	// CancelIfUnconfirmed moves the order to Cancelled only while the payment
	// is still unconfirmed and the order is not in a terminal status.
	CancelIfUnconfirmed(ctx context.Context, id uuid.UUID) (bool, error)

	// UpdateStatus moves the order from the previously observed status to the
	// requested one, conditioned on the status being unchanged since the read.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to order.Status) (bool, error)

	// SetGatewaySessionRef stores the checkout session reference handed out
	// by the payment gateway.
	SetGatewaySessionRef(ctx context.Context, id uuid.UUID, ref string) error
}

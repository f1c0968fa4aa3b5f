package ordersvc

import (
	"context"
	"log/slog"
	"time"

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
)

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	OrderRepository() iorderrepo.Repository
	CartRepository() icartrepo.Repository
	OutboxRepository() ioutboxrepo.Repository
}

// checkoutGateway is the slice of the payment gateway the service needs.
type checkoutGateway interface {
	OpenCheckoutSession(ctx context.Context, ord order.Order, origin string) (*gateway.Session, error)
	DeliveryFeeCents() int64
}

// auditLogger publishes order-created audit events.
type auditLogger interface {
	LogOrderCreated(ctx context.Context, orders ...order.Order) error
}

// OrderService is a thin orchestration layer over the repositories: input
// validation and repository calls only. Payment-state changes belong to the
// reconciler.
type OrderService struct {
	pgClient *postgres.Client
	gateway  checkoutGateway
	audit    auditLogger
	newUOW   func() unitOfWork
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{}
	for _, opt := range opts {
		opt(s)
	}
	if s.newUOW == nil {
		panic("order service requires a postgres client or a unit of work factory")
	}

	return s
}

// WithPostgresClient sets the Postgres client for the OrderService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *OrderService) {
		s.pgClient = pgClient
		s.newUOW = func() unitOfWork { return uow.NewUnitOfWork(pgClient) }
	}
}

// WithUnitOfWorkFactory overrides how units of work are created.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUnitOfWorkFactory(factory func() unitOfWork) option {
	return func(s *OrderService) {
		s.newUOW = factory
	}
}

// WithGateway sets the payment gateway client.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithGateway(gw checkoutGateway) option {
	return func(s *OrderService) {
		s.gateway = gw
	}
}

// WithAuditLogger sets the audit event publisher.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithAuditLogger(audit auditLogger) option {
	return func(s *OrderService) {
		s.audit = audit
	}
}

// validateDraft checks what the client is not trusted with: a non-empty item
// list and a total that matches the line items plus the delivery surcharge.
func (s *OrderService) validateDraft(draft *order.Order) error {
	if len(draft.LineItems) == 0 {
		return apperrors.Validation("order has no line items")
	}
	for _, item := range draft.LineItems {
		if item.Quantity <= 0 || item.UnitPriceCents <= 0 {
			return apperrors.Validation("line item %s has non-positive quantity or price", item.ProductID)
		}
	}

	expected := draft.ItemsTotalCents() + s.gateway.DeliveryFeeCents()
	if draft.TotalPriceCents != expected {
		return apperrors.Validation(
			"total %d does not match line items plus delivery fee (%d)",
			draft.TotalPriceCents, expected,
		)
	}

	return nil
}

// PlaceOrder creates a cash-on-delivery order. COD orders are confirmed at
// creation, so the cart wipe happens in the same transaction as the insert.
func (s *OrderService) PlaceOrder(
	ctx context.Context,
	p principal.Principal,
	draft order.Order,
) (order.Order, error) {
	if p.Role != principal.RoleOwner {
		return order.Order{}, apperrors.Forbidden("only buyers may place orders")
	}
	if err := s.validateDraft(&draft); err != nil {
		return order.Order{}, err
	}

	now := time.Now()
	draft.ID = uuid.New()
	draft.OwnerID = p.ID
	draft.PaymentMethod = order.PaymentMethodCOD
	draft.PaymentConfirmed = true
	draft.Status = order.StatusOrderPlaced
	draft.GatewaySessionRef = nil
	draft.ResolvedBy = nil
	draft.CreatedAt = now
	draft.UpdatedAt = now

	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return order.Order{}, err
	}
	defer func() { _ = work.Rollback(ctx) }()

	inserted, err := work.OrderRepository().Insert(ctx, draft)
	if err != nil {
		return order.Order{}, err
	}
	if err := work.CartRepository().Clear(ctx, p.ID); err != nil {
		return order.Order{}, err
	}
	if err := work.Commit(ctx); err != nil {
		return order.Order{}, err
	}

	s.logAudit(ctx, inserted)

	return inserted, nil
}

// PlaceOrderWithCheckout creates a pending gateway order and opens a hosted
// checkout session for it. A gateway failure leaves the order pending: there
// is no rollback, the buyer can retry checkout or the order can be cancelled.
func (s *OrderService) PlaceOrderWithCheckout(
	ctx context.Context,
	p principal.Principal,
	draft order.Order,
	origin string,
) (order.Order, string, error) {
	if p.Role != principal.RoleOwner {
		return order.Order{}, "", apperrors.Forbidden("only buyers may place orders")
	}
	if err := s.validateDraft(&draft); err != nil {
		return order.Order{}, "", err
	}

	now := time.Now()
	draft.ID = uuid.New()
	draft.OwnerID = p.ID
	draft.PaymentMethod = order.PaymentMethodGateway
	draft.PaymentConfirmed = false
	draft.Status = order.StatusOrderPlaced
	draft.GatewaySessionRef = nil
	draft.ResolvedBy = nil
	draft.CreatedAt = now
	draft.UpdatedAt = now

	work := s.newUOW()
	inserted, err := work.OrderRepository().Insert(ctx, draft)
	if err != nil {
		return order.Order{}, "", err
	}

	s.logAudit(ctx, inserted)

	session, err := s.gateway.OpenCheckoutSession(ctx, inserted, origin)
	if err != nil {
		return inserted, "", err
	}

	if err := work.OrderRepository().SetGatewaySessionRef(ctx, inserted.ID, session.ID); err != nil {
		return inserted, "", err
	}
	inserted.GatewaySessionRef = &session.ID

	return inserted, session.URL, nil
}

// CancelOrder cancels an order on behalf of its owner or an operator,
// gated by the transition table.
func (s *OrderService) CancelOrder(
	ctx context.Context,
	p principal.Principal,
	orderID uuid.UUID,
) (*order.Order, error) {
	return s.transition(ctx, p, orderID, order.StatusCancelled)
}

// UpdateFulfillmentStatus moves an order along the fulfillment sequence.
// Operator only; the transition table rejects skips, regressions and repeats.
func (s *OrderService) UpdateFulfillmentStatus(
	ctx context.Context,
	p principal.Principal,
	orderID uuid.UUID,
	requested order.Status,
) (*order.Order, error) {
	if p.Role != principal.RoleOperator {
		return nil, apperrors.Forbidden("only operators may update fulfillment status")
	}

	return s.transition(ctx, p, orderID, requested)
}

func (s *OrderService) transition(
	ctx context.Context,
	p principal.Principal,
	orderID uuid.UUID,
	requested order.Status,
) (*order.Order, error) {
	reader := s.newUOW()
	ord, err := reader.OrderRepository().GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, apperrors.NotFound("order %s", orderID)
	}
	if p.Role == principal.RoleOwner && ord.OwnerID != p.ID {
		return nil, apperrors.NotFound("order %s", orderID)
	}

	if err := order.Transition(ord.Status, requested, p.Role); err != nil {
		return nil, err
	}

	work := s.newUOW()
	if err := work.Begin(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = work.Rollback(ctx) }()

	won, err := work.OrderRepository().UpdateStatus(ctx, orderID, ord.Status, requested)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, apperrors.StateConflict("order %s changed concurrently, retry", orderID)
	}

	updated := *ord
	updated.Status = requested
	msg, err := outbox.NewStatusChangedMessage(updated)
	if err != nil {
		return nil, err
	}
	if err := work.OutboxRepository().Insert(ctx, msg); err != nil {
		return nil, err
	}

	if err := work.Commit(ctx); err != nil {
		return nil, err
	}

	slog.Info("Order status updated", "order_id", orderID, "from", ord.Status, "to", requested)

	return &updated, nil
}

// ListOrders returns orders visible to the principal: owners see their own,
// operators see everything the filter matches. An empty result is an empty
// slice, not an error.
func (s *OrderService) ListOrders(
	ctx context.Context,
	p principal.Principal,
	filter order.QueryOrdersModel,
) ([]order.Order, error) {
	if p.Role == principal.RoleOwner {
		filter.OwnerIDs = []string{p.ID}
	}

	work := s.newUOW()
	orders, err := work.OrderRepository().Query(ctx, &filter)
	if err != nil {
		return nil, err
	}

	return orders, nil
}

func (s *OrderService) logAudit(ctx context.Context, orders ...order.Order) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogOrderCreated(ctx, orders...); err != nil {
		slog.Error("Failed to publish order audit event", "error", err)
	}
}

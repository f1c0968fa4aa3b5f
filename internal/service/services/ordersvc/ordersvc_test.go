package ordersvc

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trendora/order-svc/internal/dal/interfaces/icartrepo"
	"github.com/trendora/order-svc/internal/dal/interfaces/iorderrepo"
	"github.com/trendora/order-svc/internal/dal/interfaces/ioutboxrepo"
	"github.com/trendora/order-svc/internal/gateway"
	"github.com/trendora/order-svc/internal/service/models/apperrors"
	"github.com/trendora/order-svc/internal/service/models/cart"
	"github.com/trendora/order-svc/internal/service/models/currency"
	"github.com/trendora/order-svc/internal/service/models/order"
	"github.com/trendora/order-svc/internal/service/models/outbox"
	"github.com/trendora/order-svc/internal/service/models/principal"
)

type fakeStore struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]*order.Order
	cartClears map[string]int
	outbox     []outbox.Message
}

func newFakeStore(orders ...order.Order) *fakeStore {
	s := &fakeStore{
		orders:     make(map[uuid.UUID]*order.Order),
		cartClears: make(map[string]int),
	}
	for _, o := range orders {
		o := o
		s.orders[o.ID] = &o
	}

	return s
}

func (s *fakeStore) get(id uuid.UUID) *order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[id]; ok {
		cp := *o

		return &cp
	}

	return nil
}

func (s *fakeStore) uowFactory() func() unitOfWork {
	return func() unitOfWork { return &fakeUOW{store: s} }
}

type fakeUOW struct {
	store *fakeStore
}

func (u *fakeUOW) Begin(context.Context) error    { return nil }
func (u *fakeUOW) Commit(context.Context) error   { return nil }
func (u *fakeUOW) Rollback(context.Context) error { return nil }

func (u *fakeUOW) OrderRepository() iorderrepo.Repository   { return &fakeOrderRepo{store: u.store} }
func (u *fakeUOW) CartRepository() icartrepo.Repository     { return &fakeCartRepo{store: u.store} }
func (u *fakeUOW) OutboxRepository() ioutboxrepo.Repository { return &fakeOutboxRepo{store: u.store} }

type fakeOrderRepo struct {
	store *fakeStore
}

func (r *fakeOrderRepo) Insert(_ context.Context, o order.Order) (order.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := o
	r.store.orders[o.ID] = &cp

	return o, nil
}

func (r *fakeOrderRepo) GetByID(_ context.Context, id uuid.UUID) (*order.Order, error) {
	return r.store.get(id), nil
}

func (r *fakeOrderRepo) Query(_ context.Context, filter *order.QueryOrdersModel) ([]order.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	result := []order.Order{}
	for _, o := range r.store.orders {
		if len(filter.OwnerIDs) > 0 && !slices.Contains(filter.OwnerIDs, o.OwnerID) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, o.Status) {
			continue
		}
		result = append(result, *o)
	}

	return result, nil
}

func (r *fakeOrderRepo) ConfirmPayment(_ context.Context, id uuid.UUID, resolvedBy string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok || o.PaymentConfirmed {
		return false, nil
	}
	o.PaymentConfirmed = true
	o.ResolvedBy = &resolvedBy

	return true, nil
}

func (r *fakeOrderRepo) CancelIfUnconfirmed(_ context.Context, id uuid.UUID) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok || o.PaymentConfirmed || o.Status.IsTerminal() {
		return false, nil
	}
	o.Status = order.StatusCancelled

	return true, nil
}

func (r *fakeOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to order.Status) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to

	return true, nil
}

func (r *fakeOrderRepo) SetGatewaySessionRef(_ context.Context, id uuid.UUID, ref string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if o, ok := r.store.orders[id]; ok {
		o.GatewaySessionRef = &ref
	}

	return nil
}

type fakeCartRepo struct {
	store *fakeStore
}

func (r *fakeCartRepo) Get(_ context.Context, _ string) (cart.Snapshot, error) {
	return cart.Snapshot{}, nil
}

func (r *fakeCartRepo) Clear(_ context.Context, ownerID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.cartClears[ownerID]++

	return nil
}

type fakeOutboxRepo struct {
	store *fakeStore
}

func (r *fakeOutboxRepo) Insert(_ context.Context, msg outbox.Message) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.outbox = append(r.store.outbox, msg)

	return nil
}

func (r *fakeOutboxRepo) GetPendingMessages(_ context.Context, _ int) ([]outbox.Message, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) Delete(_ context.Context, _ int64) error { return nil }

func (r *fakeOutboxRepo) UpdateRetry(_ context.Context, _ int64, _ int, _ string, _ time.Time) error {
	return nil
}

// fakeGateway hands out a deterministic session or a configured error.
type fakeGateway struct {
	err      error
	sessions int
}

func (g *fakeGateway) OpenCheckoutSession(_ context.Context, ord order.Order, _ string) (*gateway.Session, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.sessions++

	return &gateway.Session{
		ID:  "cs_" + ord.ID.String(),
		URL: "https://gateway.test/pay/" + ord.ID.String(),
	}, nil
}

func (g *fakeGateway) DeliveryFeeCents() int64 { return 4000 }

type auditRecorder struct {
	orders []order.Order
}

func (a *auditRecorder) LogOrderCreated(_ context.Context, orders ...order.Order) error {
	a.orders = append(a.orders, orders...)

	return nil
}

func newService(store *fakeStore, gw checkoutGateway, audit auditLogger) *OrderService {
	opts := []option{
		WithUnitOfWorkFactory(store.uowFactory()),
		WithGateway(gw),
	}
	if audit != nil {
		opts = append(opts, WithAuditLogger(audit))
	}

	return MustNewOrderService(opts...)
}

func validDraft() order.Order {
	return order.Order{
		LineItems: []order.LineItem{
			{ProductID: "p1", ProductTitle: "Linen Shirt", Size: "M", Quantity: 2, UnitPriceCents: 149900},
			{ProductID: "p2", ProductTitle: "Wool Socks", Size: "L", Quantity: 1, UnitPriceCents: 9900},
		},
		ShippingAddress: []byte(`{"city":"Pune","zip":"411001"}`),
		TotalPriceCents: 2*149900 + 9900 + 4000,
		Currency:        currency.CurrencyINR,
	}
}

func buyer() principal.Principal {
	return principal.Principal{ID: "buyer-1", Role: principal.RoleOwner}
}

func operator() principal.Principal {
	return principal.Principal{ID: "ops-1", Role: principal.RoleOperator}
}

func TestPlaceOrder_COD(t *testing.T) {
	store := newFakeStore()
	audit := &auditRecorder{}
	svc := newService(store, &fakeGateway{}, audit)

	placed, err := svc.PlaceOrder(context.Background(), buyer(), validDraft())
	require.NoError(t, err)

	assert.Equal(t, "buyer-1", placed.OwnerID)
	assert.Equal(t, order.PaymentMethodCOD, placed.PaymentMethod)
	assert.True(t, placed.PaymentConfirmed)
	assert.Equal(t, order.StatusOrderPlaced, placed.Status)
	assert.NotEqual(t, uuid.Nil, placed.ID)

	assert.Equal(t, 1, store.cartClears["buyer-1"], "cart cleared once at creation")
	require.Len(t, audit.orders, 1)
	assert.Equal(t, placed.ID, audit.orders[0].ID)
}

func TestPlaceOrder_TotalMismatch(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeGateway{}, nil)

	draft := validDraft()
	draft.TotalPriceCents += 100

	_, err := svc.PlaceOrder(context.Background(), buyer(), draft)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Empty(t, store.orders)
}

func TestPlaceOrder_EmptyItems(t *testing.T) {
	svc := newService(newFakeStore(), &fakeGateway{}, nil)

	draft := validDraft()
	draft.LineItems = nil

	_, err := svc.PlaceOrder(context.Background(), buyer(), draft)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestPlaceOrder_NonPositiveQuantity(t *testing.T) {
	svc := newService(newFakeStore(), &fakeGateway{}, nil)

	draft := validDraft()
	draft.LineItems[0].Quantity = 0

	_, err := svc.PlaceOrder(context.Background(), buyer(), draft)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestPlaceOrder_OperatorForbidden(t *testing.T) {
	svc := newService(newFakeStore(), &fakeGateway{}, nil)

	_, err := svc.PlaceOrder(context.Background(), operator(), validDraft())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestPlaceOrderWithCheckout(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc := newService(store, gw, nil)

	placed, sessionURL, err := svc.PlaceOrderWithCheckout(context.Background(), buyer(), validDraft(), "https://shop.test")
	require.NoError(t, err)

	assert.Equal(t, order.PaymentMethodGateway, placed.PaymentMethod)
	assert.False(t, placed.PaymentConfirmed, "gateway orders start unconfirmed")
	assert.Equal(t, "https://gateway.test/pay/"+placed.ID.String(), sessionURL)
	require.NotNil(t, placed.GatewaySessionRef)
	assert.Equal(t, "cs_"+placed.ID.String(), *placed.GatewaySessionRef)

	stored := store.get(placed.ID)
	require.NotNil(t, stored)
	require.NotNil(t, stored.GatewaySessionRef)
	assert.Zero(t, store.cartClears["buyer-1"], "cart survives until payment confirms")
}

func TestPlaceOrderWithCheckout_GatewayFailureLeavesOrderPending(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{err: fmt.Errorf("checkout session rejected: %w", apperrors.ErrGateway)}
	svc := newService(store, gw, nil)

	placed, sessionURL, err := svc.PlaceOrderWithCheckout(context.Background(), buyer(), validDraft(), "https://shop.test")
	require.ErrorIs(t, err, apperrors.ErrGateway)
	assert.Empty(t, sessionURL)

	stored := store.get(placed.ID)
	require.NotNil(t, stored, "order persists despite session failure")
	assert.False(t, stored.PaymentConfirmed)
	assert.Nil(t, stored.GatewaySessionRef)
}

func TestUpdateFulfillmentStatus(t *testing.T) {
	ord := order.Order{ID: uuid.New(), OwnerID: "buyer-1", Status: order.StatusOrderPlaced}
	store := newFakeStore(ord)
	svc := newService(store, &fakeGateway{}, nil)

	updated, err := svc.UpdateFulfillmentStatus(context.Background(), operator(), ord.ID, order.StatusPacking)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPacking, updated.Status)
	assert.Equal(t, order.StatusPacking, store.get(ord.ID).Status)

	require.Len(t, store.outbox, 1)
	assert.Equal(t, outbox.QueueStatusChanged, store.outbox[0].QueueName)
}

func TestUpdateFulfillmentStatus_RepeatIsConflict(t *testing.T) {
	ord := order.Order{ID: uuid.New(), OwnerID: "buyer-1", Status: order.StatusPacking}
	store := newFakeStore(ord)
	svc := newService(store, &fakeGateway{}, nil)

	_, err := svc.UpdateFulfillmentStatus(context.Background(), operator(), ord.ID, order.StatusPacking)
	assert.ErrorIs(t, err, apperrors.ErrStateConflict)
}

func TestUpdateFulfillmentStatus_SkipIsConflict(t *testing.T) {
	ord := order.Order{ID: uuid.New(), OwnerID: "buyer-1", Status: order.StatusOrderPlaced}
	store := newFakeStore(ord)
	svc := newService(store, &fakeGateway{}, nil)

	_, err := svc.UpdateFulfillmentStatus(context.Background(), operator(), ord.ID, order.StatusOutForDelivery)
	assert.ErrorIs(t, err, apperrors.ErrStateConflict)
}

func TestUpdateFulfillmentStatus_OwnerForbidden(t *testing.T) {
	ord := order.Order{ID: uuid.New(), OwnerID: "buyer-1", Status: order.StatusOrderPlaced}
	store := newFakeStore(ord)
	svc := newService(store, &fakeGateway{}, nil)

	_, err := svc.UpdateFulfillmentStatus(context.Background(), buyer(), ord.ID, order.StatusPacking)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestCancelOrder_OwnerEarly(t *testing.T) {
	ord := order.Order{ID: uuid.New(), OwnerID: "buyer-1", Status: order.StatusPacking}
	store := newFakeStore(ord)
	svc := newService(store, &fakeGateway{}, nil)

	cancelled, err := svc.CancelOrder(context.Background(), buyer(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
}

func TestCancelOrder_OwnerAfterShipmentDenied(t *testing.T) {
	ord := order.Order{ID: uuid.New(), OwnerID: "buyer-1", Status: order.StatusShipped}
	store := newFakeStore(ord)
	svc := newService(store, &fakeGateway{}, nil)

	_, err := svc.CancelOrder(context.Background(), buyer(), ord.ID)
	assert.ErrorIs(t, err, apperrors.ErrStateConflict)
	assert.Equal(t, order.StatusShipped, store.get(ord.ID).Status)
}

func TestCancelOrder_OperatorAfterShipment(t *testing.T) {
	ord := order.Order{ID: uuid.New(), OwnerID: "buyer-1", Status: order.StatusShipped}
	store := newFakeStore(ord)
	svc := newService(store, &fakeGateway{}, nil)

	cancelled, err := svc.CancelOrder(context.Background(), operator(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
}

func TestCancelOrder_DeliveredDenied(t *testing.T) {
	ord := order.Order{ID: uuid.New(), OwnerID: "buyer-1", Status: order.StatusDelivered}
	store := newFakeStore(ord)
	svc := newService(store, &fakeGateway{}, nil)

	_, err := svc.CancelOrder(context.Background(), operator(), ord.ID)
	assert.ErrorIs(t, err, apperrors.ErrStateConflict)
}

func TestCancelOrder_ForeignOrderLooksAbsent(t *testing.T) {
	ord := order.Order{ID: uuid.New(), OwnerID: "buyer-1", Status: order.StatusOrderPlaced}
	store := newFakeStore(ord)
	svc := newService(store, &fakeGateway{}, nil)

	_, err := svc.CancelOrder(context.Background(), principal.Principal{ID: "buyer-2", Role: principal.RoleOwner}, ord.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListOrders_OwnerScoped(t *testing.T) {
	mine := order.Order{ID: uuid.New(), OwnerID: "buyer-1", Status: order.StatusOrderPlaced}
	other := order.Order{ID: uuid.New(), OwnerID: "buyer-2", Status: order.StatusOrderPlaced}
	store := newFakeStore(mine, other)
	svc := newService(store, &fakeGateway{}, nil)

	orders, err := svc.ListOrders(context.Background(), buyer(), order.QueryOrdersModel{})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, mine.ID, orders[0].ID)
}

func TestListOrders_OperatorSeesAll(t *testing.T) {
	a := order.Order{ID: uuid.New(), OwnerID: "buyer-1", Status: order.StatusOrderPlaced}
	b := order.Order{ID: uuid.New(), OwnerID: "buyer-2", Status: order.StatusShipped}
	store := newFakeStore(a, b)
	svc := newService(store, &fakeGateway{}, nil)

	orders, err := svc.ListOrders(context.Background(), operator(), order.QueryOrdersModel{})
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestListOrders_EmptyIsEmptySlice(t *testing.T) {
	svc := newService(newFakeStore(), &fakeGateway{}, nil)

	orders, err := svc.ListOrders(context.Background(), operator(), order.QueryOrdersModel{})
	require.NoError(t, err)
	require.NotNil(t, orders)
	assert.Empty(t, orders)
}

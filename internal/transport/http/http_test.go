package httptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trendora/order-svc/internal/gateway"
	"github.com/trendora/order-svc/internal/service/models/apperrors"
	"github.com/trendora/order-svc/internal/service/models/order"
	"github.com/trendora/order-svc/internal/service/models/principal"
)

type fakeService struct {
	placed       []order.Order
	cancelled    []uuid.UUID
	statusCalls  []order.Status
	listedFilter *order.QueryOrdersModel
	err          error
}

func (s *fakeService) PlaceOrder(_ context.Context, p principal.Principal, draft order.Order) (order.Order, error) {
	if s.err != nil {
		return order.Order{}, s.err
	}
	draft.ID = uuid.New()
	draft.OwnerID = p.ID
	draft.PaymentMethod = order.PaymentMethodCOD
	draft.PaymentConfirmed = true
	draft.Status = order.StatusOrderPlaced
	s.placed = append(s.placed, draft)

	return draft, nil
}

func (s *fakeService) PlaceOrderWithCheckout(
	_ context.Context,
	p principal.Principal,
	draft order.Order,
	_ string,
) (order.Order, string, error) {
	if s.err != nil {
		return order.Order{}, "", s.err
	}
	draft.ID = uuid.New()
	draft.OwnerID = p.ID
	draft.PaymentMethod = order.PaymentMethodGateway
	draft.Status = order.StatusOrderPlaced
	s.placed = append(s.placed, draft)

	return draft, "https://gateway.test/pay/" + draft.ID.String(), nil
}

func (s *fakeService) CancelOrder(_ context.Context, _ principal.Principal, orderID uuid.UUID) (*order.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.cancelled = append(s.cancelled, orderID)

	return &order.Order{ID: orderID, Status: order.StatusCancelled}, nil
}

func (s *fakeService) UpdateFulfillmentStatus(
	_ context.Context,
	_ principal.Principal,
	orderID uuid.UUID,
	requested order.Status,
) (*order.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.statusCalls = append(s.statusCalls, requested)

	return &order.Order{ID: orderID, Status: requested}, nil
}

func (s *fakeService) ListOrders(
	_ context.Context,
	p principal.Principal,
	filter order.QueryOrdersModel,
) ([]order.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	if p.Role == principal.RoleOwner {
		filter.OwnerIDs = []string{p.ID}
	}
	s.listedFilter = &filter

	return []order.Order{}, nil
}

type fakeReconciler struct {
	redirects     int
	notifications []gateway.Confirmation
	err           error
}

func (r *fakeReconciler) ConfirmViaRedirect(
	_ context.Context,
	_ principal.Principal,
	orderID uuid.UUID,
	_ bool,
) (*order.Order, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.redirects++
	confirmed := order.Order{ID: orderID, PaymentConfirmed: true, Status: order.StatusOrderPlaced}

	return &confirmed, nil
}

func (r *fakeReconciler) ConfirmViaNotification(_ context.Context, conf gateway.Confirmation) error {
	if r.err != nil {
		return r.err
	}
	r.notifications = append(r.notifications, conf)

	return nil
}

const webhookSecret = "whsec_test"

func newTestTransport(svc *fakeService, recon *fakeReconciler) *httptest.Server {
	gw := gateway.MustNewClient(
		gateway.WithBaseURL("https://gateway.test"),
		gateway.WithSecretKey("sk_test"),
		gateway.WithWebhookSecret(webhookSecret),
		gateway.WithDeliveryFee(4000),
	)
	transport := NewHTTPTransport(svc, recon, gw)
	transport.RegisterRoutes()

	return httptest.NewServer(transport.router)
}

func doRequest(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func asBuyer() map[string]string {
	return map[string]string{"X-User-Id": "buyer-1", "X-User-Role": "owner"}
}

func asOperator() map[string]string {
	return map[string]string{"X-User-Id": "ops-1", "X-User-Role": "operator"}
}

const validOrderBody = `{
	"lineItems": [
		{"productId": "p1", "productTitle": "Linen Shirt", "size": "M", "quantity": 2, "unitPriceCents": 149900}
	],
	"shippingAddress": {"city": "Pune", "zip": "411001"},
	"totalPriceCents": 303800,
	"currency": "INR"
}`

func TestPlaceOrderRoute(t *testing.T) {
	svc := &fakeService{}
	srv := newTestTransport(svc, &fakeReconciler{})
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/place-cod", validOrderBody, asBuyer())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var placed order.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&placed))
	assert.Equal(t, "buyer-1", placed.OwnerID)
	assert.True(t, placed.PaymentConfirmed)
	require.Len(t, svc.placed, 1)
}

func TestPlaceOrderRoute_RequiresIdentity(t *testing.T) {
	svc := &fakeService{}
	srv := newTestTransport(svc, &fakeReconciler{})
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/place-cod", validOrderBody, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, svc.placed)
}

func TestPlaceOrderRoute_UnknownRoleRejected(t *testing.T) {
	srv := newTestTransport(&fakeService{}, &fakeReconciler{})
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/place-cod", validOrderBody,
		map[string]string{"X-User-Id": "buyer-1", "X-User-Role": "admin"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPlaceOrderRoute_MalformedBody(t *testing.T) {
	srv := newTestTransport(&fakeService{}, &fakeReconciler{})
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/place-cod", `{"lineItems": []}`, asBuyer())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckoutRoute(t *testing.T) {
	svc := &fakeService{}
	srv := newTestTransport(svc, &fakeReconciler{})
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/checkout", validOrderBody, asBuyer())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Order      order.Order `json:"order"`
		SessionURL string      `json:"sessionUrl"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.SessionURL, "https://gateway.test/pay/")
	assert.Equal(t, order.PaymentMethodGateway, body.Order.PaymentMethod)
}

func TestVerifyRoute(t *testing.T) {
	recon := &fakeReconciler{}
	srv := newTestTransport(&fakeService{}, recon)
	defer srv.Close()

	orderID := uuid.NewString()
	body := fmt.Sprintf(`{"orderId": %q, "success": true}`, orderID)
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/verify", body, asBuyer())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, recon.redirects)
}

func TestVerifyRoute_MalformedOrderID(t *testing.T) {
	recon := &fakeReconciler{}
	srv := newTestTransport(&fakeService{}, recon)
	defer srv.Close()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/verify",
		`{"orderId": "not-a-uuid", "success": true}`, asBuyer())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, recon.redirects)
}

func TestVerifyRoute_ConflictMapsTo409(t *testing.T) {
	recon := &fakeReconciler{err: apperrors.StateConflict("payment already confirmed")}
	srv := newTestTransport(&fakeService{}, recon)
	defer srv.Close()

	body := fmt.Sprintf(`{"orderId": %q, "success": false}`, uuid.NewString())
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/verify", body, asBuyer())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func webhookBody(orderID string) string {
	return fmt.Sprintf(
		`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1","metadata":{"orderId":%q}}}}`,
		orderID,
	)
}

func TestWebhookRoute(t *testing.T) {
	recon := &fakeReconciler{}
	srv := newTestTransport(&fakeService{}, recon)
	defer srv.Close()

	orderID := uuid.NewString()
	payload := webhookBody(orderID)
	now := time.Now()
	sig := fmt.Sprintf("t=%d,v1=%s", now.Unix(), gateway.ComputeSignature(now, []byte(payload), webhookSecret))

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/webhook/gateway", payload,
		map[string]string{gateway.SignatureHeader: sig})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, recon.notifications, 1)
	assert.Equal(t, orderID, recon.notifications[0].OrderID)
	assert.True(t, recon.notifications[0].Succeeded)
}

func TestWebhookRoute_NoIdentityHeadersNeeded(t *testing.T) {
	// The webhook authenticates via signature, not identity headers; absent
	// headers must not produce a 401.
	recon := &fakeReconciler{}
	srv := newTestTransport(&fakeService{}, recon)
	defer srv.Close()

	payload := webhookBody(uuid.NewString())
	now := time.Now()
	sig := fmt.Sprintf("t=%d,v1=%s", now.Unix(), gateway.ComputeSignature(now, []byte(payload), webhookSecret))

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/webhook/gateway", payload,
		map[string]string{gateway.SignatureHeader: sig})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhookRoute_InvalidSignature(t *testing.T) {
	recon := &fakeReconciler{}
	srv := newTestTransport(&fakeService{}, recon)
	defer srv.Close()

	payload := webhookBody(uuid.NewString())
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/orders/webhook/gateway", payload,
		map[string]string{gateway.SignatureHeader: "t=123,v1=deadbeef"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, recon.notifications, "state must stay untouched on a bad signature")
}

func TestCancelRoute(t *testing.T) {
	svc := &fakeService{}
	srv := newTestTransport(svc, &fakeReconciler{})
	defer srv.Close()

	orderID := uuid.New()
	resp := doRequest(t, http.MethodPatch, srv.URL+"/api/v1/orders/cancel/"+orderID.String(), "", asBuyer())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, svc.cancelled, 1)
	assert.Equal(t, orderID, svc.cancelled[0])
}

func TestCancelRoute_MalformedID(t *testing.T) {
	srv := newTestTransport(&fakeService{}, &fakeReconciler{})
	defer srv.Close()

	resp := doRequest(t, http.MethodPatch, srv.URL+"/api/v1/orders/cancel/not-a-uuid", "", asBuyer())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelRoute_NotFoundMapsTo404(t *testing.T) {
	svc := &fakeService{err: apperrors.NotFound("order missing")}
	srv := newTestTransport(svc, &fakeReconciler{})
	defer srv.Close()

	resp := doRequest(t, http.MethodPatch, srv.URL+"/api/v1/orders/cancel/"+uuid.NewString(), "", asBuyer())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateStatusRoute(t *testing.T) {
	svc := &fakeService{}
	srv := newTestTransport(svc, &fakeReconciler{})
	defer srv.Close()

	body := fmt.Sprintf(`{"orderId": %q, "status": "Packing"}`, uuid.NewString())
	resp := doRequest(t, http.MethodPatch, srv.URL+"/api/v1/orders/status", body, asOperator())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, svc.statusCalls, 1)
	assert.Equal(t, order.StatusPacking, svc.statusCalls[0])
}

func TestUpdateStatusRoute_UnknownStatus(t *testing.T) {
	svc := &fakeService{}
	srv := newTestTransport(svc, &fakeReconciler{})
	defer srv.Close()

	body := fmt.Sprintf(`{"orderId": %q, "status": "Teleported"}`, uuid.NewString())
	resp := doRequest(t, http.MethodPatch, srv.URL+"/api/v1/orders/status", body, asOperator())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, svc.statusCalls)
}

func TestListUserOrdersRoute(t *testing.T) {
	svc := &fakeService{}
	srv := newTestTransport(svc, &fakeReconciler{})
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/orders/user-orders?statuses=Shipped&limit=10", "", asBuyer())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var orders []order.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	assert.NotNil(t, orders)

	require.NotNil(t, svc.listedFilter)
	assert.Equal(t, []string{"buyer-1"}, svc.listedFilter.OwnerIDs)
	assert.Equal(t, []order.Status{order.StatusShipped}, svc.listedFilter.Statuses)
	assert.Equal(t, 10, svc.listedFilter.Limit)
}

func TestListAllOrdersRoute_OperatorOnly(t *testing.T) {
	svc := &fakeService{}
	srv := newTestTransport(svc, &fakeReconciler{})
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/orders/list", "", asBuyer())
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/v1/orders/list", "", asOperator())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListAllOrdersRoute_EmptyIsEmptyArray(t *testing.T) {
	srv := newTestTransport(&fakeService{}, &fakeReconciler{})
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/orders/list", "", asOperator())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var orders []order.Order
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	require.NotNil(t, orders)
	assert.Empty(t, orders)
}

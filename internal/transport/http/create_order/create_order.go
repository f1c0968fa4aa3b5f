package createorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/trendora/order-svc/internal/service/models/apperrors"
	"github.com/trendora/order-svc/internal/service/models/currency"
	"github.com/trendora/order-svc/internal/service/models/order"
	"github.com/trendora/order-svc/internal/service/models/principal"
	"github.com/trendora/order-svc/internal/transport/http/httperr"
)

// service is an interface for the service layer.
type service interface {
	PlaceOrder(ctx context.Context, p principal.Principal, draft order.Order) (order.Order, error)
	PlaceOrderWithCheckout(
		ctx context.Context,
		p principal.Principal,
		draft order.Order,
		origin string,
	) (order.Order, string, error)
}

// itemInCreateOrderRequest represents an item in a create order request.
type itemInCreateOrderRequest struct {
	ProductID      string `json:"productId"      validate:"required"`
	ProductTitle   string `json:"productTitle"   validate:"required"`
	Size           string `json:"size"`
	Quantity       int    `json:"quantity"       validate:"gt=0"`
	UnitPriceCents int64  `json:"unitPriceCents" validate:"gt=0"`
}

func (r *itemInCreateOrderRequest) toModel() order.LineItem {
	return order.LineItem{
		ProductID:      r.ProductID,
		ProductTitle:   r.ProductTitle,
		Size:           r.Size,
		Quantity:       r.Quantity,
		UnitPriceCents: r.UnitPriceCents,
	}
}

// createOrderRequest represents a create order request. The same shape serves
// cash-on-delivery and gateway checkout; the route decides the payment method.
type createOrderRequest struct {
	LineItems       []itemInCreateOrderRequest `json:"lineItems"       validate:"required,min=1,dive"`
	ShippingAddress json.RawMessage            `json:"shippingAddress" validate:"required"`
	TotalPriceCents int64                      `json:"totalPriceCents" validate:"gt=0"`
	Currency        string                     `json:"currency"        validate:"required"`
}

// Validate validates the create order request.
func (r *createOrderRequest) Validate() error {
	return validator.New().Struct(r)
}

func (r *createOrderRequest) toModel() (*order.Order, error) {
	cur, err := currency.ParseCurrency(r.Currency)
	if err != nil {
		return nil, apperrors.Validation("unsupported currency %q", r.Currency)
	}

	items := make([]order.LineItem, len(r.LineItems))
	for i := range r.LineItems {
		items[i] = r.LineItems[i].toModel()
	}

	return &order.Order{
		LineItems:       items,
		ShippingAddress: r.ShippingAddress,
		TotalPriceCents: r.TotalPriceCents,
		Currency:        cur,
	}, nil
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (*order.Order, principal.Principal, bool) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)

		return nil, principal.Principal{}, false
	}

	req := createOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, apperrors.Validation("malformed request body"))
		slog.Error("Error decoding create order request", "error", err)

		return nil, principal.Principal{}, false
	}
	if err := req.Validate(); err != nil {
		httperr.Write(w, apperrors.Validation("invalid create order request: %s", err.Error()))
		slog.Error("Error validating create order request", "error", err)

		return nil, principal.Principal{}, false
	}

	draft, err := req.toModel()
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error converting create order request to model", "error", err)

		return nil, principal.Principal{}, false
	}

	return draft, p, true
}

// PlaceOrder handles cash-on-delivery order placement.
func PlaceOrder(w http.ResponseWriter, r *http.Request, service service) {
	draft, p, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	placed, err := service.PlaceOrder(r.Context(), p, *draft)
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error placing order", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(placed); err != nil {
		slog.Error("Error sending place order response", "error", err)
	}
}

// checkoutResponse carries the redirect URL of the opened checkout session.
type checkoutResponse struct {
	Order      order.Order `json:"order"`
	SessionURL string      `json:"sessionUrl"`
}

// Checkout handles gateway order placement: the order is created pending and
// the buyer is handed a hosted checkout URL.
func Checkout(w http.ResponseWriter, r *http.Request, service service) {
	draft, p, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	placed, sessionURL, err := service.PlaceOrderWithCheckout(r.Context(), p, *draft, r.Header.Get("Origin"))
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error opening checkout session", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(checkoutResponse{Order: placed, SessionURL: sessionURL}); err != nil {
		slog.Error("Error sending checkout response", "error", err)
	}
}
